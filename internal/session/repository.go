package session

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the durable, ordered history log.
type Repository interface {
	Append(ctx context.Context, msg *Message) error
	// List returns every message for userID in creation order.
	List(ctx context.Context, userID string) ([]Message, error)
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Append(ctx context.Context, msg *Message) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO session_messages (user_id, role, content)
		 VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		msg.UserID, string(msg.Role), msg.Content,
	).Scan(&msg.Seq, &msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting session message: %w", err)
	}
	return nil
}

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, role, content, created_at
		 FROM session_messages
		 WHERE user_id = $1
		 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing session messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.Seq, &m.UserID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session message: %w", err)
		}
		m.Role = Role(role)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
