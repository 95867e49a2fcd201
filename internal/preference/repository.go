package preference

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists one preference row per user.
type Repository interface {
	// Get returns nil, nil when the user has no stored preference.
	Get(ctx context.Context, userID string) (*Preference, error)
	Upsert(ctx context.Context, userID string, lang Language) error
}

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, userID string) (*Preference, error) {
	var p Preference
	var lang string
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, language, updated_at FROM user_preferences WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &lang, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("getting preference for %s: %w", userID, err)
	}
	p.Language = Language(lang)
	return &p, nil
}

func (r *PostgresRepository) Upsert(ctx context.Context, userID string, lang Language) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO user_preferences (user_id, language)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET language = EXCLUDED.language, updated_at = NOW()`,
		userID, string(lang),
	)
	if err != nil {
		return fmt.Errorf("upserting preference for %s: %w", userID, err)
	}
	return nil
}
