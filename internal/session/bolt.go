package session

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/haulbot/dispatcher/internal/database"
)

// BoltRepository stores each user's history in a nested bucket keyed by a
// big-endian sequence, so a cursor walk yields insertion order.
type BoltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

func (r *BoltRepository) Append(_ context.Context, msg *Message) error {
	err := r.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists(database.BucketSessions)
		if err != nil {
			return err
		}
		b, err := root.CreateBucketIfNotExists([]byte(msg.UserID))
		if err != nil {
			return err
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		msg.Seq = int64(seq)
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), data)
	})
	if err != nil {
		return fmt.Errorf("appending session message: %w", err)
	}
	return nil
}

func (r *BoltRepository) List(_ context.Context, userID string) ([]Message, error) {
	var msgs []Message
	err := r.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(database.BucketSessions)
		if root == nil {
			return nil
		}
		b := root.Bucket([]byte(userID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				// Skip malformed
				return nil
			}
			msgs = append(msgs, m)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing session messages: %w", err)
	}
	return msgs, nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
