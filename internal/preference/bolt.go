package preference

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/haulbot/dispatcher/internal/database"
)

// BoltRepository keeps preferences in the embedded store, keyed by user id.
type BoltRepository struct {
	db *bolt.DB
}

func NewBoltRepository(db *bolt.DB) *BoltRepository {
	return &BoltRepository{db: db}
}

func (r *BoltRepository) Get(_ context.Context, userID string) (*Preference, error) {
	var p *Preference
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(database.BucketPreferences)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(userID))
		if v == nil {
			return nil
		}
		p = &Preference{}
		return json.Unmarshal(v, p)
	})
	if err != nil {
		return nil, fmt.Errorf("getting preference for %s: %w", userID, err)
	}
	return p, nil
}

func (r *BoltRepository) Upsert(_ context.Context, userID string, lang Language) error {
	data, err := json.Marshal(Preference{UserID: userID, Language: lang, UpdatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshaling preference: %w", err)
	}
	err = r.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(database.BucketPreferences)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
	if err != nil {
		return fmt.Errorf("upserting preference for %s: %w", userID, err)
	}
	return nil
}
