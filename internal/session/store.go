package session

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Store is the session history collaborator the engine talks to. It skips
// empty content and keeps the optional cache coherent with the repository.
type Store struct {
	repo  Repository
	cache *Cache
}

// NewStore wires a repository with an optional cache (nil disables caching).
func NewStore(repo Repository, cache *Cache) *Store {
	return &Store{repo: repo, cache: cache}
}

// Append persists content under role. Blank content is silently ignored.
func (s *Store) Append(ctx context.Context, userID string, role Role, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if !role.Valid() {
		return fmt.Errorf("invalid session role %q", role)
	}

	msg := &Message{UserID: userID, Role: role, Content: content}
	if err := s.repo.Append(ctx, msg); err != nil {
		return err
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, userID); err != nil {
			slog.Warn("session cache: invalidate failed", "error", err, "user", userID)
		}
	}
	return nil
}

// List returns the full ordered history for userID. A repository read
// refills the cache only if no Append invalidated it in the meantime.
func (s *Store) List(ctx context.Context, userID string) ([]Message, error) {
	if s.cache == nil {
		return s.repo.List(ctx, userID)
	}

	msgs, ok, err := s.cache.Get(ctx, userID)
	if err != nil {
		slog.Warn("session cache: read failed, falling back to repository", "error", err, "user", userID)
	} else if ok {
		return msgs, nil
	}

	gen, genErr := s.cache.Generation(ctx, userID)

	msgs, err = s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	if genErr != nil {
		slog.Warn("session cache: skipping fill", "error", genErr, "user", userID)
		return msgs, nil
	}
	if _, err := s.cache.Set(ctx, userID, gen, msgs); err != nil {
		slog.Warn("session cache: fill failed", "error", err, "user", userID)
	}
	return msgs, nil
}
