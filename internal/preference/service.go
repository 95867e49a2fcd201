package preference

import (
	"context"
	"fmt"
)

// Service validates language codes before they reach the repository.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Language returns the stored language for userID, or "" when none is set.
func (s *Service) Language(ctx context.Context, userID string) (Language, error) {
	p, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	if p == nil {
		return "", nil
	}
	return p.Language, nil
}

// Set stores code for userID. changed is false when the stored language
// already equals code, in which case nothing is written.
func (s *Service) Set(ctx context.Context, userID, code string) (lang Language, changed bool, err error) {
	lang, err = ParseLanguage(code)
	if err != nil {
		return "", false, fmt.Errorf("%w: %q", err, code)
	}

	current, err := s.Language(ctx, userID)
	if err != nil {
		return "", false, err
	}
	if current == lang {
		return lang, false, nil
	}

	if err := s.repo.Upsert(ctx, userID, lang); err != nil {
		return "", false, err
	}
	return lang, true, nil
}
