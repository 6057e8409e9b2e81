package auth

import (
	"context"

	"github.com/habedi/tenantctl/db"
)

// tokenRepoStorer adapts db.TokenRepository to TokenStorer.
type tokenRepoStorer struct{ repo db.TokenRepository }

// NewRepoStorer wraps a token repository (SQLite or Redis) as a TokenStorer.
func NewRepoStorer(repo db.TokenRepository) TokenStorer {
	return &tokenRepoStorer{repo: repo}
}

func (s *tokenRepoStorer) GetTokenRecord(ctx context.Context) (*db.Token, error) {
	return s.repo.Get(ctx)
}

func (s *tokenRepoStorer) UpsertTokenRecord(ctx context.Context, token *db.Token) error {
	return s.repo.Upsert(ctx, token)
}

func (s *tokenRepoStorer) DeleteTokenRecord(ctx context.Context) error {
	return s.repo.Delete(ctx)
}
