package auth

import (
	"context"

	"github.com/habedi/tenantctl/db"
)

// TokenStorer defines the contract for any component that can persist a token record.
type TokenStorer interface {
	GetTokenRecord(ctx context.Context) (*db.Token, error)
	UpsertTokenRecord(ctx context.Context, token *db.Token) error
	DeleteTokenRecord(ctx context.Context) error
}

// TokenRefresher defines the contract for any component that can exchange a refresh token for a new pair.
type TokenRefresher interface {
	PerformTokenRefresh(ctx context.Context, refreshToken, deviceID string) (TokenPair, error)
}
