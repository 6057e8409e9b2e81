package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// DefaultRefreshSkew is how long before expiry EnsureFresh starts a refresh.
const DefaultRefreshSkew = 5 * time.Minute

// EnsureFresh refreshes the session ahead of time when the access token is
// known to expire within skew, and returns the token to use. Tokens without a
// known expiry are returned as is; the server's 401 stays the trigger for them.
// Long-running work (large downloads, fan-out fetches) calls this first.
func (c *Coordinator) EnsureFresh(ctx context.Context, skew time.Duration) (string, error) {
	pair, ok := c.store.Get()
	if !ok {
		return "", fmt.Errorf("no session in the token store; please login first")
	}
	if !pair.Expired(c.store.now(), skew) {
		return pair.AccessToken, nil
	}
	log.Info().Time("expires_at", pair.ExpiresAt).Msg("Access token about to expire, refreshing ahead of time")
	return c.Refresh(ctx, pair.AccessToken)
}
