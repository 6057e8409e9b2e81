package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/habedi/tenantctl/db"
	"github.com/rs/zerolog/log"
)

// TokenPair is the access/refresh credential pair of one session.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	// ExpiresAt is derived from ExpiresIn or the access token's exp claim; zero when unknown.
	ExpiresAt time.Time
}

// Valid reports whether the pair carries an access token.
func (p TokenPair) Valid() bool {
	return p.AccessToken != ""
}

// Expired reports whether the access token is known to expire before now+skew.
func (p TokenPair) Expired(now time.Time, skew time.Duration) bool {
	if p.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(p.ExpiresAt)
}

// withExpiry fills ExpiresAt when it is missing.
func (p TokenPair) withExpiry(now time.Time) TokenPair {
	if !p.ExpiresAt.IsZero() {
		return p
	}
	if p.ExpiresIn > 0 {
		p.ExpiresAt = now.Add(p.ExpiresIn)
		return p
	}
	if exp, err := ExpiryFromJWT(p.AccessToken); err == nil {
		p.ExpiresAt = exp
	}
	return p
}

// ParseClaims decodes the claims of a JWT access token without verifying its signature.
// The server is the authority on validity; the client only reads informational claims.
func ParseClaims(accessToken string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return nil, fmt.Errorf("access token is not a JWT: %w", err)
	}
	return claims, nil
}

// ExpiryFromJWT returns the exp claim of accessToken.
func ExpiryFromJWT(accessToken string) (time.Time, error) {
	claims, err := ParseClaims(accessToken)
	if err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("access token has no exp claim")
	}
	return exp.Time, nil
}

// Redact shortens a credential for log output.
func Redact(token string) string {
	if len(token) <= 6 {
		return "***"
	}
	return token[:6] + "..."
}

func pairFromRecord(record *db.Token) (TokenPair, bool) {
	if record == nil || record.AccessToken == "" {
		return TokenPair{}, false
	}
	pair := TokenPair{AccessToken: record.AccessToken, RefreshToken: record.RefreshToken}
	if record.ExpiresAt != "" {
		expiresAt, err := time.Parse(time.RFC3339, record.ExpiresAt)
		if err != nil {
			log.Warn().Err(err).Str("expires_at", record.ExpiresAt).Msg("Ignoring unparsable token expiry")
		} else {
			pair.ExpiresAt = expiresAt
		}
	}
	return pair, true
}

func recordFromPair(pair TokenPair) *db.Token {
	record := &db.Token{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}
	if !pair.ExpiresAt.IsZero() {
		record.ExpiresAt = pair.ExpiresAt.UTC().Format(time.RFC3339)
	}
	return record
}
