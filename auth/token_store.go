package auth

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TokenStore owns the current session's token pair.
//
// Readers always observe either the previous or the next pair in full. When a
// TokenStorer is attached, every Set and Clear is written through to it in the
// same order the in-memory state changed.
type TokenStore struct {
	mu      sync.RWMutex
	pair    TokenPair
	present bool

	persistMu sync.Mutex
	storer    TokenStorer

	listenersMu sync.Mutex
	listeners   []func(pair TokenPair, present bool)

	now func() time.Time
}

// NewTokenStore creates an empty store. storer may be nil for a memory-only session.
func NewTokenStore(storer TokenStorer) *TokenStore {
	return &TokenStore{storer: storer, now: time.Now}
}

// Load replaces the in-memory pair with the persisted one, if any.
func (s *TokenStore) Load(ctx context.Context) error {
	if s.storer == nil {
		return nil
	}
	record, err := s.storer.GetTokenRecord(ctx)
	if err != nil {
		return fmt.Errorf("failed to retrieve token record: %w", err)
	}
	pair, ok := pairFromRecord(record)

	s.mu.Lock()
	s.pair, s.present = pair, ok
	s.mu.Unlock()

	if ok {
		log.Debug().Str("access_token", Redact(pair.AccessToken)).Msg("Loaded persisted session")
	}
	return nil
}

// Get returns a copy of the current pair.
func (s *TokenStore) Get() (TokenPair, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pair, s.present
}

// AccessToken returns the current access token.
func (s *TokenStore) AccessToken() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present {
		return "", false
	}
	return s.pair.AccessToken, true
}

// Set atomically replaces the pair. The in-memory value is updated even when
// persisting fails; the persistence error is returned.
func (s *TokenStore) Set(ctx context.Context, pair TokenPair) error {
	if !pair.Valid() {
		return fmt.Errorf("token pair has no access token")
	}
	pair = pair.withExpiry(s.now())

	s.persistMu.Lock()
	s.mu.Lock()
	s.pair, s.present = pair, true
	s.mu.Unlock()

	var err error
	if s.storer != nil {
		if err = s.storer.UpsertTokenRecord(ctx, recordFromPair(pair)); err != nil {
			err = fmt.Errorf("failed to save token: %w", err)
			log.Error().Err(err).Msg("Token kept in memory only")
		}
	}
	s.persistMu.Unlock()

	s.notify(pair, true)
	return err
}

// Clear drops the pair from memory and from the attached storer.
func (s *TokenStore) Clear(ctx context.Context) error {
	s.persistMu.Lock()
	s.mu.Lock()
	s.pair, s.present = TokenPair{}, false
	s.mu.Unlock()

	var err error
	if s.storer != nil {
		if err = s.storer.DeleteTokenRecord(ctx); err != nil {
			err = fmt.Errorf("failed to delete token: %w", err)
			log.Error().Err(err).Msg("Persisted token could not be removed")
		}
	}
	s.persistMu.Unlock()

	s.notify(TokenPair{}, false)
	return err
}

// OnChange registers fn to be called after every Set and Clear.
func (s *TokenStore) OnChange(fn func(pair TokenPair, present bool)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *TokenStore) notify(pair TokenPair, present bool) {
	s.listenersMu.Lock()
	listeners := slices.Clone(s.listeners)
	s.listenersMu.Unlock()
	for _, fn := range listeners {
		fn(pair, present)
	}
}
