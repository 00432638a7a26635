package session

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ExpiringStore holds values for many sessions in memory, a session ends
// once its entries have been neither read nor written for `ttl`.
type ExpiringStore struct {
	cache *expirable.LRU[string, string]
}

func NewExpiringStore(size int, ttl time.Duration) ExpiringStore {
	return ExpiringStore{
		cache: expirable.NewLRU[string, string](size, nil, ttl),
	}
}

// Session returns the Store for one session id.
func (s ExpiringStore) Session(sessionID string) Store {
	return expiringSession{cache: s.cache, sessionID: sessionID}
}

type expiringSession struct {
	cache     *expirable.LRU[string, string]
	sessionID string
}

func (s expiringSession) cacheKey(key string) string {
	return s.sessionID + "\x00" + key
}

func (s expiringSession) Get(_ context.Context, key string) (string, bool, error) {
	cacheKey := s.cacheKey(key)
	value, ok := s.cache.Get(cacheKey)
	if ok {
		// reads keep the session alive, Get alone does not move the expiry
		s.cache.Add(cacheKey, value)
	}
	return value, ok, nil
}

func (s expiringSession) Set(_ context.Context, key, value string) error {
	s.cache.Add(s.cacheKey(key), value)
	return nil
}
