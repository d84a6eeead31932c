// Package keystore provides secret resolvers backed by memory or by an
// embedded key/value database.
package keystore

import (
	"context"
	"sync"
)

// Static is an in-memory secret store. It is safe for concurrent use; the
// expected pattern is a handful of writes at startup and concurrent reads on
// every request afterwards.
type Static struct {
	mu      sync.RWMutex
	secrets map[string][]byte
}

// NewStatic creates an empty in-memory store.
func NewStatic() *Static {
	return &Static{
		secrets: make(map[string][]byte),
	}
}

// Add stores or replaces the secret for an account. The secret is copied.
func (s *Static) Add(account string, secret []byte) {
	dup := make([]byte, len(secret))
	copy(dup, secret)

	s.mu.Lock()
	s.secrets[account] = dup
	s.mu.Unlock()
}

// Remove deletes an account's secret.
func (s *Static) Remove(account string) {
	s.mu.Lock()
	delete(s.secrets, account)
	s.mu.Unlock()
}

// LookupSecret implements sharedkey.SecretResolver.
func (s *Static) LookupSecret(_ context.Context, account string) ([]byte, bool) {
	s.mu.RLock()
	secret, ok := s.secrets[account]
	s.mu.RUnlock()
	return secret, ok
}
