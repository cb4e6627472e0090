package credentials

import (
	"strings"
	"sync"
)

// Store caches provider API keys in memory. The scheduler consults it before
// every dispatch; an absent key means the provider is not yet eligible, never
// an error. Keys are seeded from the environment, from the optional Postgres
// source, and from the watched credentials file.
type Store struct {
	mu       sync.RWMutex
	keys     map[string]string
	onUpdate func(provider string)
}

// NewStore creates an empty credential cache.
func NewStore() *Store {
	return &Store{keys: make(map[string]string)}
}

// Lookup returns the API key configured for a provider, if any.
func (s *Store) Lookup(provider string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[provider]
	return key, ok && key != ""
}

// Set stores or replaces a provider key and fires the update hook. Setting an
// empty key removes the provider.
func (s *Store) Set(provider, key string) {
	provider = strings.TrimSpace(provider)
	key = strings.TrimSpace(key)
	if provider == "" {
		return
	}

	s.mu.Lock()
	if key == "" {
		delete(s.keys, provider)
	} else {
		s.keys[provider] = key
	}
	hook := s.onUpdate
	s.mu.Unlock()

	if hook != nil && key != "" {
		hook(provider)
	}
}

// OnUpdate registers a hook invoked whenever a provider key is set. The
// scheduler uses it to clear its quota halt for that provider.
func (s *Store) OnUpdate(fn func(provider string)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Providers lists the providers that currently have a key configured.
func (s *Store) Providers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys))
	for provider := range s.keys {
		out = append(out, provider)
	}
	return out
}
