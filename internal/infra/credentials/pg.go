package credentials

import (
	"context"
	"errors"
	"strings"

	"mediaqueue/internal/infra"
)

const (
	qSelectProviderKey = `
SELECT api_key FROM provider_credentials WHERE provider = $1;
`
	qUpsertProviderKey = `
INSERT INTO provider_credentials (provider, api_key, updated_at)
VALUES ($1, $2, NOW())
ON CONFLICT (provider) DO UPDATE SET api_key = EXCLUDED.api_key, updated_at = NOW();
`
)

// PGStore reads and writes provider API keys persisted in Postgres. It backs
// the in-memory Store when a database is configured; the scheduler itself
// never talks to it directly.
type PGStore struct {
	sql infra.SQLExecutor
}

// NewPGStore creates a Postgres-backed credential source.
func NewPGStore(sql infra.SQLExecutor) *PGStore {
	return &PGStore{sql: sql}
}

// Token returns the persisted key for a provider, or empty when none is stored.
func (s *PGStore) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, qSelectProviderKey, provider)
	var key string
	if err := row.Scan(&key); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(key), nil
}

// Upsert stores or replaces the key for a provider.
func (s *PGStore) Upsert(ctx context.Context, provider, key string) error {
	provider = strings.TrimSpace(provider)
	key = strings.TrimSpace(key)
	if provider == "" {
		return errors.New("provider is required")
	}
	if key == "" {
		return errors.New("api key is required")
	}
	_, err := s.sql.Exec(ctx, qUpsertProviderKey, provider, key)
	return err
}

// Seed copies persisted keys for the given providers into the in-memory store,
// skipping providers already configured (environment keys win).
func (s *PGStore) Seed(ctx context.Context, store *Store, providers []string) error {
	for _, provider := range providers {
		if _, ok := store.Lookup(provider); ok {
			continue
		}
		key, err := s.Token(ctx, provider)
		if err != nil {
			return err
		}
		if key != "" {
			store.Set(provider, key)
		}
	}
	return nil
}
