// Package credentials stores generation service keys in Postgres for
// deployments that do not pass GEMINI_API_KEY through the environment.
package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"pixshop/internal/infra"
	"pixshop/internal/sqlinline"
)

const ProviderGemini = "gemini"

// DefaultCacheTTL bounds how long a looked-up key is reused before the
// table is read again.
const DefaultCacheTTL = 30 * time.Second

// Credential is one stored provider token.
type Credential struct {
	Provider  string
	Token     string
	UpdatedAt time.Time
}

// Masked hides all but the last four characters of the token.
func (c Credential) Masked() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}

// Store reads and writes integration_tokens rows. Lookups are cached per
// provider; writes through the Store invalidate the entry.
type Store struct {
	sql   infra.SQLExecutor
	cache *cache.Cache
}

// NewStore builds a Store caching lookups for ttl (DefaultCacheTTL when <= 0).
func NewStore(sql infra.SQLExecutor, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Store{sql: sql, cache: cache.New(ttl, 2*ttl)}
}

// GeminiAPIKey returns the stored Gemini key, or "" when none is stored.
func (s *Store) GeminiAPIKey(ctx context.Context) (string, error) {
	c, err := s.Lookup(ctx, ProviderGemini)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

// Lookup returns the credential for provider. A missing row yields an empty
// Credential and no error; it is cached like a hit.
func (s *Store) Lookup(ctx context.Context, provider string) (Credential, error) {
	if v, ok := s.cache.Get(provider); ok {
		return v.(Credential), nil
	}
	c := Credential{Provider: provider}
	err := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider).Scan(&c.Token, &c.UpdatedAt)
	switch {
	case infra.IsNoRows(err):
		c = Credential{Provider: provider}
	case err != nil:
		return Credential{}, fmt.Errorf("load %s credential: %w", provider, err)
	}
	c.Token = strings.TrimSpace(c.Token)
	s.cache.SetDefault(provider, c)
	return c, nil
}

// SetGeminiAPIKey stores key, recording source in the row properties.
func (s *Store) SetGeminiAPIKey(ctx context.Context, key, source string) error {
	return s.Set(ctx, ProviderGemini, key, map[string]any{"source": source})
}

// Set upserts the token for provider. Properties are merged into the
// existing ones.
func (s *Store) Set(ctx context.Context, provider, token string, props map[string]any) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("credentials: token is required")
	}
	if props == nil {
		props = map[string]any{}
	}
	raw, err := json.Marshal(props)
	if err != nil {
		return err
	}
	defer s.cache.Delete(provider)
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw); err != nil {
		return fmt.Errorf("store %s credential: %w", provider, err)
	}
	return nil
}

// Delete removes the token for provider. Deleting a missing row is not an
// error.
func (s *Store) Delete(ctx context.Context, provider string) error {
	defer s.cache.Delete(provider)
	if _, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, provider); err != nil {
		return fmt.Errorf("delete %s credential: %w", provider, err)
	}
	return nil
}
