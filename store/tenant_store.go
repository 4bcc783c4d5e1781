package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"beacon/api/tenant"
)

// TenantStore reads tenant applications and their API keys from PostgreSQL.
type TenantStore struct {
	db *sql.DB
}

// NewTenantStore creates a new TenantStore instance.
func NewTenantStore(db *sql.DB) *TenantStore {
	return &TenantStore{db: db}
}

// FindByAPIKey returns the app whose production or test key equals apiKey.
func (s *TenantStore) FindByAPIKey(ctx context.Context, apiKey string) (*tenant.Record, error) {
	rec := &tenant.Record{}
	query := `
		SELECT id, api_key, test_api_key
		FROM apps
		WHERE api_key = $1 OR test_api_key = $1
		LIMIT 1;
	`
	err := s.db.QueryRowContext(ctx, query, apiKey).Scan(
		&rec.ID,
		&rec.APIKey,
		&rec.TestAPIKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tenant.ErrTenantNotFound
		}
		return nil, fmt.Errorf("failed to find app by api key: %w", err)
	}

	return rec, nil
}
