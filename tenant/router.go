// Package tenant maps API keys to tenants and their event partition.
package tenant

import (
	"context"
	"errors"
	"fmt"

	"beacon/api/models"
)

// ErrInvalidAPIKey is returned when a key matches neither the production nor
// the test key of any tenant.
var ErrInvalidAPIKey = errors.New("invalid api key")

// ErrTenantNotFound is returned by a Lookup when no tenant owns the key.
var ErrTenantNotFound = errors.New("tenant not found")

// Record is a tenant row as seen by a Lookup.
type Record struct {
	ID         string
	APIKey     string
	TestAPIKey string
}

// Lookup finds the tenant owning apiKey as either its production or test key.
type Lookup interface {
	FindByAPIKey(ctx context.Context, apiKey string) (*Record, error)
}

// Router resolves API keys through a Lookup.
type Router struct {
	lookup Lookup
}

func NewRouter(lookup Lookup) *Router {
	return &Router{lookup: lookup}
}

// Resolve returns the tenant and environment selected by apiKey.
func (r *Router) Resolve(ctx context.Context, apiKey string) (models.Tenant, error) {
	if apiKey == "" {
		return models.Tenant{}, ErrInvalidAPIKey
	}

	rec, err := r.lookup.FindByAPIKey(ctx, apiKey)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return models.Tenant{}, ErrInvalidAPIKey
		}
		// Any lookup failure rejects the key; the cause stays wrapped for logging.
		return models.Tenant{}, fmt.Errorf("%w: lookup failed: %w", ErrInvalidAPIKey, err)
	}

	switch apiKey {
	case rec.APIKey:
		return models.Tenant{ID: rec.ID, APIKey: apiKey, Environment: models.Production}, nil
	case rec.TestAPIKey:
		return models.Tenant{ID: rec.ID, APIKey: apiKey, Environment: models.Test}, nil
	default:
		return models.Tenant{}, ErrInvalidAPIKey
	}
}
