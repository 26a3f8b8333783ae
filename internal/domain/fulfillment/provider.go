package fulfillment

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/dataplug/dataplug-api/internal/pkg/supplier"
)

var ErrNoProvider = errors.New("no active provider for network")

// Provider is one configured supply API. Exactly one active provider is the
// default at any time; network mappings route specific networks elsewhere.
type Provider struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	BaseURL   string    `db:"base_url" json:"-"`
	APIKey    string    `db:"api_key" json:"-"`
	APISecret string    `db:"api_secret" json:"-"`
	IsDefault bool      `db:"is_default" json:"is_default"`
	IsActive  bool      `db:"is_active" json:"is_active"`
}

// Credentials adapts a provider row to the supplier client.
func (p *Provider) Credentials() supplier.Credentials {
	return supplier.Credentials{BaseURL: p.BaseURL, APIKey: p.APIKey, APISecret: p.APISecret}
}

type ProviderRepository struct {
	db *sqlx.DB
}

func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

const providerColumns = `id, code, name, base_url, api_key, api_secret, is_default, is_active`

// ResolveByNetwork picks the provider mapped to the network code, falling
// back to the default provider.
func (r *ProviderRepository) ResolveByNetwork(ctx context.Context, network string) (*Provider, error) {
	var p Provider
	err := r.db.GetContext(ctx, &p, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE is_active = true
		  AND id IN (SELECT provider_id FROM provider_networks WHERE network = $1)
		LIMIT 1
	`, network)
	if err == nil {
		return &p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	err = r.db.GetContext(ctx, &p, `
		SELECT `+providerColumns+`
		FROM providers
		WHERE is_active = true AND is_default = true
		LIMIT 1
	`)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoProvider
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListActive returns every enabled provider. Used for webhook signature
// verification, which cannot know the sender up front.
func (r *ProviderRepository) ListActive(ctx context.Context) ([]Provider, error) {
	var out []Provider
	err := r.db.SelectContext(ctx, &out, `
		SELECT `+providerColumns+` FROM providers WHERE is_active = true ORDER BY code
	`)
	return out, err
}
