package tenants

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/jackc/pgx/v5"

	"github.com/memohai/leadflow/internal/db/sqlc"
)

// Queries is the subset of generated queries the directory reads.
type Queries interface {
	GetTenantByID(ctx context.Context, id int64) (sqlc.Tenant, error)
	GetActiveTenantByPlatformAccountID(ctx context.Context, platformAccountID string) (sqlc.Tenant, error)
}

// Directory resolves tenants by id or platform account id, caching hits for a short TTL.
type Directory struct {
	queries   Queries
	byAccount *expirable.LRU[string, Tenant]
	byID      *expirable.LRU[int64, Tenant]
	logger    *slog.Logger
}

// NewDirectory creates a tenant directory backed by queries.
func NewDirectory(log *slog.Logger, queries Queries, cacheSize int, cacheTTL time.Duration) *Directory {
	if log == nil {
		log = slog.Default()
	}
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	if cacheTTL <= 0 {
		cacheTTL = time.Minute
	}
	return &Directory{
		queries:   queries,
		byAccount: expirable.NewLRU[string, Tenant](cacheSize, nil, cacheTTL),
		byID:      expirable.NewLRU[int64, Tenant](cacheSize, nil, cacheTTL),
		logger:    log.With(slog.String("service", "tenants")),
	}
}

// FindActiveByPlatformAccountID returns the active tenant owning the platform account.
func (d *Directory) FindActiveByPlatformAccountID(ctx context.Context, accountID string) (Tenant, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return Tenant{}, ErrNotFound
	}
	if tenant, ok := d.byAccount.Get(accountID); ok {
		return tenant, nil
	}
	row, err := d.queries.GetActiveTenantByPlatformAccountID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("get tenant by account: %w", err)
	}
	tenant := toTenant(row)
	if !tenant.Active {
		return Tenant{}, ErrNotFound
	}
	d.byAccount.Add(accountID, tenant)
	d.byID.Add(tenant.ID, tenant)
	return tenant, nil
}

// Get returns a tenant by id regardless of its active flag.
func (d *Directory) Get(ctx context.Context, id int64) (Tenant, error) {
	if id <= 0 {
		return Tenant{}, ErrNotFound
	}
	if tenant, ok := d.byID.Get(id); ok {
		return tenant, nil
	}
	row, err := d.queries.GetTenantByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, fmt.Errorf("get tenant: %w", err)
	}
	tenant := toTenant(row)
	d.byID.Add(id, tenant)
	return tenant, nil
}

// Invalidate drops every cached entry for the tenant, so a deactivation or
// token rotation takes effect on the next lookup instead of after cache_ttl.
func (d *Directory) Invalidate(id int64) {
	d.byID.Remove(id)
	for _, accountID := range d.byAccount.Keys() {
		if tenant, ok := d.byAccount.Peek(accountID); ok && tenant.ID == id {
			d.byAccount.Remove(accountID)
		}
	}
	d.logger.Info("tenant cache invalidated", slog.Int64("tenant_id", id))
}

func toTenant(row sqlc.Tenant) Tenant {
	return Tenant{
		ID:                row.ID,
		Name:              row.Name,
		PlatformAccountID: row.PlatformAccountID,
		AccessToken:       row.PlatformAccessToken,
		ModelAPIKey:       row.ModelApiKey,
		Active:            row.IsActive,
	}
}
