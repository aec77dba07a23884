package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-crm-install/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const locationCacheKeyPrefix = "crm-install::location::v1"

// CachedLocationStore fronts location reads with a cache. Contact events are
// far more frequent than installs, and each one needs the location row;
// writes invalidate the key so refreshed tokens are never served stale.
type CachedLocationStore struct {
	base  core.LocationStore
	cache repositorycache.CacheService
}

func NewCachedLocationStore(
	base core.LocationStore,
	cacheService repositorycache.CacheService,
) (*CachedLocationStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base location store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: location cache service is required")
	}
	return &CachedLocationStore{base: base, cache: cacheService}, nil
}

// LocationCacheKey returns the deterministic cache key for a location read:
// crm-install::location::v1::<location_id> with the id URL-path escaped.
func LocationCacheKey(locationID string) (string, error) {
	locationID = strings.TrimSpace(locationID)
	if locationID == "" {
		return "", fmt.Errorf("sqlstore: location id is required for cache key")
	}
	return locationCacheKeyPrefix + "::" + url.PathEscape(locationID), nil
}

func (s *CachedLocationStore) Get(ctx context.Context, locationID string) (core.Location, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Location{}, fmt.Errorf("sqlstore: cached location store is not configured")
	}
	cacheKey, err := LocationCacheKey(locationID)
	if err != nil {
		return core.Location{}, err
	}
	return repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Location, error) {
		return s.base.Get(ctx, locationID)
	})
}

func (s *CachedLocationStore) Upsert(ctx context.Context, in core.UpsertLocationInput) (core.Location, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Location{}, fmt.Errorf("sqlstore: cached location store is not configured")
	}
	location, err := s.base.Upsert(ctx, in)
	if err != nil {
		return core.Location{}, err
	}
	cacheKey, keyErr := LocationCacheKey(location.LocationID)
	if keyErr != nil {
		return core.Location{}, keyErr
	}
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		return core.Location{}, err
	}
	return location, nil
}

func (s *CachedLocationStore) ListExpiring(ctx context.Context, before int64) ([]core.Location, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached location store is not configured")
	}
	// Sweep listings bypass the cache: they must see every row.
	return s.base.ListExpiring(ctx, before)
}

var _ core.LocationStore = (*CachedLocationStore)(nil)
