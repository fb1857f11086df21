// Package redis provides a Redis-backed catalog cache for deployments where
// the aggregation core runs behind a shared front-end and catalog snapshots
// should survive process restarts.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/storage"
)

const keyPrefix = "storefront:catalog:"

// Cache implements storage.CatalogCache on top of Redis. Records are stored
// as JSON under a key derived from the catalog URL.
type Cache struct {
	client *goredis.Client
	// Retention for cache records. This is deliberately much longer than the
	// freshness window: stale records must remain available as fallback.
	retention time.Duration
}

var _ storage.CatalogCache = (*Cache)(nil)

// Options configures the Redis cache.
type Options struct {
	Addr      string
	Password  string
	DB        int
	Retention time.Duration
}

// New constructs a Redis-backed catalog cache.
func New(opts Options) *Cache {
	retention := opts.Retention
	if retention == 0 {
		retention = 24 * time.Hour
	}
	return &Cache{
		client: goredis.NewClient(&goredis.Options{
			Addr:     opts.Addr,
			Password: opts.Password,
			DB:       opts.DB,
		}),
		retention: retention,
	}
}

// NewWithClient wraps an existing Redis client, mainly for tests.
func NewWithClient(client *goredis.Client, retention time.Duration) *Cache {
	if retention == 0 {
		retention = 24 * time.Hour
	}
	return &Cache{client: client, retention: retention}
}

type storedRecord struct {
	CatalogURL string          `json:"catalog_url"`
	Entries    []listing.Entry `json:"entries"`
	FetchedAt  time.Time       `json:"fetched_at"`
}

func (c *Cache) GetCatalog(ctx context.Context, catalogURL string) (listing.CacheRecord, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+catalogURL).Bytes()
	if errors.Is(err, goredis.Nil) {
		return listing.CacheRecord{}, false, nil
	}
	if err != nil {
		return listing.CacheRecord{}, false, fmt.Errorf("redis get: %w", err)
	}

	var rec storedRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return listing.CacheRecord{}, false, fmt.Errorf("decode cache record: %w", err)
	}
	return listing.CacheRecord{
		CatalogURL: rec.CatalogURL,
		Entries:    rec.Entries,
		FetchedAt:  rec.FetchedAt,
	}, true, nil
}

func (c *Cache) PutCatalog(ctx context.Context, record listing.CacheRecord) error {
	if record.CatalogURL == "" {
		return fmt.Errorf("catalog URL required")
	}

	raw, err := json.Marshal(storedRecord{
		CatalogURL: record.CatalogURL,
		Entries:    record.Entries,
		FetchedAt:  record.FetchedAt,
	})
	if err != nil {
		return fmt.Errorf("encode cache record: %w", err)
	}

	if err := c.client.Set(ctx, keyPrefix+record.CatalogURL, raw, c.retention).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (c *Cache) ClearCatalog(ctx context.Context, catalogURL string) error {
	if catalogURL != "" {
		if err := c.client.Del(ctx, keyPrefix+catalogURL).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
		return nil
	}

	iter := c.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del: %w", err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}
