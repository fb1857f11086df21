package catalog

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/metrics"
	"github.com/minibay/storefront/internal/app/storage"
	"github.com/minibay/storefront/pkg/logger"
)

// FreshnessWindow is how long a cached catalog snapshot may be served without
// a network fetch.
const FreshnessWindow = 5 * time.Minute

// SourceResult records the outcome of one source's pipeline in an
// aggregation run.
type SourceResult struct {
	Address    string `json:"address"`
	CatalogURL string `json:"catalog_url"`
	Success    bool   `json:"success"`
	EntryCount int    `json:"entry_count"`
	FromCache  bool   `json:"from_cache"`
	Failure    string `json:"failure,omitempty"`
}

// Result is the combined output of one aggregation run.
type Result struct {
	Entries []listing.Entry
	Report  []SourceResult
}

// Aggregator fans out one fetch+cache+normalize pipeline per declared catalog
// and collects partial successes. A failing source contributes zero entries
// and a report row; it never fails the run.
type Aggregator struct {
	fetcher    Fetcher
	cache      storage.CatalogCache
	normalizer *Normalizer
	log        *logger.Logger
	now        func() time.Time
}

// NewAggregator constructs an aggregator over the given collaborators.
func NewAggregator(fetcher Fetcher, cache storage.CatalogCache, normalizer *Normalizer, log *logger.Logger) *Aggregator {
	if log == nil {
		log = logger.NewDefault("catalog-aggregator")
	}
	if normalizer == nil {
		normalizer = NewNormalizer(log)
	}
	return &Aggregator{
		fetcher:    fetcher,
		cache:      cache,
		normalizer: normalizer,
		log:        log,
		now:        time.Now,
	}
}

// IsFresh reports whether a cache record is inside the freshness window.
func (a *Aggregator) IsFresh(rec listing.CacheRecord) bool {
	return a.now().Sub(rec.FetchedAt) < FreshnessWindow
}

// Aggregate runs every source's pipeline concurrently and waits for all of
// them to settle. The report preserves input order; entry order across
// sources follows the report order so identical inputs with identical
// per-source outcomes yield identical content.
func (a *Aggregator) Aggregate(ctx context.Context, identities []peer.Identity) Result {
	started := a.now()

	// One pipeline per distinct catalog URL; the first declaring peer owns
	// the entries.
	seen := make(map[string]struct{})
	var sources []peer.Identity
	for _, identity := range identities {
		if !identity.PublishesCatalog() {
			continue
		}
		if _, dup := seen[identity.CatalogURL]; dup {
			continue
		}
		seen[identity.CatalogURL] = struct{}{}
		sources = append(sources, identity)
	}

	perSource := make([][]listing.Entry, len(sources))
	report := make([]SourceResult, len(sources))

	var wg sync.WaitGroup
	for i, source := range sources {
		wg.Add(1)
		go func(i int, source peer.Identity) {
			defer wg.Done()
			perSource[i], report[i] = a.collect(ctx, source)
		}(i, source)
	}
	wg.Wait()

	result := Result{Report: report}
	dedup := make(map[string]struct{})
	for _, entries := range perSource {
		for _, entry := range entries {
			if _, dup := dedup[entry.ID]; dup {
				continue
			}
			dedup[entry.ID] = struct{}{}
			result.Entries = append(result.Entries, entry)
		}
	}

	metrics.ObserveAggregation(a.now().Sub(started), len(result.Entries))
	a.log.WithField("sources", len(sources)).
		WithField("entries", len(result.Entries)).
		Infof("aggregation settled in %s", a.now().Sub(started).Round(time.Millisecond))
	return result
}

// collect runs one source's fetch+cache+normalize pipeline.
func (a *Aggregator) collect(ctx context.Context, source peer.Identity) ([]listing.Entry, SourceResult) {
	res := SourceResult{Address: source.Address, CatalogURL: source.CatalogURL}

	cached, haveCache, err := a.cache.GetCatalog(ctx, source.CatalogURL)
	if err != nil {
		a.log.WithError(err).Warnf("cache read for %s failed", source.CatalogURL)
		haveCache = false
	}
	if haveCache && a.IsFresh(cached) {
		metrics.ObserveCacheEvent("hit")
		res.Success = true
		res.FromCache = true
		res.EntryCount = len(cached.Entries)
		return cached.Entries, res
	}
	metrics.ObserveCacheEvent("miss")

	raw, err := a.fetcher.Fetch(ctx, source.CatalogURL)
	if err != nil {
		metrics.ObserveFetch(fetchOutcome(err))

		// Stale-while-failed: any cached record beats surfacing the failure.
		if haveCache {
			metrics.ObserveCacheEvent("stale_fallback")
			a.log.WithError(err).Warnf("catalog %s unavailable, serving %d stale entries", source.CatalogURL, len(cached.Entries))
			res.Success = true
			res.FromCache = true
			res.EntryCount = len(cached.Entries)
			return cached.Entries, res
		}

		a.log.WithError(err).Warnf("catalog %s unavailable, no cache fallback", source.CatalogURL)
		res.Failure = failureReason(err)
		return nil, res
	}
	metrics.ObserveFetch("success")

	entries := a.normalizer.Normalize(raw, source.CatalogURL, source)
	record := listing.CacheRecord{
		CatalogURL: source.CatalogURL,
		Entries:    entries,
		FetchedAt:  a.now().UTC(),
	}
	if err := a.cache.PutCatalog(ctx, record); err != nil {
		a.log.WithError(err).Warnf("cache write for %s failed", source.CatalogURL)
	}

	res.Success = true
	res.EntryCount = len(entries)
	return entries, res
}

func failureReason(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return err.Error()
}

func fetchOutcome(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) {
		return string(fe.Kind)
	}
	return "error"
}
