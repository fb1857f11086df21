// Package listing maintains the merged in-memory view of all listing
// sources: aggregated peer catalogs, the permanent registry, and live
// broadcast events.
package listing

import (
	"context"
	"sort"
	"sync"
	"time"

	domain "github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/services/broadcast"
	"github.com/minibay/storefront/internal/app/services/catalog"
	"github.com/minibay/storefront/internal/app/storage"
	"github.com/minibay/storefront/pkg/logger"
)

// RegistryReader is the slice of the registry service the view model needs.
type RegistryReader interface {
	QueryRegisteredDapps(ctx context.Context, limit int) ([]domain.Entry, error)
	QueryProfiles(ctx context.Context, address string) ([]peer.Profile, error)
}

// Service is the listing view model. P2P catalog entries and registry
// entries coexist without cross-origin merging; broadcast events mutate the
// view incrementally after bootstrap.
type Service struct {
	aggregator *catalog.Aggregator
	registry   RegistryReader
	peers      storage.PeerStore
	log        *logger.Logger
	now        func() time.Time

	mu      sync.RWMutex
	entries []domain.Entry
	report  []catalog.SourceResult
}

// New constructs the view model service.
func New(aggregator *catalog.Aggregator, registry RegistryReader, peers storage.PeerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("listings")
	}
	return &Service{
		aggregator: aggregator,
		registry:   registry,
		peers:      peers,
		log:        log,
		now:        time.Now,
	}
}

// Bootstrap seeds the peer table from registry profiles and builds the
// initial merged view. Registry read failures degrade to a P2P-only view and
// are logged, never fatal: a brand-new client should still see whatever its
// peers serve.
func (s *Service) Bootstrap(ctx context.Context) error {
	if s.registry != nil {
		profiles, err := s.registry.QueryProfiles(ctx, "")
		if err != nil {
			s.log.WithError(err).Warn("registry profile scan failed during bootstrap")
		}
		for _, profile := range profiles {
			if _, err := s.peers.UpsertPeer(ctx, profile.Identity()); err != nil {
				s.log.WithError(err).Warnf("upsert peer %s failed", profile.Address)
			}
		}
	}
	return s.Refresh(ctx)
}

// Refresh re-runs aggregation and the registry scan and rebuilds the merged
// view. Entries that arrived via broadcast and are not yet visible in any
// source are retained; counters never decrease.
func (s *Service) Refresh(ctx context.Context) error {
	identities, err := s.peers.ListPeers(ctx)
	if err != nil {
		return err
	}

	result := s.aggregator.Aggregate(ctx, identities)

	merged := result.Entries
	registryFailed := false
	if s.registry != nil {
		registered, err := s.registry.QueryRegisteredDapps(ctx, 0)
		if err != nil {
			registryFailed = true
			s.log.WithError(err).Warn("registry dapp scan failed, keeping prior registry entries")
		} else {
			merged = append(merged, registered...)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous := make(map[string]domain.Entry, len(s.entries))
	for _, entry := range s.entries {
		previous[entry.ID] = entry
	}

	fresh := make(map[string]struct{}, len(merged))
	for i := range merged {
		fresh[merged[i].ID] = struct{}{}
		if old, ok := previous[merged[i].ID]; ok {
			// Counters are monotonic from this client's perspective: a stale
			// source never silently decreases them.
			if old.Downloads > merged[i].Downloads {
				merged[i].Downloads = old.Downloads
			}
			if old.Tips > merged[i].Tips {
				merged[i].Tips = old.Tips
			}
		}
	}

	// Broadcast-only entries (no source catalog yet) stay at the front until
	// a catalog or the registry picks them up. When the registry scan itself
	// failed, prior registry entries are stale-served rather than dropped,
	// matching the catalog cache fallback.
	var retained, staleRegistry []domain.Entry
	for _, entry := range s.entries {
		if _, covered := fresh[entry.ID]; covered {
			continue
		}
		switch {
		case entry.SourceCatalogURL == "" && entry.Origin == domain.OriginP2PCatalog:
			retained = append(retained, entry)
		case registryFailed && entry.Origin == domain.OriginPermanentRegistry:
			staleRegistry = append(staleRegistry, entry)
		}
	}

	s.entries = append(retained, append(merged, staleRegistry...)...)
	s.report = result.Report
	return nil
}

// Apply mutates the view from one decoded broadcast event.
func (s *Service) Apply(msg broadcast.Message) {
	switch msg.Type {
	case broadcast.TypeNewDapp:
		s.applyNewDapp(*msg.NewDapp)
	case broadcast.TypeProfileUpdate:
		s.applyProfileUpdate(*msg.ProfileUpdate)
	case broadcast.TypeDownload:
		s.IncrementDownloads(msg.Download.EntryID)
	case broadcast.TypeTip:
		s.IncrementTips(msg.Tip.EntryID)
	default:
		s.log.Debugf("ignoring broadcast type %q", msg.Type)
	}
}

func (s *Service) applyNewDapp(ev broadcast.NewDappEvent) {
	entry := ev.Entry(s.now().UTC())

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.entries {
		if existing.ID == entry.ID {
			return
		}
	}
	// Most-recent-first for newly arrived items.
	s.entries = append([]domain.Entry{entry}, s.entries...)
	s.log.WithField("id", entry.ID).Infof("new listing %q announced by %s", entry.Name, entry.PublisherAddress)
}

func (s *Service) applyProfileUpdate(ev broadcast.ProfileUpdateEvent) {
	if ev.Address == "" {
		return
	}
	// Entries reference publishers by address, not by copy, so no listing
	// rewrite is needed here.
	if _, err := s.peers.UpsertPeer(context.Background(), ev.Identity(s.now().UTC())); err != nil {
		s.log.WithError(err).Warnf("profile update for %s failed", ev.Address)
	}
}

// IncrementDownloads bumps the optimistic local download counter.
func (s *Service) IncrementDownloads(entryID string) {
	s.increment(entryID, func(e *domain.Entry) { e.Downloads++ })
}

// IncrementTips bumps the optimistic local tip counter.
func (s *Service) IncrementTips(entryID string) {
	s.increment(entryID, func(e *domain.Entry) { e.Tips++ })
}

func (s *Service) increment(entryID string, bump func(*domain.Entry)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == entryID {
			bump(&s.entries[i])
			return
		}
	}
	s.log.Debugf("counter event for unknown entry %s", entryID)
}

// AddLocal inserts an optimistically registered entry at the front of the
// view. Registry durability is a separate, possibly-failed operation.
func (s *Service) AddLocal(entry domain.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.entries {
		if existing.ID == entry.ID {
			return
		}
	}
	s.entries = append([]domain.Entry{entry}, s.entries...)
}

// Listings returns a copy of the current merged view in arrival order.
func (s *Service) Listings() []domain.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// ListingsByPopularity returns the view sorted by downloads, then tips, then
// name. Aggregation order is concurrent-completion order, so consumers sort
// explicitly before display.
func (s *Service) ListingsByPopularity() []domain.Entry {
	out := s.Listings()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Downloads != out[j].Downloads {
			return out[i].Downloads > out[j].Downloads
		}
		if out[i].Tips != out[j].Tips {
			return out[i].Tips > out[j].Tips
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Get returns one entry by ID.
func (s *Service) Get(entryID string) (domain.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.entries {
		if entry.ID == entryID {
			return entry, true
		}
	}
	return domain.Entry{}, false
}

// Report returns the per-source outcome of the most recent aggregation run.
func (s *Service) Report() []catalog.SourceResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]catalog.SourceResult, len(s.report))
	copy(out, s.report)
	return out
}
