package listing

import (
	"context"
	"testing"
	"time"

	domain "github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/services/broadcast"
	"github.com/minibay/storefront/internal/app/services/catalog"
	"github.com/minibay/storefront/internal/app/storage/memory"
)

type fakeRegistry struct {
	dapps    []domain.Entry
	profiles []peer.Profile
	err      error
}

func (f *fakeRegistry) QueryRegisteredDapps(_ context.Context, limit int) ([]domain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}
	if limit > 0 && limit < len(f.dapps) {
		return f.dapps[:limit], nil
	}
	return f.dapps, nil
}

func (f *fakeRegistry) QueryProfiles(_ context.Context, address string) ([]peer.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.profiles, nil
}

func catalogFetcher(docs map[string]string) catalog.Fetcher {
	return catalog.FetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		if doc, ok := docs[url]; ok {
			return []byte(doc), nil
		}
		return nil, &catalog.FetchError{Kind: catalog.FetchTimeout, URL: url}
	})
}

func newTestService(t *testing.T, reg RegistryReader, docs map[string]string, identities ...peer.Identity) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	for _, identity := range identities {
		if _, err := store.UpsertPeer(context.Background(), identity); err != nil {
			t.Fatalf("seed peer: %v", err)
		}
	}
	agg := catalog.NewAggregator(catalogFetcher(docs), store, nil, nil)
	return New(agg, reg, store, nil), store
}

func TestBootstrap_UnionOfSources(t *testing.T) {
	reg := &fakeRegistry{
		dapps: []domain.Entry{{
			ID:     "reg-1",
			Name:   "Registered",
			Origin: domain.OriginPermanentRegistry,
		}},
		profiles: []peer.Profile{{
			Address:      "0xB",
			CatalogURL:   "http://b/dapps.json",
			RegisteredAt: time.Now(),
		}},
	}
	docs := map[string]string{
		"http://a/dapps.json": `{"game":{"name":"Game","miniDapp":"game.zip"}}`,
		"http://b/dapps.json": `{"puzzle":{"name":"Puzzle","miniDapp":"puzzle.zip"}}`,
	}
	svc, store := newTestService(t, reg, docs,
		peer.Identity{Address: "0xA", CatalogURL: "http://a/dapps.json"})

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	// Profile scan seeds peer B, so both catalogs plus the registry entry
	// appear side by side.
	entries := svc.Listings()
	if len(entries) != 3 {
		t.Fatalf("expected union of 3 entries, got %d", len(entries))
	}

	kinds := map[domain.OriginKind]int{}
	for _, entry := range entries {
		kinds[entry.Origin]++
	}
	if kinds[domain.OriginP2PCatalog] != 2 || kinds[domain.OriginPermanentRegistry] != 1 {
		t.Fatalf("origin mix wrong: %v", kinds)
	}

	if _, err := store.GetPeer(context.Background(), "0xB"); err != nil {
		t.Fatalf("registry profile should seed peer table: %v", err)
	}
}

func TestBootstrap_RegistryFailureDegrades(t *testing.T) {
	reg := &fakeRegistry{err: context.DeadlineExceeded}
	docs := map[string]string{
		"http://a/dapps.json": `{"game":{"name":"Game","miniDapp":"game.zip"}}`,
	}
	svc, _ := newTestService(t, reg, docs,
		peer.Identity{Address: "0xA", CatalogURL: "http://a/dapps.json"})

	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("registry failure must degrade, not abort: %v", err)
	}
	if len(svc.Listings()) != 1 {
		t.Fatalf("P2P entries should still be served")
	}
}

func TestApply_NewDappPrepends(t *testing.T) {
	svc, _ := newTestService(t, &fakeRegistry{}, map[string]string{
		"http://a/dapps.json": `{"game":{"name":"Game","miniDapp":"game.zip"}}`,
	}, peer.Identity{Address: "0xA", CatalogURL: "http://a/dapps.json"})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}

	svc.Apply(broadcast.Message{
		Type: broadcast.TypeNewDapp,
		NewDapp: &broadcast.NewDappEvent{
			Name:      "Arrival",
			Package:   "http://c/arrival.zip",
			Publisher: "0xC",
		},
	})

	entries := svc.Listings()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Name != "Arrival" {
		t.Fatalf("new arrival must be first, got %q", entries[0].Name)
	}

	// Replaying the same announcement must not duplicate.
	svc.Apply(broadcast.Message{
		Type: broadcast.TypeNewDapp,
		NewDapp: &broadcast.NewDappEvent{
			Name:      "Arrival",
			Package:   "http://c/arrival.zip",
			Publisher: "0xC",
		},
	})
	if len(svc.Listings()) != 2 {
		t.Fatalf("duplicate announcement must be ignored")
	}
}

func TestApply_CounterEvents(t *testing.T) {
	svc, _ := newTestService(t, &fakeRegistry{}, map[string]string{
		"http://a/dapps.json": `{"game":{"name":"Game","miniDapp":"game.zip","downloads":3}}`,
	}, peer.Identity{Address: "0xA", CatalogURL: "http://a/dapps.json"})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	id := svc.Listings()[0].ID

	svc.Apply(broadcast.Message{Type: broadcast.TypeDownload, Download: &broadcast.DownloadEvent{EntryID: id}})
	svc.Apply(broadcast.Message{Type: broadcast.TypeTip, Tip: &broadcast.TipEvent{EntryID: id, Amount: 1}})

	entry, ok := svc.Get(id)
	if !ok {
		t.Fatalf("entry lost")
	}
	if entry.Downloads != 4 || entry.Tips != 1 {
		t.Fatalf("counters wrong: downloads=%d tips=%d", entry.Downloads, entry.Tips)
	}
}

func TestRefresh_CountersNeverDecrease(t *testing.T) {
	svc, _ := newTestService(t, &fakeRegistry{}, map[string]string{
		"http://a/dapps.json": `{"game":{"name":"Game","miniDapp":"game.zip","downloads":3}}`,
	}, peer.Identity{Address: "0xA", CatalogURL: "http://a/dapps.json"})
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	id := svc.Listings()[0].ID

	// Local optimistic increments push past the source-reported value.
	for i := 0; i < 5; i++ {
		svc.IncrementDownloads(id)
	}

	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	entry, _ := svc.Get(id)
	if entry.Downloads != 8 {
		t.Fatalf("stale source must not decrease counter: got %d", entry.Downloads)
	}
}

func TestRefresh_RegistryFailureKeepsPriorEntries(t *testing.T) {
	reg := &fakeRegistry{dapps: []domain.Entry{{
		ID:     "reg-1",
		Name:   "Registered",
		Origin: domain.OriginPermanentRegistry,
	}}}
	svc, _ := newTestService(t, reg, nil)
	if err := svc.Bootstrap(context.Background()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if _, ok := svc.Get("reg-1"); !ok {
		t.Fatalf("registry entry missing after bootstrap")
	}

	// A transient scan failure must not make durable entries vanish.
	reg.err = context.DeadlineExceeded
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh with failing registry: %v", err)
	}
	if _, ok := svc.Get("reg-1"); !ok {
		t.Fatalf("registry entry dropped during registry outage")
	}

	// Recovery must not duplicate the retained entry.
	reg.err = nil
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh after recovery: %v", err)
	}
	if got := len(svc.Listings()); got != 1 {
		t.Fatalf("expected 1 entry after recovery, got %d", got)
	}
}

func TestApply_ProfileUpdateUpserts(t *testing.T) {
	svc, store := newTestService(t, &fakeRegistry{}, nil)

	svc.Apply(broadcast.Message{
		Type: broadcast.TypeProfileUpdate,
		ProfileUpdate: &broadcast.ProfileUpdateEvent{
			Address: "0xNEW",
			Name:    "newcomer",
			Catalog: "http://new/dapps.json",
		},
	})

	identity, err := store.GetPeer(context.Background(), "0xNEW")
	if err != nil {
		t.Fatalf("profile update should upsert peer: %v", err)
	}
	if identity.CatalogURL != "http://new/dapps.json" {
		t.Fatalf("catalog URL not stored: %+v", identity)
	}
}

func TestAddLocal_VisibleBeforeRegistryConfirms(t *testing.T) {
	svc, _ := newTestService(t, &fakeRegistry{}, nil)

	svc.AddLocal(domain.Entry{ID: "dapp-local", Name: "Mine", Origin: domain.OriginP2PCatalog})

	if _, ok := svc.Get("dapp-local"); !ok {
		t.Fatalf("optimistic local entry must be visible")
	}

	// Refresh keeps broadcast/local-only entries until a source covers them.
	if err := svc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if _, ok := svc.Get("dapp-local"); !ok {
		t.Fatalf("local entry must survive refresh")
	}
}
