package memory

import (
	"context"
	"testing"
	"time"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
)

func TestCatalogCache_PutGetClear(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, ok, _ := store.GetCatalog(ctx, "http://a/dapps.json"); ok {
		t.Fatalf("empty store should miss")
	}

	record := listing.CacheRecord{
		CatalogURL: "http://a/dapps.json",
		Entries:    []listing.Entry{{ID: "dapp-1"}},
		FetchedAt:  time.Now(),
	}
	if err := store.PutCatalog(ctx, record); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.GetCatalog(ctx, "http://a/dapps.json")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if len(got.Entries) != 1 || got.Entries[0].ID != "dapp-1" {
		t.Fatalf("record mismatch: %+v", got)
	}

	// Returned record is a copy; mutating it must not touch the store.
	got.Entries[0].ID = "mutated"
	again, _, _ := store.GetCatalog(ctx, "http://a/dapps.json")
	if again.Entries[0].ID != "dapp-1" {
		t.Fatalf("stored record was mutated through the returned copy")
	}

	if err := store.ClearCatalog(ctx, "http://a/dapps.json"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok, _ := store.GetCatalog(ctx, "http://a/dapps.json"); ok {
		t.Fatalf("cleared record should miss")
	}
}

func TestCatalogCache_ClearAll(t *testing.T) {
	store := New()
	ctx := context.Background()

	for _, url := range []string{"http://a/d.json", "http://b/d.json"} {
		if err := store.PutCatalog(ctx, listing.CacheRecord{CatalogURL: url, FetchedAt: time.Now()}); err != nil {
			t.Fatalf("put %s: %v", url, err)
		}
	}
	if err := store.ClearCatalog(ctx, ""); err != nil {
		t.Fatalf("clear all: %v", err)
	}
	for _, url := range []string{"http://a/d.json", "http://b/d.json"} {
		if _, ok, _ := store.GetCatalog(ctx, url); ok {
			t.Fatalf("record %s survived clear-all", url)
		}
	}
}

func TestUpsertPeer_NewerTimestampWins(t *testing.T) {
	store := New()
	ctx := context.Background()

	older := peer.Identity{Address: "0xA", DisplayName: "old", UpdatedAt: time.Now().Add(-time.Hour)}
	newer := peer.Identity{Address: "0xA", DisplayName: "new", UpdatedAt: time.Now()}

	if _, err := store.UpsertPeer(ctx, newer); err != nil {
		t.Fatalf("upsert newer: %v", err)
	}
	got, err := store.UpsertPeer(ctx, older)
	if err != nil {
		t.Fatalf("upsert older: %v", err)
	}
	if got.DisplayName != "new" {
		t.Fatalf("stale update must not supersede: %+v", got)
	}

	identity, err := store.GetPeer(ctx, "0xA")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if identity.DisplayName != "new" {
		t.Fatalf("stored identity regressed: %+v", identity)
	}
}
