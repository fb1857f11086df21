package catalog

import (
	"testing"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
)

const sampleCatalog = `{
	"name": "Arcade Corner",
	"description": "games I host",
	"icon": "store.png",
	"version": "3",
	"solitaire": {
		"name": "Solitaire",
		"description": "classic card game",
		"version": "1.2",
		"category": "Games",
		"miniDapp": "game.mds.zip",
		"icon": "solitaire.png",
		"downloads": 42
	},
	"plain": {
		"file": "plain.zip"
	},
	"broken": "not an object",
	"nopackage": {"name": "lost"}
}`

var publisher = peer.Identity{Address: "0xAAA", CatalogURL: "http://host/store/dapps.json"}

func TestNormalizer_Defaults(t *testing.T) {
	n := NewNormalizer(nil)
	entries := n.Normalize([]byte(sampleCatalog), "http://host/store/dapps.json", publisher)

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	sol := entries[0]
	if sol.Name != "Solitaire" || sol.Version != "1.2" || sol.Category != "Games" {
		t.Fatalf("declared fields not kept: %+v", sol)
	}
	if sol.Downloads != 42 {
		t.Fatalf("downloads not carried: %d", sol.Downloads)
	}

	plain := entries[1]
	if plain.Name != "plain" {
		t.Fatalf("missing name should default to map key, got %q", plain.Name)
	}
	if plain.Version != listing.DefaultVersion {
		t.Fatalf("missing version should default to %q, got %q", listing.DefaultVersion, plain.Version)
	}
	if plain.Category != listing.DefaultCategory {
		t.Fatalf("missing category should default to %q, got %q", listing.DefaultCategory, plain.Category)
	}
}

func TestNormalizer_URLResolution(t *testing.T) {
	n := NewNormalizer(nil)
	entries := n.Normalize([]byte(sampleCatalog), "http://host/store/dapps.json", publisher)

	if entries[0].PackageURL != "http://host/store/game.mds.zip" {
		t.Fatalf("package URL not resolved against catalog directory: %s", entries[0].PackageURL)
	}
	if entries[0].IconURL != "http://host/store/solitaire.png" {
		t.Fatalf("icon URL not resolved: %s", entries[0].IconURL)
	}
	if entries[1].IconURL != "" {
		t.Fatalf("absent icon should stay absent, got %s", entries[1].IconURL)
	}
}

func TestNormalizer_Idempotence(t *testing.T) {
	n := NewNormalizer(nil)
	first := n.Normalize([]byte(sampleCatalog), "http://host/store/dapps.json", publisher)
	second := n.Normalize([]byte(sampleCatalog), "http://host/store/dapps.json", publisher)

	if len(first) != len(second) {
		t.Fatalf("entry counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		a, b := first[i], second[i]
		a.FetchedAt = b.FetchedAt
		if a != b {
			t.Fatalf("entry %d differs beyond FetchedAt:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}

func TestNormalizer_Provenance(t *testing.T) {
	n := NewNormalizer(nil)
	entries := n.Normalize([]byte(sampleCatalog), "http://host/store/dapps.json", publisher)

	for _, entry := range entries {
		if entry.Origin != listing.OriginP2PCatalog {
			t.Fatalf("expected p2p origin, got %s", entry.Origin)
		}
		if entry.PublisherAddress != publisher.Address {
			t.Fatalf("publisher not carried: %s", entry.PublisherAddress)
		}
		if entry.SourceCatalogURL != "http://host/store/dapps.json" {
			t.Fatalf("source catalog not recorded: %s", entry.SourceCatalogURL)
		}
		if entry.ID == "" {
			t.Fatalf("entry ID missing")
		}
	}
	if entries[0].ID == entries[1].ID {
		t.Fatalf("entry IDs must be unique within a run")
	}
}
