package storage

import (
	"context"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
)

// CatalogCache stores per-source catalog snapshots keyed by catalog URL.
// Implementations must retain records on failed refetch; only Clear removes
// them.
type CatalogCache interface {
	GetCatalog(ctx context.Context, catalogURL string) (listing.CacheRecord, bool, error)
	PutCatalog(ctx context.Context, record listing.CacheRecord) error
	// ClearCatalog removes the record for one catalog URL, or every record
	// when catalogURL is empty.
	ClearCatalog(ctx context.Context, catalogURL string) error
}

// PeerStore persists known peer identities keyed by address.
type PeerStore interface {
	// UpsertPeer inserts or replaces an identity. An update carrying an older
	// UpdatedAt than the stored version is ignored and the stored version is
	// returned instead.
	UpsertPeer(ctx context.Context, identity peer.Identity) (peer.Identity, error)
	GetPeer(ctx context.Context, address string) (peer.Identity, error)
	ListPeers(ctx context.Context) ([]peer.Identity, error)
}
