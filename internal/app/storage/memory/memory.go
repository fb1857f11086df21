package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/storage"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local development.
type Store struct {
	mu       sync.RWMutex
	catalogs map[string]listing.CacheRecord
	peers    map[string]peer.Identity
}

var _ storage.CatalogCache = (*Store)(nil)
var _ storage.PeerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		catalogs: make(map[string]listing.CacheRecord),
		peers:    make(map[string]peer.Identity),
	}
}

// CatalogCache implementation --------------------------------------------------

func (s *Store) GetCatalog(_ context.Context, catalogURL string) (listing.CacheRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.catalogs[catalogURL]
	if !ok {
		return listing.CacheRecord{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (s *Store) PutCatalog(_ context.Context, record listing.CacheRecord) error {
	if record.CatalogURL == "" {
		return fmt.Errorf("catalog URL required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.catalogs[record.CatalogURL] = cloneRecord(record)
	return nil
}

func (s *Store) ClearCatalog(_ context.Context, catalogURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if catalogURL == "" {
		s.catalogs = make(map[string]listing.CacheRecord)
		return nil
	}
	delete(s.catalogs, catalogURL)
	return nil
}

// PeerStore implementation -----------------------------------------------------

func (s *Store) UpsertPeer(_ context.Context, identity peer.Identity) (peer.Identity, error) {
	if identity.Address == "" {
		return peer.Identity{}, fmt.Errorf("peer address required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.peers[identity.Address]; ok && existing.UpdatedAt.After(identity.UpdatedAt) {
		return existing, nil
	}
	s.peers[identity.Address] = identity
	return identity, nil
}

func (s *Store) GetPeer(_ context.Context, address string) (peer.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.peers[address]
	if !ok {
		return peer.Identity{}, fmt.Errorf("peer %s not found", address)
	}
	return identity, nil
}

func (s *Store) ListPeers(_ context.Context) ([]peer.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]peer.Identity, 0, len(s.peers))
	for _, identity := range s.peers {
		result = append(result, identity)
	}
	return result, nil
}

func cloneRecord(rec listing.CacheRecord) listing.CacheRecord {
	out := rec
	out.Entries = make([]listing.Entry, len(rec.Entries))
	copy(out.Entries, rec.Entries)
	return out
}
