package listing

import (
	"hash/fnv"
	"strconv"
	"time"
)

// OriginKind tags where a listing entry was sourced from. It determines the
// durability characteristics consumers may assume: catalog entries vanish
// with their host, registry entries are permanent.
type OriginKind string

const (
	OriginP2PCatalog        OriginKind = "p2p-catalog"
	OriginPermanentRegistry OriginKind = "permanent-registry"
)

// Defaults substituted during normalization for absent catalog fields.
const (
	DefaultVersion  = "1.0.0"
	DefaultCategory = "Utility"
)

// Entry is the canonical, post-normalization representation of one
// installable application, regardless of originating source.
type Entry struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Version          string     `json:"version"`
	Category         string     `json:"category"`
	PackageURL       string     `json:"package_url"`
	IconURL          string     `json:"icon_url,omitempty"`
	PublisherAddress string     `json:"publisher_address"`
	SourceCatalogURL string     `json:"source_catalog_url,omitempty"`
	Origin           OriginKind `json:"origin"`
	Downloads        int64      `json:"downloads"`
	Tips             int64      `json:"tips"`
	FetchedAt        time.Time  `json:"fetched_at"`
}

// EntryID derives the stable identifier for a catalog-sourced entry from its
// map key and publisher address. Identical input yields an identical ID
// within and across runs of the same process.
func EntryID(sourceKey, publisherAddress string) string {
	h := fnv.New64a()
	h.Write([]byte(sourceKey))
	h.Write([]byte{'@'})
	h.Write([]byte(publisherAddress))
	return "dapp-" + strconv.FormatUint(h.Sum64(), 36)
}

// CacheRecord holds one catalog's last successfully normalized entries.
// Records are superseded in place on refetch and retained on failure so the
// aggregator can fall back to stale data.
type CacheRecord struct {
	CatalogURL string
	Entries    []Entry
	FetchedAt  time.Time
}
