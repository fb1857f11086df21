package catalog

import (
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/pkg/logger"
)

// reservedKeys describe the catalog itself rather than a dapp and are skipped
// during normalization.
var reservedKeys = map[string]struct{}{
	"name":        {},
	"description": {},
	"icon":        {},
	"version":     {},
}

// Normalizer converts one peer's raw catalog document into canonical listing
// entries. It performs no network or storage side effects.
type Normalizer struct {
	log *logger.Logger
	now func() time.Time
}

// NewNormalizer constructs a normalizer.
func NewNormalizer(log *logger.Logger) *Normalizer {
	if log == nil {
		log = logger.NewDefault("catalog-normalizer")
	}
	return &Normalizer{log: log, now: time.Now}
}

// Normalize builds one listing entry per non-reserved key of the document.
// Malformed per-entry data is skipped with a warning and never aborts the
// remaining entries. Output order follows the document's key order.
func (n *Normalizer) Normalize(raw []byte, catalogURL string, publisher peer.Identity) []listing.Entry {
	base, err := url.Parse(catalogURL)
	if err != nil {
		n.log.WithError(err).Warnf("unparseable catalog URL %q", catalogURL)
		return nil
	}

	fetchedAt := n.now().UTC()
	var entries []listing.Entry

	gjson.ParseBytes(raw).ForEach(func(key, value gjson.Result) bool {
		name := key.String()
		if _, reserved := reservedKeys[name]; reserved {
			return true
		}
		if !value.IsObject() {
			n.log.Warnf("catalog %s: entry %q is not an object, skipping", catalogURL, name)
			return true
		}

		pkg := firstString(value, "miniDapp", "file")
		if pkg == "" {
			n.log.Warnf("catalog %s: entry %q declares no package file, skipping", catalogURL, name)
			return true
		}
		packageURL, err := resolveAgainst(base, pkg)
		if err != nil {
			n.log.WithError(err).Warnf("catalog %s: entry %q has unresolvable package path", catalogURL, name)
			return true
		}

		entry := listing.Entry{
			ID:               listing.EntryID(name, publisher.Address),
			Name:             stringOr(value.Get("name"), name),
			Description:      value.Get("description").String(),
			Version:          stringOr(value.Get("version"), listing.DefaultVersion),
			Category:         stringOr(value.Get("category"), listing.DefaultCategory),
			PackageURL:       packageURL,
			PublisherAddress: publisher.Address,
			SourceCatalogURL: catalogURL,
			Origin:           listing.OriginP2PCatalog,
			Downloads:        value.Get("downloads").Int(),
			FetchedAt:        fetchedAt,
		}

		if icon := value.Get("icon").String(); icon != "" {
			if iconURL, err := resolveAgainst(base, icon); err == nil {
				entry.IconURL = iconURL
			}
		}

		entries = append(entries, entry)
		return true
	})

	return entries
}

// resolveAgainst resolves a declared resource path against the catalog URL's
// directory.
func resolveAgainst(base *url.URL, resource string) (string, error) {
	ref, err := url.Parse(resource)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}

func stringOr(v gjson.Result, fallback string) string {
	if s := strings.TrimSpace(v.String()); s != "" {
		return s
	}
	return fallback
}

func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := strings.TrimSpace(v.Get(k).String()); s != "" {
			return s
		}
	}
	return ""
}
