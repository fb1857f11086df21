// Package app wires the storefront services together and manages their
// lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/minibay/storefront/internal/app/services/broadcast"
	"github.com/minibay/storefront/internal/app/services/catalog"
	listingsvc "github.com/minibay/storefront/internal/app/services/listing"
	"github.com/minibay/storefront/internal/app/services/registry"
	"github.com/minibay/storefront/internal/app/storage"
	"github.com/minibay/storefront/internal/app/storage/memory"
	"github.com/minibay/storefront/internal/app/system"
	"github.com/minibay/storefront/internal/config"
	"github.com/minibay/storefront/internal/ledger"
	"github.com/minibay/storefront/internal/objstore"
	"github.com/minibay/storefront/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Cache storage.CatalogCache
	Peers storage.PeerStore
}

// Application ties the aggregation core together and manages its lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger    *ledger.Client
	Registry  *registry.Service
	Broadcast *broadcast.Channel
	Listings  *listingsvc.Service
	Peers     storage.PeerStore
	Cache     storage.CatalogCache
	Uploads   *objstore.Client
}

// New builds a fully initialised application with the provided stores.
func New(cfg *config.Config, stores Stores, log *logger.Logger) (*Application, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NewDefault("app")
	}

	if stores.Cache == nil || stores.Peers == nil {
		mem := memory.New()
		if stores.Cache == nil {
			stores.Cache = mem
		}
		if stores.Peers == nil {
			stores.Peers = mem
		}
	}

	ledgerClient, err := ledger.NewClient(ledger.Config{
		RPCURL:  cfg.Node.RPCURL,
		Timeout: time.Duration(cfg.Node.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger client: %w", err)
	}

	registrySvc, err := registry.New(ledgerClient, registry.Config{
		TreasuryAddress: cfg.Registry.TreasuryAddress,
		Fee:             cfg.Registry.Fee,
	}, log.WithField("service", "registry"))
	if err != nil {
		return nil, fmt.Errorf("registry service: %w", err)
	}

	channel := broadcast.New(ledgerClient, broadcast.Config{
		ListenURL:   cfg.Node.ListenURL,
		Application: cfg.Broadcast.Application,
	}, log.WithField("service", "broadcast"))

	var limiter *rate.Limiter
	if cfg.Catalog.FetchRatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Catalog.FetchRatePerSecond), 1)
	}
	fetcher := catalog.NewHTTPFetcher(nil, limiter, log.WithField("service", "fetcher"))
	normalizer := catalog.NewNormalizer(log.WithField("service", "normalizer"))
	aggregator := catalog.NewAggregator(fetcher, stores.Cache, normalizer, log.WithField("service", "aggregator"))

	listings := listingsvc.New(aggregator, registrySvc, stores.Peers, log.WithField("service", "listings"))
	channel.Listen(listings.Apply)

	refresher, err := listingsvc.NewRefresher(listings, cfg.Catalog.RefreshSchedule, log.WithField("service", "refresher"))
	if err != nil {
		return nil, fmt.Errorf("refresher: %w", err)
	}

	manager := system.NewManager(log.WithField("service", "system"))
	manager.Register(channel)
	manager.Register(refresher)

	application := &Application{
		manager:   manager,
		log:       log,
		Ledger:    ledgerClient,
		Registry:  registrySvc,
		Broadcast: channel,
		Listings:  listings,
		Peers:     stores.Peers,
		Cache:     stores.Cache,
	}

	if cfg.ObjectStore.Endpoint != "" {
		uploads, err := objstore.NewClient(objstore.Config{
			Endpoint: cfg.ObjectStore.Endpoint,
			Token:    cfg.ObjectStore.Token,
		})
		if err != nil {
			return nil, fmt.Errorf("object store client: %w", err)
		}
		application.Uploads = uploads
	}

	return application, nil
}

// Start bootstraps the merged view and launches background services.
func (a *Application) Start(ctx context.Context) error {
	if err := a.Listings.Bootstrap(ctx); err != nil {
		// A failed bootstrap still leaves a usable (empty) view; background
		// refresh will fill it in once sources come back.
		a.log.WithError(err).Warn("initial bootstrap incomplete")
	}
	return a.manager.Start(ctx)
}

// Stop halts background services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
