package listing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/minibay/storefront/internal/app/system"
	"github.com/minibay/storefront/pkg/logger"
)

var _ system.Service = (*Refresher)(nil)

// Refresher periodically rebuilds the merged view so cached catalogs age out
// and registry entries stay current without any user action.
type Refresher struct {
	service  *Service
	log      *logger.Logger
	schedule cron.Schedule

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRefresher creates a lifecycle-managed refresher. The schedule spec uses
// cron syntax, including "@every 5m" style intervals.
func NewRefresher(service *Service, scheduleSpec string, log *logger.Logger) (*Refresher, error) {
	if log == nil {
		log = logger.NewDefault("listing-refresher")
	}
	if scheduleSpec == "" {
		scheduleSpec = "@every 5m"
	}
	schedule, err := cron.ParseStandard(scheduleSpec)
	if err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", scheduleSpec, err)
	}
	return &Refresher{
		service:  service,
		log:      log,
		schedule: schedule,
	}, nil
}

func (r *Refresher) Name() string { return "listing-refresher" }

func (r *Refresher) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			next := r.schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if err := r.service.Refresh(runCtx); err != nil && runCtx.Err() == nil {
					r.log.WithError(err).Warn("scheduled refresh failed")
				}
			}
		}
	}()

	r.log.Info("listing refresher started")
	return nil
}

func (r *Refresher) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("listing refresher stopped")
	return nil
}
