// Package broadcast sends and receives near-real-time update events over the
// node's peer-messaging layer. The channel is free but not durable: messages
// reach only currently-connected peers, and loss is expected and tolerated.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/minibay/storefront/internal/app/domain/listing"
	"github.com/minibay/storefront/internal/app/domain/peer"
	"github.com/minibay/storefront/internal/app/metrics"
	"github.com/minibay/storefront/internal/app/system"
	"github.com/minibay/storefront/pkg/logger"
)

// SendError reports a broadcast the node refused to accept. Durability is
// never expected from this channel, so callers may choose to ignore it.
type SendError struct {
	Type string
	Err  error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("broadcast %s: %v", e.Type, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }

// Commander issues textual commands against the node.
type Commander interface {
	Command(ctx context.Context, command string) (json.RawMessage, error)
}

// Handler receives one decoded inbound message.
type Handler func(Message)

// Channel is the live broadcast client. Sends go through the node's command
// interface; inbound messages arrive on a long-lived websocket.
type Channel struct {
	commander   Commander
	listenURL   string
	application string
	log         *logger.Logger

	mu       sync.Mutex
	handlers []Handler
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  bool
}

var _ system.Service = (*Channel)(nil)

// Config holds channel parameters.
type Config struct {
	// ListenURL is the node's websocket endpoint for inbound messages.
	ListenURL string
	// Application tags outbound messages so peers can filter.
	Application string
}

// New constructs a broadcast channel.
func New(commander Commander, cfg Config, log *logger.Logger) *Channel {
	if log == nil {
		log = logger.NewDefault("broadcast")
	}
	application := cfg.Application
	if application == "" {
		application = "storefront"
	}
	return &Channel{
		commander:   commander,
		listenURL:   cfg.ListenURL,
		application: application,
		log:         log,
	}
}

// Listen registers a dispatch callback invoked once per inbound decoded
// message. Registration is allowed before or after Start.
func (c *Channel) Listen(handler Handler) {
	c.mu.Lock()
	c.handlers = append(c.handlers, handler)
	c.mu.Unlock()
}

// BroadcastNewDapp announces a listing. Fire-and-forget: it returns once the
// node accepts the send, with no delivery guarantee.
func (c *Channel) BroadcastNewDapp(ctx context.Context, entry listing.Entry) error {
	return c.send(ctx, TypeNewDapp, NewDappEvent{
		ID:          entry.ID,
		Name:        entry.Name,
		Description: entry.Description,
		Version:     entry.Version,
		Category:    entry.Category,
		Package:     entry.PackageURL,
		Icon:        entry.IconURL,
		Publisher:   entry.PublisherAddress,
	})
}

// BroadcastProfileUpdate announces an identity change.
func (c *Channel) BroadcastProfileUpdate(ctx context.Context, profile peer.Profile) error {
	return c.send(ctx, TypeProfileUpdate, ProfileUpdateEvent{
		Address: profile.Address,
		Name:    profile.DisplayName,
		Catalog: profile.CatalogURL,
		Channel: profile.LiveChannelAddress,
	})
}

// BroadcastDownload announces a download receipt.
func (c *Channel) BroadcastDownload(ctx context.Context, entryID, actor string) error {
	return c.send(ctx, TypeDownload, DownloadEvent{EntryID: entryID, Actor: actor})
}

// BroadcastTip announces a tip receipt.
func (c *Channel) BroadcastTip(ctx context.Context, entryID string, amount float64, to, from string) error {
	return c.send(ctx, TypeTip, TipEvent{EntryID: entryID, Amount: amount, To: to, From: from})
}

func (c *Channel) send(ctx context.Context, msgType string, payload interface{}) error {
	raw, err := encode(msgType, payload)
	if err != nil {
		return &SendError{Type: msgType, Err: err}
	}

	cmd := "relay action:send application:" + c.application + " data:" + string(raw)
	if _, err := c.commander.Command(ctx, cmd); err != nil {
		metrics.ObserveBroadcast("out_failed", msgType)
		return &SendError{Type: msgType, Err: err}
	}
	metrics.ObserveBroadcast("out", msgType)
	return nil
}

// Name implements system.Service.
func (c *Channel) Name() string { return "broadcast-channel" }

// Start opens the listen socket and begins dispatching inbound messages.
// Without a configured listen URL the channel is send-only.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.listenURL == "" {
		c.mu.Unlock()
		c.log.Warn("no listen URL configured; broadcast channel is send-only")
		return nil
	}
	if c.running {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.listenLoop(runCtx)
	}()

	c.log.Info("broadcast channel started")
	return nil
}

// Stop closes the listen socket and waits for the dispatch loop to drain.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.running = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.log.Info("broadcast channel stopped")
	return nil
}

// listenLoop maintains the websocket connection, reconnecting with backoff
// until the context is cancelled.
func (c *Channel) listenLoop(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}

		if err := c.consume(ctx); err != nil && ctx.Err() == nil {
			c.log.WithError(err).Warnf("listen socket closed, reconnecting in %s", backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (c *Channel) consume(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.listenURL, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled. The watcher must not
	// outlive its connection, or every reconnect leaks a goroutine.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	c.log.Infof("listening on %s", c.listenURL)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("websocket read: %w", err)
		}
		c.dispatch(raw)
	}
}

func (c *Channel) dispatch(raw []byte) {
	msg, err := Decode(raw)
	if err == ErrUnknownType {
		c.log.Debugf("ignoring message type %s", strconv.Quote(msg.Type))
		return
	}
	if err != nil {
		c.log.WithError(err).Warn("dropping undecodable broadcast message")
		return
	}
	metrics.ObserveBroadcast("in", msg.Type)

	c.mu.Lock()
	handlers := make([]Handler, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, handler := range handlers {
		handler(msg)
	}
}
