package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/minibay/storefront/pkg/logger"
)

// FetchTimeoutWindow is the fixed per-request deadline. A peer that does not
// answer within it contributes nothing to the current aggregation run.
const FetchTimeoutWindow = 10 * time.Second

// maxCatalogBytes bounds how much of an untrusted peer's response is read.
const maxCatalogBytes = 4 << 20

// Fetcher retrieves one peer's raw catalog document.
type Fetcher interface {
	Fetch(ctx context.Context, catalogURL string) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, catalogURL string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, catalogURL string) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, catalogURL)
}

// HTTPFetcher fetches catalog documents over HTTP with a fixed timeout and a
// shared outbound rate limit. It performs no retries; retry and fallback
// policy belongs to the aggregator and the cache.
type HTTPFetcher struct {
	client  *http.Client
	limiter *rate.Limiter
	log     *logger.Logger
}

// NewHTTPFetcher constructs a fetcher. A nil client gets a default with the
// fixed timeout; a nil limiter disables rate limiting.
func NewHTTPFetcher(client *http.Client, limiter *rate.Limiter, log *logger.Logger) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: FetchTimeoutWindow}
	}
	if log == nil {
		log = logger.NewDefault("catalog-fetcher")
	}
	return &HTTPFetcher{client: client, limiter: limiter, log: log}
}

var _ Fetcher = (*HTTPFetcher)(nil)

// Fetch issues one GET against the peer-declared catalog URL. Failures are
// always typed *FetchError so the aggregator can report the reason.
func (f *HTTPFetcher) Fetch(ctx context.Context, catalogURL string) ([]byte, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, &FetchError{Kind: FetchTimeout, URL: catalogURL, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, FetchTimeoutWindow)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, catalogURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchMalformed, URL: catalogURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		// Transport-level failures (refused, reset, DNS) surface under the
		// timeout kind: from the caller's view the peer did not answer.
		if !errors.Is(err, context.DeadlineExceeded) {
			f.log.WithError(err).Debugf("catalog %s unreachable", catalogURL)
		}
		return nil, &FetchError{Kind: FetchTimeout, URL: catalogURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{Kind: FetchHTTPStatus, URL: catalogURL, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return nil, &FetchError{Kind: FetchMalformed, URL: catalogURL, Err: err}
	}

	doc := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !doc.IsObject() {
		return nil, &FetchError{Kind: FetchMalformed, URL: catalogURL}
	}

	return body, nil
}
