package catalog

import "fmt"

// FetchErrorKind classifies why a catalog fetch failed.
type FetchErrorKind string

const (
	FetchTimeout    FetchErrorKind = "timeout"
	FetchHTTPStatus FetchErrorKind = "http_status"
	FetchMalformed  FetchErrorKind = "malformed"
)

// FetchError is the typed failure returned by the fetcher. It never
// propagates past the aggregator as a hard failure, only as a report entry.
type FetchError struct {
	Kind   FetchErrorKind
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPStatus:
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	case FetchTimeout:
		return fmt.Sprintf("fetch %s: timed out", e.URL)
	default:
		return fmt.Sprintf("fetch %s: malformed catalog document", e.URL)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }
