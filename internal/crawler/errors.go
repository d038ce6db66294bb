package crawler

import (
	"errors"
	"fmt"
)

// FetchErrorKind classifies why a page fetch produced no usable document.
type FetchErrorKind string

// Fetch failure kinds.
const (
	FetchTimeout      FetchErrorKind = "timeout"
	FetchHTTPError    FetchErrorKind = "http_error"
	FetchTooSmall     FetchErrorKind = "too_small"
	FetchNetworkError FetchErrorKind = "network_error"
	FetchCanceled     FetchErrorKind = "canceled"
)

var (
	// ErrNoPagesAnalyzed is returned alongside a CrawlResult when every page failed.
	ErrNoPagesAnalyzed = errors.New("could not analyze this site")
	// ErrInvalidRequest marks a CrawlRequest that failed validation.
	ErrInvalidRequest = errors.New("invalid crawl request")
	// ErrQueueClosed is returned by queues that no longer accept or yield jobs.
	ErrQueueClosed = errors.New("queue closed")
	// ErrJobNotFound is returned by job stores for unknown job IDs.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotQueued is returned by job stores when a job can no longer start
	// running, typically because it was canceled while waiting in the queue.
	ErrJobNotQueued = errors.New("job is not queued")
	// ErrReportNotFound is returned by job stores when a job has no report yet.
	ErrReportNotFound = errors.New("report not found")
)

// FetchError is returned by Fetcher implementations for every non-success outcome.
type FetchError struct {
	Kind       FetchErrorKind
	URL        string
	StatusCode int
	BodyBytes  int
	Cause      error
}

func (e *FetchError) Error() string {
	switch e.Kind {
	case FetchHTTPError:
		return fmt.Sprintf("fetch %s: http status %d", e.URL, e.StatusCode)
	case FetchTooSmall:
		return fmt.Sprintf("fetch %s: body too small (%d bytes)", e.URL, e.BodyBytes)
	}
	if e.Cause != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Cause)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *FetchError) Unwrap() error {
	return e.Cause
}

// FetchErrorKindOf reports the kind of the first FetchError in err's chain.
func FetchErrorKindOf(err error) (FetchErrorKind, bool) {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return "", false
}

// IsFetchKind reports whether err wraps a FetchError of the given kind.
func IsFetchKind(err error, kind FetchErrorKind) bool {
	got, ok := FetchErrorKindOf(err)
	return ok && got == kind
}

func failureFromError(rawURL string, err error) PageFailure {
	failure := PageFailure{URL: rawURL, Kind: string(FetchNetworkError), Error: err.Error()}
	var fe *FetchError
	if errors.As(err, &fe) {
		failure.Kind = string(fe.Kind)
		failure.StatusCode = fe.StatusCode
	}
	return failure
}
