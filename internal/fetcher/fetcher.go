// Package fetcher produces ranked trending lists from external sources.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"trendwatch/internal/trend"
)

// Fetcher returns the source's current ranked list. An empty list is always
// reported as an error of KindEmpty.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context) (trend.RankedList, error)
}

type Kind string

const (
	KindNetwork Kind = "network"
	KindTimeout Kind = "timeout"
	KindStatus  Kind = "status"
	KindParse   Kind = "parse"
	KindEmpty   Kind = "empty"
)

// Error is returned by every Fetcher on failure.
type Error struct {
	Source string
	Kind   Kind
	Status int // http status for KindStatus
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindStatus:
		return fmt.Sprintf("%s: unexpected status %d", e.Source, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Source, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" if err is not a fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

const (
	DefaultUserAgent = "trendwatch/1.0"
	maxBodyBytes     = 4 << 20
)

// Options are shared by the HTTP-backed fetchers.
type Options struct {
	URL       string
	UserAgent string
	Client    *http.Client
}

func (o Options) client() *http.Client {
	if o.Client != nil {
		return o.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (o Options) userAgent() string {
	if o.UserAgent != "" {
		return o.UserAgent
	}
	return DefaultUserAgent
}

// get issues a GET and returns the response for the caller to read. The
// body must be closed by the caller.
func get(ctx context.Context, source string, opt Options, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, opt.URL, nil)
	if err != nil {
		return nil, &Error{Source: source, Kind: KindNetwork, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", opt.userAgent())

	resp, err := opt.client().Do(req)
	if err != nil {
		return nil, classify(source, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &Error{Source: source, Kind: KindStatus, Status: resp.StatusCode}
	}
	return resp, nil
}

func classify(source string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Source: source, Kind: KindTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Source: source, Kind: KindTimeout, Err: err}
	}
	return &Error{Source: source, Kind: KindNetwork, Err: err}
}
