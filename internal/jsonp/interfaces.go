package jsonp

import (
	"context"
	"net/http"
	"time"
)

// Fetcher performs the outbound transfer for a call.
type Fetcher interface {
	Fetch(ctx context.Context, request Request) (Response, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces correlation tokens for callback identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Request captures everything needed to fetch a URL.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the result returned by a Fetcher implementation.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}
