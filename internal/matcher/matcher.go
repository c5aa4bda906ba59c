// Package matcher talks to the external semantic search collaborator that
// picks properties matching a natural-language query.
package matcher

import (
	"context"
	"errors"
	"fmt"

	"housefinder/server/internal/models"
)

var (
	ErrEmptyQuery      = errors.New("empty search query")
	ErrInvalidResponse = errors.New("invalid matcher response")
	ErrNotConfigured   = errors.New("matcher is not configured")
)

// StatusError is returned when the matcher answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("matcher returned status %d: %s", e.StatusCode, e.Body)
}

// Request is a composed query over a candidate set.
type Request struct {
	Query      string
	Candidates []models.Property
}

// Response is what the matcher decided. The core never inspects how.
type Response struct {
	MatchedIDs  []string
	Destination *models.Point
	Explanation string

	// CommuteEstimates maps property id to a free-text travel estimate
	CommuteEstimates map[string]string
}

type Matcher interface {
	Search(ctx context.Context, req Request) (Response, error)
}

// Func adapts a function to the Matcher interface.
type Func func(ctx context.Context, req Request) (Response, error)

func (f Func) Search(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// Disabled is used when no matcher endpoint is configured.
var Disabled Matcher = Func(func(context.Context, Request) (Response, error) {
	return Response{}, ErrNotConfigured
})
