package session

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"housefinder/server/internal/matcher"
	"housefinder/server/internal/queue"
)

// Runner resolves external searches in the background.
type Runner struct {
	matcher matcher.Matcher
	queue   *queue.SearchQueue
	logger  *logrus.Logger
}

func NewRunner(m matcher.Matcher, q *queue.SearchQueue, logger *logrus.Logger) *Runner {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Runner{matcher: m, queue: q, logger: logger}
}

// Search issues a ticket on s and queues its resolution. Only the latest
// ticket of a session can change its state.
func (r *Runner) Search(s *Session) (Ticket, error) {
	ticket, err := s.BeginSearch()
	if err != nil {
		return Ticket{}, err
	}

	job := queue.Job{
		Key: s.ID,
		Run: func(ctx context.Context) error {
			return r.Resolve(ctx, s, ticket)
		},
	}
	if err := r.queue.Push(job); err != nil {
		r.abandon(s, ticket, err)
		return Ticket{}, fmt.Errorf("failed to queue search: %w", err)
	}
	return ticket, nil
}

// abandon records a search that never reached a worker.
func (r *Runner) abandon(s *Session, ticket Ticket, cause error) {
	if err := s.FailSearch(ticket, cause); err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"session": s.ID,
			"token":   ticket.Token,
		}).Warn("Failed to record unqueued search")
	}
}

// Resolve calls the matcher for ticket and applies the outcome.
func (r *Runner) Resolve(ctx context.Context, s *Session, ticket Ticket) error {
	resp, err := r.matcher.Search(ctx, ticket.Request)
	if err != nil {
		err = s.FailSearch(ticket, err)
	} else {
		err = s.CompleteSearch(ticket, resp)
	}

	if errors.Is(err, ErrStaleResponse) {
		r.logger.WithFields(logrus.Fields{
			"session": s.ID,
			"token":   ticket.Token,
		}).Debug("Discarding stale search response")
		return nil
	}
	return err
}
