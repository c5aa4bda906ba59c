package api

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"housefinder/server/internal/geoindex"
	"housefinder/server/internal/session"
)

type entry struct {
	session  *session.Session
	lastSeen time.Time
}

// Registry holds the live sessions keyed by id and evicts idle ones.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	index    *geoindex.Index
	ttl      time.Duration
	now      func() time.Time
	logger   *logrus.Logger
}

func NewRegistry(index *geoindex.Index, ttl time.Duration, logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Registry{
		sessions: make(map[string]*entry),
		index:    index,
		ttl:      ttl,
		now:      time.Now,
		logger:   logger,
	}
}

// Create starts a new session over the whole universe.
func (r *Registry) Create() *session.Session {
	r.mu.Lock()
	s := session.New(uuid.NewString(), r.index, r.logger)
	r.sessions[s.ID] = &entry{session: s, lastSeen: r.now()}
	r.mu.Unlock()

	r.logger.WithField("session", s.ID).Info("Session created")
	return s
}

// Get returns a session and marks it as used.
func (r *Registry) Get(id string) (*session.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = r.now()
	return e.session, true
}

// SetIndex swaps the universe used by sessions created from now on.
func (r *Registry) SetIndex(ix *geoindex.Index) {
	r.mu.Lock()
	r.index = ix
	r.mu.Unlock()
}

func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.ttl)
	removed := 0
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		r.logger.WithField("count", removed).Info("Evicted idle sessions")
	}
	return removed
}

// RunJanitor sweeps periodically until ctx is done.
func (r *Registry) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep()
		}
	}
}
