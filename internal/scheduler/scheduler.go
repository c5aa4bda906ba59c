// Package scheduler periodically rebuilds the spatial index from the store so
// that listings imported while the server runs reach new sessions.
package scheduler

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"housefinder/server/internal/geoindex"
	"housefinder/server/internal/models"
)

// Loader returns the current property universe.
type Loader func() ([]models.Property, error)

// IndexSink receives each rebuilt index.
type IndexSink interface {
	SetIndex(ix *geoindex.Index)
}

// Refresher reloads the universe on a fixed interval. Sessions already
// running keep the index they were created with.
type Refresher struct {
	load     Loader
	sink     IndexSink
	interval time.Duration
	logger   *logrus.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	jobMutex sync.Mutex // Ensures sequential refreshes
	lastSize int
}

func NewRefresher(load Loader, sink IndexSink, interval time.Duration, logger *logrus.Logger) *Refresher {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Refresher{
		load:     load,
		sink:     sink,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
		lastSize: -1,
	}
}

// Start runs the refresh loop. A non-positive interval disables it.
func (r *Refresher) Start() {
	if r.interval <= 0 {
		r.logger.Info("Index refresh disabled")
		return
	}
	r.wg.Add(1)
	go r.run()
}

func (r *Refresher) run() {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			if _, err := r.Refresh(); err != nil {
				r.logger.WithError(err).Error("Index refresh failed, keeping previous index")
			}
		}
	}
}

// Refresh loads the universe and hands a new index to the sink. The previous
// index stays in place when loading or indexing fails.
func (r *Refresher) Refresh() (int, error) {
	r.jobMutex.Lock()
	defer r.jobMutex.Unlock()

	start := time.Now()
	properties, err := r.load()
	if err != nil {
		return 0, fmt.Errorf("failed to load properties: %w", err)
	}

	ix, err := geoindex.New(properties)
	if err != nil {
		return 0, fmt.Errorf("failed to build index: %w", err)
	}
	r.sink.SetIndex(ix)

	fields := logrus.Fields{
		"count":    ix.Len(),
		"duration": time.Since(start).String(),
	}
	if ix.Len() != r.lastSize {
		r.logger.WithFields(fields).Info("Spatial index refreshed")
	} else {
		r.logger.WithFields(fields).Debug("Spatial index refreshed")
	}
	r.lastSize = ix.Len()
	return ix.Len(), nil
}

// Stop ends the loop and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
