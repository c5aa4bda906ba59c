// Package queue runs external searches off the request path.
package queue

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// Job is a unit of background work, usually one external search.
type Job struct {
	// Key identifies the owner, e.g. a session id
	Key string
	Run func(ctx context.Context) error
}

// SearchQueue is an in-memory bounded queue drained by a fixed worker pool
type SearchQueue struct {
	items    chan Job
	done     chan struct{}
	maxSize  int
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *logrus.Logger
	handlers []func(Job, error)
}

// NewSearchQueue creates a queue with the specified buffer size
func NewSearchQueue(bufferSize int, logger *logrus.Logger) *SearchQueue {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	if bufferSize < 1 {
		bufferSize = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &SearchQueue{
		items:   make(chan Job, bufferSize),
		done:    make(chan struct{}),
		maxSize: bufferSize,
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger,
	}
}

// Push adds a job without blocking
func (q *SearchQueue) Push(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- job:
		q.logger.WithField("key", job.Key).Debug("Pushed job to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Subscribe registers a callback invoked after every job with its result
func (q *SearchQueue) Subscribe(handler func(Job, error)) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers = append(q.handlers, handler)
}

// Start launches the workers
func (q *SearchQueue) Start(workers int) {
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		q.wg.Add(1)
		go q.process()
	}
}

func (q *SearchQueue) process() {
	defer q.wg.Done()
	for {
		select {
		case <-q.done:
			return
		case job := <-q.items:
			q.run(job)
		}
	}
}

func (q *SearchQueue) run(job Job) {
	var err error
	if job.Run != nil {
		err = job.Run(q.ctx)
	}
	if err != nil {
		q.logger.WithError(err).WithField("key", job.Key).Error("Job failed")
	}

	q.mu.RLock()
	handlers := q.handlers
	q.mu.RUnlock()

	for _, handler := range handlers {
		handler(job, err)
	}
}

// Close stops the workers, cancelling in-flight jobs. Pending jobs are dropped.
func (q *SearchQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.done)
	q.cancel()
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

// Len returns the number of pending jobs
func (q *SearchQueue) Len() int {
	return len(q.items)
}

// IsClosed returns whether the queue has been closed
func (q *SearchQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
