// ABOUTME: Bounded fire-and-forget job queue with a fixed worker pool
// ABOUTME: Every failed or rejected job is reported on an error channel instead of to its submitter
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/harperreed/fieldsync/db"
	"github.com/harperreed/fieldsync/metrics"
	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("job queue is full")
	ErrQueueClosed = errors.New("job queue is closed")
)

// Job kinds.
const (
	KindPushTask       = "push_task"
	KindPushSubmission = "push_submission"
)

// Job is one unit of side-effect work. Entity and RecordID name the record
// a failure is attached to.
type Job struct {
	Kind     string
	Entity   db.Entity
	RecordID uuid.UUID
	Run      func(ctx context.Context) error
}

// Failure pairs a job with the error it ended in.
type Failure struct {
	Job Job
	Err error
}

type Options struct {
	Workers  int
	Capacity int
	Timeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.Capacity <= 0 {
		o.Capacity = 64
	}
	if o.Timeout <= 0 {
		o.Timeout = 2 * time.Minute
	}
	return o
}

type Queue struct {
	jobs    chan Job
	errs    chan Failure
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewQueue starts the worker pool. Callers must drain Errors and call Close.
func NewQueue(opts Options, logger *zap.Logger, m *metrics.Metrics) *Queue {
	opts = opts.withDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	q := &Queue{
		jobs:    make(chan Job, opts.Capacity),
		errs:    make(chan Failure, opts.Capacity),
		timeout: opts.Timeout,
		logger:  logger.Named("jobs"),
		metrics: m,
	}

	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go func() {
			defer q.wg.Done()
			q.worker()
		}()
	}

	return q
}

// Enqueue hands job to the pool without blocking. A full queue rejects the
// job; the rejection is reported on Errors as well as returned.
func (q *Queue) Enqueue(job Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		q.metrics.SetQueueDepth(len(q.jobs))
		return nil
	default:
		q.metrics.RecordJob(job.Kind, "rejected")
		q.report(Failure{Job: job, Err: ErrQueueFull})
		return ErrQueueFull
	}
}

// Errors delivers job failures. It is closed by Close after the last worker exits.
func (q *Queue) Errors() <-chan Failure {
	return q.errs
}

// Close stops accepting jobs, waits for queued ones to finish and closes Errors.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	q.wg.Wait()
	close(q.errs)
}

func (q *Queue) worker() {
	for job := range q.jobs {
		q.metrics.SetQueueDepth(len(q.jobs))

		err := q.run(job)
		if err != nil {
			q.metrics.RecordJob(job.Kind, "failed")
			q.report(Failure{Job: job, Err: err})
			continue
		}
		q.metrics.RecordJob(job.Kind, "succeeded")
	}
}

func (q *Queue) run(job Job) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Kind, r)
		}
	}()

	return job.Run(ctx)
}

// report never blocks a worker; when nobody drains Errors the failure is only logged.
func (q *Queue) report(f Failure) {
	select {
	case q.errs <- f:
	default:
		q.logger.Error("dropping job failure",
			zap.String("kind", f.Job.Kind),
			zap.String("record_id", f.Job.RecordID.String()),
			zap.Error(f.Err))
	}
}
