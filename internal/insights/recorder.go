package insights

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/insightd/internal/detector"
)

// Recorder defaults.
const (
	DefaultWorkers    = 4
	DefaultQueueSize  = 256
	DefaultJobTimeout = 5 * time.Second
)

// ErrRecorderRunning is returned by Start on a running recorder.
var ErrRecorderRunning = errors.New("recorder is already running")

// Recorder records detections off the caller's path. Each worker drains its
// own bounded queue and a user's jobs always land on the same worker, so they
// reach the store in submission order. Submit never blocks and drops work
// when the user's queue is full.
//
// Thread Safety: all methods are safe for concurrent use.
type Recorder struct {
	service    *Service
	workers    int
	queueSize  int
	jobTimeout time.Duration
	logger     *zap.Logger

	// mu guards running and shards. Submit holds the read lock while it
	// enqueues so Stop cannot close a channel underneath it.
	mu      sync.RWMutex
	running bool
	shards  []chan recordJob
	wg      sync.WaitGroup
}

type recordJob struct {
	ctx        context.Context
	userID     string
	results    []detector.Result
	observedAt time.Time
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithWorkers sets the worker count.
func WithWorkers(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.workers = n
		}
	}
}

// WithQueueSize sets the total queue capacity, split evenly across workers.
func WithQueueSize(n int) RecorderOption {
	return func(r *Recorder) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithJobTimeout bounds each job's store calls.
func WithJobTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.jobTimeout = d
		}
	}
}

// NewRecorder creates a stopped Recorder. Call Start before Submit.
func NewRecorder(service *Service, logger *zap.Logger, opts ...RecorderOption) (*Recorder, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		service:    service,
		workers:    DefaultWorkers,
		queueSize:  DefaultQueueSize,
		jobTimeout: DefaultJobTimeout,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start launches the workers.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrRecorderRunning
	}
	perShard := (r.queueSize + r.workers - 1) / r.workers
	r.shards = make([]chan recordJob, r.workers)
	for i := range r.shards {
		r.shards[i] = make(chan recordJob, perShard)
		r.wg.Add(1)
		go r.worker(r.shards[i])
	}
	r.running = true

	r.logger.Info("recorder started",
		zap.Int("workers", r.workers),
		zap.Int("queue_size", r.queueSize),
		zap.Duration("job_timeout", r.jobTimeout),
	)
	return nil
}

// Stop stops accepting jobs, lets the workers finish what is queued and
// waits for them until ctx is done. Stopping a stopped recorder is a no-op.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	for _, jobs := range r.shards {
		close(jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("recorder stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for recorder workers: %w", ctx.Err())
	}
}

// Submit queues results for recording and reports whether they were
// accepted. It never blocks. The observation time is taken here, not when a
// worker gets to the job. Values carried by ctx (trace, request ID) reach the
// job; its cancellation does not.
func (r *Recorder) Submit(ctx context.Context, userID string, results []detector.Result) bool {
	if len(results) == 0 {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.running {
		recorderJobsTotal.WithLabelValues(outcomeDropped).Inc()
		r.logger.Warn("recorder not running, dropping job", zap.String("user.id", userID))
		return false
	}

	job := recordJob{
		ctx:        context.WithoutCancel(ctx),
		userID:     userID,
		results:    append([]detector.Result(nil), results...),
		observedAt: r.service.now(),
	}
	// The gauge goes up before the send so a worker's Dec never runs first.
	recorderQueueDepth.Inc()
	select {
	case r.shards[r.shardFor(userID)] <- job:
		recorderJobsTotal.WithLabelValues(outcomeAccepted).Inc()
		return true
	default:
		recorderQueueDepth.Dec()
		recorderJobsTotal.WithLabelValues(outcomeDropped).Inc()
		r.logger.Warn("recorder queue full, dropping job",
			zap.String("user.id", userID),
			zap.Int("results", len(results)),
		)
		return false
	}
}

// Running reports whether the recorder accepts jobs.
func (r *Recorder) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// shardFor maps a user to a fixed worker queue.
func (r *Recorder) shardFor(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(len(r.shards)))
}

func (r *Recorder) worker(jobs <-chan recordJob) {
	defer r.wg.Done()
	for job := range jobs {
		recorderQueueDepth.Dec()
		r.safeRun(job)
	}
}

// safeRun keeps one panicking job from taking its worker down.
func (r *Recorder) safeRun(job recordJob) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("recording job panicked",
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
		}
	}()

	began := time.Now()
	ctx, cancel := context.WithTimeout(job.ctx, r.jobTimeout)
	defer cancel()

	r.service.recordAllAt(ctx, job.userID, job.results, job.observedAt)
	recorderJobDuration.Observe(time.Since(began).Seconds())
}
