package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/models"
	"github.com/desertthunder/spotifier/internal/observability"
	"github.com/desertthunder/spotifier/internal/services"
	"github.com/desertthunder/spotifier/internal/shared"
)

// JobStatus is the lifecycle state of a [DetailJob].
type JobStatus int

const (
	JobQueued JobStatus = iota
	JobRunning
	JobCompleted
	JobFailed
)

func (s JobStatus) String() string {
	switch s {
	case JobQueued:
		return "queued"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return ""
	}
}

// QueueState controls whether workers take new jobs.
type QueueState int

const (
	QueueRunning QueueState = iota
	QueuePaused
)

func (s QueueState) String() string {
	if s == QueuePaused {
		return "paused"
	}
	return "running"
}

// JobHandler resolves one artist. Returning an error schedules a retry.
type JobHandler func(ctx context.Context, artist *models.Artist) error

// DetailJob is a queued request to resolve an artist's detail.
type DetailJob struct {
	Artist     *models.Artist
	Handler    JobHandler
	Status     JobStatus
	Attempts   int
	EnqueuedAt time.Time
}

// JobResult describes a job that reached a terminal state.
type JobResult struct {
	ArtistID  string
	CatalogID string
	Status    JobStatus
	Attempts  int
	Err       error
}

// QueueStats is a point-in-time view of the queue.
type QueueStats struct {
	State     QueueState
	Queued    int
	Running   int
	Completed int
	Failed    int
}

// DetailQueue resolves artist detail in the background.
//
// Jobs run in FIFO order and are de-duplicated by artist id while Queued or Running.
// At most the configured number of jobs run at once, which bounds in-flight catalog requests.
type DetailQueue struct {
	artists ArtistStore
	catalog services.Catalog
	retry   RetryConfig
	workers int
	logger  *log.Logger
	sink    observability.Sink
	metrics *observability.Metrics

	// OnResult, when set, is called after every job reaches a terminal state.
	// It must be set before Start.
	OnResult func(JobResult)

	mu        sync.Mutex
	state     QueueState
	pending   []*DetailJob
	active    map[string]*DetailJob
	running   int
	completed int
	failed    int
	idle      chan struct{}
	wake      chan struct{}
	started   bool
}

// NewDetailQueue creates a stopped queue. Call [DetailQueue.Start] to begin draining.
func NewDetailQueue(p Pipeline, cfg shared.QueueConfig) *DetailQueue {
	p = p.withDefaults()
	idle := make(chan struct{})
	close(idle)

	return &DetailQueue{
		artists: p.Artists,
		catalog: p.Catalog,
		retry:   RetryConfigFrom(cfg),
		workers: max(cfg.Concurrency, 1),
		logger:  p.logger("detail_queue"),
		sink:    p.Sink,
		metrics: p.Metrics,
		state:   QueueRunning,
		active:  make(map[string]*DetailJob),
		idle:    idle,
		wake:    make(chan struct{}, 1),
	}
}

// Enqueue adds a job for artist. handler defaults to [DetailQueue.Resolve].
//
// It returns false when a job for the same artist is already queued or running.
func (q *DetailQueue) Enqueue(artist *models.Artist, handler JobHandler) bool {
	if artist == nil || artist.ID == "" {
		return false
	}
	if handler == nil {
		handler = q.Resolve
	}

	q.mu.Lock()
	if _, ok := q.active[artist.ID]; ok {
		q.mu.Unlock()
		return false
	}
	if len(q.active) == 0 {
		q.idle = make(chan struct{})
	}
	job := &DetailJob{Artist: artist, Handler: handler, Status: JobQueued, EnqueuedAt: time.Now()}
	q.active[artist.ID] = job
	q.pending = append(q.pending, job)
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.QueueDepth.Set(float64(depth))
	q.signal()
	return true
}

// Pause stops workers from taking new jobs. Running jobs finish.
func (q *DetailQueue) Pause() {
	q.mu.Lock()
	q.state = QueuePaused
	q.mu.Unlock()
	q.logger.Debug("queue paused")
}

// Resume lets workers drain the queue again.
func (q *DetailQueue) Resume() {
	q.mu.Lock()
	q.state = QueueRunning
	q.mu.Unlock()
	q.logger.Debug("queue resumed")
	q.signal()
}

// State returns the current queue state.
func (q *DetailQueue) State() QueueState {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Stats returns counts of queued, running and finished jobs.
func (q *DetailQueue) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		State:     q.state,
		Queued:    len(q.pending),
		Running:   q.running,
		Completed: q.completed,
		Failed:    q.failed,
	}
}

// Start launches the workers. They stop when ctx is done; later calls are no-ops.
func (q *DetailQueue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.started = true

	for i := range q.workers {
		go q.work(ctx, i)
	}
	q.logger.Info("queue started", "workers", q.workers)
}

// Wait blocks until no job is queued or running, or ctx is done.
// A paused queue with queued jobs never becomes idle.
func (q *DetailQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve is the default [JobHandler]: it fetches the artist's detail and stores the most
// recent release. Artists without any release keep the placeholder.
func (q *DetailQueue) Resolve(ctx context.Context, artist *models.Artist) error {
	detail, err := q.catalog.ArtistDetail(ctx, artist.CatalogID)
	if err != nil {
		return err
	}
	if detail.RecentRelease.IsPlaceholder() {
		q.logger.Debug("artist has no releases", "artist", artist.ID)
		return nil
	}
	if _, err := q.artists.UpdateRelease(ctx, artist.ID, detail.RecentRelease); err != nil {
		return err
	}
	return nil
}

func (q *DetailQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *DetailQueue) work(ctx context.Context, n int) {
	logger := q.logger.With("worker", n)
	for {
		job := q.next()
		if job == nil {
			select {
			case <-ctx.Done():
				logger.Debug("worker stopped")
				return
			case <-q.wake:
			}
			continue
		}
		q.run(ctx, job)
	}
}

// next pops the oldest queued job, or returns nil when paused or empty.
// When jobs remain it passes the wake signal on to another worker.
func (q *DetailQueue) next() *DetailJob {
	q.mu.Lock()
	if q.state == QueuePaused || len(q.pending) == 0 {
		q.mu.Unlock()
		return nil
	}
	job := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	job.Status = JobRunning
	q.running++
	depth := len(q.pending)
	q.mu.Unlock()

	q.metrics.QueueDepth.Set(float64(depth))
	if depth > 0 {
		q.signal()
	}
	return job
}

func (q *DetailQueue) run(ctx context.Context, job *DetailJob) {
	attempts, err := WithRetry(ctx, q.logger, q.retry, func(int) error {
		return job.Handler(ctx, job.Artist)
	})
	q.finish(job, attempts, err)
}

// finish reports the outcome and then releases the job, so everything observable about a
// job has happened by the time Wait returns.
func (q *DetailQueue) finish(job *DetailJob, attempts int, err error) {
	status := JobCompleted
	if err != nil {
		status = JobFailed
	}

	q.metrics.QueueJobsTotal.WithLabelValues(status.String()).Inc()
	if err != nil && !errors.Is(err, context.Canceled) {
		q.sink.Report(observability.Event{
			Kind:     observability.KindJobExhausted,
			ArtistID: job.Artist.ID,
			Attempts: attempts,
			Err:      err,
		})
	} else if err == nil {
		q.logger.Debug("artist resolved", "artist", job.Artist.ID, "attempts", attempts)
	}
	if q.OnResult != nil {
		q.OnResult(JobResult{
			ArtistID:  job.Artist.ID,
			CatalogID: job.Artist.CatalogID,
			Status:    status,
			Attempts:  attempts,
			Err:       err,
		})
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	job.Status = status
	job.Attempts = attempts
	delete(q.active, job.Artist.ID)
	q.running--
	if status == JobCompleted {
		q.completed++
	} else {
		q.failed++
	}
	if len(q.active) == 0 {
		close(q.idle)
	}
}
