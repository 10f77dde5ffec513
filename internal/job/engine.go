// Package job runs collaborator relays asynchronously, one at a time, and
// keeps their status in memory for polling.
package job

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
	"github.com/liamgwallace/claude-web/internal/requestid"
)

// DefaultQueueSize is used when Config.QueueSize is unset.
const DefaultQueueSize = 1000

// Config holds configuration for the engine.
type Config struct {
	QueueSize int
	Retention int // terminal jobs kept; 0 keeps all
}

// Engine owns the job table, the bounded queue and the single worker that
// drains it. Jobs are executed strictly in submission order.
type Engine struct {
	jobs     sync.Map // id → *Job
	jobList  []*Job   // submission order
	listMu   sync.RWMutex
	queue    chan *Job
	executor Executor
	recorder Recorder
	retained *retention
	now      func() time.Time
	logger   zerolog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	running  atomic.Bool
}

// NewEngine creates a new engine.
func NewEngine(cfg Config, executor Executor, logger zerolog.Logger) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	e := &Engine{
		queue:    make(chan *Job, cfg.QueueSize),
		executor: executor,
		now:      time.Now,
		logger:   logger.With().Str("component", "job_engine").Logger(),
	}
	if cfg.Retention > 0 {
		e.retained = newRetention(cfg.Retention)
	}
	return e
}

// SetRecorder sets the optional metrics recorder.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// Start launches the worker.
func (e *Engine) Start(ctx context.Context) {
	if e.running.Swap(true) {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	e.wg.Add(1)
	go e.worker(ctx)

	e.logger.Info().Int("queue_size", cap(e.queue)).Msg("job engine started")
}

// Stop stops the worker loop and waits for it to exit. A job that is already
// running is allowed to finish.
func (e *Engine) Stop() {
	if !e.running.Swap(false) {
		return
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	e.logger.Info().Int("abandoned", len(e.queue)).Msg("job engine stopped")
}

// Submit records a queued job and enqueues it without blocking. When the
// queue is full the job is recorded as failed and ErrQueueFull is returned
// along with its snapshot.
func (e *Engine) Submit(req SubmitRequest) (*Snapshot, error) {
	created := e.now().UTC()
	job := &Job{
		projectName: req.ProjectName,
		threadID:    req.ThreadID,
		message:     req.Message,
		requestID:   req.RequestID,
		status:      StatusQueued,
		createdAt:   created,
	}
	e.store(job, fmt.Sprintf("job_%d_%s_%s", created.UnixMilli(), req.ProjectName, req.ThreadID))

	if e.recorder != nil {
		e.recorder.JobSubmitted()
	}

	// Snapshot before enqueueing; the worker may pick the job up immediately.
	snap := job.Snapshot()

	select {
	case e.queue <- job:
		e.logger.Info().
			Str("job_id", job.id).
			Str("project", req.ProjectName).
			Str("thread_id", req.ThreadID).
			Str("request_id", req.RequestID).
			Msg("job enqueued")
	default:
		e.finish(job, nil, apperrors.ErrQueueFull)
		snap = job.Snapshot()
		e.logger.Warn().Str("job_id", job.id).Msg("job queue is full")
		return &snap, apperrors.ErrQueueFull
	}

	e.recordDepth()
	return &snap, nil
}

// store assigns the job a unique id derived from base and registers it.
func (e *Engine) store(job *Job, base string) {
	id := base
	for n := 1; ; n++ {
		job.id = id
		if _, loaded := e.jobs.LoadOrStore(id, job); !loaded {
			break
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
	e.listMu.Lock()
	e.jobList = append(e.jobList, job)
	e.listMu.Unlock()
}

// Get retrieves a job by ID. Returns a snapshot (copy) safe for concurrent use.
func (e *Engine) Get(id string) (*Snapshot, bool) {
	val, ok := e.jobs.Load(id)
	if !ok {
		return nil, false
	}
	snap := val.(*Job).Snapshot()
	return &snap, true
}

// List returns jobs matching q, newest first, and the total match count.
func (e *Engine) List(q Query) ([]Snapshot, int) {
	e.listMu.RLock()
	defer e.listMu.RUnlock()

	var filtered []*Job
	for i := len(e.jobList) - 1; i >= 0; i-- {
		j := e.jobList[i]
		j.mu.RLock()
		match := (q.Status == "" || string(j.status) == q.Status) &&
			(q.ProjectName == "" || j.projectName == q.ProjectName) &&
			(q.ThreadID == "" || j.threadID == q.ThreadID)
		j.mu.RUnlock()
		if match {
			filtered = append(filtered, j)
		}
	}
	total := len(filtered)

	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Snapshot{}, total
	}
	end := offset + limit
	if end > total {
		end = total
	}

	result := make([]Snapshot, 0, end-offset)
	for _, j := range filtered[offset:end] {
		result = append(result, j.Snapshot())
	}
	return result, total
}

// Stats returns summary statistics.
func (e *Engine) Stats() Stats {
	e.listMu.RLock()
	defer e.listMu.RUnlock()

	stats := Stats{
		Total:      len(e.jobList),
		ByStatus:   make(map[string]int),
		QueueDepth: len(e.queue),
	}

	var totalMs, completed int64
	for _, j := range e.jobList {
		j.mu.RLock()
		stats.ByStatus[string(j.status)]++
		if j.status.Terminal() && j.startedAt != nil && j.completedAt != nil {
			totalMs += j.completedAt.Sub(*j.startedAt).Milliseconds()
			completed++
		}
		j.mu.RUnlock()
	}
	if completed > 0 {
		stats.AvgDurationMs = totalMs / completed
	}
	return stats
}

func (e *Engine) worker(ctx context.Context) {
	defer e.wg.Done()
	e.logger.Debug().Msg("worker started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Debug().Msg("worker stopping")
			return
		case job := <-e.queue:
			e.recordDepth()
			e.execute(ctx, job)
		}
	}
}

func (e *Engine) execute(ctx context.Context, job *Job) {
	started := e.now().UTC()
	job.mu.Lock()
	job.status = StatusRunning
	job.startedAt = &started
	job.mu.Unlock()

	req := job.request()
	log := e.logger.With().
		Str("job_id", req.JobID).
		Str("project", req.ProjectName).
		Str("thread_id", req.ThreadID).
		Str("request_id", req.RequestID).
		Logger()
	log.Info().Msg("executing job")

	// Shutdown stops the loop, not the invocation in progress.
	jobCtx := requestid.WithRequestID(context.WithoutCancel(ctx), req.RequestID)

	result, err := e.run(jobCtx, req)
	e.finish(job, result, err)

	if err != nil {
		log.Error().Err(err).Msg("job failed")
		return
	}
	log.Info().Msg("job completed")
}

// run calls the executor, converting a panic into an error so the worker
// keeps going.
func (e *Engine) run(ctx context.Context, req Request) (result *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("job panicked: %v", r)
		}
	}()
	return e.executor.Execute(ctx, req)
}

// finish moves a job to its terminal state.
func (e *Engine) finish(job *Job, result *Result, err error) {
	completed := e.now().UTC()

	job.mu.Lock()
	if job.status.Terminal() {
		job.mu.Unlock()
		return
	}
	job.completedAt = &completed
	if err != nil {
		job.status = StatusFailed
		job.err = err.Error()
	} else {
		job.status = StatusDone
		if result != nil {
			job.response = result.Response
			job.metadata = result.Metadata
		}
	}
	status := job.status
	var duration time.Duration
	if job.startedAt != nil {
		duration = completed.Sub(*job.startedAt)
	}
	id := job.id
	job.mu.Unlock()

	if e.recorder != nil {
		e.recorder.JobFinished(string(status), duration)
	}
	e.retain(id)
}

// retain enforces the retention window over terminal jobs.
func (e *Engine) retain(id string) {
	if e.retained == nil {
		return
	}
	e.listMu.Lock()
	defer e.listMu.Unlock()

	evicted, ok := e.retained.add(id)
	if !ok {
		return
	}
	e.jobs.Delete(evicted)
	for i, j := range e.jobList {
		if j.id == evicted {
			e.jobList = append(e.jobList[:i], e.jobList[i+1:]...)
			break
		}
	}
}

func (e *Engine) recordDepth() {
	if e.recorder != nil {
		e.recorder.SetQueueDepth(len(e.queue))
	}
}
