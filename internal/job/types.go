package job

import (
	"context"
	"sync"
	"time"

	"github.com/goccy/go-json"
)

// Status represents the lifecycle state of a job.
type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
)

// Terminal returns true for states a job never leaves.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Request is what the executor receives for one job.
type Request struct {
	JobID       string
	ProjectName string
	ThreadID    string
	Message     string
	RequestID   string
}

// Result is the outcome of a successful job.
type Result struct {
	Response string
	Metadata json.RawMessage
}

// Executor runs the work behind a job.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, req Request) (*Result, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Recorder receives job lifecycle measurements.
type Recorder interface {
	JobSubmitted()
	JobFinished(status string, duration time.Duration)
	SetQueueDepth(depth int)
}

// SubmitRequest is the input to Engine.Submit.
type SubmitRequest struct {
	ProjectName string
	ThreadID    string
	Message     string
	RequestID   string
}

// Job is the mutable in-memory record of one submission.
type Job struct {
	mu          sync.RWMutex
	id          string
	projectName string
	threadID    string
	message     string
	requestID   string
	status      Status
	response    string
	metadata    json.RawMessage
	err         string
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
}

// Snapshot is an immutable copy of a job, shaped for API responses.
type Snapshot struct {
	JobID       string          `json:"job_id"`
	Status      Status          `json:"status"`
	ProjectName string          `json:"project_name"`
	ThreadID    string          `json:"thread_id"`
	Response    *string         `json:"response,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	Error       string          `json:"error,omitempty"`
	RequestID   string          `json:"request_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the job that is safe to read without holding locks.
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := Snapshot{
		JobID:       j.id,
		Status:      j.status,
		ProjectName: j.projectName,
		ThreadID:    j.threadID,
		Metadata:    j.metadata,
		Error:       j.err,
		RequestID:   j.requestID,
		CreatedAt:   j.createdAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
	}
	if j.status == StatusDone {
		resp := j.response
		snap.Response = &resp
	}
	return snap
}

func (j *Job) request() Request {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return Request{
		JobID:       j.id,
		ProjectName: j.projectName,
		ThreadID:    j.threadID,
		Message:     j.message,
		RequestID:   j.requestID,
	}
}

// Query filters Engine.List.
type Query struct {
	Status      string `query:"status"`
	ProjectName string `query:"project"`
	ThreadID    string `query:"thread"`
	Limit       int    `query:"limit"`
	Offset      int    `query:"offset"`
}

// Stats summarizes the engine's jobs.
type Stats struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	QueueDepth    int            `json:"queue_depth"`
	AvgDurationMs int64          `json:"avg_duration_ms"`
}
