// Package relay is the per-job pipeline: load the thread, run the
// collaborator in the project directory, persist the exchange.
package relay

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
	"github.com/liamgwallace/claude-web/internal/job"
	"github.com/liamgwallace/claude-web/internal/requestid"
	"github.com/liamgwallace/claude-web/internal/runner"
	"github.com/liamgwallace/claude-web/internal/store"
)

// Collaborator runs one message through the external CLI.
type Collaborator interface {
	Run(ctx context.Context, dir, message, sessionID string) (*runner.Reply, error)
}

// Recorder receives collaborator invocation outcomes.
type Recorder interface {
	ObserveInvocation(outcome string, duration time.Duration)
}

// Invocation outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeFailed   = "failed"
	OutcomeTimeout  = "timeout"
	OutcomeMissing  = "not_found"
	OutcomeCanceled = "canceled"
)

// Relay implements job.Executor.
type Relay struct {
	threads      *store.ThreadStore
	collaborator Collaborator
	recorder     Recorder
	logger       zerolog.Logger
}

// New creates a relay.
func New(threads *store.ThreadStore, collaborator Collaborator, logger zerolog.Logger) *Relay {
	return &Relay{
		threads:      threads,
		collaborator: collaborator,
		logger:       logger.With().Str("component", "relay").Logger(),
	}
}

// SetRecorder sets the optional metrics recorder.
func (r *Relay) SetRecorder(rec Recorder) {
	r.recorder = rec
}

// Execute runs a queued job.
func (r *Relay) Execute(ctx context.Context, req job.Request) (*job.Result, error) {
	reply, err := r.Send(ctx, req.ProjectName, req.ThreadID, req.Message)
	if err != nil {
		return nil, err
	}
	return &job.Result{Response: reply.Text, Metadata: reply.Metadata}, nil
}

// Send delivers message to the thread's collaborator session and records the
// exchange. The thread's history is only modified when the collaborator
// succeeds.
func (r *Relay) Send(ctx context.Context, project, threadID, message string) (*runner.Reply, error) {
	thread, err := r.threads.Get(project, threadID)
	if err != nil {
		return nil, err
	}

	log := r.logger.With().
		Str("project", project).
		Str("thread_id", threadID).
		Str("request_id", requestid.FromContext(ctx)).
		Logger()

	session := thread.Session()
	if session != "" {
		log.Info().Str("session", session).Msg("resuming session")
	} else {
		log.Info().Msg("starting new session")
	}

	start := time.Now()
	reply, err := r.collaborator.Run(ctx, r.threads.Projects().Dir(project), message, session)
	r.observe(err, time.Since(start))
	if err != nil {
		return nil, err
	}

	if _, err := r.threads.AppendExchange(project, threadID, message, reply.Text, reply.SessionID); err != nil {
		log.Error().Err(err).Msg("failed to record exchange")
		return nil, err
	}

	newSession := reply.SessionID
	if newSession == "" {
		newSession = session
	}
	log.Info().Str("session", newSession).Msg("message relayed")
	return reply, nil
}

func (r *Relay) observe(err error, d time.Duration) {
	if r.recorder == nil {
		return
	}
	outcome := OutcomeOK
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrTimeout):
		outcome = OutcomeTimeout
	case errors.Is(err, apperrors.ErrCollaboratorNotFound):
		outcome = OutcomeMissing
	case errors.Is(err, context.Canceled):
		outcome = OutcomeCanceled
	default:
		outcome = OutcomeFailed
	}
	r.recorder.ObserveInvocation(outcome, d)
}
