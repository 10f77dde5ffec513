// Package runner invokes the claude CLI for one message and parses its reply.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	apperrors "github.com/liamgwallace/claude-web/internal/errors"
)

// DefaultTimeout bounds a single invocation when Config.Timeout is unset.
const DefaultTimeout = 5 * time.Minute

// Config holds runner configuration.
type Config struct {
	Binary          string // explicit executable; empty = auto-detect
	Timeout         time.Duration
	SkipPermissions bool // pass --dangerously-skip-permissions
}

// Runner executes the claude CLI.
type Runner struct {
	cfg      Config
	logger   zerolog.Logger
	lookPath func(string) (string, error)
	homeDir  func() (string, error)
	system   func(goos string) []string
	goos     string
}

// New creates a new runner.
func New(cfg Config, logger zerolog.Logger) *Runner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{
		cfg:      cfg,
		logger:   logger.With().Str("component", "runner").Logger(),
		lookPath: exec.LookPath,
		homeDir:  os.UserHomeDir,
		system:   systemPaths,
		goos:     runtime.GOOS,
	}
}

// Timeout returns the per-invocation bound.
func (r *Runner) Timeout() time.Duration {
	return r.cfg.Timeout
}

// Locate finds the claude executable: the configured binary, then PATH, then
// well-known install locations.
func (r *Runner) Locate() (string, error) {
	if r.cfg.Binary != "" {
		path, err := r.lookPath(r.cfg.Binary)
		if err != nil {
			return "", fmt.Errorf("configured claude binary %q: %w", r.cfg.Binary, apperrors.ErrCollaboratorNotFound)
		}
		return path, nil
	}

	names := []string{"claude"}
	if r.goos == "windows" {
		names = []string{"claude.exe", "claude.cmd", "claude"}
	}
	for _, name := range names {
		if path, err := r.lookPath(name); err == nil {
			return path, nil
		}
	}

	for _, path := range r.wellKnownPaths() {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, nil
		}
	}
	return "", apperrors.ErrCollaboratorNotFound
}

func (r *Runner) wellKnownPaths() []string {
	home, _ := r.homeDir()
	var paths []string
	if home != "" {
		if r.goos == "windows" {
			paths = append(paths,
				filepath.Join(home, ".local", "bin", "claude.exe"),
				filepath.Join(home, "AppData", "Local", "Programs", "Claude", "claude.exe"),
			)
		} else {
			paths = append(paths,
				filepath.Join(home, ".claude", "local", "claude"),
				filepath.Join(home, ".local", "bin", "claude"),
			)
		}
	}
	return append(paths, r.system(r.goos)...)
}

// systemPaths lists install locations outside the user's home.
func systemPaths(goos string) []string {
	if goos == "windows" {
		return []string{"C:/Program Files/Claude/claude.exe", "C:/Program Files (x86)/Claude/claude.exe"}
	}
	return []string{"/usr/local/bin/claude", "/opt/homebrew/bin/claude"}
}

// Args builds the CLI arguments for one message.
func (r *Runner) Args(message, sessionID string) []string {
	var args []string
	if r.cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if sessionID != "" {
		args = append(args, "--resume", sessionID)
	}
	return append(args, "-p", message, "--output-format", "json")
}

// Run sends message to the collaborator with dir as working directory,
// resuming sessionID when set. It blocks until the process exits, the
// timeout elapses, or ctx is cancelled.
func (r *Runner) Run(ctx context.Context, dir, message, sessionID string) (*Reply, error) {
	bin, err := r.Locate()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, bin, r.Args(message, sessionID)...)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := r.logger.With().Str("dir", dir).Str("session", sessionID).Logger()
	log.Debug().Str("message", truncate(message, 80)).Msg("calling claude")

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			log.Error().Dur("timeout", r.cfg.Timeout).Msg("claude timed out")
			return nil, apperrors.Newf(apperrors.ErrTimeout, "Claude CLI command timed out")
		}
		return nil, fmt.Errorf("claude invocation cancelled: %w", ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			log.Error().
				Int("exit_code", exitErr.ExitCode()).
				Str("stderr", truncate(stderr.String(), 500)).
				Msg("claude exited with error")
			return nil, apperrors.NewProcessError(exitErr.ExitCode(), stderr.String(), err)
		}
		return nil, fmt.Errorf("start claude: %w", err)
	}

	reply := ParseReply(stdout.Bytes())
	log.Info().
		Dur("elapsed", elapsed).
		Bool("structured", reply.Structured).
		Str("new_session", reply.SessionID).
		Msg("claude response received")
	return reply, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
