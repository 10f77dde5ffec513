// Package health runs the dependency checks behind /health and /readyz.
package health

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Status represents the health status of a dependency.
type Status string

const (
	StatusOK       Status = "ok"
	StatusDegraded Status = "degraded"
	StatusDown     Status = "down"
)

// checkTimeout bounds a single check.
const checkTimeout = 5 * time.Second

// CheckFunc is a function that checks a dependency's health.
type CheckFunc func(ctx context.Context) Status

// Report is the result of one RunAll pass.
type Report struct {
	Ready  bool              `json:"ready"`
	Checks map[string]Status `json:"checks"`
}

// Checker manages health checks for all dependencies.
type Checker struct {
	mu     sync.RWMutex
	checks map[string]CheckFunc
	cache  map[string]Status
	logger zerolog.Logger
}

// NewChecker creates a new health checker.
func NewChecker(logger zerolog.Logger) *Checker {
	return &Checker{
		checks: make(map[string]CheckFunc),
		cache:  make(map[string]Status),
		logger: logger.With().Str("component", "health").Logger(),
	}
}

// Register adds a named health check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Names returns the registered check names in order.
func (c *Checker) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.checks))
	for n := range c.checks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunAll executes all health checks concurrently and caches results.
func (c *Checker) RunAll(ctx context.Context) map[string]Status {
	c.mu.RLock()
	checks := make(map[string]CheckFunc, len(c.checks))
	for k, v := range c.checks {
		checks[k] = v
	}
	c.mu.RUnlock()

	results := make(map[string]Status, len(checks))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for name, fn := range checks {
		wg.Add(1)
		go func(n string, f CheckFunc) {
			defer wg.Done()
			checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			s := f(checkCtx)
			if s != StatusOK {
				c.logger.Warn().Str("check", n).Str("status", string(s)).Msg("health check not ok")
			}
			mu.Lock()
			results[n] = s
			mu.Unlock()
		}(name, fn)
	}

	wg.Wait()

	c.mu.Lock()
	c.cache = results
	c.mu.Unlock()

	return results
}

// Last returns the results of the most recent RunAll.
func (c *Checker) Last() map[string]Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Status, len(c.cache))
	for k, v := range c.cache {
		out[k] = v
	}
	return out
}

// Report runs every check and reports readiness. Degraded checks do
// not make the service unready.
func (c *Checker) Report(ctx context.Context) Report {
	results := c.RunAll(ctx)
	ready := true
	for _, s := range results {
		if s == StatusDown {
			ready = false
			break
		}
	}
	return Report{Ready: ready, Checks: results}
}

// IsReady returns true if no check is down.
func (c *Checker) IsReady(ctx context.Context) bool {
	return c.Report(ctx).Ready
}

// DataDirCheck reports down when root is missing or not a directory.
func DataDirCheck(root string) CheckFunc {
	return func(ctx context.Context) Status {
		info, err := os.Stat(root)
		if err != nil || !info.IsDir() {
			return StatusDown
		}
		return StatusOK
	}
}

// CollaboratorCheck reports degraded when locate fails. The API keeps
// serving without the claude CLI; only message jobs fail.
func CollaboratorCheck(locate func() (string, error)) CheckFunc {
	return func(ctx context.Context) Status {
		if _, err := locate(); err != nil {
			return StatusDegraded
		}
		return StatusOK
	}
}
