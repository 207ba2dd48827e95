// Package health provides health check implementations for external
// dependencies and a runner that probes them concurrently.
package health

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Checker is implemented by anything that can report its own health.
type Checker interface {
	HealthCheck(ctx context.Context) error
}

// Check result values.
const (
	StatusOK            = "ok"
	StatusError         = "error"
	StatusNotConfigured = "not_configured"
)

// DefaultTimeout bounds a full readiness run.
const DefaultTimeout = 5 * time.Second

// Check names one dependency. A failing Critical check makes the service
// unready; other failures only degrade it.
type Check struct {
	Name     string
	Checker  Checker // nil reports not_configured
	Critical bool
}

// Report is the outcome of Run.
type Report struct {
	Ready    bool
	Degraded bool
	Checks   map[string]string
}

// Run probes every check concurrently under timeout.
func Run(ctx context.Context, logger *slog.Logger, timeout time.Duration, checks []Check) Report {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	report := Report{Ready: true, Checks: make(map[string]string, len(checks))}
	var mu sync.Mutex

	// Goroutines never return errors; failures are collected in the report.
	var g errgroup.Group
	for _, c := range checks {
		if c.Checker == nil {
			mu.Lock()
			report.Checks[c.Name] = StatusNotConfigured
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			err := c.Checker.HealthCheck(ctx)

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				report.Checks[c.Name] = StatusOK
				return nil
			}
			report.Checks[c.Name] = StatusError
			if c.Critical {
				report.Ready = false
			} else {
				report.Degraded = true
			}
			logger.WarnContext(ctx, "health check failed",
				"check", c.Name,
				"critical", c.Critical,
				"error", err)
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// Failing returns the names of checks that reported an error, sorted.
func (r Report) Failing() []string {
	var names []string
	for name, status := range r.Checks {
		if status == StatusError {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
