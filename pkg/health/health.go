// Package health runs dependency checks in parallel and serves the
// aggregate as liveness and readiness endpoints.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Check probes a single dependency.
type Check func(ctx context.Context) ComponentHealth

type ComponentHealth struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Report is the aggregated result of all component checks.
type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

type Checker struct {
	checks map[string]Check
	mu     sync.RWMutex
	logger *slog.Logger
}

func NewChecker() *Checker {
	return &Checker{
		checks: make(map[string]Check),
		logger: slog.Default().With("component", "health"),
	}
}

// Register adds a named health check, replacing any check of that name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all registered checks concurrently. The overall status is
// the worst status among all components.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()
	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}

	var (
		g  errgroup.Group
		mu sync.Mutex
	)
	for name, check := range checks {
		g.Go(func() error {
			start := time.Now()
			result := check(ctx)
			result.Latency = time.Since(start).Round(time.Millisecond).String()
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	for name, comp := range report.Components {
		switch comp.Status {
		case StatusDown:
			report.Status = StatusDown
			c.logger.Warn("component down", "name", name, "message", comp.Message)
		case StatusDegraded:
			if report.Status == StatusUp {
				report.Status = StatusDegraded
			}
		}
	}
	return report
}

// Ping turns a connectivity probe into a Check. A failing optional
// dependency only degrades the service.
func Ping(ping func(ctx context.Context) error, optional bool) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			status := StatusDown
			if optional {
				status = StatusDegraded
			}
			return ComponentHealth{Status: status, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Disabled reports a dependency that is switched off in configuration.
func Disabled() Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: StatusUp, Message: "disabled"}
	}
}

// Database is the subset of the database handles a check needs.
type Database interface {
	DocCount() uint32
	Revision() uint64
	CorruptSegments() []error
}

// DatabaseCheck reports the served revision. Corrupt segments degrade the
// service; their documents are missing from results.
func DatabaseCheck(db Database) Check {
	return func(context.Context) ComponentHealth {
		if corrupt := db.CorruptSegments(); len(corrupt) > 0 {
			return ComponentHealth{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("%d corrupt segments, first: %v", len(corrupt), corrupt[0]),
			}
		}
		return ComponentHealth{
			Status:  StatusUp,
			Message: fmt.Sprintf("revision %d, %d documents", db.Revision(), db.DocCount()),
		}
	}
}

// LiveHandler answers liveness probes.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{
			"status": "alive",
		})
	}
}

// ReadyHandler answers readiness probes. Degraded counts as ready.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		report := c.Run(ctx)
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusDown {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(report)
	}
}
