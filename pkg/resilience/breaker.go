package resilience

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned instead of calling a dependency that keeps
// failing.
var ErrBreakerOpen = errors.New("breaker open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

type BreakerConfig struct {
	// Failures is the number of consecutive failures that opens the breaker.
	Failures int
	// Cooldown is how long the breaker stays open before one probe call is
	// let through.
	Cooldown time.Duration
}

// Breaker stops calls to a dependency after consecutive failures and
// lets a single probe through once the cooldown has passed. A successful
// probe closes it again.
type Breaker struct {
	name     string
	cfg      BreakerConfig
	now      func() time.Time
	logger   *slog.Logger
	mu       sync.Mutex
	state    BreakerState
	failures int
	openedAt time.Time
	probing  bool
}

func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.Failures <= 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	return &Breaker{
		name:   name,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("component", "breaker", "name", name),
	}
}

// Do calls fn unless the breaker is open. Errors matching ignore (for
// example a cache miss) count as successes.
func (b *Breaker) Do(fn func() error, ignore func(error) bool) error {
	if err := b.acquire(); err != nil {
		return err
	}
	err := fn()
	b.release(err == nil || (ignore != nil && ignore(err)))
	return err
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerOpen:
		if wait := b.cfg.Cooldown - b.now().Sub(b.openedAt); wait > 0 {
			return fmt.Errorf("%w: %s, retry in %v", ErrBreakerOpen, b.name, wait.Round(time.Millisecond))
		}
		b.state = BreakerHalfOpen
		b.probing = true
		b.logger.Info("breaker half-open, probing")
	case BreakerHalfOpen:
		if b.probing {
			return fmt.Errorf("%w: %s, probe in flight", ErrBreakerOpen, b.name)
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) release(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	if ok {
		if b.state != BreakerClosed {
			b.logger.Info("breaker closed")
		}
		b.state = BreakerClosed
		b.failures = 0
		return
	}
	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.cfg.Failures {
		if b.state != BreakerOpen {
			b.logger.Warn("breaker opened", "consecutive_failures", b.failures)
		}
		b.state = BreakerOpen
		b.openedAt = b.now()
	}
}
