package gesture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"shakegestures/internal/metrics"
)

// WakeLock is a held wake resource.
type WakeLock interface {
	Release() error
}

// WakeSource hands out wake locks that keep the device awake while held.
type WakeSource interface {
	Acquire(ctx context.Context, tag string) (WakeLock, error)
}

// Guard brackets a section that must run with the device awake.
// A Guard whose acquisition failed is a no-op. Release may be called any
// number of times; only the first call hands the lock back.
type Guard struct {
	mu     sync.Mutex
	lock   WakeLock
	tag    string
	logger *slog.Logger
}

// AcquireGuard obtains a wake lock from src. It never fails: if src is nil or
// refuses, the returned guard holds nothing and the caller proceeds best-effort.
func AcquireGuard(ctx context.Context, src WakeSource, tag string, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	g := &Guard{tag: tag, logger: logger}
	if src == nil {
		logger.Debug("no wake source configured", "tag", tag)
		return g
	}

	lock, err := src.Acquire(ctx, tag)
	if err != nil || lock == nil {
		if err == nil {
			err = fmt.Errorf("%w: source returned no lock", ErrResourceUnavailable)
		} else {
			err = fmt.Errorf("%w: %v", ErrResourceUnavailable, err)
		}
		metrics.WakeAcquireFailures.Inc()
		logger.Warn("wake guard not acquired, continuing without it", "tag", tag, "error", err)
		return g
	}

	metrics.WakeGuardsAcquired.Inc()
	g.lock = lock
	return g
}

// Held reports whether the guard still holds the wake resource.
func (g *Guard) Held() bool {
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lock != nil
}

// Release hands the wake resource back. Safe on a nil, no-op or already
// released guard.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.mu.Lock()
	lock := g.lock
	g.lock = nil
	g.mu.Unlock()

	if lock == nil {
		return
	}
	metrics.WakeGuardsReleased.Inc()
	if err := lock.Release(); err != nil {
		g.logger.Warn("wake lock release failed", "tag", g.tag, "error", err)
	}
}
