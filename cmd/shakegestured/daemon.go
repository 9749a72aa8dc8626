package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"shakegestures/internal/gesture"
	"shakegestures/internal/ipc"
	"shakegestures/internal/settings"
)

// runDaemon is the central event loop. It consumes events from the input
// reader and the IPC server:
//   - ShakeDetected starts a dispatch in its own goroutine so the loop stays
//     responsive; the dispatcher drops gestures that overlap a running one.
//   - RefreshSettings re-reads the settings into the store.
//   - SetSetting writes through the backend and refreshes.
//
// It exits when ctx is canceled or events is closed, then waits up to
// shutdownWait for dispatches still in flight.
func runDaemon(
	ctx context.Context,
	events <-chan ipc.Event,
	dispatcher *gesture.Dispatcher,
	store *gesture.ConfigStore,
	backend settings.Backend,
	logger *slog.Logger,
) {
	var inflight sync.WaitGroup
	defer waitInflight(&inflight, shutdownWait, logger)

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}

			switch e := ev.(type) {
			case ipc.ShakeDetected:
				logger.Debug("shake detected", "source", e.Source)
				inflight.Add(1)
				go func() {
					defer inflight.Done()
					dispatcher.OnGesture(ctx)
				}()

			case ipc.RefreshSettings:
				cfg := store.Refresh(ctx)
				logger.Info("settings refreshed", "enabled", cfg.Enabled, "action", cfg.Action)

			case ipc.SetSetting:
				if err := applySetting(ctx, backend, e); err != nil {
					logger.Warn("set setting failed", "key", e.Key, "value", e.Value, "error", err)
					continue
				}
				cfg := store.Refresh(ctx)
				logger.Info("setting updated", "key", e.Key, "value", e.Value, "enabled", cfg.Enabled, "action", cfg.Action)

			default:
				logger.Warn("unknown event", "type", fmt.Sprintf("%T", ev))
			}
		}
	}
}

func applySetting(ctx context.Context, backend settings.Backend, e ipc.SetSetting) error {
	if !isSettingKey(e.Key) {
		return fmt.Errorf("unknown setting %q", e.Key)
	}
	if backend == nil {
		return fmt.Errorf("no settings backend")
	}
	return backend.Set(ctx, e.Key, e.Value)
}

func waitInflight(wg *sync.WaitGroup, timeout time.Duration, logger *slog.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		logger.Warn("dispatch still running at shutdown", "waited", timeout)
	}
}
