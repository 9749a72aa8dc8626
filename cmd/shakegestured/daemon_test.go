package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"shakegestures/internal/gesture"
	"shakegestures/internal/ipc"
	"shakegestures/internal/power"
	"shakegestures/internal/settings"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingHandlers records how often each action ran.
type countingHandlers struct {
	torch  atomic.Int32
	media  atomic.Int32
	block  chan struct{} // when non-nil, ToggleTorch waits on it
	others atomic.Int32
}

func (h *countingHandlers) ToggleTorch(ctx context.Context) error {
	h.torch.Add(1)
	if h.block != nil {
		select {
		case <-h.block:
		case <-ctx.Done():
		}
	}
	return nil
}

func (h *countingHandlers) DispatchMediaKey(context.Context) error {
	h.media.Add(1)
	return nil
}

func (h *countingHandlers) ToggleVolumePanel(context.Context) error     { h.others.Add(1); return nil }
func (h *countingHandlers) ClearAllNotifications(context.Context) error { h.others.Add(1); return nil }
func (h *countingHandlers) ToggleRinger(context.Context) error          { h.others.Add(1); return nil }
func (h *countingHandlers) TakeScreenshot(context.Context) error        { h.others.Add(1); return nil }
func (h *countingHandlers) KillApp(context.Context) error               { h.others.Add(1); return nil }

type daemonFixture struct {
	backend    *settings.Memory
	store      *gesture.ConfigStore
	dispatcher *gesture.Dispatcher
	handlers   *countingHandlers
	events     chan ipc.Event
	cancel     context.CancelFunc
	done       chan struct{}
}

func startDaemon(t *testing.T, initial map[string]int) *daemonFixture {
	t.Helper()
	logger := quietLogger()

	f := &daemonFixture{
		backend:  settings.NewMemory(initial),
		handlers: &countingHandlers{},
		events:   make(chan ipc.Event, 8),
		done:     make(chan struct{}),
	}
	f.store = gesture.NewConfigStore(f.backend, logger)
	f.dispatcher = gesture.NewDispatcher(f.store, power.Nop{}, nil,
		gesture.WithLogger(logger),
		gesture.WithHandlers(f.handlers),
	)

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	f.store.Refresh(ctx)

	go func() {
		defer close(f.done)
		runDaemon(ctx, f.events, f.dispatcher, f.store, f.backend, logger)
	}()

	t.Cleanup(func() {
		cancel()
		select {
		case <-f.done:
		case <-time.After(2 * shutdownWait):
			t.Error("daemon did not stop")
		}
		f.backend.Close()
	})
	return f
}

func TestDaemon_ShakeRunsConfiguredAction(t *testing.T) {
	f := startDaemon(t, map[string]int{
		gesture.KeyEnabled: 1,
		gesture.KeyAction:  int(gesture.ActionToggleTorch),
	})

	f.events <- ipc.ShakeDetected{Source: "test"}

	waitUntil(t, time.Second, func() bool { return f.handlers.torch.Load() == 1 }, "torch not toggled")
	if got := f.handlers.media.Load(); got != 0 {
		t.Errorf("media key ran %d times", got)
	}
}

func TestDaemon_ShakeIgnoredWhenDisabled(t *testing.T) {
	f := startDaemon(t, map[string]int{
		gesture.KeyEnabled: 0,
		gesture.KeyAction:  int(gesture.ActionToggleTorch),
	})

	f.events <- ipc.ShakeDetected{}
	// A refresh after the shake proves the loop processed it.
	f.events <- ipc.RefreshSettings{}
	time.Sleep(50 * time.Millisecond)

	if got := f.handlers.torch.Load(); got != 0 {
		t.Errorf("torch toggled %d times while disabled", got)
	}
}

func TestDaemon_SetSettingWritesAndRefreshes(t *testing.T) {
	f := startDaemon(t, nil)

	if f.store.Current().Enabled {
		t.Fatal("expected disabled default")
	}

	f.events <- ipc.SetSetting{Key: gesture.KeyAction, Value: int(gesture.ActionMediaKey)}
	f.events <- ipc.SetSetting{Key: gesture.KeyEnabled, Value: 1}

	waitUntil(t, time.Second, func() bool {
		cfg := f.store.Current()
		return cfg.Enabled && cfg.Action == gesture.ActionMediaKey
	}, "config not refreshed after set_setting")

	v, err := f.backend.GetInt(context.Background(), gesture.KeyEnabled, 0)
	if err != nil || v != 1 {
		t.Fatalf("backend enabled = %d, %v", v, err)
	}

	f.events <- ipc.ShakeDetected{}
	waitUntil(t, time.Second, func() bool { return f.handlers.media.Load() == 1 }, "media key not dispatched")
}

func TestDaemon_SetSettingRejectsUnknownKey(t *testing.T) {
	f := startDaemon(t, nil)

	f.events <- ipc.SetSetting{Key: "shake_sensitivity", Value: 9}
	f.events <- ipc.RefreshSettings{}
	time.Sleep(50 * time.Millisecond)

	v, err := f.backend.GetInt(context.Background(), "shake_sensitivity", -1)
	if err != nil {
		t.Fatal(err)
	}
	if v != -1 {
		t.Errorf("unknown key was written: %d", v)
	}
}

func TestDaemon_RefreshPicksUpExternalChange(t *testing.T) {
	f := startDaemon(t, nil)

	// Written behind the store's back; nothing is subscribed.
	ctx := context.Background()
	if err := f.backend.Set(ctx, gesture.KeyEnabled, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.backend.Set(ctx, gesture.KeyAction, int(gesture.ActionKillApp)); err != nil {
		t.Fatal(err)
	}
	if f.store.Current().Enabled {
		t.Fatal("store changed without a refresh")
	}

	f.events <- ipc.RefreshSettings{}
	waitUntil(t, time.Second, func() bool {
		return f.store.Current().Action == gesture.ActionKillApp
	}, "refresh did not load new action")
}

func TestDaemon_OverlappingShakesCoalesce(t *testing.T) {
	f := startDaemon(t, map[string]int{
		gesture.KeyEnabled: 1,
		gesture.KeyAction:  int(gesture.ActionToggleTorch),
	})
	f.handlers.block = make(chan struct{})

	var coalesced atomic.Int32
	f.dispatcher.Observe(func(rep gesture.Report) {
		if rep.Outcome == gesture.OutcomeCoalesced {
			coalesced.Add(1)
		}
	})

	f.events <- ipc.ShakeDetected{}
	waitUntil(t, time.Second, func() bool {
		return f.dispatcher.State() == gesture.StateDispatching
	}, "first shake never started")

	f.events <- ipc.ShakeDetected{}
	f.events <- ipc.ShakeDetected{}
	waitUntil(t, time.Second, func() bool { return coalesced.Load() == 2 }, "overlapping shakes not dropped")

	close(f.handlers.block)
	waitUntil(t, time.Second, func() bool {
		return f.dispatcher.State() == gesture.StateIdle
	}, "dispatcher did not return to idle")

	if got := f.handlers.torch.Load(); got != 1 {
		t.Errorf("torch toggled %d times, want 1", got)
	}
}

func TestDaemon_StopsWhenEventsClosed(t *testing.T) {
	logger := quietLogger()
	store := gesture.NewConfigStore(settings.NewMemory(nil), logger)
	d := gesture.NewDispatcher(store, nil, nil, gesture.WithLogger(logger))

	events := make(chan ipc.Event)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runDaemon(context.Background(), events, d, store, nil, logger)
	}()

	close(events)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runDaemon did not return after events closed")
	}
}

func TestWaitInflight_Timeout(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	defer wg.Done()

	start := time.Now()
	waitInflight(&wg, 20*time.Millisecond, quietLogger())
	if time.Since(start) > time.Second {
		t.Fatal("waitInflight ignored its timeout")
	}
}

// waitUntil polls cond until it returns true or timeout expires.
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}
