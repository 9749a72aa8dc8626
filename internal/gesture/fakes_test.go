package gesture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider is an in-memory SettingsProvider with an injectable outage.
type fakeProvider struct {
	mu     sync.Mutex
	values map[string]int
	err    error
	reads  int
}

func newFakeProvider(enabled int, action ActionID) *fakeProvider {
	return &fakeProvider{values: map[string]int{
		KeyEnabled: enabled,
		KeyAction:  int(action),
	}}
}

func (p *fakeProvider) GetInt(_ context.Context, key string, def int) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reads++
	if p.err != nil {
		return 0, p.err
	}
	v, ok := p.values[key]
	if !ok {
		return def, nil
	}
	return v, nil
}

func (p *fakeProvider) set(key string, v int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = v
}

func (p *fakeProvider) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// fakeWake counts acquisitions and releases of its locks.
type fakeWake struct {
	acquired atomic.Int32
	released atomic.Int32
	fail     bool
}

func (w *fakeWake) Acquire(context.Context, string) (WakeLock, error) {
	if w.fail {
		return nil, errors.New("wake source busy")
	}
	w.acquired.Add(1)
	return &fakeLock{w: w}, nil
}

type fakeLock struct {
	w   *fakeWake
	err error
}

func (l *fakeLock) Release() error {
	l.w.released.Add(1)
	return l.err
}

// fakeHandlers records calls per action and can fail, panic or block.
type fakeHandlers struct {
	mu    sync.Mutex
	calls map[ActionID]int

	err      error
	panicMsg string

	// block, when set, holds every call until it is closed.
	block   chan struct{}
	entered chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func newFakeHandlers() *fakeHandlers {
	return &fakeHandlers{calls: make(map[ActionID]int)}
}

func (h *fakeHandlers) count(a ActionID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[a]
}

func (h *fakeHandlers) total() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		n += c
	}
	return n
}

func (h *fakeHandlers) run(a ActionID) error {
	n := h.inFlight.Add(1)
	defer h.inFlight.Add(-1)
	for {
		m := h.maxInFlight.Load()
		if n <= m || h.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	h.mu.Lock()
	h.calls[a]++
	h.mu.Unlock()

	if h.entered != nil {
		select {
		case h.entered <- struct{}{}:
		default:
		}
	}
	if h.block != nil {
		<-h.block
	}
	if h.panicMsg != "" {
		panic(h.panicMsg)
	}
	return h.err
}

func (h *fakeHandlers) ToggleTorch(context.Context) error { return h.run(ActionToggleTorch) }
func (h *fakeHandlers) DispatchMediaKey(context.Context) error {
	return h.run(ActionMediaKey)
}
func (h *fakeHandlers) ToggleVolumePanel(context.Context) error {
	return h.run(ActionVolumePanel)
}
func (h *fakeHandlers) ClearAllNotifications(context.Context) error {
	return h.run(ActionClearNotifications)
}
func (h *fakeHandlers) ToggleRinger(context.Context) error   { return h.run(ActionToggleRinger) }
func (h *fakeHandlers) TakeScreenshot(context.Context) error { return h.run(ActionScreenshot) }
func (h *fakeHandlers) KillApp(context.Context) error        { return h.run(ActionKillApp) }

// partialHandlers serves only the actions listed in bound.
type partialHandlers struct {
	*fakeHandlers
	bound map[ActionID]bool
}

func (h partialHandlers) Bound(a ActionID) bool { return h.bound[a] }

// fakeDisplay tracks interactive state and wake/sleep requests.
type fakeDisplay struct {
	mu          sync.Mutex
	interactive bool
	wakes       int
	sleeps      int
	queryErr    error
}

func (d *fakeDisplay) IsInteractive(context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queryErr != nil {
		return false, d.queryErr
	}
	return d.interactive, nil
}

func (d *fakeDisplay) Sleep(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sleeps++
	d.interactive = false
	return nil
}

func (d *fakeDisplay) Wake(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wakes++
	d.interactive = true
	return nil
}
