// Package gesture maps shake gestures to configured device actions.
//
// A Dispatcher reads the cached Configuration from a ConfigStore, drops
// gestures that arrive while a previous one is still running, and delegates
// the configured action to an ActionHandlers implementation. Actions that must
// run with the device awake are bracketed by a Guard that is released on every
// exit path.
package gesture

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"shakegestures/internal/metrics"
)

// State is the dispatcher's coarse execution state.
type State int32

const (
	StateIdle State = iota
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Outcome describes what happened to one gesture.
type Outcome string

const (
	OutcomeDisabled  Outcome = "disabled"  // gestures off or no action configured
	OutcomeCoalesced Outcome = "coalesced" // dropped, a previous dispatch was still running
	OutcomeUnbound   Outcome = "unbound"   // no handler available for the action
	OutcomeDone      Outcome = "done"
	OutcomeFailed    Outcome = "failed"
)

// Report is the record of a single OnGesture call.
type Report struct {
	ID        uuid.UUID
	Action    ActionID
	Outcome   Outcome
	GuardHeld bool
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type handlerRef struct {
	h ActionHandlers
}

// Dispatcher routes shake gestures to action handlers. Construct one per
// process with NewDispatcher and share the pointer.
type Dispatcher struct {
	store   *ConfigStore
	wake    WakeSource
	display Display

	handlers atomic.Pointer[handlerRef]
	state    atomic.Int32

	logger *slog.Logger
	clock  clockwork.Clock

	obsMu     sync.RWMutex
	observers []func(Report)
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithClock sets the clock used for report timestamps and durations.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) {
		if clock != nil {
			d.clock = clock
		}
	}
}

// WithHandlers binds the initial action handlers.
func WithHandlers(h ActionHandlers) Option {
	return func(d *Dispatcher) {
		d.SetHandlers(h)
	}
}

// NewDispatcher creates a dispatcher. wake and display may be nil: a nil wake
// source makes every guard a no-op, a nil display leaves ActionScreenPower unbound.
func NewDispatcher(store *ConfigStore, wake WakeSource, display Display, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:   store,
		wake:    wake,
		display: display,
		logger:  slog.Default(),
		clock:   clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SetHandlers binds (or with nil, unbinds) the action handlers. Dispatches
// already in flight keep the handlers they started with.
func (d *Dispatcher) SetHandlers(h ActionHandlers) {
	if h == nil {
		d.handlers.Store(nil)
		return
	}
	d.handlers.Store(&handlerRef{h: h})
}

// Handlers returns the currently bound handlers, or nil.
func (d *Dispatcher) Handlers() ActionHandlers {
	ref := d.handlers.Load()
	if ref == nil {
		return nil
	}
	return ref.h
}

// Observe registers fn to receive every Report. fn runs on the dispatching
// goroutine and must not block. A panic in fn is recovered and logged.
func (d *Dispatcher) Observe(fn func(Report)) {
	d.obsMu.Lock()
	defer d.obsMu.Unlock()
	d.observers = append(d.observers, fn)
}

// State returns the current dispatch state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Config returns the configuration snapshot the next gesture will use.
func (d *Dispatcher) Config() Configuration {
	return d.store.Current()
}

// OnGesture handles one shake. It never fails towards the caller; the
// returned Report is informational.
func (d *Dispatcher) OnGesture(ctx context.Context) Report {
	cfg := d.store.Current()
	rep := Report{
		ID:        uuid.New(),
		Action:    cfg.Action,
		StartedAt: d.clock.Now(),
	}

	if !cfg.Enabled || cfg.Action == ActionNone {
		rep.Outcome = OutcomeDisabled
		return d.finish(rep)
	}

	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateDispatching)) {
		rep.Outcome = OutcomeCoalesced
		d.logger.Debug("shake dropped, dispatch in progress", "id", rep.ID, "action", rep.Action)
		return d.finish(rep)
	}

	func() {
		defer d.state.Store(int32(StateIdle))
		d.dispatch(ctx, &rep)
	}()

	return d.finish(rep)
}

func (d *Dispatcher) dispatch(ctx context.Context, rep *Report) {
	action := rep.Action

	run, err := d.resolve(action)
	if err != nil {
		rep.Outcome = OutcomeUnbound
		rep.Err = err
		d.logger.Info("shake ignored, no handler bound", "id", rep.ID, "action", action)
		return
	}

	if action.RequiresWake() {
		g := AcquireGuard(ctx, d.wake, "shake:"+action.String(), d.logger)
		defer g.Release()
		rep.GuardHeld = g.Held()
	}

	err = d.invoke(ctx, action, run)
	rep.Duration = d.clock.Since(rep.StartedAt)
	if err != nil {
		rep.Outcome = OutcomeFailed
		rep.Err = err
		metrics.HandlerFaults.WithLabelValues(action.String()).Inc()
		d.logger.Error("shake action failed", "id", rep.ID, "action", action, "error", err)
		return
	}

	rep.Outcome = OutcomeDone
	d.logger.Info("shake action dispatched",
		"id", rep.ID,
		"action", action,
		"guard", rep.GuardHeld,
		"duration", rep.Duration)
}

// resolve captures the function to run for action using the handlers bound
// right now.
func (d *Dispatcher) resolve(action ActionID) (func(context.Context) error, error) {
	if action == ActionScreenPower {
		if d.display == nil {
			return nil, fmt.Errorf("%w: %s: no display", ErrHandlerUnbound, action)
		}
		return d.toggleScreen, nil
	}

	fn, ok := delegated[action]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHandlerUnbound, action)
	}
	h := d.Handlers()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrHandlerUnbound, action)
	}
	if b, ok := h.(Binder); ok && !b.Bound(action) {
		return nil, fmt.Errorf("%w: %s: not configured", ErrHandlerUnbound, action)
	}
	return func(ctx context.Context) error { return fn(h, ctx) }, nil
}

// invoke runs fn and converts errors and panics into ErrHandlerFault.
func (d *Dispatcher) invoke(ctx context.Context, action ActionID, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := make([]byte, 4096)
			n := runtime.Stack(stack, false)
			d.logger.Error("shake handler panic", "action", action, "panic", r, "stack", string(stack[:n]))
			err = fmt.Errorf("%w: %s panicked: %v", ErrHandlerFault, action, r)
		}
	}()

	if err := fn(ctx); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrHandlerFault, action, err)
	}
	return nil
}

// toggleScreen sleeps an interactive display and wakes a dark one.
func (d *Dispatcher) toggleScreen(ctx context.Context) error {
	interactive, err := d.display.IsInteractive(ctx)
	if err != nil {
		return fmt.Errorf("query display state: %w", err)
	}
	if interactive {
		d.logger.Debug("display interactive, requesting sleep")
		return d.display.Sleep(ctx)
	}
	d.logger.Debug("display dark, requesting wake")
	return d.display.Wake(ctx)
}

func (d *Dispatcher) finish(rep Report) Report {
	metrics.GesturesTotal.WithLabelValues(string(rep.Outcome)).Inc()
	if rep.Outcome == OutcomeDone || rep.Outcome == OutcomeFailed {
		metrics.DispatchDuration.WithLabelValues(rep.Action.String()).Observe(rep.Duration.Seconds())
	}

	d.obsMu.RLock()
	observers := d.observers
	d.obsMu.RUnlock()
	for _, fn := range observers {
		d.notify(fn, rep)
	}
	return rep
}

// notify runs one observer. A panicking observer is logged and skipped so it
// never reaches the gesture source.
func (d *Dispatcher) notify(fn func(Report), rep Report) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("report observer panic", "id", rep.ID, "panic", r)
		}
	}()
	fn(rep)
}
