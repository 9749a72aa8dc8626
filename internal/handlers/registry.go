// Package handlers implements gesture.ActionHandlers on a Linux host.
//
// Actions with a native adapter (torch LED, MPRIS media key) use it; every
// other action runs the external command configured for its name. An action
// with neither returns ErrNotConfigured.
package handlers

import (
	"context"
	"errors"
	"log/slog"

	"shakegestures/internal/gesture"
)

// ErrNotConfigured is returned for actions with no adapter or command.
var ErrNotConfigured = errors.New("handlers: action not configured")

// MediaKeyer sends a media key press.
type MediaKeyer interface {
	MediaKey(ctx context.Context) error
}

// Registry dispatches handler calls to adapters and commands.
type Registry struct {
	torch    *Torch
	media    MediaKeyer
	commands *Commands
	logger   *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTorch sets the LED used by ToggleTorch.
func WithTorch(t *Torch) RegistryOption {
	return func(r *Registry) { r.torch = t }
}

// WithMedia sets the media key target.
func WithMedia(m MediaKeyer) RegistryOption {
	return func(r *Registry) { r.media = m }
}

// WithCommands sets the external command runner.
func WithCommands(c *Commands) RegistryOption {
	return func(r *Registry) { r.commands = c }
}

// NewRegistry creates a Registry.
func NewRegistry(logger *slog.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Bound reports whether the registry has an adapter or command for action.
func (r *Registry) Bound(action gesture.ActionID) bool {
	switch action {
	case gesture.ActionToggleTorch:
		if r.torch != nil {
			return true
		}
	case gesture.ActionMediaKey:
		if r.media != nil {
			return true
		}
	}
	return r.commands.Has(action.String())
}

func (r *Registry) ToggleTorch(ctx context.Context) error {
	if r.torch != nil {
		return r.torch.Toggle(ctx)
	}
	return r.run(ctx, gesture.ActionToggleTorch)
}

func (r *Registry) DispatchMediaKey(ctx context.Context) error {
	if r.media != nil {
		err := r.media.MediaKey(ctx)
		if !errors.Is(err, ErrNoPlayer) || !r.commands.Has(gesture.ActionMediaKey.String()) {
			return err
		}
		r.logger.Debug("no media player on the bus, falling back to command")
	}
	return r.run(ctx, gesture.ActionMediaKey)
}

func (r *Registry) ToggleVolumePanel(ctx context.Context) error {
	return r.run(ctx, gesture.ActionVolumePanel)
}

func (r *Registry) ClearAllNotifications(ctx context.Context) error {
	return r.run(ctx, gesture.ActionClearNotifications)
}

func (r *Registry) ToggleRinger(ctx context.Context) error {
	return r.run(ctx, gesture.ActionToggleRinger)
}

func (r *Registry) TakeScreenshot(ctx context.Context) error {
	return r.run(ctx, gesture.ActionScreenshot)
}

func (r *Registry) KillApp(ctx context.Context) error {
	return r.run(ctx, gesture.ActionKillApp)
}

func (r *Registry) run(ctx context.Context, action gesture.ActionID) error {
	name := action.String()
	if err := r.commands.Run(ctx, name); err != nil {
		return err
	}
	r.logger.Debug("action command finished", "action", name)
	return nil
}

var (
	_ gesture.ActionHandlers = (*Registry)(nil)
	_ gesture.Binder         = (*Registry)(nil)
)
