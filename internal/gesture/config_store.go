package gesture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"shakegestures/internal/metrics"
)

// Persisted setting keys.
const (
	KeyEnabled = "shake_gestures_enabled"
	KeyAction  = "shake_gestures_action"
)

// Configuration is an immutable snapshot of the two shake settings.
// The zero value is the fail-safe default: disabled, no action.
type Configuration struct {
	Enabled bool     `json:"enabled"`
	Action  ActionID `json:"action"`
}

// SettingsProvider reads integer settings from an external key-value store.
// def is returned when the key is absent; err is reserved for an unreachable store.
type SettingsProvider interface {
	GetInt(ctx context.Context, key string, def int) (int, error)
}

// SnapshotProvider is implemented by providers that can read several keys
// from one consistent view of the store. Refresh prefers it over GetInt so
// the enabled flag and action always come from the same write.
type SnapshotProvider interface {
	GetInts(ctx context.Context, defaults map[string]int) (map[string]int, error)
}

// ConfigStore caches the current Configuration. Current never performs I/O;
// Refresh reads the provider and swaps the snapshot in one step.
type ConfigStore struct {
	provider SettingsProvider
	logger   *slog.Logger

	// refreshMu orders refreshes so a slow earlier read cannot overwrite a later one.
	refreshMu sync.Mutex
	snap      atomic.Pointer[Configuration]

	onChange func(old, cur Configuration)
}

// NewConfigStore returns a store holding the default snapshot. Call Refresh
// (or Watch) to load the persisted values.
func NewConfigStore(provider SettingsProvider, logger *slog.Logger) *ConfigStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &ConfigStore{provider: provider, logger: logger}
	s.snap.Store(&Configuration{})
	return s
}

// OnChange registers fn to run after a refresh that changed the snapshot.
// Must be called before the store is shared.
func (s *ConfigStore) OnChange(fn func(old, cur Configuration)) {
	s.onChange = fn
}

// Current returns the latest snapshot.
func (s *ConfigStore) Current() Configuration {
	return *s.snap.Load()
}

// Refresh reloads both settings. On failure the previous snapshot is kept and
// returned.
func (s *ConfigStore) Refresh(ctx context.Context) Configuration {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	prev := s.Current()

	next, err := s.read(ctx)
	if err != nil {
		metrics.ConfigRefreshTotal.WithLabelValues("error").Inc()
		s.logger.Warn("config refresh failed, keeping last snapshot",
			"error", err,
			"enabled", prev.Enabled,
			"action", prev.Action)
		return prev
	}

	s.snap.Store(&next)
	metrics.ConfigRefreshTotal.WithLabelValues("ok").Inc()
	metrics.ConfigEnabled.Set(boolGauge(next.Enabled))
	metrics.ConfigAction.Set(float64(next.Action))

	if next != prev {
		s.logger.Info("shake config changed", "enabled", next.Enabled, "action", next.Action)
		if s.onChange != nil {
			s.onChange(prev, next)
		}
	}
	return next
}

func (s *ConfigStore) read(ctx context.Context) (Configuration, error) {
	if s.provider == nil {
		return Configuration{}, fmt.Errorf("%w: no provider", ErrConfigUnavailable)
	}
	if sp, ok := s.provider.(SnapshotProvider); ok {
		values, err := sp.GetInts(ctx, map[string]int{KeyEnabled: 0, KeyAction: int(ActionNone)})
		if err != nil {
			return Configuration{}, fmt.Errorf("%w: %v", ErrConfigUnavailable, err)
		}
		return Configuration{
			Enabled: values[KeyEnabled] == 1,
			Action:  ActionFromInt(values[KeyAction]),
		}, nil
	}

	enabled, err := s.provider.GetInt(ctx, KeyEnabled, 0)
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: read %s: %v", ErrConfigUnavailable, KeyEnabled, err)
	}
	action, err := s.provider.GetInt(ctx, KeyAction, int(ActionNone))
	if err != nil {
		return Configuration{}, fmt.Errorf("%w: read %s: %v", ErrConfigUnavailable, KeyAction, err)
	}
	return Configuration{
		Enabled: enabled == 1,
		Action:  ActionFromInt(action),
	}, nil
}

// Watch refreshes once, then again for every notification on changes.
// It returns when ctx is canceled or changes is closed.
func (s *ConfigStore) Watch(ctx context.Context, changes <-chan struct{}) {
	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				s.logger.Debug("settings change channel closed")
				return
			}
			s.Refresh(ctx)
		}
	}
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
