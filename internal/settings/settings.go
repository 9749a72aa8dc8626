// Package settings provides the persisted key/value stores the shake
// gesture configuration is read from, together with their change channels.
package settings

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"shakegestures/internal/gesture"
)

var (
	// ErrClosed is returned by operations on a closed backend.
	ErrClosed = errors.New("settings: backend closed")

	// ErrInvalidValue is returned when a stored value is not an integer or boolean.
	ErrInvalidValue = errors.New("settings: invalid value")
)

// Backend is a settings store the daemon can read, write and watch.
type Backend interface {
	gesture.SettingsProvider

	// Subscribe returns a channel that receives a notification whenever one of
	// keys changes (any key when none are given). Notifications coalesce: a
	// slow reader sees one pending signal, not one per write. The channel is
	// closed when ctx is done or the backend is closed.
	Subscribe(ctx context.Context, keys ...string) (<-chan struct{}, error)

	// Set stores value under key and notifies subscribers.
	Set(ctx context.Context, key string, value int) error

	Close() error
}

// Keys are the settings the gesture configuration depends on.
var Keys = []string{gesture.KeyEnabled, gesture.KeyAction}

// parseValue converts a stored value to an int. Booleans map to 0/1 so that
// an "enabled: true" entry reads the same as "enabled: 1".
func parseValue(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case uint64:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, t)
		}
		return int(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		return ParseString(t)
	default:
		return 0, fmt.Errorf("%w: %v (%T)", ErrInvalidValue, v, v)
	}
}

// ParseString reads a setting written as text: an integer, or a boolean in
// any form strconv.ParseBool accepts, mapped to 0/1.
func ParseString(s string) (int, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if b, err := strconv.ParseBool(s); err == nil {
		if b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidValue, s)
}

func matches(keys []string, key string) bool {
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// notify performs a coalescing send on a one-slot channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var (
	_ gesture.SnapshotProvider = (*Memory)(nil)
	_ gesture.SnapshotProvider = (*File)(nil)
	_ gesture.SnapshotProvider = (*Redis)(nil)

	_ Backend = (*Memory)(nil)
	_ Backend = (*File)(nil)
	_ Backend = (*Redis)(nil)
)
