package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"shakegestures/internal/ipc"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// isShake reports whether ev is a press of the configured shake key.
// Repeats are ignored so a long detector pulse counts once.
func isShake(ev inputEvent, keyCode int) bool {
	return ev.Type == EV_KEY && int(ev.Code) == keyCode && ev.Value == evValuePress
}

// openInputDevices opens every device path for reading. On error, the files
// opened so far are closed.
func openInputDevices(paths []string) ([]*os.File, error) {
	files := make([]*os.File, 0, len(paths))
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			for _, opened := range files {
				opened.Close()
			}
			return nil, fmt.Errorf("open input device %s: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// translateInput turns raw input events into ShakeDetected events for the
// daemon loop. It returns when ctx is canceled or raw is closed.
func translateInput(ctx context.Context, raw <-chan inputEvent, out chan<- ipc.Event, keyCode int, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-raw:
			if !ok {
				return
			}
			if !isShake(ev, keyCode) {
				continue
			}
			select {
			case out <- ipc.ShakeDetected{Source: "evdev"}:
			case <-ctx.Done():
				return
			default:
				// The daemon coalesces overlapping gestures anyway.
				logger.Debug("event queue full, dropping shake", "code", ev.Code)
			}
		}
	}
}
