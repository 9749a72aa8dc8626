package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"shakegestures/internal/ipc"
)

func TestIsShake(t *testing.T) {
	tests := []struct {
		name string
		ev   inputEvent
		want bool
	}{
		{"press", inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValuePress}, true},
		{"release", inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValueRelease}, false},
		{"repeat", inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValueRepeat}, false},
		{"other key", inputEvent{Type: EV_KEY, Code: 115, Value: evValuePress}, false},
		{"sync event", inputEvent{Type: 0x00, Code: KEY_PROG1, Value: evValuePress}, false},
	}
	for _, tt := range tests {
		if got := isShake(tt.ev, KEY_PROG1); got != tt.want {
			t.Errorf("%s: isShake = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestTranslateInput(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw := make(chan inputEvent, 8)
	out := make(chan ipc.Event, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		translateInput(ctx, raw, out, KEY_PROG1, quietLogger())
	}()

	raw <- inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValuePress}
	raw <- inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValueRelease}
	raw <- inputEvent{Type: EV_KEY, Code: 114, Value: evValuePress}
	raw <- inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValuePress}
	close(raw)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("translateInput did not return after raw closed")
	}

	if len(out) != 2 {
		t.Fatalf("got %d shake events, want 2", len(out))
	}
	if ev := <-out; ev != (ipc.ShakeDetected{Source: "evdev"}) {
		t.Errorf("event = %#v", ev)
	}
}

func TestTranslateInput_DropsWhenQueueFull(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	raw := make(chan inputEvent, 4)
	out := make(chan ipc.Event, 1)
	out <- ipc.RefreshSettings{}

	done := make(chan struct{})
	go func() {
		defer close(done)
		translateInput(ctx, raw, out, KEY_PROG1, quietLogger())
	}()

	raw <- inputEvent{Type: EV_KEY, Code: KEY_PROG1, Value: evValuePress}
	close(raw)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("translateInput blocked on a full queue")
	}
}

func TestOpenInputDevices_ClosesOnError(t *testing.T) {
	dir := t.TempDir()
	ok := filepath.Join(dir, "event0")
	if err := os.WriteFile(ok, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := openInputDevices([]string{ok, filepath.Join(dir, "missing")}); err == nil {
		t.Fatal("expected error for missing device")
	}

	files, err := openInputDevices([]string{ok})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("got %d files", len(files))
	}
	files[0].Close()
}
