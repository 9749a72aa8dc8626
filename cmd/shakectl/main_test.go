package main

import (
	"errors"
	"testing"

	"shakegestures/internal/gesture"
	"shakegestures/internal/ipc"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		args []string
		want ipc.Event
	}{
		{[]string{"shake"}, ipc.ShakeDetected{Source: "shakectl"}},
		{[]string{"refresh"}, ipc.RefreshSettings{}},
		{[]string{"enable"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 1}},
		{[]string{"disable"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 0}},
		{[]string{"action", "screen_power"}, ipc.SetSetting{Key: gesture.KeyAction, Value: int(gesture.ActionScreenPower)}},
		{[]string{"action", "2"}, ipc.SetSetting{Key: gesture.KeyAction, Value: int(gesture.ActionMediaKey)}},
		{[]string{"set", "action", "kill_app"}, ipc.SetSetting{Key: gesture.KeyAction, Value: int(gesture.ActionKillApp)}},
		{[]string{"set", "enabled", "1"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 1}},
		{[]string{"set", gesture.KeyEnabled, "0"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 0}},
		{[]string{"set", "enabled", "true"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 1}},
		{[]string{"set", "enabled", "false"}, ipc.SetSetting{Key: gesture.KeyEnabled, Value: 0}},
	}
	for _, tt := range tests {
		got, err := parseCommand(tt.args)
		if err != nil {
			t.Errorf("parseCommand(%v): %v", tt.args, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCommand(%v) = %#v, want %#v", tt.args, got, tt.want)
		}
	}
}

func TestParseCommand_Errors(t *testing.T) {
	tests := [][]string{
		{"action"},
		{"action", "warp_drive"},
		{"action", "99"},
		{"set", "enabled"},
		{"set", "sensitivity", "3"},
		{"set", "enabled", "yes please"},
	}
	for _, args := range tests {
		if _, err := parseCommand(args); err == nil {
			t.Errorf("parseCommand(%v): expected error", args)
		}
	}

	_, err := parseCommand([]string{"volume-up"})
	if !errors.Is(err, errUnknownCommand) {
		t.Errorf("err = %v, want errUnknownCommand", err)
	}
}
