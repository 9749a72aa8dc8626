package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"shakegestures/internal/gesture"
	"shakegestures/internal/ipc"
	"shakegestures/internal/settings"
)

// ============================================================================
// shakectl - Command-line IPC client for shakegestured
// ============================================================================
//
// Usage:
//   shakectl shake
//   shakectl refresh
//   shakectl enable | disable
//   shakectl action toggle_torch
//   shakectl set shake_gestures_action 4
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/shakegestured.sock)
// ============================================================================

const defaultSocket = "/tmp/shakegestured.sock"

const sendTimeout = 3 * time.Second

func main() {
	socketPath := defaultSocket
	if env := os.Getenv("SHAKEGESTURED_SOCKET"); env != "" {
		socketPath = env
	}

	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	if args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printUsage()
		os.Exit(0)
	}

	ev, err := parseCommand(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUnknownCommand) {
			printUsage()
		}
		os.Exit(1)
	}

	if err := ipc.SendEvent(socketPath, ev, sendTimeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("ok")
}

var errUnknownCommand = errors.New("unknown command")

// settingAliases maps short names accepted by "set" to setting keys.
var settingAliases = map[string]string{
	"enabled":          gesture.KeyEnabled,
	"action":           gesture.KeyAction,
	gesture.KeyEnabled: gesture.KeyEnabled,
	gesture.KeyAction:  gesture.KeyAction,
}

// parseCommand turns command-line arguments into the IPC event to send.
func parseCommand(args []string) (ipc.Event, error) {
	switch args[0] {
	case "shake":
		return ipc.ShakeDetected{Source: "shakectl"}, nil

	case "refresh":
		return ipc.RefreshSettings{}, nil

	case "enable":
		return ipc.SetSetting{Key: gesture.KeyEnabled, Value: 1}, nil

	case "disable":
		return ipc.SetSetting{Key: gesture.KeyEnabled, Value: 0}, nil

	case "action":
		if len(args) < 2 {
			return nil, errors.New("action requires a name or number")
		}
		a, err := gesture.ParseAction(args[1])
		if err != nil {
			return nil, err
		}
		return ipc.SetSetting{Key: gesture.KeyAction, Value: int(a)}, nil

	case "set":
		if len(args) < 3 {
			return nil, errors.New("set requires a key and a value")
		}
		key, ok := settingAliases[args[1]]
		if !ok {
			return nil, fmt.Errorf("unknown setting: %s", args[1])
		}
		value, err := parseSettingValue(key, args[2])
		if err != nil {
			return nil, err
		}
		return ipc.SetSetting{Key: key, Value: value}, nil

	default:
		return nil, fmt.Errorf("%w: %s", errUnknownCommand, args[0])
	}
}

// parseSettingValue accepts integers or booleans for any key and action
// names for the action key.
func parseSettingValue(key, s string) (int, error) {
	if key == gesture.KeyAction {
		a, err := gesture.ParseAction(s)
		if err != nil {
			return 0, err
		}
		return int(a), nil
	}
	v, err := settings.ParseString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return v, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `shakectl - Control the shakegestured daemon via IPC

Usage:
  shakectl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: %s, or $SHAKEGESTURED_SOCKET)

Commands:
  shake                   Simulate a shake gesture
  refresh                 Re-read gesture settings from the backend
  enable                  Turn shake gestures on
  disable                 Turn shake gestures off
  action <name|id>        Select the shake action
  set <key> <value>       Write a setting (keys: enabled, action, or full names)
  help, -h, --help        Show this help message

Actions:
`, defaultSocket)
	for _, a := range gesture.Actions() {
		fmt.Fprintf(os.Stderr, "  %d  %s\n", int(a), a)
	}
	fmt.Fprintf(os.Stderr, `
Examples:
  shakectl action toggle_torch
  shakectl enable
  shakectl -socket /run/shakegestured.sock shake
`)
}
