package gesture

import (
	"fmt"
	"strconv"
	"strings"
)

// ActionID selects what a shake does. The numeric values are the ones persisted
// under KeyAction and must not be renumbered.
type ActionID int

const (
	ActionNone ActionID = iota
	ActionToggleTorch
	ActionMediaKey
	ActionVolumePanel
	ActionScreenPower
	ActionClearNotifications
	ActionToggleRinger
	ActionScreenshot
	ActionKillApp
)

var actionNames = [...]string{
	ActionNone:               "none",
	ActionToggleTorch:        "toggle_torch",
	ActionMediaKey:           "media_key",
	ActionVolumePanel:        "volume_panel",
	ActionScreenPower:        "screen_power",
	ActionClearNotifications: "clear_notifications",
	ActionToggleRinger:       "toggle_ringer",
	ActionScreenshot:         "screenshot",
	ActionKillApp:            "kill_app",
}

// wakeRequired is the fixed policy of actions that must run with the device held awake.
var wakeRequired = map[ActionID]bool{
	ActionToggleTorch:  true,
	ActionScreenPower:  true,
	ActionToggleRinger: true,
}

// ActionFromInt maps a stored integer to an ActionID. Anything outside the
// known range is ActionNone.
func ActionFromInt(v int) ActionID {
	a := ActionID(v)
	if !a.Valid() {
		return ActionNone
	}
	return a
}

// ParseAction accepts either a snake_case action name or its decimal value.
func ParseAction(s string) (ActionID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		a := ActionID(n)
		if !a.Valid() {
			return ActionNone, fmt.Errorf("action %d out of range 0-%d", n, len(actionNames)-1)
		}
		return a, nil
	}
	for i, name := range actionNames {
		if name == s {
			return ActionID(i), nil
		}
	}
	return ActionNone, fmt.Errorf("unknown action %q", s)
}

// Valid reports whether a is one of the defined actions.
func (a ActionID) Valid() bool {
	return a >= ActionNone && int(a) < len(actionNames)
}

// RequiresWake reports whether a must execute under a wake guard.
func (a ActionID) RequiresWake() bool {
	return wakeRequired[a]
}

func (a ActionID) String() string {
	if !a.Valid() {
		return "unknown(" + strconv.Itoa(int(a)) + ")"
	}
	return actionNames[a]
}

// MarshalText renders the action by name.
func (a ActionID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText accepts the forms understood by ParseAction.
func (a *ActionID) UnmarshalText(b []byte) error {
	v, err := ParseAction(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Actions returns every defined action in numeric order.
func Actions() []ActionID {
	out := make([]ActionID, len(actionNames))
	for i := range actionNames {
		out[i] = ActionID(i)
	}
	return out
}
