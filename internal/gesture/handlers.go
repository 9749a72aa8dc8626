package gesture

import "context"

// ActionHandlers is the capability object the dispatcher delegates to.
// Each method performs one side effect and should return promptly.
type ActionHandlers interface {
	ToggleTorch(ctx context.Context) error
	DispatchMediaKey(ctx context.Context) error
	ToggleVolumePanel(ctx context.Context) error
	ClearAllNotifications(ctx context.Context) error
	ToggleRinger(ctx context.Context) error
	TakeScreenshot(ctx context.Context) error
	KillApp(ctx context.Context) error
}

// Binder is implemented by ActionHandlers that serve only some actions.
// The dispatcher treats an action whose Bound reports false as unbound.
type Binder interface {
	Bound(action ActionID) bool
}

// Display is the interactive-state control used for ActionScreenPower.
type Display interface {
	IsInteractive(ctx context.Context) (bool, error)
	Sleep(ctx context.Context) error
	Wake(ctx context.Context) error
}

type actionFunc func(ActionHandlers, context.Context) error

// delegated routes every delegated action to its method on ActionHandlers.
// ActionScreenPower is handled by the dispatcher itself.
var delegated = map[ActionID]actionFunc{
	ActionToggleTorch:        ActionHandlers.ToggleTorch,
	ActionMediaKey:           ActionHandlers.DispatchMediaKey,
	ActionVolumePanel:        ActionHandlers.ToggleVolumePanel,
	ActionClearNotifications: ActionHandlers.ClearAllNotifications,
	ActionToggleRinger:       ActionHandlers.ToggleRinger,
	ActionScreenshot:         ActionHandlers.TakeScreenshot,
	ActionKillApp:            ActionHandlers.KillApp,
}
