package gesture

import "errors"

// Dispatch errors. None of these reach the gesture source; they are logged and
// attached to the Report of the dispatch that produced them.
var (
	// ErrConfigUnavailable indicates the settings provider could not be read.
	ErrConfigUnavailable = errors.New("gesture: configuration unavailable")

	// ErrHandlerUnbound indicates no handler was bound for the configured action.
	ErrHandlerUnbound = errors.New("gesture: handler unbound")

	// ErrResourceUnavailable indicates the wake resource could not be obtained.
	ErrResourceUnavailable = errors.New("gesture: wake resource unavailable")

	// ErrHandlerFault indicates the delegated handler returned an error or panicked.
	ErrHandlerFault = errors.New("gesture: handler fault")
)
