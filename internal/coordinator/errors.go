package coordinator

import "errors"

// Domain errors for the coordinator package.
var (
	// ErrUpdateFailed is returned by Refresh when a cycle fails as a whole.
	// Every entity is marked unavailable when this is returned.
	ErrUpdateFailed = errors.New("coordinator: update failed")

	// ErrRefreshAborted is returned when the caller's context ended during a
	// cycle. Availability and listeners are left untouched.
	ErrRefreshAborted = errors.New("coordinator: refresh aborted")

	// ErrSchedulerStopped is returned by Scheduler.Refresh after the loop exits.
	ErrSchedulerStopped = errors.New("coordinator: scheduler stopped")

	// ErrPartialData marks an optional section (slots, metadata, external
	// sensors) that could not be used. It is logged, never returned by Refresh.
	ErrPartialData = errors.New("coordinator: partial data")

	// ErrUnsupportedCommand is reported when a command is rejected locally.
	ErrUnsupportedCommand = errors.New("coordinator: unsupported command")

	// ErrInvalidOptions is returned by New when a required dependency is missing.
	ErrInvalidOptions = errors.New("coordinator: invalid options")
)
