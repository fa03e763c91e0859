package mannito

import "errors"

// Domain errors for the Mannito bridge package.
var (
	// ErrInvalidOptions is returned by NewBridge when a required dependency is missing.
	ErrInvalidOptions = errors.New("mannito: invalid options")

	// ErrInvalidCommand is returned when an inbound command cannot be parsed
	// or names an unknown command.
	ErrInvalidCommand = errors.New("mannito: invalid command")

	// ErrInvalidParameters is returned when command parameters are missing
	// or have the wrong type.
	ErrInvalidParameters = errors.New("mannito: invalid parameters")

	// ErrInvalidReading is returned when an external sensor payload cannot be parsed.
	ErrInvalidReading = errors.New("mannito: invalid sensor reading")

	// ErrAlreadyStarted is returned when Start is called twice.
	ErrAlreadyStarted = errors.New("mannito: bridge already started")
)
