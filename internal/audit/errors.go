package audit

import "errors"

// ErrActionRequired is returned when an entry has no action.
var ErrActionRequired = errors.New("audit: action is required")
