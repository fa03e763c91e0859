package controller

import "errors"

// Domain errors for the controller package.
var (
	// ErrConnection is returned for transport failures and any non-200 response.
	ErrConnection = errors.New("controller: connection error")

	// ErrAuth is returned when the controller rejects the credentials (401/403).
	// It is always wrapped together with ErrConnection, so polling code can
	// treat it as a plain connection failure while setup can single it out.
	ErrAuth = errors.New("controller: authentication rejected")

	// ErrDecode is returned when a response body is not the expected JSON shape.
	ErrDecode = errors.New("controller: malformed response")

	// ErrUnknownSchema is returned for an unsupported wire schema version.
	ErrUnknownSchema = errors.New("controller: unknown api version")

	// ErrInvalidConfig is returned when the client configuration is incomplete.
	ErrInvalidConfig = errors.New("controller: invalid config")
)
