package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Role is an authorisation tier of an API operator.
type Role string

const (
	// RoleViewer may read entities, history and controller metadata.
	RoleViewer Role = "viewer"

	// RoleOperator may additionally switch devices and set power levels.
	RoleOperator Role = "operator"

	// RoleAdmin may additionally force refreshes, probe devices and
	// invalidate cached controller metadata.
	RoleAdmin Role = "admin"
)

// ParseRole converts a configured role name. An empty name means operator.
func ParseRole(name string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(name))); r {
	case "":
		return RoleOperator, nil
	case RoleViewer, RoleOperator, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, name)
	}
}

// Operator is an account allowed to use the HTTP API.
type Operator struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrUnknownRole        = errors.New("unknown role")
	ErrDuplicateOperator  = errors.New("duplicate operator")
)
