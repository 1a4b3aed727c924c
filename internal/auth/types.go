package auth

import "errors"

// Role represents an authorisation tier carried in an operator token.
type Role string

const (
	// RoleViewer can read everything but change nothing.
	RoleViewer Role = "viewer"

	// RoleOperator can start and stop runs.
	RoleOperator Role = "operator"

	// RoleAdmin can additionally create, update and delete scripts and bots.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of roles accepted by GenerateToken and ParseToken.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole returns true if r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrInvalidRole  = errors.New("invalid role")
	ErrForbidden    = errors.New("insufficient permissions")
)
