package models

import (
	"fmt"
	"strings"
	"time"
)

// Role is the access level of a signed-in user.
type Role string

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

// Title returns the role with its first letter upper-cased ("Admin").
func (r Role) Title() string {
	if r == "" {
		return ""
	}
	return strings.ToUpper(string(r[:1])) + string(r[1:])
}

// ParseRole parses a role name case-insensitively.
func ParseRole(v string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(v)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role: %q", v)
	}
	return r, nil
}

// User is the opaque identity handed out by the auth provider.
type User struct {
	UID   string
	Email string
}

// Account is the auth provider's credential record.
type Account struct {
	UID          string
	Email        string
	PasswordHash []byte
	Disabled     bool
	CreatedAt    time.Time
}

// Profile is the users-collection document linked to an account.
type Profile struct {
	UID       string
	Email     string
	Role      Role
	IsActive  bool
	CreatedAt time.Time
}

// Session is the signed-in identity and role as seen by a client. The zero
// value means signed out.
type Session struct {
	User *User
	Role Role
}

// LoggedIn reports whether the session carries an identity.
func (s Session) LoggedIn() bool { return s.User != nil }
