package models

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies one of the two participants sharing a room.
type Role string

const (
	RoleA Role = "A"
	RoleB Role = "B"
)

// ErrUnknownRole is returned when a role string is neither A nor B.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole accepts "A"/"B" in any case, plus the long forms "roleA"/"roleB".
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "a", "rolea":
		return RoleA, nil
	case "b", "roleb":
		return RoleB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// Other returns the partner's role.
func (r Role) Other() Role {
	if r == RoleA {
		return RoleB
	}
	return RoleA
}

// Valid reports whether r is one of the two fixed roles.
func (r Role) Valid() bool {
	return r == RoleA || r == RoleB
}

func (r Role) String() string { return string(r) }
