package enums

import "fmt"

// Role is the account type that drives route visibility and guard checks.
type Role string

const (
	RoleFarmer     Role = "farmer"
	RoleAgronomist Role = "agronomist"
	RoleAdmin      Role = "admin"
)

var validRoles = []Role{
	RoleFarmer,
	RoleAgronomist,
	RoleAdmin,
}

// AllRoles returns every known role in declaration order.
func AllRoles() []Role {
	out := make([]Role, len(validRoles))
	copy(out, validRoles)
	return out
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the value is a known Role.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// SelfRegistrable reports whether accounts with this role may sign up on their own.
func (r Role) SelfRegistrable() bool {
	return r == RoleFarmer || r == RoleAgronomist
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}
