package enums

import "fmt"

// Role represents a system-level permissions role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleFieldAgent Role = "field_agent"
	RoleSupervisor Role = "supervisor"
)

var validRoles = []Role{
	RoleAdmin,
	RoleFieldAgent,
	RoleSupervisor,
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

// RequiresDeviceBinding reports whether logins for the role must present a
// device identifier.
func (r Role) RequiresDeviceBinding() bool {
	return r == RoleFieldAgent
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
