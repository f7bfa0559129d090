package domain

import "time"

// Role enumerates dashboard user roles.
type Role string

const (
	RoleEmployee       Role = "pracownik"
	RoleManager        Role = "manager"
	RoleProjectManager Role = "project_manager"
	RoleJuniorManager  Role = "junior_manager"
	RoleChief          Role = "szef"
	RoleAdmin          Role = "admin"
)

// Roles lists every known role.
var Roles = []Role{RoleEmployee, RoleManager, RoleProjectManager, RoleJuniorManager, RoleChief, RoleAdmin}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, candidate := range Roles {
		if candidate == r {
			return true
		}
	}
	return false
}

// User is a dashboard actor and a potential client owner.
type User struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	Phone     *string
	Bio       *string
	AvatarURL *string
	Language  *string
	ManagerID *string
	CreatedAt time.Time
	UpdatedAt time.Time
}
