package domain

// Role enumerates privilege levels from highest to lowest.
type Role string

const (
	RoleSuperAdmin Role = "SUPER_ADMIN"
	RoleAdmin      Role = "ADMIN"
	RoleAuthor     Role = "AUTHOR"
	RoleEditor     Role = "EDITOR"
	RoleUser       Role = "USER"
	RoleGuest      Role = "GUEST"
)

// roleOrder is the single source of the hierarchy, highest first. Rank
// comparisons index into this list; no per-role permission tables exist.
var roleOrder = []Role{
	RoleSuperAdmin,
	RoleAdmin,
	RoleAuthor,
	RoleEditor,
	RoleUser,
	RoleGuest,
}

// rank returns the position of r in the hierarchy, or len(roleOrder) for
// unknown roles so they compare below GUEST.
func rank(r Role) int {
	for i, candidate := range roleOrder {
		if candidate == r {
			return i
		}
	}
	return len(roleOrder)
}

// HasMinimum reports whether the holder of r satisfies a requirement of
// required, i.e. required is r or strictly below it in the hierarchy.
func (r Role) HasMinimum(required Role) bool {
	return rank(r) <= rank(required)
}

// IsAdmin reports whether r is ADMIN or above.
func (r Role) IsAdmin() bool {
	return r.HasMinimum(RoleAdmin)
}

// IsAuthorOrAbove reports whether r is AUTHOR or above.
func (r Role) IsAuthorOrAbove() bool {
	return r.HasMinimum(RoleAuthor)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return rank(r) < len(roleOrder)
}

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, bool) {
	r := Role(raw)
	return r, r.Valid()
}

// Roles returns the hierarchy from highest to lowest privilege.
func Roles() []Role {
	out := make([]Role, len(roleOrder))
	copy(out, roleOrder)
	return out
}
