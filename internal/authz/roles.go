package authz

const (
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// Valid reports whether role is one that can be put in a token.
func Valid(role string) bool {
	return role == RoleModerator || role == RoleAdmin
}
