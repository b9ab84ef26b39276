package domain

// Role type to distinguish between user roles carried in bearer tokens.
type Role string

// Define constants for roles
const (
	RoleTrainer Role = "trainer"
	RoleClient  Role = "client"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleTrainer || r == RoleClient
}
