package model

// Operator roles carried in access tokens.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleCashier    = "cashier"
)

// IsElevatedRole reports whether role may sell without an open cash session
// and run inventory corrections.
func IsElevatedRole(role string) bool {
	return role == RoleAdmin || role == RoleSupervisor
}
