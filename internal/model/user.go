package model

// User is one row of the admin user list.
type User struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
	Status    string `json:"status"`
}

// Roles an operator can be invited with.
var ValidRoles = map[string]bool{
	"admin": true,
	"user":  true,
}
