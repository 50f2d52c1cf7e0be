package types

import "time"

// Role is the capability level of an account.
type Role string

// Supported roles. Only authenticated vs anonymous is enforced today; the
// roles are kept for role-based gating.
const (
	RoleUser    Role = "user"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RolePremium, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account in the system.
// It contains identity, role, and audit metadata.
type User struct {
	// ID is the unique identifier of the user (UUID).
	ID string `json:"id" db:"id"`

	// FirstName is the user's given name.
	FirstName string `json:"first_name" db:"first_name"`

	// LastName is the user's family name.
	LastName string `json:"last_name" db:"last_name"`

	// Email is the user's unique, lower-cased email address.
	Email string `json:"email" db:"email"`

	// Age is the user's age in years. Always at least 1.
	Age int `json:"age" db:"age"`

	// Role indicates the user's authorization level.
	Role Role `json:"role" db:"role"`

	// CartID references the user's cart, when one has been assigned.
	CartID *string `json:"cart,omitempty" db:"cart_id"`

	// LastConnection is the time of the most recent successful login.
	LastConnection *time.Time `json:"last_connection,omitempty" db:"last_connection"`

	// PasswordHash stores the hashed representation of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the user account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	// UpdatedAt is the timestamp of the most recent update to the user account.
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
