package user

import (
	"database/sql"
	"regexp"
	"time"
)

// Role represents user role in the system
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// idPattern restricts ids to characters that keep the
// userId_packId_timestamp reference string parseable.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]{1,128}$`)

// ValidID reports whether id can be used as a user id.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// User represents a user account (matches users table)
type User struct {
	ID               string         `db:"id" json:"id"`
	Email            string         `db:"email" json:"email"`
	DisplayName      string         `db:"display_name" json:"display_name"`
	CreditBalance    int64          `db:"credit_balance" json:"credit_balance"`
	Role             Role           `db:"role" json:"role"`
	IsSuspended      bool           `db:"is_suspended" json:"is_suspended"`
	SuspensionReason sql.NullString `db:"suspension_reason" json:"-"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// IsAdmin returns true if user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Profile is the JSON view returned by /me and admin lookups.
type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	DisplayName      string    `json:"display_name"`
	CreditBalance    int64     `json:"credit_balance"`
	Role             Role      `json:"role"`
	IsSuspended      bool      `json:"is_suspended"`
	SuspensionReason string    `json:"suspension_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// ToProfile converts the entity to its JSON view.
func (u *User) ToProfile() Profile {
	return Profile{
		ID:               u.ID,
		Email:            u.Email,
		DisplayName:      u.DisplayName,
		CreditBalance:    u.CreditBalance,
		Role:             u.Role,
		IsSuspended:      u.IsSuspended,
		SuspensionReason: u.SuspensionReason.String,
		CreatedAt:        u.CreatedAt,
	}
}
