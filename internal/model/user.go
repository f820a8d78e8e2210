package model

import "time"

// Roles stored on user_profiles.
const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User represents a profile row linked to a Supabase Auth user
type User struct {
	UserID           string    `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	Email            string    `db:"email" json:"email"`
	AvatarURL        string    `db:"avatar_url" json:"avatar_url"`
	Role             string    `db:"role" json:"role"`
	Banned           bool      `db:"banned" json:"banned"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// IsAdmin reports whether the user may author courses and review submissions.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserFilter narrows admin user listings.
type UserFilter struct {
	Role   string
	Search string
	Limit  int
	Offset int
}
