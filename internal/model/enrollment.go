package model

import "time"

// Enrollment sources.
const (
	EnrollmentFree     = "free"
	EnrollmentPurchase = "purchase"
	EnrollmentAdmin    = "admin"
)

// Enrollment grants a user access to a course.
type Enrollment struct {
	UserID    string    `db:"user_id" json:"user_id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	Source    string    `db:"source" json:"source"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Transaction statuses.
const (
	TransactionPending   = "pending"
	TransactionSucceeded = "succeeded"
	TransactionFailed    = "failed"
	TransactionRefunded  = "refunded"
)

// Transaction is one entry in a user's payments history.
type Transaction struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CourseID    string    `db:"course_id" json:"course_id"`
	AmountCents int64     `db:"amount_cents" json:"amount_cents"`
	Currency    string    `db:"currency" json:"currency"`
	Status      string    `db:"status" json:"status"`
	Provider    string    `db:"provider" json:"provider"`
	ProviderRef string    `db:"provider_ref" json:"provider_ref,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// TransactionFilter narrows payments history listings.
type TransactionFilter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}
