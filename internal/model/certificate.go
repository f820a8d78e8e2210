package model

import "time"

// Certificate is issued once per user and course when every requirement is met.
type Certificate struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	CourseID         string    `db:"course_id" json:"course_id"`
	Serial           string    `db:"serial" json:"serial"`
	VerificationCode string    `db:"verification_code" json:"verification_code"`
	IssuedAt         time.Time `db:"issued_at" json:"issued_at"`
}
