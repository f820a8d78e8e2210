package dto

import (
	"time"

	"lms/internal/learning"
	"lms/internal/model"
)

// QuizSubmitDTO maps question IDs to option indexes. Missing answers are
// graded as incorrect.
type QuizSubmitDTO struct {
	Answers map[string]int `json:"answers"`
}

type QuizSubmitResponseDTO struct {
	AttemptID string               `json:"attempt_id"`
	Result    learning.QuizResult  `json:"result"`
	Lesson    learning.LessonState `json:"lesson"`
}

type UploadInitDTO struct {
	Filename string `json:"filename" validate:"required,max=255"`
}

type UploadTicketDTO struct {
	Submission SubmissionResponseDTO `json:"submission"`
	UploadURL  string                `json:"upload_url"`
	ExpiresAt  time.Time             `json:"expires_at"`
}

type ReviewDTO struct {
	Decision learning.Action `json:"decision" validate:"required,oneof=approve reject"`
	Feedback string          `json:"feedback" validate:"max=5000"`
}

// SubmissionResponseDTO omits the storage path; downloads go through presigned URLs.
type SubmissionResponseDTO struct {
	ID          string                `json:"id"`
	UserID      string                `json:"user_id"`
	CourseID    string                `json:"course_id"`
	LessonID    string                `json:"lesson_id"`
	Filename    string                `json:"filename"`
	ContentType string                `json:"content_type,omitempty"`
	State       model.SubmissionState `json:"state"`
	Feedback    string                `json:"feedback,omitempty"`
	ReviewedAt  *time.Time            `json:"reviewed_at,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

type DownloadURLDTO struct {
	URL string `json:"url"`
}

type EligibilityDTO struct {
	Eligible bool     `json:"eligible"`
	Missing  []string `json:"missing"`
}

type CertificateResponseDTO struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	CourseID         string    `json:"course_id"`
	Serial           string    `json:"serial"`
	VerificationCode string    `json:"verification_code,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
}

type EnrollResponseDTO struct {
	Enrollment    *model.Enrollment `json:"enrollment,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	CheckoutURL   string            `json:"checkout_url,omitempty"`
}

type GrantEnrollmentDTO struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	CourseID string `json:"course_id" validate:"required,uuid"`
}
