package model

import "time"

// SubmissionState tracks a practical assignment through review.
type SubmissionState string

const (
	SubmissionNone      SubmissionState = ""
	SubmissionUploading SubmissionState = "uploading"
	SubmissionPending   SubmissionState = "pending"
	SubmissionApproved  SubmissionState = "approved"
	SubmissionRejected  SubmissionState = "rejected"
)

// LessonProgress is one student's state for one lesson.
type LessonProgress struct {
	UserID          string          `db:"user_id" json:"user_id"`
	CourseID        string          `db:"course_id" json:"course_id"`
	LessonID        string          `db:"lesson_id" json:"lesson_id"`
	Completed       bool            `db:"completed" json:"completed"`
	SubmissionState SubmissionState `db:"submission_state" json:"submission_state,omitempty"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// QuizAttempt records one graded quiz submission.
type QuizAttempt struct {
	ID        string         `db:"id" json:"id"`
	UserID    string         `db:"user_id" json:"user_id"`
	CourseID  string         `db:"course_id" json:"course_id"`
	LessonID  string         `db:"lesson_id" json:"lesson_id"`
	Answers   map[string]int `db:"answers" json:"answers"`
	Score     int            `db:"score" json:"score"`
	Passed    bool           `db:"passed" json:"passed"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
