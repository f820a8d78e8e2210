package model

import "time"

// Submission is a student-uploaded artifact for a submission lesson.
type Submission struct {
	ID          string          `db:"id" json:"id"`
	UserID      string          `db:"user_id" json:"user_id"`
	CourseID    string          `db:"course_id" json:"course_id"`
	LessonID    string          `db:"lesson_id" json:"lesson_id"`
	StoragePath string          `db:"storage_path" json:"storage_path"`
	Filename    string          `db:"filename" json:"filename"`
	ContentType string          `db:"content_type" json:"content_type,omitempty"`
	State       SubmissionState `db:"state" json:"state"`
	Feedback    string          `db:"feedback" json:"feedback,omitempty"`
	ReviewerID  *string         `db:"reviewer_id" json:"reviewer_id,omitempty"`
	ReviewedAt  *time.Time      `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at" json:"updated_at"`
}

// SubmissionFilter narrows the reviewer queue.
type SubmissionFilter struct {
	State    SubmissionState
	CourseID string
	Limit    int
	Offset   int
}
