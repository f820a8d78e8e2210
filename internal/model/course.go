package model

import "time"

// CourseState is the publication state of a course.
type CourseState string

const (
	CourseDraft     CourseState = "draft"
	CoursePublished CourseState = "published"
)

// Course is the root of the catalog tree. Modules is only populated on tree reads.
type Course struct {
	ID          string      `db:"id" json:"id"`
	Name        string      `db:"name" json:"name"`
	Description string      `db:"description" json:"description"`
	PriceCents  int64       `db:"price_cents" json:"price_cents"`
	Currency    string      `db:"currency" json:"currency"`
	State       CourseState `db:"state" json:"state"`
	CoverPath   string      `db:"cover_path" json:"cover_path,omitempty"`
	CreatedBy   string      `db:"created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
	Modules     []Module    `db:"-" json:"modules,omitempty"`
}

// IsFree reports whether the course can be enrolled in without payment.
func (c *Course) IsFree() bool {
	return c.PriceCents <= 0
}

// Module groups lessons inside a course.
type Module struct {
	ID         string    `db:"id" json:"id"`
	CourseID   string    `db:"course_id" json:"course_id"`
	Name       string    `db:"name" json:"name"`
	OrderIndex int       `db:"order_index" json:"order_index"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
	Lessons    []Lesson  `db:"-" json:"lessons,omitempty"`
}

// CourseFilter narrows catalog listings.
type CourseFilter struct {
	State  CourseState
	Search string
	Limit  int
	Offset int
}
