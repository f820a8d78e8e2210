package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// LessonType identifies how a lesson is consumed and completed.
type LessonType string

const (
	LessonVideo      LessonType = "video"
	LessonText       LessonType = "text"
	LessonPDF        LessonType = "pdf"
	LessonQuiz       LessonType = "quiz"
	LessonSubmission LessonType = "submission"
)

// Valid reports whether t is a known lesson type.
func (t LessonType) Valid() bool {
	switch t {
	case LessonVideo, LessonText, LessonPDF, LessonQuiz, LessonSubmission:
		return true
	}
	return false
}

// Lesson is the atomic unit of course content.
type Lesson struct {
	ID         string        `db:"id" json:"id"`
	ModuleID   string        `db:"module_id" json:"module_id"`
	Title      string        `db:"title" json:"title"`
	Type       LessonType    `db:"type" json:"type"`
	OrderIndex int           `db:"order_index" json:"order_index"`
	Content    LessonContent `db:"content" json:"content"`
	CreatedAt  time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time     `db:"updated_at" json:"updated_at"`
}

// LessonContent is the type-specific payload stored as JSONB.
type LessonContent struct {
	MediaURL      string         `json:"media_url,omitempty"`
	Body          string         `json:"body,omitempty"`
	Questions     []QuizQuestion `json:"questions,omitempty"`
	PassThreshold *int           `json:"pass_threshold,omitempty"`
	Instructions  string         `json:"instructions,omitempty"`
}

// QuizQuestion is a multiple-choice question with a point weight.
type QuizQuestion struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
	Points        int      `json:"points,omitempty"`
}

// Weight returns the question's point value; unset weights count as one point.
func (q QuizQuestion) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// Value implements the driver.Valuer interface for JSONB
func (c LessonContent) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for JSONB
func (c *LessonContent) Scan(value interface{}) error {
	if value == nil {
		*c = LessonContent{}
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into LessonContent", value)
	}

	if len(bytes) == 0 {
		*c = LessonContent{}
		return nil
	}
	return json.Unmarshal(bytes, c)
}
