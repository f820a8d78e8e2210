package dto

import (
	"time"

	"lms/internal/model"
)

// CourseCreateDTO is used for incoming course creation requests
type CourseCreateDTO struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty"`
	PriceCents  int64   `json:"price_cents" validate:"min=0"`
	Currency    string  `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// CourseUpdateDTO is used for incoming course update requests
type CourseUpdateDTO struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description *string `json:"description,omitempty"`
	PriceCents  *int64  `json:"price_cents,omitempty" validate:"omitempty,min=0"`
	Currency    *string `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
}

// CourseResponseDTO is returned in API responses for courses. Modules is only set on detail reads.
type CourseResponseDTO struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	PriceCents  int64               `json:"price_cents"`
	Currency    string              `json:"currency"`
	State       model.CourseState   `json:"state"`
	CoverURL    string              `json:"cover_url,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Modules     []ModuleResponseDTO `json:"modules,omitempty"`
}

type ModuleCreateDTO struct {
	Name       string `json:"name" validate:"required,max=200"`
	OrderIndex int    `json:"order_index" validate:"min=0"`
}

type ModuleUpdateDTO struct {
	Name       string `json:"name" validate:"required,max=200"`
	OrderIndex int    `json:"order_index" validate:"min=0"`
}

type ModuleResponseDTO struct {
	ID         string              `json:"id"`
	CourseID   string              `json:"course_id"`
	Name       string              `json:"name"`
	OrderIndex int                 `json:"order_index"`
	Lessons    []LessonResponseDTO `json:"lessons"`
}

type LessonCreateDTO struct {
	Title      string              `json:"title" validate:"required,max=200"`
	Type       model.LessonType    `json:"type" validate:"required,oneof=video text pdf quiz submission"`
	OrderIndex int                 `json:"order_index" validate:"min=0"`
	Content    model.LessonContent `json:"content"`
}

// LessonUpdateDTO replaces the title and content; the lesson type cannot change.
type LessonUpdateDTO struct {
	Title      string              `json:"title" validate:"required,max=200"`
	OrderIndex int                 `json:"order_index" validate:"min=0"`
	Content    model.LessonContent `json:"content"`
}

type LessonResponseDTO struct {
	ID         string           `json:"id"`
	ModuleID   string           `json:"module_id"`
	Title      string           `json:"title"`
	Type       model.LessonType `json:"type"`
	OrderIndex int              `json:"order_index"`
	Content    LessonContentDTO `json:"content"`
}

type LessonContentDTO struct {
	MediaURL      string        `json:"media_url,omitempty"`
	Body          string        `json:"body,omitempty"`
	Instructions  string        `json:"instructions,omitempty"`
	PassThreshold *int          `json:"pass_threshold,omitempty"`
	Questions     []QuestionDTO `json:"questions,omitempty"`
}

// QuestionDTO carries CorrectOption only for admins.
type QuestionDTO struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	Points        int      `json:"points"`
	CorrectOption *int     `json:"correct_option,omitempty"`
}

type CourseStateDTO struct {
	State model.CourseState `json:"state" validate:"required,oneof=draft published"`
}
