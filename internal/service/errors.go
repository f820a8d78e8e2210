package service

import (
	"errors"

	"lms/internal/repository"
)

var (
	ErrCourseNotFound      = errors.New("course not found")
	ErrModuleNotFound      = errors.New("module not found")
	ErrLessonNotFound      = errors.New("lesson not found")
	ErrDuplicateOrder      = repository.ErrDuplicateOrder
	ErrNotEnrolled         = errors.New("not enrolled in course")
	ErrPaymentsDisabled    = errors.New("payments are not configured")
	ErrSubmissionNotFound  = errors.New("submission not found")
	ErrNotSubmissionLesson = errors.New("lesson does not accept submissions")
	ErrNotQuizLesson       = errors.New("lesson is not a quiz")
	ErrUploadMissing       = errors.New("uploaded file not found in storage")
	ErrUploadType          = errors.New("uploaded file type is not allowed")
	ErrUnsupportedImage    = errors.New("cover must be a JPEG, PNG or GIF image")
	ErrNotEligible         = errors.New("course requirements not met")
	ErrCertificateNotFound = errors.New("certificate not found")
	ErrInvalidRole         = errors.New("invalid role")
	ErrTransactionNotFound = errors.New("transaction not found")
)
