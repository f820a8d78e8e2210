package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lms/internal/learning"
	"lms/internal/middleware"
	"lms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// maxJSONBody bounds request bodies decoded by the handlers.
const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// decode reads and validates a JSON body, answering 400 on failure.
func decode(w http.ResponseWriter, r *http.Request, validate *validator.Validate, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody)).Decode(v); err != nil {
		http.Error(w, "Invalid JSON payload: "+err.Error(), http.StatusBadRequest)
		return false
	}
	if err := validate.Struct(v); err != nil {
		http.Error(w, "Validation failed: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized: User ID not found in context", http.StatusUnauthorized)
	}
	return userID, ok
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int) {
	limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrCourseNotFound),
		errors.Is(err, service.ErrModuleNotFound),
		errors.Is(err, service.ErrLessonNotFound),
		errors.Is(err, learning.ErrLessonNotFound),
		errors.Is(err, service.ErrSubmissionNotFound),
		errors.Is(err, service.ErrCertificateNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotEnrolled):
		return http.StatusForbidden
	case errors.Is(err, learning.ErrLessonLocked),
		errors.Is(err, learning.ErrInvalidTransition),
		errors.Is(err, service.ErrDuplicateOrder),
		errors.Is(err, learning.ErrOrderNotIncreasing),
		errors.Is(err, service.ErrNotEligible):
		return http.StatusConflict
	case errors.Is(err, learning.ErrCompletionNotAllowed),
		errors.Is(err, learning.ErrFeedbackRequired),
		errors.Is(err, learning.ErrInvalidLesson),
		errors.Is(err, service.ErrNotQuizLesson),
		errors.Is(err, service.ErrNotSubmissionLesson),
		errors.Is(err, service.ErrUploadMissing),
		errors.Is(err, service.ErrUnsupportedImage),
		errors.Is(err, service.ErrInvalidRole),
		errors.Is(err, service.ErrInvalidPush):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUploadType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, service.ErrPaymentsDisabled),
		errors.Is(err, service.ErrAuthAdminMissing):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Internal errors are logged and not echoed.
func writeError(w http.ResponseWriter, logger zerolog.Logger, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error().Err(err).Msg(msg)
		http.Error(w, msg, status)
		return
	}
	http.Error(w, err.Error(), status)
}
