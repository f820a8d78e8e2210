package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"lms/internal/api/v1/dto"
	"lms/internal/config"
	"lms/internal/learning"
	"lms/internal/middleware"
	"lms/internal/model"
	"lms/internal/repository"
	"lms/internal/service"
	"lms/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	freeCourseID  = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c001"
	draftCourseID = "6f1c2a8e-1d7b-4c36-9a57-0b8e51d1c003"
	testUserID    = "11111111-1111-1111-1111-111111111111"
)

// asUser stands in for AuthMiddleware.
func asUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), middleware.UserContextKey, testUserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

// nopStore accepts writes and reports every object missing.
type nopStore struct{}

func (nopStore) PresignPut(context.Context, string, string, time.Duration) (string, error) {
	return "https://bucket.test/put", nil
}
func (nopStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "https://bucket.test/get", nil
}
func (nopStore) Head(context.Context, string) (storage.ObjectInfo, error) {
	return storage.ObjectInfo{}, storage.ErrObjectNotFound
}
func (nopStore) ReadPrefix(context.Context, string, int64) ([]byte, error) {
	return nil, storage.ErrObjectNotFound
}
func (nopStore) Put(context.Context, string, string, []byte) error { return nil }
func (nopStore) Delete(context.Context, ...string) error           { return nil }
func (nopStore) DeletePrefix(context.Context, string) error         { return nil }

func newCourseMux(t *testing.T) *http.ServeMux {
	t.Helper()
	local, err := repository.NewLocalStore()
	require.NoError(t, err)
	courses := service.NewCourseService(local, local, config.CatalogSourceLocal, nopStore{}, func(k string) string { return "https://cdn.test/" + k }, zerolog.Nop())
	mux := http.NewServeMux()
	NewCourseHandler(courses, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop()).RegisterRoutes(mux, asUser)
	return mux
}

func TestCourseHandler_PublicCatalogHidesAnswersAndDrafts(t *testing.T) {
	mux := newCourseMux(t)

	rec := do(t, mux, http.MethodGet, "/courses", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page dto.PageDTO[dto.CourseResponseDTO]
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&page))
	assert.Equal(t, 2, page.Total)
	assert.Equal(t, 20, page.Limit)

	rec = do(t, mux, http.MethodGet, "/courses/"+draftCourseID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/courses/"+freeCourseID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var course dto.CourseResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&course))
	require.NotEmpty(t, course.Modules)
	questions := 0
	for _, m := range course.Modules {
		for _, l := range m.Lessons {
			for _, q := range l.Content.Questions {
				questions++
				assert.Nil(t, q.CorrectOption)
			}
		}
	}
	assert.Positive(t, questions)

	rec = do(t, mux, http.MethodGet, "/admin/courses/"+freeCourseID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"correct_option"`)
}

func TestCourseHandler_Authoring(t *testing.T) {
	mux := newCourseMux(t)

	rec := do(t, mux, http.MethodPost, "/admin/courses", dto.CourseCreateDTO{Name: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/courses", dto.CourseCreateDTO{Name: "Concurrency", Currency: "usd"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var course dto.CourseResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&course))
	assert.Equal(t, model.CourseDraft, course.State)

	rec = do(t, mux, http.MethodPost, "/admin/courses/"+course.ID+"/modules", dto.ModuleCreateDTO{Name: "Channels"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var module dto.ModuleResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&module))

	rec = do(t, mux, http.MethodPost, "/admin/modules/"+module.ID+"/lessons", dto.LessonCreateDTO{Title: "Quiz", Type: model.LessonQuiz})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/modules/"+module.ID+"/lessons", dto.LessonCreateDTO{
		Title:   "Buffered channels",
		Type:    model.LessonText,
		Content: model.LessonContent{Body: "make(chan int, 3)"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, mux, http.MethodPut, "/admin/courses/"+course.ID+"/state", dto.CourseStateDTO{State: model.CoursePublished})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodGet, "/courses/"+course.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, mux, http.MethodDelete, "/admin/courses/"+course.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, mux, http.MethodGet, "/courses/"+course.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type stubCertificates struct {
	service.CertificateService
	cert *model.Certificate
}

func (s stubCertificates) Verify(_ context.Context, serial, code string) (*model.Certificate, error) {
	if s.cert == nil || serial != s.cert.Serial || code != s.cert.VerificationCode {
		return nil, service.ErrCertificateNotFound
	}
	return s.cert, nil
}

func (s stubCertificates) Claim(_ context.Context, userID, courseID string) (*model.Certificate, bool, error) {
	if courseID != s.cert.CourseID {
		return nil, false, service.ErrNotEligible
	}
	return s.cert, true, nil
}

type stubSubmissions struct {
	service.SubmissionService
	reviewed *model.Submission
}

func (s *stubSubmissions) Review(_ context.Context, reviewerID, id string, action learning.Action, feedback string) (*model.Submission, error) {
	if action == learning.ActionReject && feedback == "" {
		return nil, learning.ErrFeedbackRequired
	}
	now := time.Now()
	s.reviewed = &model.Submission{ID: id, State: model.SubmissionApproved, ReviewerID: &reviewerID, ReviewedAt: &now, StoragePath: "submissions/x"}
	return s.reviewed, nil
}

func newLearningMux(certs service.CertificateService, subs service.SubmissionService) *http.ServeMux {
	mux := http.NewServeMux()
	h := NewLearningHandler(nil, nil, subs, certs, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop())
	h.RegisterRoutes(mux, asUser, asUser)
	return mux
}

func TestLearningHandler_VerifyCertificateHidesCode(t *testing.T) {
	cert := &model.Certificate{ID: "c1", UserID: testUserID, CourseID: freeCourseID, Serial: "LMS-2026-ABCDEF012345", VerificationCode: "SECRETCODE"}
	mux := newLearningMux(stubCertificates{cert: cert}, nil)

	rec := do(t, mux, http.MethodGet, "/certificates/verify?serial=LMS-2026-ABCDEF012345&code=SECRETCODE", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp dto.CertificateResponseDTO
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, cert.Serial, resp.Serial)
	assert.Empty(t, resp.VerificationCode)

	rec = do(t, mux, http.MethodGet, "/certificates/verify?serial=LMS-2026-ABCDEF012345&code=WRONG", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, mux, http.MethodGet, "/certificates/verify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/courses/"+freeCourseID+"/certificate", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "SECRETCODE")

	rec = do(t, mux, http.MethodPost, "/courses/other/certificate", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestLearningHandler_Review(t *testing.T) {
	subs := &stubSubmissions{}
	mux := newLearningMux(nil, subs)

	rec := do(t, mux, http.MethodPost, "/admin/submissions/s1/review", dto.ReviewDTO{Decision: "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/submissions/s1/review", dto.ReviewDTO{Decision: learning.ActionReject})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, mux, http.MethodPost, "/admin/submissions/s1/review", dto.ReviewDTO{Decision: learning.ActionApprove})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, subs.reviewed)
	assert.Equal(t, testUserID, *subs.reviewed.ReviewerID)
	assert.NotContains(t, rec.Body.String(), "storage_path")
}

type stubQuiz struct {
	service.QuizService
	got []learning.Answers
}

func (s *stubQuiz) Submit(_ context.Context, _, _, _ string, answers learning.Answers) (*service.QuizSubmission, error) {
	s.got = append(s.got, answers)
	return &service.QuizSubmission{Attempt: &model.QuizAttempt{ID: "a1"}, Result: learning.QuizResult{Total: 4}}, nil
}

func TestLearningHandler_EmptyQuizAttemptIsGraded(t *testing.T) {
	quiz := &stubQuiz{}
	mux := http.NewServeMux()
	NewLearningHandler(nil, quiz, nil, nil, validator.New(validator.WithRequiredStructEnabled()), zerolog.Nop()).RegisterRoutes(mux, asUser, asUser)

	path := "/courses/" + freeCourseID + "/lessons/l1/quiz"
	for _, body := range []any{map[string]any{}, map[string]any{"answers": nil}} {
		rec := do(t, mux, http.MethodPost, path, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	require.Len(t, quiz.got, 2)
	for _, answers := range quiz.got {
		assert.NotNil(t, answers)
		assert.Empty(t, answers)
	}
}

type stubDLQ struct {
	got []string
	err error
}

func (s *stubDLQ) ProcessAndSave(_ context.Context, req *dto.PubSubPushRequest) error {
	s.got = append(s.got, req.Message.MessageID)
	return s.err
}

func TestDLQHandler(t *testing.T) {
	dlq := &stubDLQ{}
	mux := http.NewServeMux()
	NewDLQHandler(dlq, zerolog.Nop()).RegisterRoutes(mux, func(h http.Handler) http.Handler { return h })

	rec := do(t, mux, http.MethodPost, "/dlq", dto.PubSubPushRequest{Message: dto.PubSubMessage{Data: "e30="}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, dlq.got)

	rec = do(t, mux, http.MethodPost, "/dlq", dto.PubSubPushRequest{Message: dto.PubSubMessage{MessageID: "m-1", Data: "e30="}})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// A failed save is still acknowledged.
	dlq.err = assert.AnError
	rec = do(t, mux, http.MethodPost, "/dlq", dto.PubSubPushRequest{Message: dto.PubSubMessage{MessageID: "m-2", Data: "e30="}})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"m-1", "m-2"}, dlq.got)
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		service.ErrCourseNotFound:                                http.StatusNotFound,
		fmt.Errorf("wrapped: %w", learning.ErrLessonNotFound):    http.StatusNotFound,
		service.ErrNotEnrolled:                                   http.StatusForbidden,
		learning.ErrLessonLocked:                                 http.StatusConflict,
		learning.ErrInvalidTransition:                            http.StatusConflict,
		learning.ErrCompletionNotAllowed:                         http.StatusBadRequest,
		service.ErrUploadType:                                    http.StatusUnsupportedMediaType,
		service.ErrPaymentsDisabled:                              http.StatusServiceUnavailable,
		fmt.Errorf("query failed: %w", context.DeadlineExceeded): http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusFor(err), err.Error())
	}
}

func TestWriteErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	writeError(rec, zerolog.Nop(), "Failed to load progress", fmt.Errorf("pq: password authentication failed"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Failed to load progress\n", rec.Body.String())
}

func TestPagination(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/x?limit=500&offset=-3", nil)
	limit, offset := pagination(r)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	r = httptest.NewRequest(http.MethodGet, "/x?limit=5&offset=10", nil)
	limit, offset = pagination(r)
	assert.Equal(t, 5, limit)
	assert.Equal(t, 10, offset)
}

func TestRequireUserWithoutContext(t *testing.T) {
	mux := http.NewServeMux()
	NewUserHandler(nil, validator.New(), zerolog.Nop()).RegisterRoutes(mux, func(h http.Handler) http.Handler { return h }, asUser)
	rec := do(t, mux, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
