package handler

import (
	"net/http"
	"strconv"

	"lms/internal/api/v1/dto"
	"lms/internal/learning"
	"lms/internal/model"
	"lms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// LearningHandler serves the student side of a course: progress, quizzes,
// submissions and certificates, plus the admin review queue.
type LearningHandler struct {
	progress    service.ProgressService
	quiz        service.QuizService
	submission  service.SubmissionService
	certificate service.CertificateService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewLearningHandler(
	progress service.ProgressService,
	quiz service.QuizService,
	submission service.SubmissionService,
	certificate service.CertificateService,
	validate *validator.Validate,
	logger zerolog.Logger,
) *LearningHandler {
	return &LearningHandler{
		progress:    progress,
		quiz:        quiz,
		submission:  submission,
		certificate: certificate,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes mounts learner routes behind authMw and review routes behind adminMw
func (h *LearningHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("GET /courses/{courseId}/progress", authMw(http.HandlerFunc(h.getProgress)))
	mux.Handle("DELETE /courses/{courseId}/progress", authMw(http.HandlerFunc(h.resetProgress)))
	mux.Handle("GET /courses/{courseId}/modules/{moduleId}/lessons/{lessonId}/state", authMw(http.HandlerFunc(h.getLessonState)))
	mux.Handle("POST /courses/{courseId}/lessons/{lessonId}/complete", authMw(http.HandlerFunc(h.completeLesson)))

	mux.Handle("POST /courses/{courseId}/lessons/{lessonId}/quiz", authMw(http.HandlerFunc(h.submitQuiz)))
	mux.Handle("GET /courses/{courseId}/lessons/{lessonId}/quiz/attempts", authMw(http.HandlerFunc(h.listAttempts)))

	mux.Handle("POST /courses/{courseId}/lessons/{lessonId}/submissions", authMw(http.HandlerFunc(h.initiateUpload)))
	mux.Handle("GET /courses/{courseId}/lessons/{lessonId}/submissions/latest", authMw(http.HandlerFunc(h.latestSubmission)))
	mux.Handle("POST /submissions/{submissionId}/complete", authMw(http.HandlerFunc(h.completeUpload)))
	mux.Handle("GET /submissions/{submissionId}", authMw(http.HandlerFunc(h.getSubmission)))
	mux.Handle("GET /submissions/{submissionId}/download", authMw(http.HandlerFunc(h.downloadSubmission)))

	mux.Handle("GET /courses/{courseId}/certificate/eligibility", authMw(http.HandlerFunc(h.getEligibility)))
	mux.Handle("POST /courses/{courseId}/certificate", authMw(http.HandlerFunc(h.issueCertificate)))
	mux.Handle("GET /courses/{courseId}/certificate", authMw(http.HandlerFunc(h.getCertificate)))
	mux.Handle("GET /users/me/certificates", authMw(http.HandlerFunc(h.listCertificates)))
	mux.HandleFunc("GET /certificates/verify", h.verifyCertificate)

	mux.Handle("GET /admin/submissions", adminMw(http.HandlerFunc(h.listSubmissions)))
	mux.Handle("POST /admin/submissions/{submissionId}/review", adminMw(http.HandlerFunc(h.reviewSubmission)))
}

// getProgress godoc
// @Summary Get per-lesson state and the course summary for the current user
// @Tags learning
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} service.CourseProgress
// @Failure 403 {string} string "not enrolled"
// @Router /courses/{courseId}/progress [get]
func (h *LearningHandler) getProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	p, err := h.progress.CourseProgress(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		writeError(w, h.logger, "Failed to load progress", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *LearningHandler) resetProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	if err := h.progress.Reset(r.Context(), userID, r.PathValue("courseId")); err != nil {
		writeError(w, h.logger, "Failed to reset progress", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getLessonState godoc
// @Summary Get the lock and completion state of one lesson
// @Tags learning
// @Produce json
// @Param courseId path string true "Course ID"
// @Param moduleId path string true "Module ID"
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} learning.LessonState
// @Router /courses/{courseId}/modules/{moduleId}/lessons/{lessonId}/state [get]
func (h *LearningHandler) getLessonState(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	st, err := h.progress.LessonState(r.Context(), userID, r.PathValue("courseId"), r.PathValue("moduleId"), r.PathValue("lessonId"))
	if err != nil {
		writeError(w, h.logger, "Failed to load lesson state", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// completeLesson godoc
// @Summary Mark a video, text or pdf lesson complete
// @Tags learning
// @Produce json
// @Param courseId path string true "Course ID"
// @Param lessonId path string true "Lesson ID"
// @Success 200 {object} learning.LessonState
// @Failure 400 {string} string "lesson completes through its quiz or submission"
// @Failure 409 {string} string "lesson is locked"
// @Router /courses/{courseId}/lessons/{lessonId}/complete [post]
func (h *LearningHandler) completeLesson(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	st, err := h.progress.Complete(r.Context(), userID, r.PathValue("courseId"), r.PathValue("lessonId"))
	if err != nil {
		writeError(w, h.logger, "Failed to complete lesson", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// submitQuiz godoc
// @Summary Grade a quiz attempt
// @Description Answers map question IDs to option indexes. Every attempt is recorded.
// @Tags learning
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param lessonId path string true "Lesson ID"
// @Param answers body dto.QuizSubmitDTO true "Answers"
// @Success 200 {object} dto.QuizSubmitResponseDTO
// @Router /courses/{courseId}/lessons/{lessonId}/quiz [post]
func (h *LearningHandler) submitQuiz(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.QuizSubmitDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	answers := learning.Answers(req.Answers)
	if answers == nil {
		answers = learning.Answers{}
	}
	res, err := h.quiz.Submit(r.Context(), userID, r.PathValue("courseId"), r.PathValue("lessonId"), answers)
	if err != nil {
		writeError(w, h.logger, "Failed to grade quiz", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.QuizSubmitResponseDTO{
		AttemptID: res.Attempt.ID,
		Result:    res.Result,
		Lesson:    res.Lesson,
	})
}

func (h *LearningHandler) listAttempts(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	attempts, err := h.quiz.Attempts(r.Context(), userID, r.PathValue("courseId"), r.PathValue("lessonId"), attemptLimit(r))
	if err != nil {
		writeError(w, h.logger, "Failed to list attempts", err)
		return
	}
	if attempts == nil {
		attempts = []model.QuizAttempt{}
	}
	writeJSON(w, http.StatusOK, attempts)
}

// initiateUpload godoc
// @Summary Start a submission upload
// @Description Returns a presigned PUT URL. Call the complete endpoint once the file is uploaded.
// @Tags learning
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param lessonId path string true "Lesson ID"
// @Param upload body dto.UploadInitDTO true "File name"
// @Success 201 {object} dto.UploadTicketDTO
// @Failure 409 {string} string "a submission is already pending review"
// @Router /courses/{courseId}/lessons/{lessonId}/submissions [post]
func (h *LearningHandler) initiateUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.UploadInitDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	ticket, err := h.submission.InitiateUpload(r.Context(), userID, r.PathValue("courseId"), r.PathValue("lessonId"), req.Filename)
	if err != nil {
		writeError(w, h.logger, "Failed to start upload", err)
		return
	}
	writeJSON(w, http.StatusCreated, dto.UploadTicketDTO{
		Submission: toSubmissionResponse(ticket.Submission),
		UploadURL:  ticket.UploadURL,
		ExpiresAt:  ticket.ExpiresAt,
	})
}

// completeUpload godoc
// @Summary Confirm an upload and queue it for review
// @Tags learning
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Success 200 {object} dto.SubmissionResponseDTO
// @Failure 400 {string} string "upload not found"
// @Failure 415 {string} string "file type not allowed"
// @Router /submissions/{submissionId}/complete [post]
func (h *LearningHandler) completeUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sub, err := h.submission.CompleteUpload(r.Context(), userID, r.PathValue("submissionId"))
	if err != nil {
		writeError(w, h.logger, "Failed to complete upload", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *LearningHandler) getSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sub, err := h.submission.Get(r.Context(), userID, r.PathValue("submissionId"))
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve submission", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *LearningHandler) latestSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	sub, err := h.submission.Latest(r.Context(), userID, r.PathValue("courseId"), r.PathValue("lessonId"))
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve submission", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *LearningHandler) downloadSubmission(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	url, err := h.submission.DownloadURL(r.Context(), userID, r.PathValue("submissionId"))
	if err != nil {
		writeError(w, h.logger, "Failed to sign download URL", err)
		return
	}
	writeJSON(w, http.StatusOK, dto.DownloadURLDTO{URL: url})
}

// listSubmissions godoc
// @Summary List submissions for review
// @Tags admin
// @Produce json
// @Param state query string false "pending, approved, rejected"
// @Param course_id query string false "Course ID"
// @Success 200 {object} dto.PageDTO[dto.SubmissionResponseDTO]
// @Router /admin/submissions [get]
func (h *LearningHandler) listSubmissions(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()
	subs, total, err := h.submission.List(r.Context(), model.SubmissionFilter{
		State:    model.SubmissionState(q.Get("state")),
		CourseID: q.Get("course_id"),
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to list submissions", err)
		return
	}
	resp := dto.PageDTO[dto.SubmissionResponseDTO]{Items: make([]dto.SubmissionResponseDTO, 0, len(subs)), Total: total, Limit: limit, Offset: offset}
	for i := range subs {
		resp.Items = append(resp.Items, toSubmissionResponse(&subs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

// reviewSubmission godoc
// @Summary Approve or reject a pending submission
// @Description Rejection requires feedback.
// @Tags admin
// @Accept json
// @Produce json
// @Param submissionId path string true "Submission ID"
// @Param review body dto.ReviewDTO true "Decision"
// @Success 200 {object} dto.SubmissionResponseDTO
// @Failure 409 {string} string "submission is not pending"
// @Router /admin/submissions/{submissionId}/review [post]
func (h *LearningHandler) reviewSubmission(w http.ResponseWriter, r *http.Request) {
	reviewerID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.ReviewDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	sub, err := h.submission.Review(r.Context(), reviewerID, r.PathValue("submissionId"), req.Decision, req.Feedback)
	if err != nil {
		writeError(w, h.logger, "Failed to review submission", err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmissionResponse(sub))
}

func (h *LearningHandler) getEligibility(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	el, err := h.certificate.Eligibility(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		writeError(w, h.logger, "Failed to check eligibility", err)
		return
	}
	missing := el.Missing
	if missing == nil {
		missing = []string{}
	}
	writeJSON(w, http.StatusOK, dto.EligibilityDTO{Eligible: el.Eligible, Missing: missing})
}

// issueCertificate godoc
// @Summary Issue the course certificate
// @Description Returns 201 when a new certificate is created and 200 when one already exists.
// @Tags certificates
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 201 {object} dto.CertificateResponseDTO
// @Success 200 {object} dto.CertificateResponseDTO
// @Failure 403 {string} string "not enrolled"
// @Failure 409 {string} string "not eligible"
// @Router /courses/{courseId}/certificate [post]
func (h *LearningHandler) issueCertificate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cert, created, err := h.certificate.Claim(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		writeError(w, h.logger, "Failed to issue certificate", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, toCertificateResponse(cert, true))
}

func (h *LearningHandler) getCertificate(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	cert, err := h.certificate.Get(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve certificate", err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponse(cert, true))
}

func (h *LearningHandler) listCertificates(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	certs, err := h.certificate.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "Failed to list certificates", err)
		return
	}
	resp := make([]dto.CertificateResponseDTO, 0, len(certs))
	for i := range certs {
		resp = append(resp, toCertificateResponse(&certs[i], true))
	}
	writeJSON(w, http.StatusOK, resp)
}

// verifyCertificate godoc
// @Summary Verify a printed certificate
// @Description Public. Matching is case-insensitive.
// @Tags certificates
// @Produce json
// @Param serial query string true "Serial"
// @Param code query string true "Verification code"
// @Success 200 {object} dto.CertificateResponseDTO
// @Failure 404 {string} string "certificate not found"
// @Router /certificates/verify [get]
func (h *LearningHandler) verifyCertificate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	serial, code := q.Get("serial"), q.Get("code")
	if serial == "" || code == "" {
		http.Error(w, "serial and code are required", http.StatusBadRequest)
		return
	}
	cert, err := h.certificate.Verify(r.Context(), serial, code)
	if err != nil {
		writeError(w, h.logger, "Failed to verify certificate", err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponse(cert, false))
}

// attemptLimit caps quiz attempt listings independently of page size.
func attemptLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 || n > 50 {
		return 10
	}
	return n
}
