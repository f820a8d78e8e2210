package handler

import (
	"net/http"

	"lms/internal/api/v1/dto"
	"lms/internal/model"
	"lms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// EnrollmentHandler covers enrollment and the payments history.
type EnrollmentHandler struct {
	enrollment   service.EnrollmentService
	transactions service.TransactionService
	validate     *validator.Validate
	logger       zerolog.Logger
}

func NewEnrollmentHandler(enrollment service.EnrollmentService, transactions service.TransactionService, validate *validator.Validate, logger zerolog.Logger) *EnrollmentHandler {
	return &EnrollmentHandler{enrollment: enrollment, transactions: transactions, validate: validate, logger: logger}
}

// RegisterRoutes mounts v1 enrollment and transaction routes
func (h *EnrollmentHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("POST /courses/{courseId}/enroll", authMw(http.HandlerFunc(h.enroll)))
	mux.Handle("GET /users/me/enrollments", authMw(http.HandlerFunc(h.listEnrollments)))
	mux.Handle("GET /users/me/transactions", authMw(http.HandlerFunc(h.listMyTransactions)))
	mux.Handle("GET /transactions/{transactionId}", authMw(http.HandlerFunc(h.getTransaction)))

	mux.Handle("POST /admin/enrollments", adminMw(http.HandlerFunc(h.grant)))
	mux.Handle("GET /admin/transactions", adminMw(http.HandlerFunc(h.listAllTransactions)))
}

// enroll godoc
// @Summary Enroll in a course
// @Description Free courses enroll immediately (201). Paid courses return a checkout URL (202) and enroll when payment settles.
// @Tags enrollment
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 201 {object} dto.EnrollResponseDTO
// @Success 202 {object} dto.EnrollResponseDTO
// @Failure 503 {string} string "payments are not configured"
// @Router /courses/{courseId}/enroll [post]
func (h *EnrollmentHandler) enroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	res, err := h.enrollment.Enroll(r.Context(), userID, r.PathValue("courseId"))
	if err != nil {
		writeError(w, h.logger, "Failed to enroll", err)
		return
	}
	status := http.StatusCreated
	if res.Enrollment == nil {
		status = http.StatusAccepted
	}
	writeJSON(w, status, toEnrollResponse(res))
}

func (h *EnrollmentHandler) listEnrollments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	list, err := h.enrollment.ListForUser(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "Failed to list enrollments", err)
		return
	}
	if list == nil {
		list = []model.Enrollment{}
	}
	writeJSON(w, http.StatusOK, list)
}

// grant godoc
// @Summary Enroll a user without payment
// @Tags admin
// @Accept json
// @Produce json
// @Param enrollment body dto.GrantEnrollmentDTO true "User and course"
// @Success 201 {object} model.Enrollment
// @Router /admin/enrollments [post]
func (h *EnrollmentHandler) grant(w http.ResponseWriter, r *http.Request) {
	var req dto.GrantEnrollmentDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	e, err := h.enrollment.Grant(r.Context(), req.UserID, req.CourseID)
	if err != nil {
		writeError(w, h.logger, "Failed to grant enrollment", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (h *EnrollmentHandler) listMyTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	h.listTransactions(w, r, userID)
}

// listAllTransactions godoc
// @Summary List payments across all users
// @Tags admin
// @Produce json
// @Param user_id query string false "Filter by user"
// @Param status query string false "pending, succeeded, failed, refunded"
// @Success 200 {object} dto.PageDTO[model.Transaction]
// @Router /admin/transactions [get]
func (h *EnrollmentHandler) listAllTransactions(w http.ResponseWriter, r *http.Request) {
	h.listTransactions(w, r, r.URL.Query().Get("user_id"))
}

func (h *EnrollmentHandler) listTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := pagination(r)
	txs, total, err := h.transactions.List(r.Context(), model.TransactionFilter{
		UserID: userID,
		Status: r.URL.Query().Get("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to list transactions", err)
		return
	}
	if txs == nil {
		txs = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, dto.PageDTO[model.Transaction]{Items: txs, Total: total, Limit: limit, Offset: offset})
}

func (h *EnrollmentHandler) getTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	tx, err := h.transactions.Get(r.Context(), userID, r.PathValue("transactionId"))
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve transaction", err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
