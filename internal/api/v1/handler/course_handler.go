package handler

import (
	"io"
	"net/http"

	"lms/internal/api/v1/dto"
	"lms/internal/middleware"
	"lms/internal/model"
	"lms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// maxCoverBytes bounds cover image uploads.
const maxCoverBytes = 10 << 20

// CourseHandler handles catalog browsing and admin authoring endpoints
type CourseHandler struct {
	courseService service.CourseService
	validate      *validator.Validate
	logger        zerolog.Logger
}

// NewCourseHandler creates a new CourseHandler
func NewCourseHandler(courseService service.CourseService, validate *validator.Validate, logger zerolog.Logger) *CourseHandler {
	return &CourseHandler{courseService: courseService, validate: validate, logger: logger}
}

// RegisterRoutes mounts public catalog routes and admin authoring routes
func (h *CourseHandler) RegisterRoutes(mux *http.ServeMux, adminMw func(http.Handler) http.Handler) {
	mux.HandleFunc("GET /courses", h.listCourses)
	mux.HandleFunc("GET /courses/{courseId}", h.getCourse)

	mux.Handle("GET /admin/courses", adminMw(http.HandlerFunc(h.adminListCourses)))
	mux.Handle("POST /admin/courses", adminMw(http.HandlerFunc(h.createCourse)))
	mux.Handle("GET /admin/courses/{courseId}", adminMw(http.HandlerFunc(h.adminGetCourse)))
	mux.Handle("PATCH /admin/courses/{courseId}", adminMw(http.HandlerFunc(h.updateCourse)))
	mux.Handle("DELETE /admin/courses/{courseId}", adminMw(http.HandlerFunc(h.deleteCourse)))
	mux.Handle("PUT /admin/courses/{courseId}/state", adminMw(http.HandlerFunc(h.setCourseState)))
	mux.Handle("PUT /admin/courses/{courseId}/cover", adminMw(http.HandlerFunc(h.uploadCover)))

	mux.Handle("POST /admin/courses/{courseId}/modules", adminMw(http.HandlerFunc(h.createModule)))
	mux.Handle("PUT /admin/modules/{moduleId}", adminMw(http.HandlerFunc(h.updateModule)))
	mux.Handle("DELETE /admin/modules/{moduleId}", adminMw(http.HandlerFunc(h.deleteModule)))

	mux.Handle("POST /admin/modules/{moduleId}/lessons", adminMw(http.HandlerFunc(h.createLesson)))
	mux.Handle("PUT /admin/lessons/{lessonId}", adminMw(http.HandlerFunc(h.updateLesson)))
	mux.Handle("DELETE /admin/lessons/{lessonId}", adminMw(http.HandlerFunc(h.deleteLesson)))

	mux.Handle("POST /admin/catalog/reset", adminMw(http.HandlerFunc(h.resetCatalog)))
}

// listCourses godoc
// @Summary List published courses
// @Tags courses
// @Produce json
// @Param search query string false "Name or description substring"
// @Param limit query int false "Page size (max 100)"
// @Param offset query int false "Offset"
// @Success 200 {object} dto.PageDTO[dto.CourseResponseDTO]
// @Router /courses [get]
func (h *CourseHandler) listCourses(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, false)
}

// adminListCourses godoc
// @Summary List all courses including drafts
// @Tags admin
// @Produce json
// @Param state query string false "draft or published"
// @Success 200 {object} dto.PageDTO[dto.CourseResponseDTO]
// @Router /admin/courses [get]
func (h *CourseHandler) adminListCourses(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, true)
}

func (h *CourseHandler) list(w http.ResponseWriter, r *http.Request, includeDrafts bool) {
	limit, offset := pagination(r)
	f := model.CourseFilter{
		Search: r.URL.Query().Get("search"),
		Limit:  limit,
		Offset: offset,
	}
	if includeDrafts {
		f.State = model.CourseState(r.URL.Query().Get("state"))
	}
	courses, total, err := h.courseService.ListCourses(r.Context(), f, includeDrafts)
	if err != nil {
		writeError(w, h.logger, "Failed to list courses", err)
		return
	}
	resp := dto.PageDTO[dto.CourseResponseDTO]{Items: make([]dto.CourseResponseDTO, 0, len(courses)), Total: total, Limit: limit, Offset: offset}
	for i := range courses {
		resp.Items = append(resp.Items, toCourseResponse(&courses[i], h.courseService.CoverURL(&courses[i]), false))
	}
	writeJSON(w, http.StatusOK, resp)
}

// getCourse godoc
// @Summary Get a published course with its modules and lessons
// @Description Quiz answers are never included.
// @Tags courses
// @Produce json
// @Param courseId path string true "Course ID"
// @Success 200 {object} dto.CourseResponseDTO
// @Failure 404 {string} string "course not found"
// @Router /courses/{courseId} [get]
func (h *CourseHandler) getCourse(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, false)
}

func (h *CourseHandler) adminGetCourse(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, true)
}

func (h *CourseHandler) get(w http.ResponseWriter, r *http.Request, admin bool) {
	c, err := h.courseService.GetCourse(r.Context(), r.PathValue("courseId"), admin)
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve course", err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(c, h.courseService.CoverURL(c), admin))
}

// createCourse godoc
// @Summary Create a draft course
// @Tags admin
// @Accept json
// @Produce json
// @Param course body dto.CourseCreateDTO true "Course creation request"
// @Success 201 {object} dto.CourseResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Router /admin/courses [post]
func (h *CourseHandler) createCourse(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.CourseCreateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	course := &model.Course{
		Name:       req.Name,
		PriceCents: req.PriceCents,
		Currency:   req.Currency,
		CreatedBy:  userID,
	}
	if req.Description != nil {
		course.Description = *req.Description
	}
	created, err := h.courseService.CreateCourse(r.Context(), course)
	if err != nil {
		writeError(w, h.logger, "Failed to create course", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCourseResponse(created, "", true))
}

// updateCourse godoc
// @Summary Update course details
// @Tags admin
// @Accept json
// @Produce json
// @Param courseId path string true "Course ID"
// @Param course body dto.CourseUpdateDTO true "Fields to change"
// @Success 200 {object} dto.CourseResponseDTO
// @Router /admin/courses/{courseId} [patch]
func (h *CourseHandler) updateCourse(w http.ResponseWriter, r *http.Request) {
	var req dto.CourseUpdateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	current, err := h.courseService.GetCourse(r.Context(), r.PathValue("courseId"), true)
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve course", err)
		return
	}
	current.Modules = nil
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Description != nil {
		current.Description = *req.Description
	}
	if req.PriceCents != nil {
		current.PriceCents = *req.PriceCents
	}
	if req.Currency != nil {
		current.Currency = *req.Currency
	}
	updated, err := h.courseService.UpdateCourse(r.Context(), current)
	if err != nil {
		writeError(w, h.logger, "Failed to update course", err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(updated, h.courseService.CoverURL(updated), true))
}

// setCourseState godoc
// @Summary Publish or unpublish a course
// @Description Publishing validates lesson order and content.
// @Tags admin
// @Accept json
// @Param courseId path string true "Course ID"
// @Param state body dto.CourseStateDTO true "Target state"
// @Success 200 {object} dto.CourseResponseDTO
// @Failure 400 {string} string "invalid lesson"
// @Router /admin/courses/{courseId}/state [put]
func (h *CourseHandler) setCourseState(w http.ResponseWriter, r *http.Request) {
	var req dto.CourseStateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	c, err := h.courseService.SetCourseState(r.Context(), r.PathValue("courseId"), req.State)
	if err != nil {
		writeError(w, h.logger, "Failed to change course state", err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(c, h.courseService.CoverURL(c), true))
}

// deleteCourse godoc
// @Summary Delete a course and its stored files
// @Tags admin
// @Param courseId path string true "Course ID"
// @Success 204 "No Content"
// @Router /admin/courses/{courseId} [delete]
func (h *CourseHandler) deleteCourse(w http.ResponseWriter, r *http.Request) {
	if err := h.courseService.DeleteCourse(r.Context(), r.PathValue("courseId")); err != nil {
		writeError(w, h.logger, "Failed to delete course", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadCover godoc
// @Summary Upload a course cover image
// @Description Raw JPEG, PNG or GIF bytes. The image is resized to fit 1280x720.
// @Tags admin
// @Accept octet-stream
// @Param courseId path string true "Course ID"
// @Success 200 {object} dto.CourseResponseDTO
// @Failure 413 {string} string "cover too large"
// @Router /admin/courses/{courseId}/cover [put]
func (h *CourseHandler) uploadCover(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCoverBytes))
	if err != nil {
		http.Error(w, "cover too large", http.StatusRequestEntityTooLarge)
		return
	}
	c, err := h.courseService.UploadCover(r.Context(), r.PathValue("courseId"), data)
	if err != nil {
		writeError(w, h.logger, "Failed to upload cover", err)
		return
	}
	writeJSON(w, http.StatusOK, toCourseResponse(c, h.courseService.CoverURL(c), true))
}

func (h *CourseHandler) createModule(w http.ResponseWriter, r *http.Request) {
	var req dto.ModuleCreateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	m, err := h.courseService.CreateModule(r.Context(), &model.Module{
		CourseID:   r.PathValue("courseId"),
		Name:       req.Name,
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to create module", err)
		return
	}
	writeJSON(w, http.StatusCreated, toModuleResponse(*m, true))
}

func (h *CourseHandler) updateModule(w http.ResponseWriter, r *http.Request) {
	var req dto.ModuleUpdateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	m, err := h.courseService.UpdateModule(r.Context(), &model.Module{
		ID:         r.PathValue("moduleId"),
		Name:       req.Name,
		OrderIndex: req.OrderIndex,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to update module", err)
		return
	}
	writeJSON(w, http.StatusOK, toModuleResponse(*m, true))
}

func (h *CourseHandler) deleteModule(w http.ResponseWriter, r *http.Request) {
	if err := h.courseService.DeleteModule(r.Context(), r.PathValue("moduleId")); err != nil {
		writeError(w, h.logger, "Failed to delete module", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// createLesson godoc
// @Summary Add a lesson to a module
// @Description order_index 0 appends the lesson. Quiz content is validated.
// @Tags admin
// @Accept json
// @Produce json
// @Param moduleId path string true "Module ID"
// @Param lesson body dto.LessonCreateDTO true "Lesson"
// @Success 201 {object} dto.LessonResponseDTO
// @Failure 409 {string} string "order index already used"
// @Router /admin/modules/{moduleId}/lessons [post]
func (h *CourseHandler) createLesson(w http.ResponseWriter, r *http.Request) {
	var req dto.LessonCreateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	l, err := h.courseService.CreateLesson(r.Context(), &model.Lesson{
		ModuleID:   r.PathValue("moduleId"),
		Title:      req.Title,
		Type:       req.Type,
		OrderIndex: req.OrderIndex,
		Content:    req.Content,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to create lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLessonResponse(*l, true))
}

func (h *CourseHandler) updateLesson(w http.ResponseWriter, r *http.Request) {
	var req dto.LessonUpdateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	l, err := h.courseService.UpdateLesson(r.Context(), &model.Lesson{
		ID:         r.PathValue("lessonId"),
		Title:      req.Title,
		OrderIndex: req.OrderIndex,
		Content:    req.Content,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to update lesson", err)
		return
	}
	writeJSON(w, http.StatusOK, toLessonResponse(*l, true))
}

func (h *CourseHandler) deleteLesson(w http.ResponseWriter, r *http.Request) {
	if err := h.courseService.DeleteLesson(r.Context(), r.PathValue("lessonId")); err != nil {
		writeError(w, h.logger, "Failed to delete lesson", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// resetCatalog godoc
// @Summary Restore the local catalog to its seed
// @Tags admin
// @Success 204 "No Content"
// @Router /admin/catalog/reset [post]
func (h *CourseHandler) resetCatalog(w http.ResponseWriter, r *http.Request) {
	if err := h.courseService.ResetLocal(r.Context()); err != nil {
		writeError(w, h.logger, "Failed to reset catalog", err)
		return
	}
	userID, _ := middleware.UserIDFromContext(r.Context())
	h.logger.Info().Str("user_id", userID).Msg("Local catalog reset")
	w.WriteHeader(http.StatusNoContent)
}
