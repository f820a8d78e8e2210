package handler

import (
	"net/http"

	"lms/internal/api/v1/dto"
	"lms/internal/model"
	"lms/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

type UserHandler struct {
	userService service.UserService
	validate    *validator.Validate
	logger      zerolog.Logger
}

func NewUserHandler(userService service.UserService, v *validator.Validate, logger zerolog.Logger) *UserHandler {
	return &UserHandler{userService: userService, validate: v, logger: logger}
}

// RegisterRoutes mounts v1 user routes
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, authMw, adminMw func(http.Handler) http.Handler) {
	mux.Handle("POST /users/me", authMw(http.HandlerFunc(h.createUser)))
	mux.Handle("GET /users/me", authMw(http.HandlerFunc(h.getUser)))
	mux.Handle("PATCH /users/me", authMw(http.HandlerFunc(h.updateUser)))

	mux.Handle("GET /admin/users", adminMw(http.HandlerFunc(h.listUsers)))
	mux.Handle("PUT /admin/users/{userId}/role", adminMw(http.HandlerFunc(h.setRole)))
	mux.Handle("POST /admin/users/{userId}/ban", adminMw(http.HandlerFunc(h.ban)))
	mux.Handle("POST /admin/users/{userId}/unban", adminMw(http.HandlerFunc(h.unban)))
	mux.Handle("POST /admin/users/{userId}/password-reset", adminMw(http.HandlerFunc(h.passwordReset)))
}

// createUser godoc
// @Summary Create or refresh the current user's profile
// @Description Called after sign-in. New profiles get the student role.
// @Tags users
// @Accept json
// @Produce json
// @Param user body dto.UserCreateDTO true "Profile"
// @Success 201 {object} dto.UserResponseDTO
// @Failure 400 {string} string "Invalid JSON payload or validation failed"
// @Router /users/me [post]
func (h *UserHandler) createUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.UserCreateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}

	created, err := h.userService.Create(r.Context(), &model.User{
		UserID:    userID,
		Name:      req.Name,
		Email:     req.Email,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to create user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(created))
}

// getUser godoc
// @Summary Get the current user's profile
// @Tags users
// @Produce json
// @Success 200 {object} dto.UserResponseDTO
// @Failure 404 {string} string "user not found"
// @Router /users/me [get]
func (h *UserHandler) getUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	user, err := h.userService.Get(r.Context(), userID)
	if err != nil {
		writeError(w, h.logger, "Failed to retrieve user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) updateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req dto.UserUpdateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	user, err := h.userService.UpdateProfile(r.Context(), &model.User{
		UserID:    userID,
		Name:      req.Name,
		AvatarURL: req.AvatarURL,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to update user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// listUsers godoc
// @Summary List users
// @Tags admin
// @Produce json
// @Param role query string false "student or admin"
// @Param search query string false "Name or email substring"
// @Success 200 {object} dto.PageDTO[dto.UserResponseDTO]
// @Router /admin/users [get]
func (h *UserHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	q := r.URL.Query()
	users, total, err := h.userService.ListUsers(r.Context(), model.UserFilter{
		Role:   q.Get("role"),
		Search: q.Get("search"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeError(w, h.logger, "Failed to list users", err)
		return
	}
	resp := dto.PageDTO[dto.UserResponseDTO]{Items: make([]dto.UserResponseDTO, 0, len(users)), Total: total, Limit: limit, Offset: offset}
	for i := range users {
		resp.Items = append(resp.Items, toUserResponse(&users[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *UserHandler) setRole(w http.ResponseWriter, r *http.Request) {
	var req dto.RoleUpdateDTO
	if !decode(w, r, h.validate, &req) {
		return
	}
	user, err := h.userService.SetRole(r.Context(), r.PathValue("userId"), req.Role)
	if err != nil {
		writeError(w, h.logger, "Failed to change role", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// ban godoc
// @Summary Ban a user
// @Description Blocks sign-in at the auth provider and flags the profile.
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} dto.UserResponseDTO
// @Failure 503 {string} string "auth admin is not configured"
// @Router /admin/users/{userId}/ban [post]
func (h *UserHandler) ban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, true)
}

func (h *UserHandler) unban(w http.ResponseWriter, r *http.Request) {
	h.setBanned(w, r, false)
}

func (h *UserHandler) setBanned(w http.ResponseWriter, r *http.Request, banned bool) {
	user, err := h.userService.SetBanned(r.Context(), r.PathValue("userId"), banned)
	if err != nil {
		writeError(w, h.logger, "Failed to update ban", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *UserHandler) passwordReset(w http.ResponseWriter, r *http.Request) {
	var req dto.PasswordResetDTO
	if r.ContentLength != 0 && !decode(w, r, h.validate, &req) {
		return
	}
	if err := h.userService.SendPasswordReset(r.Context(), r.PathValue("userId"), req.RedirectTo); err != nil {
		writeError(w, h.logger, "Failed to send password reset", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
