package handlers

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	userapp "github.com/usersvc/users-api/internal/application"
	"github.com/usersvc/users-api/pkg/response"
	"github.com/usersvc/users-api/pkg/validation"
)

// UserHandler exposes the CRUD surface for user records.
type UserHandler struct {
	Svc    *userapp.Service
	Logger *logrus.Logger
}

func NewUserHandler(svc *userapp.Service, logger *logrus.Logger) *UserHandler {
	return &UserHandler{Svc: svc, Logger: logger}
}

// Create handles POST /users/. Accepts JSON or multipart form data with an
// optional avatar file part.
func (h *UserHandler) Create(c *gin.Context) {
	var in userapp.CreateInput

	if isMultipart(c) {
		in.Name = c.PostForm("name")
		in.Email = c.PostForm("email")
		avatar, err := avatarFromForm(c)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "Unexpected server error")
			return
		}
		in.Avatar = avatar
	} else {
		var req createUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusUnprocessableEntity, bindDetail(err))
			return
		}
		in.Name = req.Name
		in.Email = req.Email
	}

	u, err := h.Svc.Create(c.Request.Context(), in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, newUserResponse(u))
}

// List handles GET /users/.
func (h *UserHandler) List(c *gin.Context) {
	users, err := h.Svc.List(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, newUserListResponse(users))
}

// Get handles GET /users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	u, err := h.Svc.Get(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, newUserResponse(u))
}

// Update handles PUT /users/:id. Both name and email are optional; only
// supplied fields are changed (partial update).
func (h *UserHandler) Update(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}

	var in userapp.UpdateInput
	if isMultipart(c) {
		if v, ok := c.GetPostForm("name"); ok {
			name := v
			in.Name = &name
		}
		if v, ok := c.GetPostForm("email"); ok {
			email := v
			in.Email = &email
		}
		avatar, err := avatarFromForm(c)
		if err != nil {
			response.Error(c, http.StatusInternalServerError, "Unexpected server error")
			return
		}
		in.Avatar = avatar
	} else {
		var req updateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusUnprocessableEntity, bindDetail(err))
			return
		}
		in.Name = req.Name
		in.Email = req.Email
	}

	u, err := h.Svc.Update(c.Request.Context(), id, in)
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, newUserResponse(u))
}

// Delete handles DELETE /users/:id.
func (h *UserHandler) Delete(c *gin.Context) {
	id, ok := userID(c)
	if !ok {
		return
	}
	if err := h.Svc.Delete(c.Request.Context(), id); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Search handles GET /users/search?q=...&size=...
func (h *UserHandler) Search(c *gin.Context) {
	q := c.Query("q")
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	hits, err := h.Svc.Search(c.Request.Context(), q, size)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, "Unexpected server error")
		return
	}
	response.JSON(c, http.StatusOK, hits)
}

// userID parses the :id path parameter. A non-numeric id behaves like an
// unknown user.
func userID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusNotFound, "User not found")
		return 0, false
	}
	return id, true
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

// avatarFromForm extracts the optional avatar file part. An absent part or an
// empty filename means no avatar.
func avatarFromForm(c *gin.Context) (*userapp.AvatarInput, error) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, err
	}
	if fh == nil || fh.Filename == "" {
		return nil, nil
	}
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	// The reader is consumed within the request; gin closes multipart temp
	// files when the request ends.
	return &userapp.AvatarInput{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Reader:      f,
	}, nil
}

// bindDetail flattens binding errors into a single detail string.
func bindDetail(err error) string {
	details := validation.ToDetails(err)
	if len(details) == 0 {
		return "Validation error"
	}
	fields := make([]string, 0, len(details))
	for f := range details {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+" "+details[f])
	}
	return strings.Join(parts, "; ")
}

// writeError maps service failures onto the error taxonomy: 422 validation,
// 409 conflict, 404 not found, 500 database or unexpected.
func (h *UserHandler) writeError(c *gin.Context, err error) {
	var verr *validation.Error
	if errors.As(err, &verr) {
		response.Error(c, http.StatusUnprocessableEntity, verr.Error())
		return
	}
	var dup *userapp.DuplicateEmailError
	if errors.As(err, &dup) {
		response.Error(c, http.StatusConflict, dup.Error())
		return
	}
	switch {
	case errors.Is(err, userapp.ErrEmailExists):
		response.Error(c, http.StatusConflict, "Email already exists")
	case errors.Is(err, userapp.ErrUserNotFound):
		response.Error(c, http.StatusNotFound, "User not found")
	case errors.Is(err, userapp.ErrDatabase):
		h.logError("database error", err, c)
		response.Error(c, http.StatusInternalServerError, "Database error")
	default:
		h.logError("unexpected error", err, c)
		response.Error(c, http.StatusInternalServerError, "Unexpected server error")
	}
}

func (h *UserHandler) logError(msg string, err error, c *gin.Context) {
	if h.Logger == nil {
		return
	}
	h.Logger.WithError(err).WithFields(logrus.Fields{
		"request_id": c.GetString("request_id"),
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
	}).Error(msg)
}
