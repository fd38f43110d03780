package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/userhub/apiserver/internal/logging"
	"github.com/userhub/apiserver/internal/services"
	"github.com/userhub/apiserver/types"
)

type userService interface {
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	List(ctx context.Context, page, size int) (types.UserPage, error)
	Create(ctx context.Context, in types.UserInput) (types.User, error)
	Replace(ctx context.Context, id uuid.UUID, in types.UserInput) (types.User, error)
	Patch(ctx context.Context, id uuid.UUID, patch types.UserPatch) (types.User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// UserRequest is the body of a create or full update.
type UserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email,max=100"`
	FirstName string `json:"first_name" validate:"required,min=1,max=50"`
	LastName  string `json:"last_name" validate:"required,min=1,max=50"`
	Role      string `json:"role" validate:"required,oneof=admin user guest"`
	Active    *bool  `json:"active"`
}

func (req *UserRequest) normalize() {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Role = strings.TrimSpace(req.Role)
}

func (req UserRequest) input() types.UserInput {
	return types.UserInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      types.Role(req.Role),
		Active:    req.Active,
	}
}

// patchRules holds the per-field checks for a partial update. Fields not
// listed here are ignored.
var patchRules = []struct {
	field types.UserField
	tag   string
}{
	{types.FieldUsername, "min=3,max=50"},
	{types.FieldEmail, "email,max=100"},
	{types.FieldFirstName, "min=1,max=50"},
	{types.FieldLastName, "min=1,max=50"},
	{types.FieldRole, "oneof=admin user guest"},
	{types.FieldActive, ""},
}

// UserHandler provides HTTP handlers for users.
type UserHandler struct {
	users    userService
	validate *validator.Validate
}

func NewUserHandler(users userService) *UserHandler {
	return &UserHandler{
		users:    users,
		validate: newValidator(),
	}
}

// UserRouter registers user routes on the given router.
func UserRouter(r chi.Router, users userService) {
	handler := NewUserHandler(users)

	r.Get("/", handler.ListUsers)
	r.Post("/", handler.CreateUser)
	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", handler.GetUser)
		r.Put("/", handler.ReplaceUser)
		r.Patch("/", handler.PatchUser)
		r.Delete("/", handler.DeleteUser)
	})
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	page, size, fields := parsePagination(r)
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	result, err := h.users.List(r.Context(), page, size)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.users.GetByID(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	req, ok := h.readUserRequest(w, r)
	if !ok {
		return
	}

	created, err := h.users.Create(r.Context(), req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	w.Header().Set("Location", "/users/"+created.ID.String())
	writeJSON(w, http.StatusCreated, created)
}

func (h *UserHandler) ReplaceUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	req, ok := h.readUserRequest(w, r)
	if !ok {
		return
	}

	updated, err := h.users.Replace(r.Context(), id, req.input())
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) PatchUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var raw map[string]json.RawMessage
	if err := decodeBody(w, r, &raw); err != nil {
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	patch, fields := h.parsePatch(raw)
	if len(fields) > 0 {
		writeValidationError(w, fields)
		return
	}

	updated, err := h.users.Patch(r.Context(), id, patch)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.users.Delete(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readUserRequest decodes, trims and validates a full user body. It writes
// the 422 response itself and reports false when the body is rejected.
func (h *UserHandler) readUserRequest(w http.ResponseWriter, r *http.Request) (UserRequest, bool) {
	var req UserRequest
	if err := decodeBody(w, r, &req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			writeValidationError(w, []FieldError{{Field: typeErr.Field, Message: "has the wrong type"}})
			return UserRequest{}, false
		}
		writeError(w, http.StatusUnprocessableEntity, "invalid request body")
		return UserRequest{}, false
	}

	req.normalize()
	if err := h.validate.Struct(req); err != nil {
		writeValidationError(w, fieldErrors(err))
		return UserRequest{}, false
	}
	return req, true
}

// parsePatch turns the present JSON members into a UserPatch. Explicit
// nulls are rejected and string values are trimmed before validation.
func (h *UserHandler) parsePatch(raw map[string]json.RawMessage) (types.UserPatch, []FieldError) {
	patch := types.UserPatch{}
	var fields []FieldError

	for _, rule := range patchRules {
		name := string(rule.field)
		value, ok := raw[name]
		if !ok {
			continue
		}
		if bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			fields = append(fields, FieldError{Field: name, Message: "must not be null"})
			continue
		}

		if rule.field == types.FieldActive {
			var active bool
			if err := json.Unmarshal(value, &active); err != nil {
				fields = append(fields, FieldError{Field: name, Message: "must be a boolean"})
				continue
			}
			patch[rule.field] = active
			continue
		}

		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			fields = append(fields, FieldError{Field: name, Message: "must be a string"})
			continue
		}
		s = strings.TrimSpace(s)
		if fe := validateVar(h.validate, name, s, rule.tag); fe != nil {
			fields = append(fields, *fe)
			continue
		}
		if rule.field == types.FieldRole {
			patch[rule.field] = types.Role(s)
		} else {
			patch[rule.field] = s
		}
	}

	return patch, fields
}

func (h *UserHandler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, services.ErrDuplicateUser):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, types.ErrInvalidPatch):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		logging.FromContext(r.Context()).Error("user request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// maxPage keeps (page-1)*size inside int for every accepted size.
const maxPage = math.MaxInt / services.MaxPageSize

func parsePagination(r *http.Request) (page, size int, fields []FieldError) {
	page = 1
	size = services.DefaultPageSize

	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxPage {
			fields = append(fields, FieldError{
				Field:   "page",
				Message: "must be an integer between 1 and " + strconv.Itoa(maxPage),
			})
		} else {
			page = n
		}
	}

	if raw := strings.TrimSpace(r.URL.Query().Get("size")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > services.MaxPageSize {
			fields = append(fields, FieldError{
				Field:   "size",
				Message: "must be an integer between 1 and " + strconv.Itoa(services.MaxPageSize),
			})
		} else {
			size = n
		}
	}

	return page, size, fields
}
