package users

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/security-console/internal/access"
	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/provider"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// Handler manages user management endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	gate      access.Gate
	codes     Codes
	notifier  shared.Notifier
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, gate access.Gate, codes Codes) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &Handler{
		logger:    logger,
		service:   service,
		gate:      gate,
		codes:     codes,
		notifier:  shared.FlashNotifier{Logger: logger},
		validator: v,
	}
}

// MountRoutes registers user routes. Callers gate the router with the list
// code before mounting; create and delete carry their own codes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listUsers)
	r.With(h.gate.Action(h.codes.Create)).Post("/", h.createUser)
	r.With(h.gate.Action(h.codes.Delete)).Delete("/{id}", h.deleteUser)
}

type listResponse struct {
	Users    []provider.User       `json:"users"`
	Controls map[string]bool       `json:"controls"`
	Flashes  []shared.FlashMessage `json:"flashes,omitempty"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", shared.UserSafeMessage(err))
		return
	}
	resp := listResponse{
		Users: users,
		Controls: h.gate.Controls(access.PermissionsFromContext(r.Context()),
			access.Control{Name: ControlCreate, Code: h.codes.Create},
			access.Control{Name: ControlDelete, Code: h.codes.Delete},
		),
	}
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		resp.Flashes = sess.PopFlashes()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) createUser(w http.ResponseWriter, r *http.Request) {
	var req provider.NewUser
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid request")
			return
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		httpx.FieldProblem(w, "invalid user", fields)
		return
	}

	user, err := h.service.CreateUser(r.Context(), req)
	if err != nil {
		h.respondError(w, r, "create user failed", err)
		return
	}
	h.notifier.Notify(r.Context(), shared.SeveritySuccess, "User created successfully")
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.FieldProblem(w, "invalid user", map[string]string{"id": "invalid"})
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.respondError(w, r, "delete user failed", err)
		return
	}
	h.notifier.Notify(r.Context(), shared.SeveritySuccess, "User deleted successfully")
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	msg := shared.UserSafeMessage(err)
	var fe httpx.FieldErrorer
	switch {
	case errors.Is(err, httpx.ErrValidation) && errors.As(err, &fe) && len(fe.Fields()) > 0:
		httpx.FieldProblem(w, msg, fe.Fields())
	case errors.Is(err, httpx.ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", msg)
	case errors.Is(err, httpx.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", msg)
	default:
		h.logger.Error(op, slog.Any("error", err))
		h.notifier.Notify(r.Context(), shared.SeverityError, msg)
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", msg)
	}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "email":
		return fe.Field() + " is not valid"
	default:
		return fe.Tag()
	}
}
