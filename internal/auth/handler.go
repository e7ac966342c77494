package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/shared"
)

const invalidCredentialsMessage = "Invalid username or password"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	tracker        audit.Tracker
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. Successful sign-ins are audited
// through tracker under the service's login code.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, tracker audit.Tracker) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		tracker:        tracker,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/session", h.showSession)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type sessionResponse struct {
	Authenticated bool                  `json:"authenticated"`
	Username      string                `json:"username,omitempty"`
	Permissions   []string              `json:"permissions"`
	CSRFToken     string                `json:"csrfToken"`
	Flashes       []shared.FlashMessage `json:"flashes,omitempty"`
}

func (h *Handler) describe(ctx context.Context, sess *shared.Session) sessionResponse {
	token, _ := h.csrfManager.EnsureToken(ctx, sess)
	resp := sessionResponse{CSRFToken: token, Permissions: []string{}}
	if sess == nil {
		return resp
	}
	if sess.Authenticated() {
		resp.Authenticated = true
		resp.Username = sess.Username()
		resp.Permissions = sess.Permissions().Codes()
	}
	resp.Flashes = sess.PopFlashes()
	return resp
}

func (h *Handler) showSession(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	httpx.JSON(w, http.StatusOK, h.describe(r.Context(), sess))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	var creds Credentials
	if err := httpx.DecodeJSON(r, &creds); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(creds); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fieldErr := range verrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
		}
		httpx.FieldProblem(w, "invalid credentials", fields)
		return
	}

	principal, err := h.service.Authenticate(r.Context(), creds)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", invalidCredentialsMessage)
		return
	case errors.Is(err, ErrLoginNotPermitted):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "You are not allowed to sign in")
		return
	case err != nil:
		h.logger.Warn("login failed", slog.String("username", creds.Username), slog.Any("error", err))
		var fe httpx.FieldErrorer
		if errors.Is(err, httpx.ErrValidation) && errors.As(err, &fe) {
			httpx.FieldProblem(w, shared.UserSafeMessage(err), fe.Fields())
			return
		}
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", shared.UserSafeMessage(err))
		return
	}

	h.sessionManager.Renew(sess)
	h.csrfManager.Rotate(sess)
	sess.SignIn(shared.Grant{
		UserID:    principal.UserID,
		Username:  principal.Username,
		Token:     principal.Token,
		Codes:     principal.Codes,
		ExpiresAt: principal.ExpiresAt,
	})
	if h.tracker != nil {
		h.tracker.Track(r.Context(), audit.Event{
			FunctionCode: h.service.loginCode,
			Action:       "LOGIN",
			Success:      "Login successfully",
			Failure:      "Login failed",
		}, nil)
	}
	h.logger.Info("operator signed in", slog.String("username", principal.Username))
	httpx.JSON(w, http.StatusOK, h.describe(r.Context(), sess))
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}
