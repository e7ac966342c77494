package roles

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// Handler serves the role listing and access reports.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	renderer Renderer
}

// NewHandler builds Handler instance. A nil renderer disables PDF output.
func NewHandler(logger *slog.Logger, service *Service, renderer Renderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer}
}

// MountRoutes registers role routes. Callers gate the router before mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/{id}/report", h.showReport)
	r.Get("/{id}/report.pdf", h.exportReport)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": roles, "flashes": popFlashes(r)})
}

func (h *Handler) showReport(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	rep, err := h.service.Report(r.Context(), id)
	if err != nil {
		h.fail(w, "role report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) exportReport(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "PDF rendering is not configured")
		return
	}
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	rep, err := h.service.Report(r.Context(), id)
	if err != nil {
		h.fail(w, "role report", err)
		return
	}
	html, err := RenderReportHTML(rep)
	if err != nil {
		h.fail(w, "render role report", err)
		return
	}
	pdf, err := h.renderer.RenderHTML(r.Context(), html)
	if err != nil {
		h.fail(w, "render role report pdf", err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"role-%d.pdf\"", id))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, httpx.ErrNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", shared.UserSafeMessage(err))
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	httpx.Problem(w, http.StatusBadGateway, "Upstream Error", shared.UserSafeMessage(err))
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.FieldProblem(w, "invalid role", map[string]string{"id": "invalid"})
		return 0, false
	}
	return id, true
}

func popFlashes(r *http.Request) []shared.FlashMessage {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.PopFlashes()
	}
	return nil
}
