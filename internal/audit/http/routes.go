package audithttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// Exports read the whole filtered trail, so they get a tighter budget than
// the console-wide limit.
const (
	exportLimit  = 10
	exportWindow = time.Minute
)

// MountRoutes registers the audit trail and CSV export endpoints. Callers
// gate the router before mounting.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(exportLimit, exportWindow,
		httprate.WithKeyFuncs(shared.RateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "export limit reached, try again shortly")
		}),
	)
	r.Get("/audit", h.handleTimeline)
	r.With(limiter).Get("/audit/export.csv", h.handleExport)
}
