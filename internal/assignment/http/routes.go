package assignmenthttp

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers /assign/{relation} for every editor. The screen code
// guards the whole subtree; selecting needs the parent listing code and
// toggling or committing needs the update code.
func (h *Handler) MountRoutes(r chi.Router) {
	for _, rec := range h.editors {
		e := editor{h: h, rec: rec}
		rel := rec.Relation()
		r.Route("/assign/"+rel.Name, func(r chi.Router) {
			r.Use(h.gate.Screen(rel.Codes.Screen))
			r.Get("/", e.handleScreen)
			r.Get("/view", e.handleView)
			r.With(h.gate.Action(rel.Codes.Parents)).Post("/select", e.handleSelect)
			r.With(h.gate.Action(rel.Codes.Update)).Post("/toggle", e.handleToggle)
			r.With(h.gate.Action(rel.Codes.Update)).Post("/commit", e.handleCommit)
		})
	}
}
