// Package assignmenthttp serves the two-pane assignment editor.
package assignmenthttp

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/security-console/internal/access"
	"github.com/odyssey-erp/security-console/internal/assignment"
	"github.com/odyssey-erp/security-console/internal/platform/httpx"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// Control names reported by the screen endpoint.
const (
	ControlParentSelector = "parentSelector"
	ControlAvailablePane  = "availablePane"
	ControlAssignedPane   = "assignedPane"
	ControlAssign         = "assign"
)

// Handler exposes one editor per relation.
type Handler struct {
	logger    *slog.Logger
	gate      access.Gate
	editors   []*assignment.Reconciler
	validator *validator.Validate
}

// NewHandler builds a handler serving each reconciler under its relation name.
func NewHandler(logger *slog.Logger, gate access.Gate, editors ...*assignment.Reconciler) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, editors: editors, validator: validator.New()}
}

type selectRequest struct {
	ParentID int64 `json:"parentId" validate:"required,gt=0"`
}

type toggleRequest struct {
	ItemID int64 `json:"itemId" validate:"required,gt=0"`
}

type screenResponse struct {
	Relation string                `json:"relation"`
	Parent   string                `json:"parent"`
	Items    string                `json:"items"`
	Grouped  bool                  `json:"grouped"`
	Controls map[string]bool       `json:"controls"`
	Flashes  []shared.FlashMessage `json:"flashes,omitempty"`
}

type viewResponse struct {
	assignment.View
	Flashes []shared.FlashMessage `json:"flashes,omitempty"`
}

type commitResponse struct {
	assignment.CommitResult
	Flashes []shared.FlashMessage `json:"flashes,omitempty"`
}

type editor struct {
	h   *Handler
	rec *assignment.Reconciler
}

func (e editor) controls(r *http.Request) map[string]bool {
	codes := e.rec.Relation().Codes
	return e.h.gate.Controls(access.PermissionsFromContext(r.Context()),
		access.Control{Name: ControlParentSelector, Code: codes.Parents},
		access.Control{Name: ControlAvailablePane, Code: codes.Candidates},
		access.Control{Name: ControlAssignedPane, Code: codes.Assigned},
		access.Control{Name: ControlAssign, Code: codes.Update},
	)
}

func (e editor) key(r *http.Request) (assignment.Key, bool) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.ID == "" {
		return assignment.Key{}, false
	}
	return assignment.Key{Session: sess.ID, Relation: e.rec.Relation().Name}, true
}

func (e editor) handleScreen(w http.ResponseWriter, r *http.Request) {
	rel := e.rec.Relation()
	httpx.JSON(w, http.StatusOK, screenResponse{
		Relation: rel.Name,
		Parent:   rel.Parent,
		Items:    rel.Items,
		Grouped:  rel.Grouped,
		Controls: e.controls(r),
		Flashes:  popFlashes(r),
	})
}

func (e editor) handleSelect(w http.ResponseWriter, r *http.Request) {
	key, ok := e.key(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}
	var req selectRequest
	if !e.h.decode(w, r, &req) {
		return
	}
	state, err := e.rec.SelectParent(r.Context(), key, req.ParentID)
	if err != nil {
		e.h.respondError(w, "select parent", err)
		return
	}
	e.renderView(w, r, state, assignment.ViewOptions{})
}

func (e editor) handleToggle(w http.ResponseWriter, r *http.Request) {
	key, ok := e.key(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}
	var req toggleRequest
	if !e.h.decode(w, r, &req) {
		return
	}
	state, err := e.rec.Toggle(r.Context(), key, req.ItemID)
	if err != nil {
		e.h.respondError(w, "toggle item", err)
		return
	}
	e.renderView(w, r, state, assignment.ViewOptions{})
}

func (e editor) handleView(w http.ResponseWriter, r *http.Request) {
	key, ok := e.key(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}
	state, err := e.rec.Current(r.Context(), key)
	if err != nil {
		e.h.respondError(w, "load view", err)
		return
	}
	q := r.URL.Query()
	e.renderView(w, r, state, assignment.ViewOptions{
		AvailableQuery: q.Get("available"),
		AssignedQuery:  q.Get("assigned"),
	})
}

func (e editor) handleCommit(w http.ResponseWriter, r *http.Request) {
	key, ok := e.key(r)
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "session required")
		return
	}
	result, err := e.rec.Commit(r.Context(), key)
	if err != nil {
		e.h.respondError(w, "commit", err)
		return
	}
	httpx.JSON(w, http.StatusOK, commitResponse{CommitResult: result, Flashes: popFlashes(r)})
}

// renderView hides each pane the operator may not read.
func (e editor) renderView(w http.ResponseWriter, r *http.Request, state assignment.State, opts assignment.ViewOptions) {
	opts.Grouped = e.rec.Relation().Grouped
	view := assignment.BuildView(state, opts)
	controls := e.controls(r)
	if !controls[ControlAvailablePane] {
		view.Available = nil
	}
	if !controls[ControlAssignedPane] {
		view.Assigned = nil
	}
	httpx.JSON(w, http.StatusOK, viewResponse{View: view, Flashes: popFlashes(r)})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed request body")
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		fields := make(map[string]string)
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
		}
		httpx.FieldProblem(w, "invalid request", fields)
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	var fe httpx.FieldErrorer
	switch {
	case errors.Is(err, assignment.ErrStaleResponse):
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, assignment.ErrNoSelection):
		httpx.Problem(w, http.StatusConflict, "Conflict", "no parent selected")
	case errors.Is(err, assignment.ErrContention):
		httpx.Problem(w, http.StatusConflict, "Conflict", "workspace busy, retry")
	case errors.Is(err, assignment.ErrUnknownItem):
		httpx.FieldProblem(w, "unknown item", map[string]string{"itemId": "unknown"})
	case errors.Is(err, assignment.ErrInvalidParent):
		httpx.FieldProblem(w, "invalid parent", map[string]string{"parentId": "invalid"})
	case errors.Is(err, httpx.ErrValidation) && errors.As(err, &fe):
		httpx.FieldProblem(w, shared.UserSafeMessage(err), fe.Fields())
	case errors.Is(err, httpx.ErrValidation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Validation Failed", shared.UserSafeMessage(err))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Upstream Error", shared.UserSafeMessage(err))
	}
}

func popFlashes(r *http.Request) []shared.FlashMessage {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		return sess.PopFlashes()
	}
	return nil
}
