package access

import (
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/security-console/internal/platform/httpx"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny is the zero value so an unset decision never grants access.
	Deny Decision = iota
	Allow
)

func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

// Authorize allows iff required is a member of granted.
func Authorize(required string, granted PermissionSet) Decision {
	if granted.Has(required) {
		return Allow
	}
	return Deny
}

// DefaultUnauthorizedPath is where denied screen navigations are sent.
const DefaultUnauthorizedPath = "/unauthorized"

// Observer receives every gate decision.
type Observer interface {
	ObserveDecision(code string, decision Decision)
}

// Control names an interactive element and the code that enables it.
type Control struct {
	Name string
	Code string
}

// Gate wires authorization into HTTP handlers.
type Gate struct {
	Logger           *slog.Logger
	Observer         Observer
	UnauthorizedPath string
}

// Check evaluates code against the permission set carried by r.
func (g Gate) Check(r *http.Request, code string) Decision {
	return g.decide(PermissionsFromContext(r.Context()), code)
}

// Screen guards a whole screen. On deny the next handler is never invoked:
// navigations are redirected to the unauthorized destination and any other
// method receives 403.
func (g Gate) Screen(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Check(r, code) == Allow {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				http.Redirect(w, r, g.unauthorizedPath(), http.StatusSeeOther)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "not permitted")
		})
	}
}

// Action guards a single mutating endpoint.
func (g Gate) Action(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if g.Check(r, code) == Allow {
				next.ServeHTTP(w, r)
				return
			}
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "not permitted")
		})
	}
}

// Controls decides each control independently against granted.
func (g Gate) Controls(granted PermissionSet, controls ...Control) map[string]bool {
	out := make(map[string]bool, len(controls))
	for _, c := range controls {
		out[c.Name] = g.decide(granted, c.Code) == Allow
	}
	return out
}

func (g Gate) decide(granted PermissionSet, code string) Decision {
	decision := Authorize(code, granted)
	if g.Observer != nil {
		g.Observer.ObserveDecision(code, decision)
	}
	if decision == Deny && g.Logger != nil {
		g.Logger.Debug("access denied", slog.String("code", code))
	}
	return decision
}

func (g Gate) unauthorizedPath() string {
	if g.UnauthorizedPath == "" {
		return DefaultUnauthorizedPath
	}
	return g.UnauthorizedPath
}
