package assignmenthttp_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/security-console/internal/access"
	"github.com/odyssey-erp/security-console/internal/assignment"
	assignmenthttp "github.com/odyssey-erp/security-console/internal/assignment/http"
	"github.com/odyssey-erp/security-console/internal/provider"
	"github.com/odyssey-erp/security-console/internal/shared"
)

type memorySource struct {
	mu         sync.Mutex
	assigned   map[int64][]int64
	replaceErr error
}

func catalog() []assignment.Item {
	return []assignment.Item{
		{ID: 1, Name: "SEC-ROLES-READ", Active: true, GroupID: 10, GroupLabel: "Security"},
		{ID: 2, Name: "SEC-AUDIT-READ", Active: true, GroupID: 10, GroupLabel: "Security"},
		{ID: 3, Name: "INV-STOCK-READ", Active: true, GroupID: 20, GroupLabel: "Inventory"},
	}
}

func (m *memorySource) Candidates(context.Context) ([]assignment.Item, error) {
	return catalog(), nil
}

func (m *memorySource) Assigned(_ context.Context, parentID int64) ([]assignment.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []assignment.Item
	for _, id := range m.assigned[parentID] {
		for _, it := range catalog() {
			if it.ID == id {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (m *memorySource) Replace(_ context.Context, parentID int64, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.assigned[parentID] = append([]int64(nil), ids...)
	return nil
}

var relation = assignment.Relation{
	Name:    "functions",
	Parent:  "role",
	Items:   "functions",
	Grouped: true,
	Codes: assignment.Codes{
		Screen:     shared.PermFunctionsToRoleRead,
		Parents:    shared.PermRolesRead,
		Candidates: shared.PermFunctionsRead,
		Assigned:   shared.PermFunctionsToRoleRead,
		Update:     shared.PermFunctionsToRoleUpdate,
	},
}

var everything = []string{
	shared.PermFunctionsToRoleRead,
	shared.PermRolesRead,
	shared.PermFunctionsRead,
	shared.PermFunctionsToRoleUpdate,
}

type harness struct {
	router http.Handler
	source *memorySource
	sess   *shared.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	src := &memorySource{assigned: map[int64][]int64{5: {1}}}
	rec := assignment.NewReconciler(relation, src, assignment.NewMemoryStore(),
		assignment.WithNotifier(shared.FlashNotifier{}))
	h := assignmenthttp.NewHandler(nil, access.Gate{}, rec)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return &harness{router: r, source: src, sess: &shared.Session{ID: "sess-1"}}
}

func (h *harness) do(t *testing.T, method, target, body string, codes ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	ctx := shared.ContextWithSession(req.Context(), h.sess)
	ctx = access.WithPermissions(ctx, access.NewPermissionSet(codes...))
	res := httptest.NewRecorder()
	h.router.ServeHTTP(res, req.WithContext(ctx))
	return res
}

type viewBody struct {
	ParentID  int64 `json:"parentId"`
	Available *struct {
		Items  []assignment.Item  `json:"items"`
		Groups []assignment.Group `json:"groups"`
	} `json:"available"`
	Assigned *struct {
		Items []assignment.Item `json:"items"`
	} `json:"assigned"`
	AssignedIDs []int64               `json:"assignedIds"`
	Flashes     []shared.FlashMessage `json:"flashes"`
}

func decodeView(t *testing.T, res *httptest.ResponseRecorder) viewBody {
	t.Helper()
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	var v viewBody
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &v))
	return v
}

func TestScreenDeniedRedirects(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/assign/functions/", "", shared.PermRolesRead)
	assert.Equal(t, http.StatusSeeOther, res.Code)
	assert.Equal(t, access.DefaultUnauthorizedPath, res.Header().Get("Location"))
}

func TestScreenReportsControlsIndependently(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/assign/functions/", "", shared.PermFunctionsToRoleRead, shared.PermFunctionsRead)
	require.Equal(t, http.StatusOK, res.Code)

	var body struct {
		Controls map[string]bool `json:"controls"`
		Grouped  bool            `json:"grouped"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &body))
	assert.True(t, body.Grouped)
	assert.Equal(t, map[string]bool{
		assignmenthttp.ControlParentSelector: false,
		assignmenthttp.ControlAvailablePane:  true,
		assignmenthttp.ControlAssignedPane:   true,
		assignmenthttp.ControlAssign:         false,
	}, body.Controls)
}

func TestSelectToggleCommit(t *testing.T) {
	h := newHarness(t)

	v := decodeView(t, h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":5}`, everything...))
	assert.Equal(t, int64(5), v.ParentID)
	assert.Equal(t, []int64{1}, v.AssignedIDs)
	require.NotNil(t, v.Available)
	assert.Len(t, v.Available.Items, 2)
	assert.Len(t, v.Available.Groups, 2)

	v = decodeView(t, h.do(t, http.MethodPost, "/assign/functions/toggle", `{"itemId":3}`, everything...))
	assert.Equal(t, []int64{1, 3}, v.AssignedIDs)

	res := h.do(t, http.MethodPost, "/assign/functions/commit", "", everything...)
	require.Equal(t, http.StatusOK, res.Code)
	var commit struct {
		ParentID    int64                 `json:"parentId"`
		AssignedIDs []int64               `json:"assignedIds"`
		Flashes     []shared.FlashMessage `json:"flashes"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &commit))
	assert.Equal(t, []int64{1, 3}, commit.AssignedIDs)
	require.Len(t, commit.Flashes, 1)
	assert.Equal(t, "Functions assigned successfully", commit.Flashes[0].Message)
	assert.Equal(t, []int64{1, 3}, h.source.assigned[5])
}

func TestViewFiltersPanesIndependently(t *testing.T) {
	h := newHarness(t)
	decodeView(t, h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":5}`, everything...))

	v := decodeView(t, h.do(t, http.MethodGet, "/assign/functions/view?available=inv", "", everything...))
	require.NotNil(t, v.Available)
	require.Len(t, v.Available.Items, 1)
	assert.Equal(t, int64(3), v.Available.Items[0].ID)
	require.Len(t, v.Available.Groups, 1)
	require.NotNil(t, v.Assigned)
	assert.Len(t, v.Assigned.Items, 1)
	assert.Equal(t, []int64{1}, v.AssignedIDs)
}

func TestViewHidesPanesWithoutPermission(t *testing.T) {
	h := newHarness(t)
	decodeView(t, h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":5}`, everything...))

	v := decodeView(t, h.do(t, http.MethodGet, "/assign/functions/view", "", shared.PermFunctionsToRoleRead))
	assert.Nil(t, v.Available)
	require.NotNil(t, v.Assigned)
}

func TestViewBeforeSelectionConflicts(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodGet, "/assign/functions/view", "", everything...)
	assert.Equal(t, http.StatusConflict, res.Code)
}

func TestToggleRequiresUpdate(t *testing.T) {
	h := newHarness(t)
	decodeView(t, h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":5}`, everything...))

	res := h.do(t, http.MethodPost, "/assign/functions/toggle", `{"itemId":3}`, shared.PermFunctionsToRoleRead)
	assert.Equal(t, http.StatusForbidden, res.Code)
}

func TestSelectValidatesPayload(t *testing.T) {
	h := newHarness(t)
	res := h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":0}`, everything...)
	assert.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "ParentID")
}

func TestCommitValidationFailureKeepsState(t *testing.T) {
	h := newHarness(t)
	decodeView(t, h.do(t, http.MethodPost, "/assign/functions/select", `{"parentId":5}`, everything...))
	decodeView(t, h.do(t, http.MethodPost, "/assign/functions/toggle", `{"itemId":2}`, everything...))
	h.source.replaceErr = &provider.APIError{
		Status:      http.StatusBadRequest,
		Kind:        "ValidationException",
		FieldErrors: map[string]string{"functionIds": "function 2 is inactive"},
	}

	res := h.do(t, http.MethodPost, "/assign/functions/commit", "", everything...)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
	assert.Contains(t, res.Body.String(), "function 2 is inactive")

	v := decodeView(t, h.do(t, http.MethodGet, "/assign/functions/view", "", everything...))
	assert.Equal(t, []int64{1, 2}, v.AssignedIDs)
	require.Len(t, v.Flashes, 1)
	assert.Equal(t, "error", v.Flashes[0].Kind)
}
