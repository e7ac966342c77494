package audithttp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/shared"
)

type stubTimelineService struct {
	result      audit.Result
	exportRows  []audit.Record
	err         error
	lastFilters audit.TimelineFilters
}

func (s *stubTimelineService) Timeline(_ context.Context, filters audit.TimelineFilters) (audit.Result, error) {
	s.lastFilters = filters
	return s.result, s.err
}

func (s *stubTimelineService) Export(_ context.Context, filters audit.TimelineFilters) ([]audit.Record, error) {
	s.lastFilters = filters
	return s.exportRows, s.err
}

type recordingTracker struct {
	events []audit.Event
	errs   []error
}

func (r *recordingTracker) Track(_ context.Context, ev audit.Event, err error) {
	r.events = append(r.events, ev)
	r.errs = append(r.errs, err)
}

func newAuditHandler(service *stubTimelineService, tracker audit.Tracker) *Handler {
	handler := NewHandler(nil, service, tracker, "SEC-AUDIT-READ")
	handler.now = func() time.Time { return time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC) }
	return handler
}

func TestTimelineRendersRowsAndAuditsRead(t *testing.T) {
	rows := []audit.Record{{ID: "01J", FunctionCode: "SEC-ROLES-READ", Action: "get roles", ActorID: "auditor"}}
	service := &stubTimelineService{result: audit.Result{Rows: rows, Paging: audit.PagingInfo{Page: 1, PageSize: 20}}}
	tracker := &recordingTracker{}
	handler := newAuditHandler(service, tracker)

	req := httptest.NewRequest(http.MethodGet, "/audit?from=2026-03-01&to=2026-03-15", nil)
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "auditor")
	assert.Equal(t, "2026-03-01", service.lastFilters.From.Format("2006-01-02"))
	assert.Equal(t, "2026-03-16", service.lastFilters.To.Format("2006-01-02"))
	require.Len(t, tracker.events, 1)
	assert.Equal(t, "SEC-AUDIT-READ", tracker.events[0].FunctionCode)
	assert.Equal(t, "get audits", tracker.events[0].Action)
	assert.Equal(t, "Successfully fetched audits", tracker.events[0].Success)
	assert.NoError(t, tracker.errs[0])
}

func TestTimelineReturnsEveryPendingFlash(t *testing.T) {
	handler := newAuditHandler(&stubTimelineService{}, nil)
	sess := &shared.Session{ID: "sess-1"}
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: "Functions assigned successfully"})
	sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "Role is locked"})

	req := httptest.NewRequest(http.MethodGet, "/audit", nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Functions assigned successfully")
	assert.Contains(t, rr.Body.String(), "Role is locked")
	assert.Empty(t, sess.PopFlashes())
}

func TestTimelineFailureIsAuditedAndGeneric(t *testing.T) {
	service := &stubTimelineService{err: errors.New("dial tcp: refused")}
	tracker := &recordingTracker{}
	handler := newAuditHandler(service, tracker)

	rr := httptest.NewRecorder()
	handler.handleTimeline(rr, httptest.NewRequest(http.MethodGet, "/audit", nil))

	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Contains(t, rr.Body.String(), "An error has occurred")
	assert.NotContains(t, rr.Body.String(), "refused")
	require.Len(t, tracker.errs, 1)
	assert.Error(t, tracker.errs[0])
	assert.Equal(t, "Failed to fetch audits", tracker.events[0].Failure)
}

func TestTimelineRejectsBadFilters(t *testing.T) {
	service := &stubTimelineService{}
	tracker := &recordingTracker{}
	handler := newAuditHandler(service, tracker)
	for _, target := range []string{"/audit?to=yesterday", "/audit?from=2026-03-10&to=2026-03-01", "/audit?page=0", "/audit?from=2025-01-01&to=2026-03-01"} {
		rr := httptest.NewRecorder()
		handler.handleTimeline(rr, httptest.NewRequest(http.MethodGet, target, nil))
		assert.Equalf(t, http.StatusUnprocessableEntity, rr.Code, "target %s", target)
	}
	assert.Empty(t, tracker.events)
}

func TestExportCSV(t *testing.T) {
	service := &stubTimelineService{exportRows: []audit.Record{{ID: "01J", FunctionCode: "SEC-ROLES-READ", Action: "get roles"}}}
	tracker := &recordingTracker{}
	handler := newAuditHandler(service, tracker)

	rr := httptest.NewRecorder()
	handler.handleExport(rr, httptest.NewRequest(http.MethodGet, "/audit/export.csv?from=2026-03-01&to=2026-03-05", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.HasPrefix(rr.Header().Get("Content-Type"), "text/csv"))
	assert.Contains(t, rr.Body.String(), "SEC-ROLES-READ")
	require.Len(t, tracker.events, 1)
	assert.Equal(t, "export audits", tracker.events[0].Action)
}
