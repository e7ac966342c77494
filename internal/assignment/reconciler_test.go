package assignment

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/shared"
)

type fakeSource struct {
	mu         sync.Mutex
	candidates []Item
	relations  map[int64][]int64
	gates      map[int64]chan struct{}
	loadErr    error
	replaceErr error
	replaces   int
	replaced   chan struct{}
	release    chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		candidates: pool(),
		relations:  map[int64][]int64{1: {1, 2}, 2: {4}},
		gates:      map[int64]chan struct{}{},
	}
}

func (f *fakeSource) Candidates(context.Context) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return append([]Item(nil), f.candidates...), nil
}

func (f *fakeSource) Assigned(ctx context.Context, parentID int64) ([]Item, error) {
	f.mu.Lock()
	gate := f.gates[parentID]
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	var out []Item
	for _, id := range f.relations[parentID] {
		for _, it := range f.candidates {
			if it.ID == id {
				out = append(out, it)
			}
		}
	}
	return out, nil
}

func (f *fakeSource) Replace(_ context.Context, parentID int64, ids []int64) error {
	if f.replaced != nil {
		f.replaced <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaces++
	if f.replaceErr != nil {
		return f.replaceErr
	}
	f.relations[parentID] = append([]int64{}, ids...)
	return nil
}

func (f *fakeSource) relation(parentID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int64{}, f.relations[parentID]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

type recordingTracker struct {
	mu     sync.Mutex
	events []audit.Event
	errs   []error
}

func (r *recordingTracker) Track(_ context.Context, ev audit.Event, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	r.errs = append(r.errs, err)
}

func (r *recordingTracker) byCode(code string) []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []error
	for i, ev := range r.events {
		if ev.FunctionCode == code {
			out = append(out, r.errs[i])
		}
	}
	return out
}

type note struct {
	severity shared.Severity
	message  string
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *recordingNotifier) Notify(_ context.Context, severity shared.Severity, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{severity, message})
}

type userError struct{ msg string }

func (e userError) Error() string       { return "validation: " + e.msg }
func (e userError) UserMessage() string { return e.msg }

var roleFunctions = Relation{
	Name:    "functions",
	Parent:  "role",
	Items:   "functions",
	Grouped: true,
	Codes: Codes{
		Screen:     "SEC-FUNCTIONS-TO-ROLE-READ",
		Parents:    "SEC-ROLES-READ",
		Candidates: "SEC-FUNCTIONS-READ",
		Assigned:   "SEC-FUNCTIONS-TO-ROLE-READ",
		Update:     "SEC-FUNCTIONS-TO-ROLE-UPDATE",
	},
}

type harness struct {
	source   *fakeSource
	tracker  *recordingTracker
	notifier *recordingNotifier
	rec      *Reconciler
	key      Key
}

func newHarness() *harness {
	h := &harness{
		source:   newFakeSource(),
		tracker:  &recordingTracker{},
		notifier: &recordingNotifier{},
		key:      Key{Session: "sess-1", Relation: "functions"},
	}
	h.rec = NewReconciler(roleFunctions, h.source, NewMemoryStore(),
		WithTracker(h.tracker), WithNotifier(h.notifier))
	return h
}

func TestScenarioToggleAndCommit(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	state, err := h.rec.SelectParent(ctx, h.key, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, state.AssignedIDs())
	assert.Equal(t, []int64{3, 4}, ids(state.Available()))

	state, err = h.rec.Toggle(ctx, h.key, 3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, state.AssignedIDs())

	result, err := h.rec.Commit(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, result.AssignedIDs)
	assert.Equal(t, []int64{1, 2, 3}, h.source.relation(1))

	assert.Len(t, h.tracker.byCode("SEC-FUNCTIONS-TO-ROLE-READ"), 1)
	assert.Len(t, h.tracker.byCode("SEC-FUNCTIONS-READ"), 1)
	commits := h.tracker.byCode("SEC-FUNCTIONS-TO-ROLE-UPDATE")
	require.Len(t, commits, 1)
	assert.NoError(t, commits[0])
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, note{shared.SeveritySuccess, "Functions assigned successfully"}, h.notifier.notes[0])
}

func TestScenarioDeselectAllClearsRelation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.SelectParent(ctx, h.key, 1)
	require.NoError(t, err)
	_, err = h.rec.Toggle(ctx, h.key, 1)
	require.NoError(t, err)
	_, err = h.rec.Toggle(ctx, h.key, 2)
	require.NoError(t, err)

	result, err := h.rec.Commit(ctx, h.key)
	require.NoError(t, err)
	assert.Empty(t, result.AssignedIDs)
	assert.Equal(t, 1, h.source.replaces, "clearing is a real write")
	assert.Empty(t, h.source.relation(1))
}

func TestScenarioLateResponseIsDiscarded(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	gate := make(chan struct{})
	h.source.gates[1] = gate

	type outcome struct {
		state State
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		s, err := h.rec.SelectParent(ctx, h.key, 1)
		done <- outcome{s, err}
	}()

	// wait until the first load has taken its ticket
	require.Eventually(t, func() bool {
		ticket, _ := h.rec.store.Ticket(ctx, h.key)
		return ticket == 1
	}, time.Second, time.Millisecond)

	stateB, err := h.rec.SelectParent(ctx, h.key, 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{4}, stateB.AssignedIDs())

	close(gate)
	late := <-done
	assert.ErrorIs(t, late.err, ErrStaleResponse)

	current, err := h.rec.Current(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, int64(2), current.ParentID())
	assert.Equal(t, []int64{4}, current.AssignedIDs())
	assert.Empty(t, h.notifier.notes, "stale responses are silent")
}

func TestScenarioFailedCommitKeepsState(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.SelectParent(ctx, h.key, 1)
	require.NoError(t, err)
	before, err := h.rec.Toggle(ctx, h.key, 4)
	require.NoError(t, err)

	h.source.replaceErr = errors.New("dial tcp 10.0.0.1:443: connection refused")
	_, err = h.rec.Commit(ctx, h.key)
	require.Error(t, err)

	after, err := h.rec.Current(ctx, h.key)
	require.NoError(t, err)
	assert.True(t, before.Equal(after))
	assert.Equal(t, []int64{1, 2}, h.source.relation(1))

	commits := h.tracker.byCode("SEC-FUNCTIONS-TO-ROLE-UPDATE")
	require.Len(t, commits, 1)
	assert.Error(t, commits[0])
	require.Len(t, h.notifier.notes, 1)
	assert.Equal(t, note{shared.SeverityError, shared.GenericErrorMessage}, h.notifier.notes[0])
}

func TestCommitValidationMessageReachesUser(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.SelectParent(ctx, h.key, 1)
	require.NoError(t, err)
	h.source.replaceErr = userError{"Role is locked"}

	_, err = h.rec.Commit(ctx, h.key)
	var ue userError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, note{shared.SeverityError, "Role is locked"}, h.notifier.notes[0])
}

func TestCommitIsIdempotent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.SelectParent(ctx, h.key, 2)
	require.NoError(t, err)
	_, err = h.rec.Toggle(ctx, h.key, 1)
	require.NoError(t, err)

	_, err = h.rec.Commit(ctx, h.key)
	require.NoError(t, err)
	first := h.source.relation(2)
	_, err = h.rec.Commit(ctx, h.key)
	require.NoError(t, err)
	assert.Equal(t, first, h.source.relation(2))
	assert.Equal(t, []int64{1, 4}, first)
}

func TestConcurrentDuplicateCommitsCollapse(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	_, err := h.rec.SelectParent(ctx, h.key, 1)
	require.NoError(t, err)

	h.source.replaced = make(chan struct{}, 1)
	h.source.release = make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = h.rec.Commit(ctx, h.key)
	}()
	<-h.source.replaced

	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = h.rec.Commit(ctx, h.key)
	}()
	// the second call joins the flight before it is released
	time.Sleep(20 * time.Millisecond)
	close(h.source.release)
	wg.Wait()

	assert.LessOrEqual(t, h.source.replaces, 2)
	assert.Len(t, h.tracker.byCode("SEC-FUNCTIONS-TO-ROLE-UPDATE"), h.source.replaces)
}

func TestLoadFailureNotifiesAndAudits(t *testing.T) {
	h := newHarness()
	h.source.loadErr = errors.New("upstream 503")
	_, err := h.rec.SelectParent(context.Background(), h.key, 1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStaleResponse)

	failed := h.tracker.byCode("SEC-FUNCTIONS-TO-ROLE-READ")
	require.Len(t, failed, 1)
	assert.Error(t, failed[0])
	require.NotEmpty(t, h.notifier.notes)
	assert.Equal(t, shared.SeverityError, h.notifier.notes[0].severity)

	_, err = h.rec.Commit(context.Background(), h.key)
	assert.ErrorIs(t, err, ErrNoSelection)
}

func TestToggleRequiresSelection(t *testing.T) {
	h := newHarness()
	_, err := h.rec.Toggle(context.Background(), h.key, 1)
	assert.ErrorIs(t, err, ErrNoSelection)
	_, err = h.rec.SelectParent(context.Background(), h.key, 0)
	assert.ErrorIs(t, err, ErrInvalidParent)
}

func TestRelationEvents(t *testing.T) {
	ev := roleFunctions.commitEvent(5)
	assert.Equal(t, "assign functions to role", ev.Action)
	assert.Equal(t, "Successfully assigned functions to role", ev.Success)
	assert.Equal(t, "Failed to assign functions to role", ev.Failure)
	assert.Equal(t, "Role ID: 5", ev.Observation)
	assert.Equal(t, "get role functions", roleFunctions.assignedEvent(5).Action)
	assert.Equal(t, "get functions", roleFunctions.candidatesEvent().Action)
}

func TestConcurrentTogglesOnRedisWorkspace(t *testing.T) {
	store, _ := newRedisStore(t)
	source := newFakeSource()
	rec := NewReconciler(roleFunctions, source, store)
	ctx := context.Background()
	key := Key{Session: "sess-1", Relation: "functions"}

	for round := 0; round < 25; round++ {
		_, err := rec.SelectParent(ctx, key, 1)
		require.NoError(t, err)

		var wg sync.WaitGroup
		errs := make([]error, 2)
		for i, id := range []int64{3, 4} {
			i, id := i, id
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, errs[i] = rec.Toggle(ctx, key, id)
			}()
		}
		wg.Wait()
		require.NoError(t, errs[0])
		require.NoError(t, errs[1])

		result, err := rec.Commit(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, []int64{1, 2, 3, 4}, result.AssignedIDs)
		source.mu.Lock()
		source.relations[1] = []int64{1, 2}
		source.mu.Unlock()
	}
}
