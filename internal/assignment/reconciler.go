package assignment

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// CommitObserver is told about every commit outcome.
type CommitObserver interface {
	ObserveCommit(relation string, err error)
}

// Reconciler drives the editor for one relation: it loads a parent's
// membership, applies toggles and commits the result as a full replacement.
type Reconciler struct {
	relation Relation
	source   Source
	store    Store
	tracker  audit.Tracker
	notifier shared.Notifier
	observer CommitObserver
	logger   *slog.Logger
	commits  singleflight.Group
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithTracker records audit entries for loads and commits.
func WithTracker(t audit.Tracker) Option {
	return func(r *Reconciler) { r.tracker = t }
}

// WithNotifier delivers user notifications.
func WithNotifier(n shared.Notifier) Option {
	return func(r *Reconciler) { r.notifier = n }
}

// WithCommitObserver registers commit metrics.
func WithCommitObserver(o CommitObserver) Option {
	return func(r *Reconciler) { r.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) { r.logger = l }
}

// NewReconciler constructs a Reconciler.
func NewReconciler(relation Relation, source Source, store Store, opts ...Option) *Reconciler {
	r := &Reconciler{relation: relation, source: source, store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Relation returns the relation this reconciler edits.
func (r *Reconciler) Relation() Relation {
	return r.relation
}

// SelectParent loads parentID's membership and the candidate pool, replacing
// whatever was being edited. A result that arrives after a newer selection is
// dropped with ErrStaleResponse.
func (r *Reconciler) SelectParent(ctx context.Context, key Key, parentID int64) (State, error) {
	if parentID <= 0 {
		return State{}, ErrInvalidParent
	}
	ticket, err := r.store.Begin(ctx, key)
	if err != nil {
		return State{}, err
	}

	var assigned, candidates []Item
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		items, err := r.source.Assigned(gctx, parentID)
		r.track(ctx, r.relation.assignedEvent(parentID), err)
		assigned = items
		return err
	})
	g.Go(func() error {
		items, err := r.source.Candidates(gctx)
		r.track(ctx, r.relation.candidatesEvent(), err)
		candidates = items
		return err
	})
	loadErr := g.Wait()

	if loadErr != nil {
		if r.superseded(ctx, key, ticket) {
			return State{}, ErrStaleResponse
		}
		r.notify(ctx, shared.SeverityError, shared.UserSafeMessage(loadErr))
		return State{}, fmt.Errorf("assignment: load %s %d: %w", r.relation.Parent, parentID, loadErr)
	}

	state := NewState(parentID, assigned, candidates)
	ok, err := r.store.Apply(ctx, key, ticket, state)
	if err != nil {
		return State{}, err
	}
	if !ok {
		return State{}, ErrStaleResponse
	}
	return state, nil
}

func (r *Reconciler) superseded(ctx context.Context, key Key, ticket uint64) bool {
	current, err := r.store.Ticket(ctx, key)
	return err == nil && current != ticket
}

// Toggle moves itemID to the other pane of the loaded state. Toggles racing
// on the same selection are applied one after the other.
func (r *Reconciler) Toggle(ctx context.Context, key Key, itemID int64) (State, error) {
	return r.store.Update(ctx, key, func(s State) (State, error) {
		return s.Toggle(itemID)
	})
}

// Current returns the loaded state.
func (r *Reconciler) Current(ctx context.Context, key Key) (State, error) {
	state, _, err := r.store.Current(ctx, key)
	return state, err
}

// CommitResult reports what was written.
type CommitResult struct {
	ParentID    int64   `json:"parentId"`
	AssignedIDs []int64 `json:"assignedIds"`
}

// Commit replaces the parent's membership with the assigned pane. Identical
// commits already in flight for the same workspace are joined rather than
// repeated. The stored state is left as is whatever the outcome.
func (r *Reconciler) Commit(ctx context.Context, key Key) (CommitResult, error) {
	state, _, err := r.store.Current(ctx, key)
	if err != nil {
		return CommitResult{}, err
	}
	result := CommitResult{ParentID: state.ParentID(), AssignedIDs: state.AssignedIDs()}

	flight := key.String() + "|" + strconv.FormatInt(result.ParentID, 10) + "|" + joinIDs(result.AssignedIDs)
	_, err, joined := r.commits.Do(flight, func() (any, error) {
		err := r.source.Replace(ctx, result.ParentID, result.AssignedIDs)
		r.track(ctx, r.relation.commitEvent(result.ParentID), err)
		if r.observer != nil {
			r.observer.ObserveCommit(r.relation.Name, err)
		}
		return nil, err
	})
	if joined {
		r.logger.Debug("joined in-flight commit", slog.String("relation", r.relation.Name), slog.Int64("parent", result.ParentID))
	}
	if err != nil {
		r.logger.Warn("commit failed",
			slog.String("relation", r.relation.Name),
			slog.Int64("parent", result.ParentID),
			slog.Any("error", err))
		r.notify(ctx, shared.SeverityError, shared.UserSafeMessage(err))
		return result, fmt.Errorf("assignment: commit %s %d: %w", r.relation.Parent, result.ParentID, err)
	}
	r.notify(ctx, shared.SeveritySuccess, r.relation.committedMessage())
	return result, nil
}

// Discard forgets the workspace.
func (r *Reconciler) Discard(ctx context.Context, key Key) error {
	return r.store.Clear(ctx, key)
}

func (r *Reconciler) track(ctx context.Context, ev audit.Event, err error) {
	if r.tracker == nil {
		return
	}
	r.tracker.Track(ctx, ev, err)
}

func (r *Reconciler) notify(ctx context.Context, severity shared.Severity, message string) {
	if r.notifier != nil {
		r.notifier.Notify(ctx, severity, message)
	}
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
