// Package assignment edits a many-to-many relation for one parent entity
// through an available/assigned two-pane workflow and commits it as a full
// replacement.
package assignment

import (
	"fmt"
	"sort"
)

// Item is an entity that can be assigned to a parent. GroupID zero means the
// item belongs to no category.
type Item struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Active     bool   `json:"status"`
	GroupID    int64  `json:"groupId,omitempty"`
	GroupLabel string `json:"groupLabel,omitempty"`
}

// State is the working membership for one parent. The universe of active
// items is fixed at load time; the available and assigned panes are derived
// from it, so every item sits in exactly one pane.
type State struct {
	parentID int64
	items    []Item
	index    map[int64]int
	assigned map[int64]struct{}
}

// NewState builds a state from the parent's current members and the candidate
// pool. Inactive entries of either collection are dropped.
func NewState(parentID int64, assigned, candidates []Item) State {
	s := State{
		parentID: parentID,
		index:    make(map[int64]int, len(candidates)+len(assigned)),
		assigned: make(map[int64]struct{}, len(assigned)),
	}
	for _, it := range candidates {
		s.add(it)
	}
	for _, it := range assigned {
		if !it.Active {
			continue
		}
		s.add(it)
		s.assigned[it.ID] = struct{}{}
	}
	return s
}

func (s *State) add(it Item) bool {
	if !it.Active {
		return false
	}
	if _, ok := s.index[it.ID]; ok {
		return false
	}
	s.index[it.ID] = len(s.items)
	s.items = append(s.items, it)
	return true
}

func (s State) contains(id int64) bool {
	_, ok := s.index[id]
	return ok
}

// ParentID returns the parent entity this state edits.
func (s State) ParentID() int64 {
	return s.parentID
}

// IsAssigned reports whether id is in the assigned pane.
func (s State) IsAssigned(id int64) bool {
	_, ok := s.assigned[id]
	return ok
}

// Toggle moves id to the opposite pane and returns the new state. The
// receiver is left untouched.
func (s State) Toggle(id int64) (State, error) {
	if !s.contains(id) {
		return s, fmt.Errorf("%w: %d", ErrUnknownItem, id)
	}
	next := State{
		parentID: s.parentID,
		items:    s.items,
		index:    s.index,
		assigned: make(map[int64]struct{}, len(s.assigned)+1),
	}
	for k := range s.assigned {
		next.assigned[k] = struct{}{}
	}
	if _, ok := next.assigned[id]; ok {
		delete(next.assigned, id)
	} else {
		next.assigned[id] = struct{}{}
	}
	return next, nil
}

// Assigned returns the assigned pane in load order.
func (s State) Assigned() []Item {
	out := make([]Item, 0, len(s.assigned))
	for _, it := range s.items {
		if s.IsAssigned(it.ID) {
			out = append(out, it)
		}
	}
	return out
}

// Available returns the available pane in load order.
func (s State) Available() []Item {
	out := make([]Item, 0, len(s.items)-len(s.assigned))
	for _, it := range s.items {
		if !s.IsAssigned(it.ID) {
			out = append(out, it)
		}
	}
	return out
}

// AssignedIDs returns the membership to persist, ascending.
func (s State) AssignedIDs() []int64 {
	ids := make([]int64, 0, len(s.assigned))
	for id := range s.assigned {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal reports whether both states describe the same parent, universe and
// membership.
func (s State) Equal(o State) bool {
	if s.parentID != o.parentID || len(s.items) != len(o.items) || len(s.assigned) != len(o.assigned) {
		return false
	}
	for i := range s.items {
		if s.items[i] != o.items[i] {
			return false
		}
	}
	for id := range s.assigned {
		if !o.IsAssigned(id) {
			return false
		}
	}
	return true
}

// Snapshot is the serialisable form of a State.
type Snapshot struct {
	ParentID int64   `json:"parentId"`
	Items    []Item  `json:"items"`
	Assigned []int64 `json:"assigned"`
}

// Snapshot captures s for storage.
func (s State) Snapshot() Snapshot {
	items := make([]Item, len(s.items))
	copy(items, s.items)
	return Snapshot{ParentID: s.parentID, Items: items, Assigned: s.AssignedIDs()}
}

// State rebuilds the state captured in the snapshot. Assigned ids outside the
// item universe are ignored.
func (sn Snapshot) State() State {
	s := State{
		parentID: sn.ParentID,
		index:    make(map[int64]int, len(sn.Items)),
		assigned: make(map[int64]struct{}, len(sn.Assigned)),
	}
	for _, it := range sn.Items {
		s.add(it)
	}
	for _, id := range sn.Assigned {
		if s.contains(id) {
			s.assigned[id] = struct{}{}
		}
	}
	return s
}
