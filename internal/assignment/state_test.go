package assignment

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fn(id int64, name string, module int64, label string) Item {
	return Item{ID: id, Name: name, Active: true, GroupID: module, GroupLabel: label}
}

func pool() []Item {
	return []Item{
		fn(1, "Read roles", 10, "Security"),
		fn(2, "Update roles", 10, "Security"),
		fn(3, "Read users", 20, "Users"),
		fn(4, "Create users", 20, "Users"),
	}
}

func ids(items []Item) []int64 {
	out := make([]int64, 0, len(items))
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func assertPartition(t *testing.T, s State) {
	t.Helper()
	seen := make(map[int64]int)
	for _, it := range s.Available() {
		seen[it.ID]++
		assert.False(t, s.IsAssigned(it.ID))
	}
	for _, it := range s.Assigned() {
		seen[it.ID]++
	}
	for id, n := range seen {
		assert.Equalf(t, 1, n, "item %d appears in %d panes", id, n)
	}
	assert.Len(t, seen, len(s.Snapshot().Items))
}

func TestNewStateDerivesPanes(t *testing.T) {
	s := NewState(5, pool()[:2], pool())
	assert.Equal(t, int64(5), s.ParentID())
	assert.Equal(t, []int64{1, 2}, ids(s.Assigned()))
	assert.Equal(t, []int64{3, 4}, ids(s.Available()))
	assertPartition(t, s)
}

func TestNewStateDropsInactiveItems(t *testing.T) {
	candidates := pool()
	candidates[3].Active = false
	assigned := []Item{fn(1, "Read roles", 10, "Security"), {ID: 9, Name: "Legacy", Active: false}}

	s := NewState(5, assigned, candidates)
	assert.Equal(t, []int64{1}, s.AssignedIDs())
	assert.Equal(t, []int64{2, 3}, ids(s.Available()))
	_, err := s.Toggle(4)
	assert.ErrorIs(t, err, ErrUnknownItem)
	_, err = s.Toggle(9)
	assert.ErrorIs(t, err, ErrUnknownItem)
}

func TestNewStateKeepsAssignedItemsMissingFromPool(t *testing.T) {
	s := NewState(5, []Item{fn(7, "Delete users", 20, "Users")}, pool())
	assert.Equal(t, []int64{7}, s.AssignedIDs())
	assert.Len(t, s.Available(), 4)
	assertPartition(t, s)
}

func TestEmptyParentIsValid(t *testing.T) {
	s := NewState(5, nil, pool())
	assert.Empty(t, s.Assigned())
	assert.Empty(t, s.AssignedIDs())
	assert.Len(t, s.Available(), 4)

	empty := NewState(6, nil, nil)
	assert.Empty(t, empty.Available())
	assert.NotNil(t, empty.AssignedIDs())
}

func TestToggleIsInvolution(t *testing.T) {
	s := NewState(5, pool()[:2], pool())
	for _, it := range pool() {
		once, err := s.Toggle(it.ID)
		require.NoError(t, err)
		assert.NotEqual(t, s.IsAssigned(it.ID), once.IsAssigned(it.ID))
		assertPartition(t, once)

		twice, err := once.Toggle(it.ID)
		require.NoError(t, err)
		assert.True(t, s.Equal(twice), "toggle twice must restore item %d", it.ID)
	}
}

func TestToggleLeavesReceiverUntouched(t *testing.T) {
	s := NewState(5, pool()[:2], pool())
	next, err := s.Toggle(3)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, s.AssignedIDs())
	assert.Equal(t, []int64{1, 2, 3}, next.AssignedIDs())
}

func TestSnapshotRoundTrip(t *testing.T) {
	s, err := NewState(5, pool()[:2], pool()).Toggle(4)
	require.NoError(t, err)

	data, err := json.Marshal(s.Snapshot())
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.True(t, s.Equal(snap.State()))

	snap.Assigned = append(snap.Assigned, 99)
	assert.Equal(t, []int64{1, 2, 4}, snap.State().AssignedIDs())
}

func TestGroupByCategory(t *testing.T) {
	items := []Item{
		fn(3, "Read users", 20, "Users"),
		fn(1, "Read roles", 10, "Security"),
		{ID: 8, Name: "Orphan", Active: true},
		fn(4, "Create users", 20, "Users"),
	}
	groups := GroupByCategory(items)
	require.Len(t, groups, 2)
	assert.Equal(t, "Users", groups[0].Label)
	assert.Equal(t, []int64{3, 4}, ids(groups[0].Items))
	assert.Equal(t, "Security", groups[1].Label)
	assert.Empty(t, GroupByCategory(nil))
}

func TestFilterMatchesNameOrID(t *testing.T) {
	items := append(pool(), fn(12, "STRASSE audit", 30, "Audit"))
	assert.Equal(t, []int64{1, 3}, ids(Filter(items, "READ")))
	assert.Equal(t, []int64{1, 12}, ids(Filter(items, "1")))
	assert.Equal(t, []int64{12}, ids(Filter(items, "straße")))
	assert.Len(t, Filter(items, "   "), len(items))
	assert.Empty(t, Filter(items, "nothing"))
}

func TestFilterOnlyNarrows(t *testing.T) {
	s := NewState(5, pool()[:1], pool())
	before := s.AssignedIDs()
	full := GroupByCategory(s.Available())
	for _, q := range []string{"", "users", "roles", "2", "zzz"} {
		v := BuildView(s, ViewOptions{AvailableQuery: q, Grouped: true})
		assert.Equal(t, before, v.AssignedIDs)
		for _, g := range v.Available.Groups {
			assert.NotEmpty(t, g.Items, "empty groups are hidden")
			var parent *Group
			for i := range full {
				if full[i].ID == g.ID {
					parent = &full[i]
				}
			}
			require.NotNil(t, parent)
			assert.Subset(t, ids(parent.Items), ids(g.Items))
		}
	}
	assert.Equal(t, before, s.AssignedIDs())
}

func TestBuildViewFiltersPanesIndependently(t *testing.T) {
	s := NewState(5, pool()[:2], pool())
	v := BuildView(s, ViewOptions{AvailableQuery: "create", AssignedQuery: "update"})
	assert.Equal(t, []int64{4}, ids(v.Available.Items))
	assert.Equal(t, []int64{2}, ids(v.Assigned.Items))
	assert.Nil(t, v.Available.Groups)
	assert.Equal(t, []int64{1, 2}, v.AssignedIDs)
}
