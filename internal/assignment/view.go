package assignment

// Pane is the rendered content of one side of the editor.
type Pane struct {
	Items  []Item  `json:"items"`
	Groups []Group `json:"groups,omitempty"`
}

// View is what the editor shows for a state after filtering.
type View struct {
	ParentID    int64   `json:"parentId"`
	Available   *Pane   `json:"available,omitempty"`
	Assigned    *Pane   `json:"assigned,omitempty"`
	AssignedIDs []int64 `json:"assignedIds"`
}

// ViewOptions holds the per-pane filter text.
type ViewOptions struct {
	AvailableQuery string
	AssignedQuery  string
	Grouped        bool
}

// BuildView filters each pane independently. Filtering never changes the
// state; AssignedIDs always reflects the full membership.
func BuildView(s State, opts ViewOptions) View {
	return View{
		ParentID:    s.ParentID(),
		Available:   buildPane(Filter(s.Available(), opts.AvailableQuery), opts.Grouped),
		Assigned:    buildPane(Filter(s.Assigned(), opts.AssignedQuery), opts.Grouped),
		AssignedIDs: s.AssignedIDs(),
	}
}

func buildPane(items []Item, grouped bool) *Pane {
	p := &Pane{Items: items}
	if grouped {
		p.Groups = GroupByCategory(items)
	}
	return p
}
