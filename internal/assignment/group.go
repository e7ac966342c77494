package assignment

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"
)

// Group is one category of items in display order.
type Group struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
	Items []Item `json:"items"`
}

// GroupByCategory buckets items by GroupID. Groups appear in order of first
// encounter and items keep their relative order. Items without a category are
// left out.
func GroupByCategory(items []Item) []Group {
	var groups []Group
	pos := make(map[int64]int)
	for _, it := range items {
		if it.GroupID == 0 {
			continue
		}
		i, ok := pos[it.GroupID]
		if !ok {
			i = len(groups)
			pos[it.GroupID] = i
			groups = append(groups, Group{ID: it.GroupID, Label: it.GroupLabel})
		}
		groups[i].Items = append(groups[i].Items, it)
	}
	return groups
}

// Filter narrows items to those whose name contains text ignoring case, or
// whose decimal id contains text. Blank text returns every item.
func Filter(items []Item, text string) []Item {
	q := strings.TrimSpace(text)
	out := make([]Item, 0, len(items))
	if q == "" {
		return append(out, items...)
	}
	fold := cases.Fold()
	needle := fold.String(q)
	for _, it := range items {
		if strings.Contains(fold.String(it.Name), needle) || strings.Contains(strconv.FormatInt(it.ID, 10), q) {
			out = append(out, it)
		}
	}
	return out
}
