package assignment

import (
	"context"
	"fmt"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/security-console/internal/audit"
)

// Source loads and replaces one many-to-many relation.
type Source interface {
	// Candidates returns every item that may be assigned.
	Candidates(ctx context.Context) ([]Item, error)
	// Assigned returns the items currently assigned to parentID.
	Assigned(ctx context.Context, parentID int64) ([]Item, error)
	// Replace sets the full membership of parentID. An empty ids clears it.
	Replace(ctx context.Context, parentID int64, ids []int64) error
}

// Codes are the function codes guarding the parts of an editor screen.
type Codes struct {
	Screen     string
	Parents    string
	Candidates string
	Assigned   string
	Update     string
}

// Relation describes one editable relation, for example functions of a role.
type Relation struct {
	// Name is the URL segment and workspace key.
	Name string
	// Parent and Items name the two sides in messages, e.g. "role", "functions".
	Parent string
	Items  string
	// Grouped relations render panes by category.
	Grouped bool
	Codes   Codes
}

func (r Relation) observation(parentID int64) string {
	return fmt.Sprintf("%s ID: %d", capitalize(r.Parent), parentID)
}

func (r Relation) assignedEvent(parentID int64) audit.Event {
	return audit.Event{
		FunctionCode: r.Codes.Assigned,
		Action:       fmt.Sprintf("get %s %s", r.Parent, r.Items),
		Success:      fmt.Sprintf("Successfully fetched %s %s", r.Parent, r.Items),
		Failure:      fmt.Sprintf("Failed to fetch %s %s", r.Parent, r.Items),
		Observation:  r.observation(parentID),
	}
}

func (r Relation) candidatesEvent() audit.Event {
	return audit.Event{
		FunctionCode: r.Codes.Candidates,
		Action:       "get " + r.Items,
		Success:      "Successfully fetched " + r.Items,
		Failure:      "Failed to fetch " + r.Items,
	}
}

func (r Relation) commitEvent(parentID int64) audit.Event {
	return audit.Event{
		FunctionCode: r.Codes.Update,
		Action:       fmt.Sprintf("assign %s to %s", r.Items, r.Parent),
		Success:      fmt.Sprintf("Successfully assigned %s to %s", r.Items, r.Parent),
		Failure:      fmt.Sprintf("Failed to assign %s to %s", r.Items, r.Parent),
		Observation:  r.observation(parentID),
	}
}

func (r Relation) committedMessage() string {
	return capitalize(r.Items) + " assigned successfully"
}

func capitalize(s string) string {
	return cases.Title(language.Und, cases.NoLower).String(s)
}
