package provider

import (
	"context"

	"github.com/odyssey-erp/security-console/internal/assignment"
)

// RoleFunctionSource edits the functions granted to a role. Functions are
// grouped by module.
type RoleFunctionSource struct {
	Backend Backend
}

func (s RoleFunctionSource) Candidates(ctx context.Context) ([]assignment.Item, error) {
	fns, err := s.Backend.ListFunctions(ctx)
	if err != nil {
		return nil, err
	}
	return functionItems(fns), nil
}

func (s RoleFunctionSource) Assigned(ctx context.Context, roleID int64) ([]assignment.Item, error) {
	fns, err := s.Backend.RoleFunctions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return functionItems(fns), nil
}

func (s RoleFunctionSource) Replace(ctx context.Context, roleID int64, ids []int64) error {
	return s.Backend.ReplaceRoleFunctions(ctx, roleID, ids)
}

// UserRoleSource edits the roles held by a user.
type UserRoleSource struct {
	Backend Backend
}

func (s UserRoleSource) Candidates(ctx context.Context) ([]assignment.Item, error) {
	roles, err := s.Backend.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	return roleItems(roles), nil
}

func (s UserRoleSource) Assigned(ctx context.Context, userID int64) ([]assignment.Item, error) {
	roles, err := s.Backend.UserRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return roleItems(roles), nil
}

func (s UserRoleSource) Replace(ctx context.Context, userID int64, ids []int64) error {
	return s.Backend.ReplaceUserRoles(ctx, userID, ids)
}

func functionItems(fns []Function) []assignment.Item {
	items := make([]assignment.Item, 0, len(fns))
	for _, f := range fns {
		it := assignment.Item{ID: f.ID, Name: f.Name, Active: f.Status}
		if f.Module != nil {
			it.GroupID = f.Module.ID
			it.GroupLabel = f.Module.Name
		}
		items = append(items, it)
	}
	return items
}

func roleItems(roles []Role) []assignment.Item {
	items := make([]assignment.Item, 0, len(roles))
	for _, r := range roles {
		items = append(items, assignment.Item{ID: r.ID, Name: r.Name, Active: r.Status})
	}
	return items
}
