package roles

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/provider"
)

// RepositoryPort is the slice of the backend the role screens read.
type RepositoryPort interface {
	ListRoles(ctx context.Context) ([]provider.Role, error)
	GetRole(ctx context.Context, id int64) (provider.Role, error)
	RoleFunctions(ctx context.Context, roleID int64) ([]provider.Function, error)
}

// Service handles role business logic.
type Service struct {
	repo    RepositoryPort
	tracker audit.Tracker
	codes   Codes
	now     func() time.Time
}

// NewService builds Service instance. Reads are audited through tracker.
func NewService(repo RepositoryPort, tracker audit.Tracker, codes Codes) *Service {
	return &Service{repo: repo, tracker: tracker, codes: codes, now: time.Now}
}

// ListRoles returns the active roles, the parent selector's choices.
func (s *Service) ListRoles(ctx context.Context) ([]provider.Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	s.track(ctx, audit.Event{
		FunctionCode: s.codes.List,
		Action:       "get roles",
		Success:      "Successfully fetched roles",
		Failure:      "Failed to fetch roles",
	}, err)
	if err != nil {
		return nil, fmt.Errorf("roles: list: %w", err)
	}
	return provider.ActiveRoles(roles), nil
}

// Report builds the access report of one role. Disabled functions are
// left out.
func (s *Service) Report(ctx context.Context, roleID int64) (AccessReport, error) {
	var (
		role provider.Role
		fns  []provider.Function
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		role, err = s.repo.GetRole(gctx, roleID)
		return err
	})
	g.Go(func() error {
		var err error
		fns, err = s.repo.RoleFunctions(gctx, roleID)
		return err
	})
	err := g.Wait()
	s.track(ctx, audit.Event{
		FunctionCode: s.codes.Report,
		Action:       "get role report",
		Success:      "Successfully generated role report",
		Failure:      "Failed to generate role report",
		Observation:  fmt.Sprintf("Role ID: %d", roleID),
	}, err)
	if err != nil {
		return AccessReport{}, fmt.Errorf("roles: report %d: %w", roleID, err)
	}
	return AccessReport{
		Role:        role,
		Modules:     GroupByModule(provider.ActiveFunctions(fns)),
		GeneratedAt: s.now().UTC(),
	}, nil
}

// GroupByModule buckets functions by module in order of first appearance.
// Functions without a module are left out.
func GroupByModule(fns []provider.Function) []ModuleAccess {
	var out []ModuleAccess
	pos := make(map[int64]int)
	for _, fn := range fns {
		if fn.Module == nil {
			continue
		}
		i, ok := pos[fn.Module.ID]
		if !ok {
			i = len(out)
			pos[fn.Module.ID] = i
			out = append(out, ModuleAccess{Module: *fn.Module})
		}
		out[i].Functions = append(out[i].Functions, fn)
	}
	return out
}

func (s *Service) track(ctx context.Context, ev audit.Event, err error) {
	if s.tracker != nil {
		s.tracker.Track(ctx, ev, err)
	}
}
