package users

import (
	"context"
	"fmt"

	"github.com/odyssey-erp/security-console/internal/audit"
	"github.com/odyssey-erp/security-console/internal/provider"
)

// RepositoryPort is the slice of the backend the user screen works with.
type RepositoryPort interface {
	ListUsers(ctx context.Context) ([]provider.User, error)
	CreateUser(ctx context.Context, u provider.NewUser) (provider.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

// Service handles user business logic.
type Service struct {
	repo    RepositoryPort
	tracker audit.Tracker
	codes   Codes
}

// NewService builds Service instance. Every call is audited under the
// matching code.
func NewService(repo RepositoryPort, tracker audit.Tracker, codes Codes) *Service {
	return &Service{repo: repo, tracker: tracker, codes: codes}
}

// ListUsers returns the active users.
func (s *Service) ListUsers(ctx context.Context) ([]provider.User, error) {
	users, err := s.repo.ListUsers(ctx)
	s.track(ctx, audit.Event{
		FunctionCode: s.codes.List,
		Action:       "get Users",
		Success:      "Successfully fetched users",
		Failure:      "Failed to fetch users",
	}, err)
	if err != nil {
		return nil, fmt.Errorf("users: list: %w", err)
	}
	return provider.ActiveUsers(users), nil
}

// CreateUser registers a new account.
func (s *Service) CreateUser(ctx context.Context, u provider.NewUser) (provider.User, error) {
	created, err := s.repo.CreateUser(ctx, u)
	s.track(ctx, audit.Event{
		FunctionCode: s.codes.Create,
		Action:       "create User",
		Success:      "Successfully created user",
		Failure:      "Error creating user",
		Observation:  "User name: " + u.Username,
	}, err)
	if err != nil {
		return provider.User{}, fmt.Errorf("users: create %s: %w", u.Username, err)
	}
	return created, nil
}

// DeleteUser removes an account from the console.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	err := s.repo.DeleteUser(ctx, id)
	s.track(ctx, audit.Event{
		FunctionCode: s.codes.Delete,
		Action:       "delete user",
		Success:      "Successfully deleted user",
		Failure:      "Failed to delete user",
		Observation:  fmt.Sprintf("User id: %d", id),
	}, err)
	if err != nil {
		return fmt.Errorf("users: delete %d: %w", id, err)
	}
	return nil
}

func (s *Service) track(ctx context.Context, ev audit.Event, err error) {
	if s.tracker != nil {
		s.tracker.Track(ctx, ev, err)
	}
}
