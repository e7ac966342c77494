package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/odyssey-erp/security-console/internal/access"
	"github.com/odyssey-erp/security-console/internal/provider"
	"github.com/odyssey-erp/security-console/internal/shared"
)

// Service wraps sign-in rules.
type Service struct {
	authenticator provider.Authenticator
	verifier      *access.TokenVerifier
	loginCode     string
	ttl           time.Duration
	now           func() time.Time
}

// NewService constructs a Service. A nil verifier trusts the permissions the
// authenticator reports. With a verifier the token is mandatory and its claims
// are the only source of permissions. loginCode must be granted for sign-in to
// succeed.
func NewService(authenticator provider.Authenticator, verifier *access.TokenVerifier, loginCode string, ttl time.Duration) *Service {
	return &Service{
		authenticator: authenticator,
		verifier:      verifier,
		loginCode:     loginCode,
		ttl:           ttl,
		now:           time.Now,
	}
}

// Authenticate exchanges credentials for a principal.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Principal, error) {
	result, err := s.authenticator.Login(ctx, creds.Username, creds.Password)
	if err != nil {
		if errors.Is(err, provider.ErrUnauthorized) || errors.Is(err, provider.ErrNotFound) {
			return Principal{}, shared.ErrInvalidCredentials
		}
		return Principal{}, fmt.Errorf("auth: login: %w", err)
	}

	p := Principal{
		Username: result.Username,
		Token:    result.Token,
		Codes:    result.Functions,
	}
	if result.UserID > 0 {
		p.UserID = strconv.FormatInt(result.UserID, 10)
	}
	if p.Username == "" {
		p.Username = creds.Username
	}

	if s.verifier != nil {
		grant, err := s.verifier.Verify(result.Token)
		if err != nil {
			return Principal{}, fmt.Errorf("auth: verify token: %w", err)
		}
		p.UserID = grant.Subject
		if grant.Username != "" {
			p.Username = grant.Username
		}
		p.Codes = grant.Permissions.Codes()
		p.ExpiresAt = grant.ExpiresAt
	}
	if p.UserID == "" {
		p.UserID = p.Username
	}
	if p.ExpiresAt.IsZero() && s.ttl > 0 {
		p.ExpiresAt = s.now().Add(s.ttl)
	}

	if access.Authorize(s.loginCode, access.NewPermissionSet(p.Codes...)) != access.Allow {
		return Principal{}, ErrLoginNotPermitted
	}
	return p, nil
}
