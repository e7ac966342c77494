package access

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for tokens that fail signature or claim checks.
var ErrInvalidToken = errors.New("access: invalid token")

// Claims is the payload the sign-in backend embeds in session tokens.
type Claims struct {
	Username  string   `json:"username,omitempty"`
	Functions []string `json:"functions"`
	jwt.RegisteredClaims
}

// Grant is what a verified token entitles the session to.
type Grant struct {
	Subject     string
	Username    string
	Permissions PermissionSet
	ExpiresAt   time.Time
}

// TokenVerifier checks HS256 tokens issued by the sign-in backend.
type TokenVerifier struct {
	secret []byte
}

// NewTokenVerifier returns a verifier for tokens signed with secret.
func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Verify validates raw and extracts the grant it carries.
func (v *TokenVerifier) Verify(raw string) (Grant, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return Grant{}, ErrInvalidToken
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Grant{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	grant := Grant{
		Subject:     claims.Subject,
		Username:    claims.Username,
		Permissions: NewPermissionSet(claims.Functions...),
	}
	if claims.ExpiresAt != nil {
		grant.ExpiresAt = claims.ExpiresAt.Time
	}
	return grant, nil
}
