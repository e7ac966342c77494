package shared_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/odyssey-erp/security-console/internal/shared"
)

func TestCoreScopesLeaveOutSignIn(t *testing.T) {
	scopes := shared.CoreScopes()
	assert.NotContains(t, scopes, shared.PermLogin)
	assert.Contains(t, scopes, shared.PermRolesUpdate)
	assert.Contains(t, scopes, shared.PermUsersDelete)

	seen := make(map[string]bool, len(scopes))
	for _, code := range scopes {
		assert.False(t, seen[code], "duplicate %s", code)
		seen[code] = true
	}
}
