package roles

import (
	"time"

	"github.com/odyssey-erp/security-console/internal/provider"
)

// ModuleAccess lists the functions a role holds within one module.
type ModuleAccess struct {
	Module    provider.Module     `json:"module"`
	Functions []provider.Function `json:"functions"`
}

// AccessReport is a role with its functions grouped by module.
type AccessReport struct {
	Role        provider.Role  `json:"role"`
	Modules     []ModuleAccess `json:"modules"`
	GeneratedAt time.Time      `json:"generatedAt"`
}

// Codes are the function codes the role screens audit under.
type Codes struct {
	List   string
	Report string
}
