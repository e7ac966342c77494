package shared

// Security console function codes. Screens are wired to these in the router;
// the access and assignment packages treat them as opaque strings.
const (
	PermLogin = "SEC-LOGIN"

	PermRolesRead   = "SEC-ROLES-READ"
	PermRolesUpdate = "SEC-ROLES-UPDATE"
	PermRolesDelete = "SEC-ROLES-DELETE"

	PermFunctionsRead         = "SEC-FUNCTIONS-READ"
	PermFunctionsToRoleRead   = "SEC-FUNCTIONS-TO-ROLE-READ"
	PermFunctionsToRoleUpdate = "SEC-FUNCTIONS-TO-ROLE-UPDATE"

	PermUsersRead   = "SEC-USERS-READ"
	PermUsersCreate = "SEC-USERS-CREATE"
	PermUsersDelete = "SEC-USERS-DELETE"

	PermRolesToUserRead   = "SEC-ROLES-TO-USER-READ"
	PermRolesToUserUpdate = "SEC-ROLES-TO-USER-UPDATE"

	PermAuditRead = "SEC-AUDIT-READ"
)

// CoreScopes lists the security function codes other than sign-in. The role
// maintenance codes are granted here for the backend; the console itself
// never checks them.
func CoreScopes() []string {
	return []string{
		PermRolesRead,
		PermRolesUpdate,
		PermRolesDelete,
		PermFunctionsRead,
		PermFunctionsToRoleRead,
		PermFunctionsToRoleUpdate,
		PermUsersRead,
		PermUsersCreate,
		PermUsersDelete,
		PermRolesToUserRead,
		PermRolesToUserUpdate,
		PermAuditRead,
	}
}
