// Package provider defines the console's view of the backend that owns roles,
// functions, modules and users.
package provider

import "context"

// Module groups related functions.
type Module struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Role is a named bundle of functions.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Status      bool   `json:"status"`
}

// Function is one grantable capability.
type Function struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Status      bool    `json:"status"`
	Module      *Module `json:"module,omitempty"`
}

// User is an operator account.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Status   bool   `json:"status"`
}

// NewUser is an operator account to create.
type NewUser struct {
	Username string `json:"username" validate:"required,min=5,max=100"`
	Email    string `json:"email" validate:"required,email,max=200"`
	Password string `json:"password" validate:"required,min=8,max=200"`
}

// LoginResult is what the backend returns for valid credentials. Token is
// empty when the backend is reached in-process and vouches for the result
// itself.
type LoginResult struct {
	Token     string   `json:"token"`
	UserID    int64    `json:"userId,omitempty"`
	Username  string   `json:"username"`
	Functions []string `json:"functions"`
}

// Authenticator exchanges credentials for the operator's grant.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (LoginResult, error)
}

// Backend is the data provider the console reads from and writes to.
type Backend interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListFunctions(ctx context.Context) ([]Function, error)
	RoleFunctions(ctx context.Context, roleID int64) ([]Function, error)
	ReplaceRoleFunctions(ctx context.Context, roleID int64, functionIDs []int64) error
	ListUsers(ctx context.Context) ([]User, error)
	CreateUser(ctx context.Context, u NewUser) (User, error)
	// DeleteUser deactivates the user; deactivated users drop out of listings
	// and can no longer sign in.
	DeleteUser(ctx context.Context, id int64) error
	UserRoles(ctx context.Context, userID int64) ([]Role, error)
	ReplaceUserRoles(ctx context.Context, userID int64, roleIDs []int64) error
}

// ActiveRoles keeps roles with status true.
func ActiveRoles(roles []Role) []Role {
	out := make([]Role, 0, len(roles))
	for _, r := range roles {
		if r.Status {
			out = append(out, r)
		}
	}
	return out
}

// ActiveUsers keeps users with status true.
func ActiveUsers(users []User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		if u.Status {
			out = append(out, u)
		}
	}
	return out
}

// ActiveFunctions keeps functions with status true.
func ActiveFunctions(fns []Function) []Function {
	out := make([]Function, 0, len(fns))
	for _, f := range fns {
		if f.Status {
			out = append(out, f)
		}
	}
	return out
}

type tokenKey struct{}

// WithToken attaches the operator's bearer token to ctx.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the bearer token attached by WithToken.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}
