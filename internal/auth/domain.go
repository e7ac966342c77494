package auth

import (
	"errors"
	"time"
)

// ErrLoginNotPermitted is returned when valid credentials lack the sign-in
// permission.
var ErrLoginNotPermitted = errors.New("auth: login not permitted")

// Credentials is what an operator submits to sign in.
type Credentials struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// Principal is the outcome of a successful sign-in.
type Principal struct {
	UserID    string
	Username  string
	Token     string
	Codes     []string
	ExpiresAt time.Time
}
