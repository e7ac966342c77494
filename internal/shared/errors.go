package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// GenericErrorMessage is shown when a failure carries nothing safe to display.
const GenericErrorMessage = "An error has occurred"

// UserMessager is implemented by errors whose message may be shown to users.
type UserMessager interface {
	UserMessage() string
}

// UserSafeMessage returns the first user-facing message in err's chain, or the
// generic message.
func UserSafeMessage(err error) string {
	var um UserMessager
	if errors.As(err, &um) {
		if msg := um.UserMessage(); msg != "" {
			return msg
		}
	}
	return GenericErrorMessage
}
