package shared

import (
	"net/http"
	"strings"

	"github.com/go-chi/httprate"
)

// RateLimitKey buckets requests by signed-in operator, falling back to the
// client address for anonymous traffic.
func RateLimitKey(r *http.Request) (string, error) {
	if sess := SessionFromContext(r.Context()); sess != nil {
		if user := strings.TrimSpace(sess.User()); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
