// Package testing forces the console into test mode for any package that
// imports it and fills in the secrets configuration requires.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var defaults = []struct{ key, value string }{
	{"SESSION_SECRET", "test-session-secret"},
	{"CSRF_SECRET", "test-csrf-secret"},
	{"AUDIT_SINK", "log"},
	{"AUDIT_DISPATCH", "inline"},
	{"GOTENBERG_URL", ""},
}

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("CONSOLE_TEST_MODE", "1")
		for _, d := range defaults {
			if _, ok := os.LookupEnv(d.key); !ok {
				_ = os.Setenv(d.key, d.value)
			}
		}
	})
}

func init() {
	ensureTestMode()
}

func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
