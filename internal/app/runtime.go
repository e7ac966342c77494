package app

import (
	"os"
	"sync"
)

// TestModeEnv marks processes started by the test suite. Binaries exit early
// when it is set to "1".
const TestModeEnv = "CONSOLE_TEST_MODE"

var testMode = sync.OnceValue(func() bool {
	return os.Getenv(TestModeEnv) == "1"
})

// InTestMode reports whether the binaries should skip startup.
func InTestMode() bool {
	return testMode()
}
