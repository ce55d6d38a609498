// Package testing switches a test binary into GL test mode when imported: the
// memory store, and no Redis unless a test asks for it.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

var (
	once     sync.Once
	defaults = map[string]string{
		"STORE_DRIVER": "memory",
		"REDIS_ADDR":   "127.0.0.1:0",
	}
)

func apply() {
	once.Do(func() {
		_ = os.Setenv("GL_TEST_MODE", "1")
		for key, value := range defaults {
			if os.Getenv(key) == "" {
				_ = os.Setenv(key, value)
			}
		}
	})
}

func init() {
	apply()
}

// TestMain can be called from a package's own TestMain.
func TestMain(m *stdtesting.M) {
	apply()
	os.Exit(m.Run())
}
