// Package testing switches the registry into test mode. Test packages that
// construct app components import it for its side effect.
package testing

import (
	"os"
	"sync"
)

const testSecret = "registry-test-secret-0123456789abcdef"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv("REGISTRY_TEST_MODE", "1")
		if os.Getenv("JWT_SECRET") == "" {
			_ = os.Setenv("JWT_SECRET", testSecret)
		}
	})
}

func init() {
	ensureTestMode()
}
