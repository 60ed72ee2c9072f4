// Package guard marks the process as running tests without pulling in the
// secrets seeded by the top-level testing package.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("HEARTH_TEST_MODE") == "" {
			_ = os.Setenv("HEARTH_TEST_MODE", "1")
		}
	})
}
