// Package exitstatus holds the process-wide exit code, confined behind a
// small API rather than exposed as an ambient package variable. Concurrent
// failure reporters call Set; main reads the value exactly once before
// calling os.Exit.
package exitstatus

import "sync"

var (
	mu   sync.Mutex
	code int
)

// Set reports a failure's exit code. The stored value is the maximum of all
// values ever reported, so one reporter's success cannot mask another's
// failure.
func Set(c int) {
	mu.Lock()
	defer mu.Unlock()
	if c > code {
		code = c
	}
}

// Get returns the current exit code. Intended to be called exactly once,
// after the top-level orchestrator returns.
func Get() int {
	mu.Lock()
	defer mu.Unlock()
	return code
}

// reset is test-only: it lets each test start from a clean cell.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	code = 0
}
