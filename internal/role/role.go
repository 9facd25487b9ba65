// Package role defines the three-state process role used by the supervision
// tree: a process started opportunistically is the progenitor, which
// re-executes itself as a session-detached watcher, which forks and
// supervises the worker that does the actual work.
package role

import "fmt"

// Role is a small closed set of named process states. Prefer this tagged
// variant over bare integer flags so invalid values cannot be constructed.
type Role int

const (
	// Progenitor is the default role: the process a caller originally spawned.
	Progenitor Role = iota
	// Watcher is a session-detached process that spawns and respawns a worker.
	Watcher
	// Worker does the actual listening, harvesting and uploading.
	Worker
)

// EnvVar is the environment variable name respawned processes read their
// role from.
const EnvVar = "NEW_RELIC_DAEMON_ROLE"

func (r Role) String() string {
	switch r {
	case Progenitor:
		return "progenitor"
	case Watcher:
		return "watcher"
	case Worker:
		return "worker"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// FromEnv parses the role environment variable value. An empty or unknown
// value yields Progenitor, ok=false so the caller can distinguish "not set"
// from "explicitly progenitor".
func FromEnv(value string) (r Role, ok bool) {
	switch value {
	case "watcher":
		return Watcher, true
	case "worker":
		return Worker, true
	default:
		return Progenitor, false
	}
}

// Resolve implements the precedence from spec.md §4.2: a foreground flag
// forces Worker; otherwise the environment variable selects Watcher/Worker;
// otherwise the process is the Progenitor.
func Resolve(foreground bool, envValue string) Role {
	if foreground {
		return Worker
	}
	if r, ok := FromEnv(envValue); ok {
		return r
	}
	return Progenitor
}
