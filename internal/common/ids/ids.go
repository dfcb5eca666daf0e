// Package ids provides identifier generation and clock access for the
// orchestrator kernel. Every identifier the kernel mints — connection,
// agent, service, task, tool-call — goes through here so the format can
// change in one place.
package ids

import (
	"time"

	"github.com/google/uuid"
)

// New returns a fresh random identifier.
func New() string {
	return uuid.New().String()
}

// NewPrefixed returns a fresh random identifier with a human-readable prefix,
// e.g. NewPrefixed("task") -> "task_3f9a1c2e-...".
func NewPrefixed(prefix string) string {
	return prefix + "_" + uuid.New().String()
}

// Clock abstracts time access so components can be tested with a fixed or
// simulated clock instead of wall time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// NowISO8601 returns the current time formatted as used on the wire.
func NowISO8601() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
