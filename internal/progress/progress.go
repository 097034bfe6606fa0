// Package progress persists the markers that let batch jobs resume: one
// session marker per job and one completion stamp per (job, unit).
package progress

import (
	"context"
	"sort"
)

// State stores progress markers.
type State interface {
	// Load returns the job's session marker ("" when none) and unit stamps.
	Load(ctx context.Context, job string) (Snapshot, error)
	// StartSession records marker as the job's session.
	StartSession(ctx context.Context, job, marker string) error
	// MarkUnit stamps unit with marker.
	MarkUnit(ctx context.Context, job, unit, marker string) error
	// Clear removes the session and every unit stamp of the job.
	Clear(ctx context.Context, job string) error
	Close() error
}

// Snapshot is a job's persisted progress.
type Snapshot struct {
	Job     string            `json:"job"`
	Session string            `json:"session,omitempty"`
	Units   map[string]string `json:"units,omitempty"` // unit -> marker
}

// Active reports whether a session is in progress.
func (s Snapshot) Active() bool { return s.Session != "" }

// Done reports whether unit was completed in the current session. Stamps
// from an older session do not count.
func (s Snapshot) Done(unit string) bool {
	return s.Session != "" && s.Units[unit] == s.Session
}

// DoneUnits lists units completed in the current session, sorted.
func (s Snapshot) DoneUnits() []string {
	var out []string
	for u := range s.Units {
		if s.Done(u) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	return out
}
