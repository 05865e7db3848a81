package applier

import (
	"fmt"
	"strings"
	"time"

	"github.com/asaidimu/go-anansi-bootstrap/core/manifest"
	"github.com/asaidimu/go-anansi-bootstrap/core/persistence"
)

// Outcome is the result of reconciling one manifest entry.
type Outcome string

const (
	OutcomeCreated        Outcome = "created"
	OutcomeAlreadyPresent Outcome = "already-present"
	OutcomeFailed         Outcome = "failed"
)

// EntryResult records what happened to a single manifest entry.
type EntryResult struct {
	Kind       manifest.Kind `json:"kind"`
	Collection string        `json:"collection"`
	// Name is the index name, or the natural key of a seed as {k=v,...}.
	Name    string  `json:"name,omitempty"`
	Outcome Outcome `json:"outcome"`
	// Err is the typed failure; Error is its message for serialized reports.
	Err        error  `json:"-"`
	Error      string `json:"error,omitempty"`
	Hint       string `json:"hint,omitempty"`
	Detail     string `json:"detail,omitempty"`
	DurationMs int64  `json:"durationMs"`
}

// ID identifies the entry in reports: collection:<c>, index:<c>.<name> or
// seed:<c>{k=v,...}.
func (r EntryResult) ID() string {
	switch r.Kind {
	case manifest.KindCollection:
		return "collection:" + r.Collection
	case manifest.KindIndex:
		return "index:" + r.Collection + "." + r.Name
	case manifest.KindSeed:
		return "seed:" + r.Collection + r.Name
	}
	return string(r.Kind) + ":" + r.Collection
}

// Failed reports whether the entry failed.
func (r EntryResult) Failed() bool {
	return r.Outcome == OutcomeFailed
}

// ApplyReport lists the outcome of every attempted entry of a run, in the order
// the entries were applied.
type ApplyReport struct {
	RunID      string                        `json:"runId"`
	Manifest   string                        `json:"manifest"`
	Database   string                        `json:"database,omitempty"`
	StartedAt  time.Time                     `json:"startedAt"`
	FinishedAt time.Time                     `json:"finishedAt"`
	Entries    []EntryResult                 `json:"entries"`
	Stats      []persistence.CollectionStats `json:"stats,omitempty"`
}

// HasFailures reports whether any entry failed.
func (r *ApplyReport) HasFailures() bool {
	for _, e := range r.Entries {
		if e.Failed() {
			return true
		}
	}
	return false
}

// Count returns the number of entries with the given outcome.
func (r *ApplyReport) Count(outcome Outcome) int {
	n := 0
	for _, e := range r.Entries {
		if e.Outcome == outcome {
			n++
		}
	}
	return n
}

// Failed returns the failed entries.
func (r *ApplyReport) Failed() []EntryResult {
	var failed []EntryResult
	for _, e := range r.Entries {
		if e.Failed() {
			failed = append(failed, e)
		}
	}
	return failed
}

// Outcomes returns kind:outcome for every entry, in order.
func (r *ApplyReport) Outcomes() []string {
	out := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		out[i] = string(e.Kind) + ":" + string(e.Outcome)
	}
	return out
}

// Duration is the wall time of the run.
func (r *ApplyReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// seedKey formats the natural key values of a seed as {k=v,...}.
func seedKey(keys []string, values map[string]any) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = fmt.Sprintf("%s=%v", key, values[key])
	}
	return "{" + strings.Join(parts, ",") + "}"
}
