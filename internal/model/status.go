package model

import (
	"time"

	"github.com/convoycd/convoy/internal/catalog"
)

// JobErrorKind classifies a failed job run, as reported by the build system.
type JobErrorKind string

const (
	JobErrorUnknown       JobErrorKind = "unknown"
	JobErrorOutOfCapacity JobErrorKind = "out_of_capacity"
)

// TriggerRecord is written when the orchestrator dispatches a stage. The next
// trigger for the same stage supersedes it; records are never merged.
type TriggerRecord struct {
	Version  Version
	Revision Revision
	// Upgrade is set when the trigger rolls out a platform version change
	// rather than a revision change. Informational only; the promotion gate
	// does not read it.
	Upgrade bool
	Reason  string
	At      time.Time
}

// Matches reports whether this run was for the given change. A zero change
// matches nothing.
func (t TriggerRecord) Matches(c Change) bool {
	if c.IsZero() {
		return false
	}
	if c.IsVersion() {
		return t.Version == c.Version
	}
	return t.Revision == c.Revision
}

// CompletionRecord is the outcome of one externally run job.
type CompletionRecord struct {
	// Build is the build system's monotonically increasing counter for this
	// stage. Used to reject stale reports delivered out of order.
	Build int64
	// Error is empty on success.
	Error JobErrorKind
	// NotifiedAt is when the build system emitted the report.
	NotifiedAt time.Time
	// RecordedAt is when the controller applied the report.
	RecordedAt time.Time
}

// Success reports whether the run completed without error.
func (c CompletionRecord) Success() bool { return c.Error == "" }

// SuccessRecord pins a successful completion to the trigger it resolved.
// Trigger is nil when the report arrived for a stage that was never
// triggered locally; such a success has no change identity and cannot
// satisfy change-bound queries.
type SuccessRecord struct {
	Trigger    *TriggerRecord
	Completion CompletionRecord
}

// JobStatus is the tracked state of one pipeline stage. The zero value with
// only Stage set means "never run". JobStatus values are immutable; the
// snapshot replaces them wholesale.
type JobStatus struct {
	Stage         catalog.StageName
	LastTriggered *TriggerRecord
	LastCompleted *CompletionRecord
	LastSuccess   *SuccessRecord
}

// InitialJobStatus returns the never-run status for a stage.
func InitialJobStatus(stage catalog.StageName) JobStatus {
	return JobStatus{Stage: stage}
}

// withTriggering returns a copy with the trigger record overwritten.
// Re-triggering is always legal, whether or not a run is in flight.
func (j JobStatus) withTriggering(t TriggerRecord) JobStatus {
	j.LastTriggered = &t
	return j
}

// withCompletion merges a completion into the status. On success the current
// trigger record is pinned together with the completion as the last success.
// A failure never clears a prior last success: a success is superseded only
// by a newer success, and freshness is decided by change-identity comparison.
func (j JobStatus) withCompletion(c CompletionRecord) JobStatus {
	j.LastCompleted = &c
	if c.Success() {
		j.LastSuccess = &SuccessRecord{Trigger: j.LastTriggered, Completion: c}
	}
	return j
}

// IsRunning reports whether a run is in progress within the staleness
// window: triggered after timeoutLimit and without a completion notified
// since the trigger. Once timeoutLimit passes the trigger time with no
// completion, the stage is deemed abandoned, not perpetually running.
func (j JobStatus) IsRunning(timeoutLimit time.Time) bool {
	if j.LastTriggered == nil {
		return false
	}
	if !j.LastTriggered.At.After(timeoutLimit) {
		return false
	}
	return j.LastCompleted == nil || j.LastCompleted.NotifiedAt.Before(j.LastTriggered.At)
}

// IsFailing reports whether the most recent completion was an error. A later
// success replaces the completion record and clears this.
func (j JobStatus) IsFailing() bool {
	return j.LastCompleted != nil && !j.LastCompleted.Success()
}

// IsSuccessfulFor reports whether the stage last succeeded for the given
// change. A success recorded without a trigger has no change identity and
// never matches.
func (j JobStatus) IsSuccessfulFor(c Change) bool {
	return j.LastSuccess != nil && j.LastSuccess.Trigger != nil && j.LastSuccess.Trigger.Matches(c)
}
