package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/convoycd/convoy/internal/catalog"
)

// ErrInvalidProjectID is returned when a build-system project id is supplied
// but is not a positive integer. Surfaced at construction, never coerced.
var ErrInvalidProjectID = errors.New("project id must be a positive integer")

// JobReport is a completion report from the external build system. The
// report alone does not carry change identity; the snapshot correlates it
// with the stage's most recent trigger record.
type JobReport struct {
	Application string
	Stage       catalog.StageName
	ProjectID   int64
	Build       int64
	// Error is empty when the run succeeded.
	Error JobErrorKind
}

// NewJobReport validates and builds a completion report. The project id must
// be positive: build systems discover it, the controller never invents one.
func NewJobReport(application string, stage catalog.StageName, projectID, build int64, jobError JobErrorKind) (JobReport, error) {
	if projectID <= 0 {
		return JobReport{}, fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
	}
	return JobReport{
		Application: application,
		Stage:       stage,
		ProjectID:   projectID,
		Build:       build,
		Error:       jobError,
	}, nil
}

// Success reports whether the run completed without error.
func (r JobReport) Success() bool { return r.Error == "" }

// Snapshot is the full pipeline state of one application: which stages have
// run and with what outcome, plus the build-system project id and a linked
// issue, once known. Snapshots are immutable; every mutator returns a new
// value and callers serialize replacement through the owning store.
type Snapshot struct {
	projectID int64 // 0 until discovered from the first report
	issueID   string
	status    map[catalog.StageName]JobStatus
}

// EmptySnapshot is the state of a freshly registered application: no project
// id, no issue, no stage has ever run.
func EmptySnapshot() *Snapshot {
	return &Snapshot{status: map[catalog.StageName]JobStatus{}}
}

// NewSnapshot builds a snapshot from explicit parts, with no project id yet
// known. Entries are keyed by their stage name; later entries for the same
// stage win.
func NewSnapshot(entries []JobStatus, issueID string) *Snapshot {
	status := make(map[catalog.StageName]JobStatus, len(entries))
	for _, e := range entries {
		status[e.Stage] = e
	}
	return &Snapshot{issueID: issueID, status: status}
}

// NewSnapshotWithProject is NewSnapshot with a known project id. A supplied
// id that is not positive fails with ErrInvalidProjectID.
func NewSnapshotWithProject(projectID int64, entries []JobStatus, issueID string) (*Snapshot, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
	}
	s := NewSnapshot(entries, issueID)
	s.projectID = projectID
	return s, nil
}

// copyWith clones the snapshot, replacing one stage entry.
func (s *Snapshot) copyWith(stage catalog.StageName, job JobStatus) *Snapshot {
	status := make(map[catalog.StageName]JobStatus, len(s.status)+1)
	for k, v := range s.status {
		status[k] = v
	}
	status[stage] = job
	return &Snapshot{projectID: s.projectID, issueID: s.issueID, status: status}
}

// WithCompletion returns a new snapshot with the report merged in. A report
// for a stage that was never triggered locally is accepted: the build system
// is the source of truth for "did this run". The reported project id always
// becomes the snapshot's project id, so a snapshot created before the
// project was known becomes fully identified on first report.
//
// Out-of-order delivery policy: a report whose build counter is not greater
// than the one already recorded for the stage is ignored
// (highest-counter-wins). A duplicate report is therefore a no-op even when a
// re-trigger arrived in between, so a replayed success can never be pinned to
// a trigger it did not resolve.
func (s *Snapshot) WithCompletion(report JobReport, notifiedAt, recordedAt time.Time) *Snapshot {
	job, ok := s.status[report.Stage]
	if !ok {
		job = InitialJobStatus(report.Stage)
	}
	if job.LastCompleted != nil && report.Build <= job.LastCompleted.Build {
		// Stale or duplicate counter: keep the status as is, but project
		// identity discovery is still authoritative.
		next := s.copyWith(report.Stage, job)
		next.projectID = report.ProjectID
		return next
	}
	next := s.copyWith(report.Stage, job.withCompletion(CompletionRecord{
		Build:      report.Build,
		Error:      report.Error,
		NotifiedAt: notifiedAt,
		RecordedAt: recordedAt,
	}))
	next.projectID = report.ProjectID
	return next
}

// WithTriggering returns a new snapshot where the stage's trigger record is
// unconditionally overwritten, whether or not a run is in flight.
// Re-triggering a stuck job is always legal and never touches completion
// history.
func (s *Snapshot) WithTriggering(stage catalog.StageName, change Change, version Version, revision Revision, reason string, at time.Time) *Snapshot {
	job, ok := s.status[stage]
	if !ok {
		job = InitialJobStatus(stage)
	}
	return s.copyWith(stage, job.withTriggering(TriggerRecord{
		Version:  version,
		Revision: revision,
		Upgrade:  !change.IsZero() && change.IsVersion(),
		Reason:   reason,
		At:       at,
	}))
}

// WithProjectID returns a new snapshot with the given project id.
func (s *Snapshot) WithProjectID(projectID int64) (*Snapshot, error) {
	if projectID <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidProjectID, projectID)
	}
	next := s.copyAll()
	next.projectID = projectID
	return next, nil
}

// WithIssueID returns a new snapshot linked to the given issue. An empty id
// clears the link.
func (s *Snapshot) WithIssueID(issueID string) *Snapshot {
	next := s.copyAll()
	next.issueID = issueID
	return next
}

// Without returns a new snapshot with the stage removed. All queries treat
// the removed stage as never run.
func (s *Snapshot) Without(stage catalog.StageName) *Snapshot {
	next := s.copyAll()
	delete(next.status, stage)
	return next
}

func (s *Snapshot) copyAll() *Snapshot {
	status := make(map[catalog.StageName]JobStatus, len(s.status))
	for k, v := range s.status {
		status[k] = v
	}
	return &Snapshot{projectID: s.projectID, issueID: s.issueID, status: status}
}

// JobStatuses returns a copy of the per-stage status map.
func (s *Snapshot) JobStatuses() map[catalog.StageName]JobStatus {
	out := make(map[catalog.StageName]JobStatus, len(s.status))
	for k, v := range s.status {
		out[k] = v
	}
	return out
}

// StatusOf returns the status of one stage. ok is false when the stage has
// never run; that is not an error.
func (s *Snapshot) StatusOf(stage catalog.StageName) (JobStatus, bool) {
	job, ok := s.status[stage]
	return job, ok
}

// ProjectID returns the build-system project id, if discovered.
func (s *Snapshot) ProjectID() (int64, bool) { return s.projectID, s.projectID > 0 }

// IssueID returns the linked issue id, if any.
func (s *Snapshot) IssueID() (string, bool) { return s.issueID, s.issueID != "" }

// Jobs returns the status entries as a filterable list.
func (s *Snapshot) Jobs() JobList {
	out := make(JobList, 0, len(s.status))
	for _, job := range s.status {
		out = append(out, job)
	}
	return out
}

// HasFailures reports whether any stage's most recent completion was an
// error. A later success for the stage clears it.
func (s *Snapshot) HasFailures() bool {
	return s.Jobs().Failing().Any()
}

// IsRunning reports whether the given stage is running within the staleness
// window ending at timeoutLimit.
func (s *Snapshot) IsRunning(stage catalog.StageName, timeoutLimit time.Time) bool {
	job, ok := s.status[stage]
	if !ok {
		return false
	}
	return job.IsRunning(timeoutLimit)
}

// IsAnyRunning reports whether any stage is running within the staleness
// window.
func (s *Snapshot) IsAnyRunning(timeoutLimit time.Time) bool {
	return s.Jobs().Running(timeoutLimit).Any()
}

// IsSuccessful reports whether the stage last completed successfully for the
// given change. Success for an older change never counts for a newer one.
func (s *Snapshot) IsSuccessful(change Change, stage catalog.StageName) bool {
	job, ok := s.status[stage]
	if !ok {
		return false
	}
	return job.IsSuccessfulFor(change)
}

// IsDeployableTo reports whether the change may be promoted into the given
// environment: staging requires the integration-test stage to have succeeded
// for exactly this change, production requires the same of staging-test.
// No environment or no pending change gates nothing, and environments
// outside the two-hop chain have no preconditions.
func (s *Snapshot) IsDeployableTo(cat *catalog.Catalog, env catalog.Environment, change Change) bool {
	if env == "" || change.IsZero() {
		return true
	}
	switch env {
	case catalog.EnvStaging:
		return s.IsSuccessful(change, cat.IntegrationTest().Name)
	case catalog.EnvProduction:
		return s.IsSuccessful(change, cat.StagingTest().Name)
	}
	return true
}
