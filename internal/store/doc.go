package store

import (
	"fmt"
	"sort"
	"time"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/yamlio"
)

// applicationDoc is the on-disk form of one application record. The pipeline
// document must round-trip losslessly: a stage that is absent stays absent, a
// stage present with no completion stays that way, and a last success keeps
// or loses its change identity exactly as recorded.
type applicationDoc struct {
	SchemaVersion int            `yaml:"schema_version"`
	FileType      string         `yaml:"file_type"`
	Application   string         `yaml:"application"`
	Generation    int64          `yaml:"generation"`
	ProjectID     *int64         `yaml:"project_id,omitempty"`
	IssueID       string         `yaml:"issue_id,omitempty"`
	Jobs          []jobStatusDoc `yaml:"jobs"`
	UpdatedAt     string         `yaml:"updated_at"`
}

type jobStatusDoc struct {
	Stage         string         `yaml:"stage"`
	LastTriggered *triggerDoc    `yaml:"last_triggered,omitempty"`
	LastCompleted *completionDoc `yaml:"last_completed,omitempty"`
	LastSuccess   *successDoc    `yaml:"last_success,omitempty"`
}

type triggerDoc struct {
	Version  string `yaml:"version,omitempty"`
	Revision string `yaml:"revision,omitempty"`
	Upgrade  bool   `yaml:"upgrade"`
	Reason   string `yaml:"reason,omitempty"`
	At       string `yaml:"at"`
}

type completionDoc struct {
	Build      int64  `yaml:"build"`
	Error      string `yaml:"error,omitempty"`
	NotifiedAt string `yaml:"notified_at"`
	RecordedAt string `yaml:"recorded_at"`
}

type successDoc struct {
	Trigger    *triggerDoc   `yaml:"trigger,omitempty"`
	Completion completionDoc `yaml:"completion"`
}

func encodeDoc(application string, generation int64, s *model.Snapshot, updatedAt time.Time) applicationDoc {
	doc := applicationDoc{
		SchemaVersion: yamlio.CurrentSchemaVersion,
		FileType:      yamlio.FileTypeApplication,
		Application:   application,
		Generation:    generation,
		UpdatedAt:     formatTime(updatedAt),
	}
	if id, ok := s.ProjectID(); ok {
		doc.ProjectID = &id
	}
	if issue, ok := s.IssueID(); ok {
		doc.IssueID = issue
	}

	statuses := s.JobStatuses()
	names := make([]string, 0, len(statuses))
	for name := range statuses {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		doc.Jobs = append(doc.Jobs, encodeJob(statuses[catalog.StageName(name)]))
	}
	return doc
}

func encodeJob(j model.JobStatus) jobStatusDoc {
	doc := jobStatusDoc{Stage: string(j.Stage)}
	if j.LastTriggered != nil {
		doc.LastTriggered = encodeTrigger(*j.LastTriggered)
	}
	if j.LastCompleted != nil {
		doc.LastCompleted = encodeCompletion(*j.LastCompleted)
	}
	if j.LastSuccess != nil {
		doc.LastSuccess = &successDoc{Completion: *encodeCompletion(j.LastSuccess.Completion)}
		if j.LastSuccess.Trigger != nil {
			doc.LastSuccess.Trigger = encodeTrigger(*j.LastSuccess.Trigger)
		}
	}
	return doc
}

func encodeTrigger(t model.TriggerRecord) *triggerDoc {
	return &triggerDoc{
		Version:  string(t.Version),
		Revision: string(t.Revision),
		Upgrade:  t.Upgrade,
		Reason:   t.Reason,
		At:       formatTime(t.At),
	}
}

func encodeCompletion(c model.CompletionRecord) *completionDoc {
	return &completionDoc{
		Build:      c.Build,
		Error:      string(c.Error),
		NotifiedAt: formatTime(c.NotifiedAt),
		RecordedAt: formatTime(c.RecordedAt),
	}
}

func decodeDoc(doc applicationDoc) (*model.Snapshot, error) {
	entries := make([]model.JobStatus, 0, len(doc.Jobs))
	for _, jd := range doc.Jobs {
		job, err := decodeJob(jd)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", jd.Stage, err)
		}
		entries = append(entries, job)
	}

	if doc.ProjectID != nil {
		return model.NewSnapshotWithProject(*doc.ProjectID, entries, doc.IssueID)
	}
	return model.NewSnapshot(entries, doc.IssueID), nil
}

func decodeJob(doc jobStatusDoc) (model.JobStatus, error) {
	job := model.InitialJobStatus(catalog.StageName(doc.Stage))
	if doc.LastTriggered != nil {
		t, err := decodeTrigger(*doc.LastTriggered)
		if err != nil {
			return model.JobStatus{}, err
		}
		job.LastTriggered = &t
	}
	if doc.LastCompleted != nil {
		c, err := decodeCompletion(*doc.LastCompleted)
		if err != nil {
			return model.JobStatus{}, err
		}
		job.LastCompleted = &c
	}
	if doc.LastSuccess != nil {
		c, err := decodeCompletion(doc.LastSuccess.Completion)
		if err != nil {
			return model.JobStatus{}, err
		}
		success := model.SuccessRecord{Completion: c}
		if doc.LastSuccess.Trigger != nil {
			t, err := decodeTrigger(*doc.LastSuccess.Trigger)
			if err != nil {
				return model.JobStatus{}, err
			}
			success.Trigger = &t
		}
		job.LastSuccess = &success
	}
	return job, nil
}

func decodeTrigger(doc triggerDoc) (model.TriggerRecord, error) {
	at, err := parseTime(doc.At)
	if err != nil {
		return model.TriggerRecord{}, fmt.Errorf("trigger time: %w", err)
	}
	return model.TriggerRecord{
		Version:  model.Version(doc.Version),
		Revision: model.Revision(doc.Revision),
		Upgrade:  doc.Upgrade,
		Reason:   doc.Reason,
		At:       at,
	}, nil
}

func decodeCompletion(doc completionDoc) (model.CompletionRecord, error) {
	notified, err := parseTime(doc.NotifiedAt)
	if err != nil {
		return model.CompletionRecord{}, fmt.Errorf("notified time: %w", err)
	}
	recorded, err := parseTime(doc.RecordedAt)
	if err != nil {
		return model.CompletionRecord{}, fmt.Errorf("recorded time: %w", err)
	}
	return model.CompletionRecord{
		Build:      doc.Build,
		Error:      model.JobErrorKind(doc.Error),
		NotifiedAt: notified,
		RecordedAt: recorded,
	}, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
