package daemon

import (
	"fmt"
	"os"
	"time"

	yamlv3 "gopkg.in/yaml.v3"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/yamlio"
)

// ReportFile is the completion report document the build system drops into
// the inbox. The job name is the stage's stable external name, used verbatim.
type ReportFile struct {
	SchemaVersion int    `yaml:"schema_version"`
	FileType      string `yaml:"file_type"`
	Application   string `yaml:"application"`
	Job           string `yaml:"job"`
	ProjectID     int64  `yaml:"project_id"`
	Build         int64  `yaml:"build"`
	// Outcome is "success" or an error kind ("unknown", "out_of_capacity").
	Outcome    string `yaml:"outcome"`
	NotifiedAt string `yaml:"notified_at"`
}

const outcomeSuccess = "success"

// ParseReportFile reads and validates a report file, returning the report
// and the build system's notification time.
func ParseReportFile(path string) (model.JobReport, time.Time, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return model.JobReport{}, time.Time{}, fmt.Errorf("read report: %w", err)
	}
	if err := yamlio.ValidateSchemaHeaderFromBytes(content, yamlio.FileTypeJobReport); err != nil {
		return model.JobReport{}, time.Time{}, err
	}

	var file ReportFile
	if err := yamlv3.Unmarshal(content, &file); err != nil {
		return model.JobReport{}, time.Time{}, fmt.Errorf("parse report: %w", err)
	}
	if file.Application == "" {
		return model.JobReport{}, time.Time{}, fmt.Errorf("report missing application")
	}
	if file.Job == "" {
		return model.JobReport{}, time.Time{}, fmt.Errorf("report missing job")
	}

	var jobError model.JobErrorKind
	switch file.Outcome {
	case outcomeSuccess:
	case string(model.JobErrorUnknown), string(model.JobErrorOutOfCapacity):
		jobError = model.JobErrorKind(file.Outcome)
	default:
		return model.JobReport{}, time.Time{}, fmt.Errorf("unknown outcome %q", file.Outcome)
	}

	report, err := model.NewJobReport(file.Application, catalog.StageName(file.Job), file.ProjectID, file.Build, jobError)
	if err != nil {
		return model.JobReport{}, time.Time{}, err
	}

	notifiedAt := time.Now().UTC()
	if file.NotifiedAt != "" {
		notifiedAt, err = time.Parse(time.RFC3339Nano, file.NotifiedAt)
		if err != nil {
			return model.JobReport{}, time.Time{}, fmt.Errorf("notified_at: %w", err)
		}
	}
	return report, notifiedAt, nil
}
