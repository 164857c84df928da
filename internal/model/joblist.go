package model

import (
	"time"

	"github.com/convoycd/convoy/internal/catalog"
)

// JobList is a filterable collection of job status entries, used by snapshot
// queries and by status reporting.
type JobList []JobStatus

// Failing keeps the stages whose most recent completion was an error.
func (l JobList) Failing() JobList {
	return l.filter(func(j JobStatus) bool { return j.IsFailing() })
}

// Running keeps the stages with a run in progress within the staleness
// window ending at timeoutLimit.
func (l JobList) Running(timeoutLimit time.Time) JobList {
	return l.filter(func(j JobStatus) bool { return j.IsRunning(timeoutLimit) })
}

// SuccessfulFor keeps the stages whose last success was for the given change.
func (l JobList) SuccessfulFor(c Change) JobList {
	return l.filter(func(j JobStatus) bool { return j.IsSuccessfulFor(c) })
}

// Production keeps the stages that deploy to a production zone, resolved
// through the catalog. Stages missing from the catalog are dropped.
func (l JobList) Production(cat *catalog.Catalog) JobList {
	return l.filter(func(j JobStatus) bool {
		stage, err := cat.FromName(j.Stage)
		return err == nil && stage.IsProduction()
	})
}

// Any reports whether the list is non-empty.
func (l JobList) Any() bool { return len(l) > 0 }

func (l JobList) filter(keep func(JobStatus) bool) JobList {
	var out JobList
	for _, j := range l {
		if keep(j) {
			out = append(out, j)
		}
	}
	return out
}
