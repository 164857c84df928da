package model

import (
	"testing"
	"time"

	"github.com/convoycd/convoy/internal/catalog"
)

func TestJobListFilters(t *testing.T) {
	ok := JobStatus{
		Stage:         systemTest,
		LastCompleted: &CompletionRecord{Build: 3, NotifiedAt: base},
	}
	failing := JobStatus{
		Stage:         prodStage,
		LastCompleted: &CompletionRecord{Build: 2, Error: JobErrorOutOfCapacity, NotifiedAt: base},
	}
	running := JobStatus{
		Stage:         stagingTst,
		LastTriggered: &TriggerRecord{Version: "6.1", At: base},
	}
	defunct := JobStatus{
		Stage:         catalog.StageName("production-defunct"),
		LastCompleted: &CompletionRecord{Build: 1, Error: JobErrorUnknown, NotifiedAt: base},
	}
	list := JobList{ok, failing, running, defunct}

	got := list.Failing()
	if len(got) != 2 {
		t.Fatalf("Failing: got %d entries, want 2", len(got))
	}

	got = list.Running(base.Add(-time.Minute))
	if len(got) != 1 || got[0].Stage != stagingTst {
		t.Fatalf("Running: got %v", got)
	}
	if list.Running(base.Add(time.Minute)).Any() {
		t.Error("nothing should be running past the staleness window")
	}

	// stages missing from the catalog are dropped by Production
	got = list.Production(catalog.Default())
	if len(got) != 1 || got[0].Stage != prodStage {
		t.Fatalf("Production: got %v", got)
	}
}

func TestJobListSuccessfulFor(t *testing.T) {
	changeA := VersionChange("6.1")
	success := JobStatus{
		Stage: systemTest,
		LastSuccess: &SuccessRecord{
			Trigger:    &TriggerRecord{Version: "6.1", At: base},
			Completion: CompletionRecord{Build: 1, NotifiedAt: base},
		},
	}
	orphan := JobStatus{
		Stage:       stagingTst,
		LastSuccess: &SuccessRecord{Completion: CompletionRecord{Build: 1, NotifiedAt: base}},
	}
	list := JobList{success, orphan}

	got := list.SuccessfulFor(changeA)
	if len(got) != 1 || got[0].Stage != systemTest {
		t.Fatalf("SuccessfulFor: got %v", got)
	}
	if list.SuccessfulFor(VersionChange("9.9")).Any() {
		t.Error("no stage succeeded for 9.9")
	}
}
