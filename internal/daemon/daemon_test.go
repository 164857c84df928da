package daemon

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/events"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/store"
	"github.com/convoycd/convoy/internal/tracker"
)

type fixture struct {
	daemon  *Daemon
	tracker *tracker.Tracker
	cfg     model.Config
	baseDir string
}

func newFixture(t *testing.T, bus *events.Bus) *fixture {
	t.Helper()
	baseDir := t.TempDir()
	cfg := model.DefaultConfig(baseDir)

	st, err := store.New(cfg.Registry.Dir)
	require.NoError(t, err)
	tr := tracker.New(st, catalog.Default(), bus, nil)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	d, err := New(cfg, tr, logger)
	require.NoError(t, err)
	return &fixture{daemon: d, tracker: tr, cfg: cfg, baseDir: baseDir}
}

func (f *fixture) dropReport(t *testing.T, name, content string) {
	t.Helper()
	writeFile(t, filepath.Join(f.cfg.Inbox.Dir, name), content)
}

const goodReport = `schema_version: 1
file_type: job_report
application: app1
job: system-test
project_id: 1001
build: 7
outcome: success
`

func TestScanInboxAppliesAndArchives(t *testing.T) {
	f := newFixture(t, nil)
	f.dropReport(t, "report-001.yaml", goodReport)

	f.daemon.scanInbox()

	snapshot, err := f.tracker.Snapshot("app1")
	require.NoError(t, err)
	job, ok := snapshot.StatusOf("system-test")
	require.True(t, ok)
	require.NotNil(t, job.LastCompleted)
	assert.Equal(t, int64(7), job.LastCompleted.Build)
	id, _ := snapshot.ProjectID()
	assert.Equal(t, int64(1001), id)

	// processed file is gone from the inbox and sits in the archive
	entries, err := os.ReadDir(f.cfg.Inbox.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	archived, err := os.ReadDir(f.cfg.Inbox.ArchiveDir)
	require.NoError(t, err)
	assert.Len(t, archived, 1)
}

func TestScanInboxQuarantinesUnknownStage(t *testing.T) {
	f := newFixture(t, nil)
	f.dropReport(t, "report-001.yaml", `schema_version: 1
file_type: job_report
application: app1
job: production-atlantis-1
project_id: 1001
build: 7
outcome: success
`)

	f.daemon.scanInbox()

	// no state change, file moved to quarantine
	snapshot, err := f.tracker.Snapshot("app1")
	require.NoError(t, err)
	assert.Empty(t, snapshot.JobStatuses())

	quarantined, err := os.ReadDir(filepath.Join(f.baseDir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, quarantined, 1)
}

func TestScanInboxQuarantinesMalformedFile(t *testing.T) {
	f := newFixture(t, nil)
	f.dropReport(t, "garbage.yaml", ":::\n\t")

	f.daemon.scanInbox()

	quarantined, err := os.ReadDir(filepath.Join(f.baseDir, "quarantine"))
	require.NoError(t, err)
	assert.Len(t, quarantined, 1)
	entries, err := os.ReadDir(f.cfg.Inbox.Dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestScanInboxSkipsHiddenAndForeignFiles(t *testing.T) {
	f := newFixture(t, nil)
	f.dropReport(t, ".partial.yaml", "half written")
	f.dropReport(t, "notes.txt", "not a report")

	f.daemon.scanInbox()

	entries, err := os.ReadDir(f.cfg.Inbox.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "hidden and non-yaml files stay untouched")
}

func TestScanInboxProcessesInNameOrder(t *testing.T) {
	f := newFixture(t, nil)
	// build 9 in an earlier-named file, build 10 in a later one: after the
	// scan the stage must be at build 10 regardless of directory order
	f.dropReport(t, "report-001.yaml", `schema_version: 1
file_type: job_report
application: app1
job: system-test
project_id: 1001
build: 9
outcome: success
`)
	f.dropReport(t, "report-002.yaml", `schema_version: 1
file_type: job_report
application: app1
job: system-test
project_id: 1001
build: 10
outcome: success
`)

	f.daemon.scanInbox()

	snapshot, err := f.tracker.Snapshot("app1")
	require.NoError(t, err)
	job, ok := snapshot.StatusOf("system-test")
	require.True(t, ok)
	assert.Equal(t, int64(10), job.LastCompleted.Build)
}

func TestRunAppliesDroppedReport(t *testing.T) {
	bus := events.NewBus(8)
	defer bus.Close()
	f := newFixture(t, bus)

	completed := make(chan events.Event, 8)
	bus.Subscribe(events.EventJobCompleted, func(e events.Event) { completed <- e })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.daemon.Run(ctx) }()

	// give the watcher a moment, then drop the report
	time.Sleep(100 * time.Millisecond)
	f.dropReport(t, "report-001.yaml", goodReport)

	select {
	case e := <-completed:
		assert.Equal(t, "app1", e.Application)
	case <-time.After(5 * time.Second):
		t.Fatal("report was not applied by the running daemon")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop on cancel")
	}
}

func TestRunRefusesSecondInstance(t *testing.T) {
	f := newFixture(t, nil)

	require.NoError(t, f.daemon.fileLock.TryLock())
	defer f.daemon.fileLock.Unlock()

	second, err := New(f.cfg, f.tracker, nil)
	require.NoError(t, err)
	err = second.Run(context.Background())
	assert.Error(t, err, "second daemon on the same directory must refuse to start")
}
