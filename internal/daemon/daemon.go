// Package daemon runs the report inbox watcher: it picks up completion
// report files dropped by the build system, applies them to the application
// registry, and archives or quarantines them.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/lock"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/tracker"
	"github.com/convoycd/convoy/internal/yamlio"
)

// Daemon watches the inbox directory and applies completion reports.
type Daemon struct {
	cfg      model.Config
	tracker  *tracker.Tracker
	logger   *slog.Logger
	fileLock *lock.FileLock
}

// New creates a daemon. The tracker carries the store, catalog and event
// sinks; the daemon owns only the inbox plumbing.
func New(cfg model.Config, tr *tracker.Tracker, logger *slog.Logger) (*Daemon, error) {
	if logger == nil {
		logger = slog.Default()
	}
	for _, dir := range []string{cfg.Inbox.Dir, cfg.Inbox.ArchiveDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	lockPath := filepath.Join(filepath.Dir(cfg.Inbox.Dir), "convoy.lock")
	return &Daemon{
		cfg:      cfg,
		tracker:  tr,
		logger:   logger,
		fileLock: lock.NewFileLock(lockPath),
	}, nil
}

// Run processes the inbox until ctx is cancelled. File events trigger a
// debounced scan; a ticker rescans regardless, so a lost event delays a
// report instead of losing it.
func (d *Daemon) Run(ctx context.Context) error {
	if err := d.fileLock.TryLock(); err != nil {
		return err
	}
	defer func() {
		if err := d.fileLock.Unlock(); err != nil {
			d.logger.Warn("release daemon lock", "error", err)
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(d.cfg.Inbox.Dir); err != nil {
		return fmt.Errorf("watch inbox: %w", err)
	}

	d.logger.Info("daemon started", "inbox", d.cfg.Inbox.Dir)

	// Pick up anything that arrived while the daemon was down.
	d.scanInbox()

	kick := make(chan struct{}, 1)
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		debounce := time.Duration(d.cfg.Inbox.DebounceSec * float64(time.Second))
		var timer *time.Timer
		var timerC <-chan time.Time
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Rename) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
					timerC = timer.C
				} else {
					timer.Reset(debounce)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				d.logger.Warn("watcher error", "error", err)
			case <-timerC:
				timer = nil
				timerC = nil
				select {
				case kick <- struct{}{}:
				default:
				}
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(time.Duration(d.cfg.Inbox.ScanIntervalSec) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-kick:
				d.scanInbox()
			case <-ticker.C:
				d.scanInbox()
			}
		}
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		d.logger.Info("daemon stopped")
		return nil
	}
	return err
}

// scanInbox processes every report file currently in the inbox, oldest name
// first.
func (d *Daemon) scanInbox() {
	entries, err := os.ReadDir(d.cfg.Inbox.Dir)
	if err != nil {
		d.logger.Error("read inbox", "error", err)
		return
	}

	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".yaml") || strings.HasPrefix(name, ".") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		d.processReport(filepath.Join(d.cfg.Inbox.Dir, name))
	}
}

func (d *Daemon) processReport(path string) {
	report, notifiedAt, err := ParseReportFile(path)
	if err != nil {
		d.reject(path, "", "", err)
		return
	}

	_, err = d.tracker.RecordCompletion(report, notifiedAt)
	if errors.Is(err, catalog.ErrUnknownStage) {
		// The topology may have moved on while old reports were in flight.
		d.reject(path, report.Application, string(report.Stage), err)
		return
	}
	if err != nil {
		// Transient (record contention, I/O): leave the file for the next
		// scan.
		d.logger.Warn("apply report", "file", filepath.Base(path), "error", err)
		return
	}

	d.logger.Info("report applied",
		"application", report.Application,
		"job", report.Stage,
		"build", report.Build,
		"success", report.Success())
	d.archive(path)
}

func (d *Daemon) reject(path, application, stage string, cause error) {
	d.logger.Warn("report rejected", "file", filepath.Base(path), "error", cause)
	d.tracker.RejectReport(application, stage, cause.Error())
	if _, err := yamlio.Quarantine(filepath.Dir(d.cfg.Inbox.Dir), path); err != nil {
		d.logger.Error("quarantine report", "file", filepath.Base(path), "error", err)
	}
}

func (d *Daemon) archive(path string) {
	name := fmt.Sprintf("%s.%s", filepath.Base(path), time.Now().UTC().Format("20060102T150405.000"))
	if err := os.Rename(path, filepath.Join(d.cfg.Inbox.ArchiveDir, name)); err != nil {
		d.logger.Error("archive report", "file", filepath.Base(path), "error", err)
	}
}
