// Package tracker wires the pipeline snapshot model to its surroundings: it
// applies completion reports and triggering decisions through the store's
// compare-and-swap cycle, publishes the matching events, and answers
// promotion queries.
package tracker

import (
	"log/slog"
	"time"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/events"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/store"
)

type Tracker struct {
	store   *store.Store
	catalog *catalog.Catalog
	bus     *events.Bus
	audit   *events.AuditLogger
	now     func() time.Time
}

// New builds a tracker. bus and audit may be nil when the caller does not
// need events (one-shot CLI queries).
func New(st *store.Store, cat *catalog.Catalog, bus *events.Bus, audit *events.AuditLogger) *Tracker {
	return &Tracker{store: st, catalog: cat, bus: bus, audit: audit, now: time.Now}
}

// Catalog returns the stage table the tracker resolves names against.
func (t *Tracker) Catalog() *catalog.Catalog { return t.catalog }

// Snapshot returns the current pipeline snapshot for an application.
func (t *Tracker) Snapshot(application string) (*model.Snapshot, error) {
	return t.store.Get(application)
}

// RecordCompletion validates the report's stage against the catalog and
// merges it into the application's snapshot.
func (t *Tracker) RecordCompletion(report model.JobReport, notifiedAt time.Time) (*model.Snapshot, error) {
	if _, err := t.catalog.FromName(report.Stage); err != nil {
		return nil, err
	}

	snapshot, err := t.store.Update(report.Application, func(s *model.Snapshot) (*model.Snapshot, error) {
		return s.WithCompletion(report, notifiedAt, t.now()), nil
	})
	if err != nil {
		return nil, err
	}

	t.emit(events.Event{
		Type:        events.EventJobCompleted,
		Application: report.Application,
		Stage:       string(report.Stage),
		Data: map[string]any{
			"project_id": report.ProjectID,
			"build":      report.Build,
			"success":    report.Success(),
			"error":      string(report.Error),
		},
	})
	return snapshot, nil
}

// RecordTriggering records a local dispatch of a stage.
func (t *Tracker) RecordTriggering(application string, stage catalog.StageName, change model.Change, version model.Version, revision model.Revision, reason string) (*model.Snapshot, error) {
	if _, err := t.catalog.FromName(stage); err != nil {
		return nil, err
	}

	at := t.now()
	snapshot, err := t.store.Update(application, func(s *model.Snapshot) (*model.Snapshot, error) {
		return s.WithTriggering(stage, change, version, revision, reason, at), nil
	})
	if err != nil {
		return nil, err
	}

	t.emit(events.Event{
		Type:        events.EventJobTriggered,
		Application: application,
		Stage:       string(stage),
		Data: map[string]any{
			"change":  change.String(),
			"version": string(version),
			"reason":  reason,
		},
	})
	return snapshot, nil
}

// RejectReport records that an inbox report could not be applied.
func (t *Tracker) RejectReport(application, stage, cause string) {
	t.emit(events.Event{
		Type:        events.EventReportRejected,
		Application: application,
		Stage:       stage,
		Data:        map[string]any{"cause": cause},
	})
}

// IsDeployableTo answers whether the change may be promoted into the
// environment, given the application's current snapshot. A denial is
// published as a promotion_blocked event.
func (t *Tracker) IsDeployableTo(application string, env catalog.Environment, change model.Change) (bool, error) {
	snapshot, err := t.store.Get(application)
	if err != nil {
		return false, err
	}
	ok := snapshot.IsDeployableTo(t.catalog, env, change)
	if !ok {
		t.emit(events.Event{
			Type:        events.EventPromotionBlocked,
			Application: application,
			Data: map[string]any{
				"environment": string(env),
				"change":      change.String(),
			},
		})
	}
	return ok, nil
}

// IsSuccessful answers whether the stage last succeeded for the change.
func (t *Tracker) IsSuccessful(application string, change model.Change, stage catalog.StageName) (bool, error) {
	if _, err := t.catalog.FromName(stage); err != nil {
		return false, err
	}
	snapshot, err := t.store.Get(application)
	if err != nil {
		return false, err
	}
	return snapshot.IsSuccessful(change, stage), nil
}

func (t *Tracker) emit(event events.Event) {
	event.Timestamp = t.now()
	if t.bus != nil {
		t.bus.Publish(event)
	}
	if t.audit != nil {
		// The audit log is best effort; state updates must not fail on it.
		if err := t.audit.RecordEvent(event); err != nil {
			slog.Warn("audit log write failed", "error", err)
		}
	}
}
