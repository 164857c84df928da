package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/convoycd/convoy/internal/catalog"
	"github.com/convoycd/convoy/internal/daemon"
	"github.com/convoycd/convoy/internal/events"
	"github.com/convoycd/convoy/internal/model"
	"github.com/convoycd/convoy/internal/store"
	"github.com/convoycd/convoy/internal/tracker"
)

const version = "0.3.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "daemon":
		runDaemon(os.Args[2:])
	case "report":
		runReport(os.Args[2:])
	case "trigger":
		runTrigger(os.Args[2:])
	case "gate":
		runGate(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "catalog":
		runCatalog(os.Args[2:])
	case "version":
		fmt.Printf("convoy %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`convoy - deployment pipeline state tracker

usage: convoy <command> [options]

commands:
  daemon    watch the report inbox and apply completion reports
  report    apply a single completion report
  trigger   record a stage triggering for an application
  gate      check whether a change may be promoted into an environment
  status    show per-stage pipeline status for an application
  catalog   list the pipeline stages for a system variant
  version   print version
  help      show this help`)
}

// setup loads config and assembles the tracker for one invocation.
func setup(dir string, withEvents bool) (model.Config, *tracker.Tracker, func(), error) {
	cfg, err := model.LoadConfig(dir, filepath.Join(dir, "config.yaml"))
	if err != nil {
		return model.Config{}, nil, nil, err
	}

	cat := catalog.Default()
	if cfg.Topology.File != "" {
		cat, err = catalog.Load(cfg.Topology.File)
		if err != nil {
			return model.Config{}, nil, nil, err
		}
	}

	st, err := store.New(cfg.Registry.Dir)
	if err != nil {
		return model.Config{}, nil, nil, err
	}

	cleanup := func() {}
	var bus *events.Bus
	var audit *events.AuditLogger
	if withEvents {
		bus = events.NewBus(64)
		audit, err = events.NewAuditLogger(cfg.Audit.Path, cfg.Audit.MaxSizeBytes)
		if err != nil {
			return model.Config{}, nil, nil, err
		}
		cleanup = func() {
			bus.Close()
			_ = audit.Close()
		}
	}

	return cfg, tracker.New(st, cat, bus, audit), cleanup, nil
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "convoy: %v\n", err)
	os.Exit(1)
}

func runDaemon(args []string) {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	_ = fs.Parse(args)

	cfg, tr, cleanup, err := setup(*dir, true)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}))

	d, err := daemon.New(cfg, tr, logger)
	if err != nil {
		fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := d.Run(ctx); err != nil {
		fatal(err)
	}
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func runReport(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	file := fs.String("file", "", "report file to apply (overrides the other flags)")
	app := fs.String("app", "", "application name")
	job := fs.String("job", "", "stage name")
	projectID := fs.Int64("project", 0, "build system project id")
	build := fs.Int64("build", 0, "build counter")
	outcome := fs.String("outcome", "success", "success | unknown | out_of_capacity")
	_ = fs.Parse(args)

	_, tr, cleanup, err := setup(*dir, true)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	var report model.JobReport
	notifiedAt := time.Now().UTC()
	if *file != "" {
		report, notifiedAt, err = daemon.ParseReportFile(*file)
		if err != nil {
			fatal(err)
		}
	} else {
		var jobError model.JobErrorKind
		if *outcome != "success" {
			jobError = model.JobErrorKind(*outcome)
		}
		report, err = model.NewJobReport(*app, catalog.StageName(*job), *projectID, *build, jobError)
		if err != nil {
			fatal(err)
		}
	}

	if _, err := tr.RecordCompletion(report, notifiedAt); err != nil {
		fatal(err)
	}
	fmt.Printf("recorded completion of %s build %d for %s\n", report.Stage, report.Build, report.Application)
}

func runTrigger(args []string) {
	fs := flag.NewFlagSet("trigger", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	app := fs.String("app", "", "application name")
	job := fs.String("job", "", "stage name")
	ver := fs.String("version", "", "platform version being deployed")
	rev := fs.String("revision", "", "application revision being deployed")
	reason := fs.String("reason", "", "why the stage was triggered")
	_ = fs.Parse(args)

	if *app == "" || *job == "" {
		fatal(fmt.Errorf("trigger requires -app and -job"))
	}

	_, tr, cleanup, err := setup(*dir, true)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	change := changeFromFlags(*ver, *rev)
	_, err = tr.RecordTriggering(*app, catalog.StageName(*job), change, model.Version(*ver), model.Revision(*rev), *reason)
	if err != nil {
		fatal(err)
	}
	fmt.Printf("recorded triggering of %s for %s (%s)\n", *job, *app, change)
}

func runGate(args []string) {
	fs := flag.NewFlagSet("gate", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	app := fs.String("app", "", "application name")
	env := fs.String("env", "", "target environment (test | staging | prod)")
	ver := fs.String("version", "", "pending platform version")
	rev := fs.String("revision", "", "pending application revision")
	_ = fs.Parse(args)

	if *app == "" {
		fatal(fmt.Errorf("gate requires -app"))
	}

	// gate denials are audited, so the gate runs with event sinks attached
	_, tr, cleanup, err := setup(*dir, true)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	change := changeFromFlags(*ver, *rev)
	ok, err := tr.IsDeployableTo(*app, catalog.Environment(*env), change)
	if err != nil {
		fatal(err)
	}
	if !ok {
		fmt.Printf("%s: %s is NOT deployable to %s\n", *app, change, *env)
		os.Exit(1)
	}
	fmt.Printf("%s: %s is deployable to %s\n", *app, change, *env)
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	app := fs.String("app", "", "application name")
	_ = fs.Parse(args)

	if *app == "" {
		fatal(fmt.Errorf("status requires -app"))
	}

	cfg, tr, cleanup, err := setup(*dir, false)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	snapshot, err := tr.Snapshot(*app)
	if err != nil {
		fatal(err)
	}

	if id, ok := snapshot.ProjectID(); ok {
		fmt.Printf("project id: %d\n", id)
	}
	if issue, ok := snapshot.IssueID(); ok {
		fmt.Printf("issue: %s\n", issue)
	}

	limit := time.Now().Add(-time.Duration(cfg.Gate.StalenessWindowMin) * time.Minute)
	variant := catalog.SystemVariant(cfg.Topology.Variant)
	statuses := snapshot.JobStatuses()
	for _, stage := range tr.Catalog().StagesFor(variant) {
		job, ok := statuses[stage.Name]
		if !ok {
			fmt.Printf("%-28s never run\n", stage.Name)
			continue
		}
		fmt.Printf("%-28s %s\n", stage.Name, describe(job, limit))
	}

	if snapshot.HasFailures() {
		fmt.Println("\npipeline has failures")
	}
}

func describe(job model.JobStatus, limit time.Time) string {
	switch {
	case job.IsRunning(limit):
		return fmt.Sprintf("running (triggered %s)", job.LastTriggered.At.Format(time.RFC3339))
	case job.IsFailing():
		return fmt.Sprintf("failing (%s, build %d)", job.LastCompleted.Error, job.LastCompleted.Build)
	case job.LastSuccess != nil:
		if job.LastSuccess.Trigger != nil {
			return fmt.Sprintf("succeeded (build %d, version %s)",
				job.LastSuccess.Completion.Build, job.LastSuccess.Trigger.Version)
		}
		return fmt.Sprintf("succeeded (build %d, untracked change)", job.LastSuccess.Completion.Build)
	case job.LastTriggered != nil:
		return "triggered, no completion"
	default:
		return "never run"
	}
}

func runCatalog(args []string) {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	dir := fs.String("dir", ".convoy", "convoy data directory")
	variant := fs.String("variant", "", "system variant (defaults to the configured one)")
	_ = fs.Parse(args)

	cfg, tr, cleanup, err := setup(*dir, false)
	if err != nil {
		fatal(err)
	}
	defer cleanup()

	v := catalog.SystemVariant(cfg.Topology.Variant)
	if *variant != "" {
		v = catalog.SystemVariant(*variant)
	}

	for _, stage := range tr.Catalog().StagesFor(v) {
		if zone, ok := stage.Zone(v); ok {
			fmt.Printf("%-28s %-18s %s/%s\n", stage.Name, stage.Class, zone.Environment, zone.Region)
		} else {
			fmt.Printf("%-28s %-18s -\n", stage.Name, stage.Class)
		}
	}
}

func changeFromFlags(version, revision string) model.Change {
	if revision != "" {
		return model.RevisionChange(model.Revision(revision))
	}
	if version != "" {
		return model.VersionChange(model.Version(version))
	}
	return model.Change{}
}
