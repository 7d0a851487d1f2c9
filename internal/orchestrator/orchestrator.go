package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-instrument-rig/internal/config"
	"github.com/randomizedcoder/go-instrument-rig/internal/logging"
	"github.com/randomizedcoder/go-instrument-rig/internal/metrics"
	"github.com/randomizedcoder/go-instrument-rig/internal/preflight"
	"github.com/randomizedcoder/go-instrument-rig/internal/session"
	"github.com/randomizedcoder/go-instrument-rig/internal/stats"
	"github.com/randomizedcoder/go-instrument-rig/internal/supervisor"
	"github.com/randomizedcoder/go-instrument-rig/internal/timeseries"
	"github.com/randomizedcoder/go-instrument-rig/internal/tui"
	"github.com/randomizedcoder/go-instrument-rig/internal/watch"
)

// resourceWindow is the rolling window for per-component CPU percentiles.
const resourceWindow = 60 * time.Second

// Orchestrator coordinates a full test session: resolve inputs, create the
// session directory, launch the instrument components in order, watch them
// until a stop trigger fires, then tear everything down and write the
// records.
type Orchestrator struct {
	config  *config.Config
	logger  *slog.Logger
	version string

	registry prometheus.Registerer
	gatherer prometheus.Gatherer

	plan     config.Plan
	resolved *config.ResolvedInputs

	session  *session.Session
	manifest *session.Manifest

	scheduler *LaunchScheduler
	manager   *ComponentManager
	shutdown  *ShutdownController

	collector     *metrics.Collector
	metricsServer *metrics.Server
	scraper       *metrics.ProcScraper

	aggregator *stats.StatsAggregator
	tracker    *timeseries.ActivityTracker
	watcher    *watch.ArtifactWatcher

	// Per-component stat mailboxes, fully populated before launch so the
	// map itself is never written concurrently.
	componentStats map[string]*stats.ComponentStats

	program *tea.Program

	startTime time.Time
}

// New creates a new Orchestrator registering its metrics in the default
// Prometheus registry.
func New(cfg *config.Config, logger *slog.Logger, version string) *Orchestrator {
	return NewWithRegistry(cfg, logger, version, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewWithRegistry creates an Orchestrator against a custom metrics
// registry. Useful for testing.
func NewWithRegistry(cfg *config.Config, logger *slog.Logger, version string, registry prometheus.Registerer, gatherer prometheus.Gatherer) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		config:         cfg,
		logger:         logger,
		version:        version,
		registry:       registry,
		gatherer:       gatherer,
		scheduler:      NewLaunchScheduler(cfg.SkipStartupDelays, logger),
		shutdown:       NewShutdownController(logger),
		aggregator:     stats.NewStatsAggregator(),
		tracker:        timeseries.NewActivityTracker(),
		componentStats: make(map[string]*stats.ComponentStats),
	}
}

// Run executes the session. It blocks until a stop trigger fires and
// teardown completes, or until a pre-launch step fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startTime = time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Everything up to session creation can fail without touching the
	// filesystem.
	resolved, err := config.Resolve(o.config)
	if err != nil {
		return err
	}
	o.resolved = resolved

	plan, err := config.LoadPlanOrDefault(o.config.PlanPath)
	if err != nil {
		return err
	}
	o.plan = plan

	if !o.config.SkipPreflight {
		result := preflight.RunAll(preflight.Config{
			Components: plan.Components,
			Resolved:   resolved,
			BaseDir:    o.config.BaseDir,
		})
		preflight.PrintResults(result)
		if !result.Passed {
			return fmt.Errorf("preflight checks failed (use -skip-preflight to override)")
		}
	}

	id := session.NewID(o.startTime, resolved.Label)
	dir, err := session.Factory{
		Base:     o.config.BaseDir,
		Category: o.config.Category,
	}.Create(id)
	if err != nil {
		return err
	}
	o.session = session.New(id, dir, o.startTime)

	// Every line from here on carries the session id, including the
	// scheduler's countdowns and the controller's stop events.
	o.logger = logging.WithSession(o.logger, id)
	o.scheduler.logger = o.logger
	o.shutdown.logger = o.logger

	o.logger.Info("session_created", "dir", dir)

	manifest, err := session.WriteManifest(session.ManifestInfo{
		SessionID:      id,
		Dir:            dir,
		Label:          resolved.Label,
		StartedAt:      o.startTime,
		PowerConfig:    resolved.PowerConfig,
		ScopeConfig:    resolved.ScopeConfig,
		CaptureDevice:  resolved.CaptureDevice,
		ThermalEnabled: resolved.ThermalEnabled,
	})
	if err != nil {
		return fmt.Errorf("writing session manifest: %w", err)
	}
	o.manifest = manifest

	components := plan.BuildComponents(resolved, dir)
	if len(components) == 0 {
		return fmt.Errorf("launch plan has no components to run")
	}

	for _, desc := range components {
		cs := stats.NewComponentStats(desc.Name, desc.Required)
		o.componentStats[desc.Name] = cs
		o.aggregator.AddComponent(cs)
	}

	o.manager = NewComponentManager(ManagerConfig{
		SessionDir:  dir,
		WorkDir:     o.config.SearchRoot,
		GracePeriod: o.config.GracePeriod,
		Scheduler:   o.scheduler,
		Logger:      o.logger,
		Callbacks: ManagerCallbacks{
			OnLaunched:     o.onLaunched,
			OnLaunchFailed: o.onLaunchFailed,
			OnStateChange:  o.onStateChange,
			OnExit:         o.onExit,
		},
	})

	o.collector = metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:      o.version,
		SessionID:    id,
		Category:     o.config.Category,
		Components:   len(components),
		GraceTimeout: o.config.GracePeriod,
	}, o.registry)

	if o.config.MetricsEnabled() {
		o.metricsServer = metrics.NewServer(o.config.MetricsAddr, o.gatherer, o.GetSessionInfo, o.logger)
		if err := o.metricsServer.Start(); err != nil {
			return fmt.Errorf("starting metrics server: %w", err)
		}
	}

	// Nil when procfs is unavailable; every method is a no-op then.
	o.scraper = metrics.NewProcScraper(time.Second, resourceWindow, o.logger)
	go o.scraper.Run(ctx)

	if o.config.WatchEnabled {
		o.watcher = watch.New(watch.Config{
			SearchRoot: o.config.SearchRoot,
			Rules:      plan.Collect,
			DatePrefix: session.DatePrefix(id),
			OnCreate:   func(string) { o.tracker.ArtifactCreated() },
			Logger:     o.logger,
		})
		if err := o.watcher.Start(); err != nil {
			o.logger.Warn("artifact_watcher_disabled", "error", err)
			o.watcher = nil
		}
	}

	restoreSignals := o.shutdown.WatchSignals()
	defer restoreSignals()

	if o.config.TUIEnabled {
		o.startDashboard()
	} else {
		o.shutdown.WatchConsole(os.Stdin)
	}

	o.collector.SetPhase(PhaseArmed.String())
	o.logger.Info("launch_starting",
		"components", len(components),
		"estimated_bringup", o.scheduler.EstimatedLaunchDuration(components).String(),
	)

	// A stop trigger during bringup cancels the remaining launches; the
	// request is reposted so the stop path below still sees the reason.
	launchCtx, cancelLaunch := context.WithCancel(ctx)
	launchDone := make(chan struct{})
	go func() {
		defer cancelLaunch()
		select {
		case req := <-o.shutdown.Requests():
			o.shutdown.RequestStop(req.Reason)
		case <-launchDone:
		}
	}()
	launchErr := o.manager.LaunchAll(launchCtx, components)
	close(launchDone)

	cancelled := errors.Is(launchErr, context.Canceled) || errors.Is(launchErr, context.DeadlineExceeded)
	if launchErr != nil && !cancelled {
		// Required component failed to spawn. The manager has already torn
		// down everything that launched before it.
		o.session.SetStatus(session.StatusFailed)
		o.finish(StopRequest{Reason: "required component launch failure"}, o.manager.Teardown())
		return launchErr
	}

	o.session.SetStatus(session.StatusRunning)
	if !o.config.TUIEnabled {
		o.printLaunchBanner()
	}

	var req StopRequest
	if cancelled {
		req = StopRequest{Reason: ReasonCancelled}
		select {
		case queued := <-o.shutdown.Requests():
			req = queued
		default:
		}
	} else {
		req = o.monitor(ctx)
	}

	o.logger.Info("stop_requested", "reason", req.Reason)
	o.shutdown.SetPhase(PhaseStopping)
	o.collector.SetPhase(PhaseStopping.String())
	o.session.SetStatus(session.StatusShuttingDown)

	shutdownStart := time.Now()
	records := o.manager.Teardown()
	o.collector.SetShutdownDuration(time.Since(shutdownStart))

	o.shutdown.SetPhase(PhaseDone)
	o.collector.SetPhase(PhaseDone.String())
	o.session.SetStatus(session.StatusCompleted)

	o.finish(req, records)
	return nil
}

// monitor runs the liveness loop until a stop trigger fires.
func (o *Orchestrator) monitor(ctx context.Context) StopRequest {
	poll := time.NewTicker(o.config.PollInterval)
	defer poll.Stop()

	sample := time.NewTicker(time.Second)
	defer sample.Stop()

	announced := make(map[string]bool)

	for {
		select {
		case <-ctx.Done():
			return StopRequest{Reason: ReasonCancelled}

		case req := <-o.shutdown.Requests():
			return req

		case <-poll.C:
			o.observeComponents(announced)
			if o.manager.AllExited() {
				o.shutdown.RequestStop(ReasonAllExited)
			}

		case <-sample.C:
			o.sampleActivity()
		}
	}
}

// observeComponents mirrors supervisor state into the stat mailboxes and
// announces components that died mid-session. A nil announced map skips
// the announcements (final pass during finish).
func (o *Orchestrator) observeComponents(announced map[string]bool) {
	for _, sup := range o.manager.Supervisors() {
		name := sup.Name()
		state := sup.State()

		if cs := o.componentStats[name]; cs != nil {
			cs.SetState(state.String())
			cs.SetUptime(sup.Uptime())
			counts := sup.Counts()
			cs.UpdateCapture(counts.StdoutBytes, counts.StderrBytes, counts.StdoutLines, counts.StderrLines)
			if code, ok := sup.ExitCode(); ok {
				cs.SetExit(code)
			}
		}

		o.collector.SetComponentUp(name, state == supervisor.StateRunning)
		o.collector.SetComponentUptime(name, sup.Uptime())

		if state.IsTerminal() && announced != nil && !announced[name] {
			announced[name] = true
			o.scraper.Unregister(name)

			if !o.manager.TearingDown() {
				code, _ := sup.ExitCode()
				exit := &supervisor.UnexpectedExit{Component: name, ExitCode: code, At: time.Now()}
				o.logger.Warn("component_terminated_early",
					"error", exit,
					"uptime", sup.Uptime().Round(time.Second).String(),
					"still_running", o.manager.ActiveCount(),
				)
				if !o.config.TUIEnabled {
					fmt.Printf("WARNING: %s has terminated (exit code %d) - other systems continue running\n", name, code)
				}
			}
		}
	}
}

// sampleActivity rolls the aggregate into the activity tracker and the
// Prometheus collector. Runs once per second while armed and once more
// during finish.
func (o *Orchestrator) sampleActivity() {
	agg := o.aggregator.Aggregate()

	o.tracker.SetOutputBytes(agg.TotalOutputBytes)
	o.tracker.RecordSample()
	activity := o.tracker.GetStats()
	o.aggregator.SetArtifacts(activity.Artifacts)

	o.collector.RecordActivity(&metrics.ActivityUpdate{
		ActiveComponents: agg.ActiveComponents,
		StdoutBytes:      agg.TotalStdoutBytes,
		StderrBytes:      agg.TotalStderrBytes,
		StdoutLines:      agg.TotalStdoutLines,
		StderrLines:      agg.TotalStderrLines,
		ArtifactsCreated: activity.Artifacts,
		OutputRate10s:    activity.OutputRate10s,
		ArtifactRate1m:   activity.ArtifactRate60s,
	})

	for name, res := range o.scraper.GetResources() {
		if cs := o.componentStats[name]; cs != nil {
			cs.UpdateResources(res.CPUPercent, res.CPUPercentP50, res.RSSBytes)
		}
		o.collector.RecordResources(name, res.CPUPercent, res.RSSBytes)
	}
}

// finish stops the auxiliary pieces, records the final component state and
// prints the exit summary. Runs on both the normal and the aborted path.
func (o *Orchestrator) finish(req StopRequest, records []ShutdownRecord) {
	o.observeComponents(nil)
	o.sampleActivity()

	for _, rec := range records {
		if rec.Means == MeansForced {
			o.collector.ForcedKill()
		}
		o.logger.Info("component_shutdown",
			"component", rec.Name,
			"means", rec.Means,
			"exit_code", rec.ExitCode,
		)
	}

	o.stopDashboard()

	if o.watcher != nil {
		if err := o.watcher.Stop(); err != nil {
			o.logger.Debug("artifact_watcher_stop_error", "error", err)
		}
	}

	if o.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := o.metricsServer.Shutdown(shutdownCtx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
		}
		cancel()
	}

	o.appendCompletion(records)
	o.writeSnapshot()
	o.printExitSummary(req, records)
}

// onLaunched records a successful component launch.
func (o *Orchestrator) onLaunched(index int, sup *supervisor.Supervisor) {
	o.collector.ComponentLaunched()
	o.collector.SetComponentUp(sup.Name(), true)
	o.scraper.Register(sup.Name(), sup.PID())

	if cs := o.componentStats[sup.Name()]; cs != nil {
		cs.OnLaunch(sup.PID(), sup.StartedAt())
		cs.SetState(sup.State().String())
	}

	if o.manifest != nil {
		stdoutLog, stderrLog := sup.LogPaths()
		if err := o.manifest.AppendLaunch(index+1, sup.Name(), sup.CommandString(), sup.PID(), stdoutLog, stderrLog); err != nil {
			o.logger.Warn("manifest_append_error",
				"component", sup.Name(),
				"error", err,
			)
		}
	}
}

// onLaunchFailed records a spawn failure.
func (o *Orchestrator) onLaunchFailed(failure LaunchFailure) {
	o.collector.LaunchFailed(failure.Required)

	if cs := o.componentStats[failure.Name]; cs != nil {
		cs.SetState("launch_failed")
	}

	if o.manifest != nil {
		if err := o.manifest.AppendLaunchFailure(failure.Index+1, failure.Name, failure.Required, failure.Err); err != nil {
			o.logger.Warn("manifest_append_error",
				"component", failure.Name,
				"error", err,
			)
		}
	}
}

// onStateChange mirrors state transitions as they happen; the poll loop
// would pick them up anyway, this just keeps the dashboard fresh.
func (o *Orchestrator) onStateChange(component string, oldState, newState supervisor.State) {
	o.collector.SetActiveCount(o.manager.ActiveCount())

	if cs := o.componentStats[component]; cs != nil {
		cs.SetState(newState.String())
	}
}

// onExit forwards exits to metrics. Exits during teardown are expected;
// anything earlier is a mid-session death.
func (o *Orchestrator) onExit(component string, exitCode int, uptime time.Duration) {
	o.collector.RecordExit(exitCode, uptime, o.manager.TearingDown())

	if cs := o.componentStats[component]; cs != nil {
		cs.SetExit(exitCode)
		cs.SetUptime(uptime)
	}
}

// startDashboard launches the bubbletea program in its own goroutine.
func (o *Orchestrator) startDashboard() {
	metricsAddr := o.config.MetricsAddr
	if o.metricsServer != nil {
		metricsAddr = o.metricsServer.Addr()
	}

	model := tui.New(tui.Config{
		Version:     o.version,
		MetricsAddr: metricsAddr,
		GracePeriod: o.config.GracePeriod,
		Source:      o,
		OnStop: func() {
			o.shutdown.RequestStop(ReasonKeypress)
		},
	})
	o.program = tea.NewProgram(model, tea.WithAltScreen())

	go func() {
		if _, err := o.program.Run(); err != nil {
			o.logger.Warn("dashboard_error", "error", err)
		}
	}()
}

// stopDashboard quits the program and waits for the terminal to restore,
// so the exit summary prints onto a sane screen.
func (o *Orchestrator) stopDashboard() {
	if o.program == nil {
		return
	}
	o.program.Quit()
	o.program.Wait()
	o.program = nil
}

// printLaunchBanner prints the numbered process list once bringup is done.
// Plain-console mode only; the dashboard shows the same table live.
func (o *Orchestrator) printLaunchBanner() {
	line := "======================================================================"

	fmt.Println()
	fmt.Println(line)
	fmt.Println("ALL SYSTEMS LAUNCHED")
	fmt.Println(line)
	for i, sup := range o.manager.Supervisors() {
		fmt.Printf("  %d. %-20s PID %d\n", i+1, sup.Name(), sup.PID())
	}
	for _, failure := range o.manager.Failures() {
		fmt.Printf("  -  %-20s FAILED: %v\n", failure.Name, failure.Err)
	}
	fmt.Println(line)
	fmt.Println("Press Enter (or q) to stop the session.")
	fmt.Println()
}

// appendCompletion writes the completion block to the manifest.
func (o *Orchestrator) appendCompletion(records []ShutdownRecord) {
	if o.manifest == nil {
		return
	}

	means := shutdownMeansByName(records)

	var statuses []session.ComponentStatus
	for _, sup := range o.manager.Supervisors() {
		detail := sup.State().String()
		if code, ok := sup.ExitCode(); ok {
			extra := fmt.Sprintf("exit code %d", code)
			if m := means[sup.Name()]; m != "" {
				extra += ", " + m
			}
			detail = fmt.Sprintf("%s (%s)", detail, extra)
		}
		statuses = append(statuses, session.ComponentStatus{
			Name:   sup.Name(),
			Detail: detail,
		})
	}
	for _, failure := range o.manager.Failures() {
		statuses = append(statuses, session.ComponentStatus{
			Name:   failure.Name,
			Detail: "failed to launch: " + failure.Err.Error(),
		})
	}

	endedAt := time.Now()
	if err := o.manifest.AppendCompletion(endedAt, endedAt.Sub(o.startTime), statuses); err != nil {
		o.logger.Warn("manifest_completion_error", "error", err)
	}
}

// writeSnapshot saves the final metric values next to the session data.
func (o *Orchestrator) writeSnapshot() {
	if o.session == nil {
		return
	}

	path, snap, err := metrics.WriteSessionSnapshot(o.gatherer, o.session.Dir)
	if err != nil {
		o.logger.Warn("metrics_snapshot_error", "error", err)
		return
	}
	o.logger.Info("metrics_snapshot_written",
		"path", path,
		"families", snap.Families,
		"samples", snap.Samples)
}

func (o *Orchestrator) printExitSummary(req StopRequest, records []ShutdownRecord) {
	summary := o.collector.GenerateSummary()

	fmt.Print(stats.FormatExitSummary(o.aggregator.Aggregate(), stats.SummaryConfig{
		SessionID:       o.session.ID,
		SessionDir:      o.session.Dir,
		Duration:        summary.Duration,
		StopReason:      req.Reason,
		MetricsAddr:     o.config.MetricsAddr,
		ShutdownMeans:   shutdownMeansByName(records),
		ExitCodes:       summary.ExitCodes,
		TotalLaunches:   summary.TotalLaunches,
		LaunchFailures:  summary.LaunchFailures,
		UnexpectedExits: summary.UnexpectedExits,
		ForcedKills:     summary.ForcedKills,
		PeakActive:      int64(summary.PeakActive),
		UptimeP50:       summary.UptimeP50,
		UptimeP95:       summary.UptimeP95,
		UptimeP99:       summary.UptimeP99,
	}))
}

// shutdownMeansByName indexes teardown records by component name.
func shutdownMeansByName(records []ShutdownRecord) map[string]string {
	means := make(map[string]string, len(records))
	for _, rec := range records {
		means[rec.Name] = rec.Means
	}
	return means
}

// GetAggregatedStats implements tui.StatsSource.
func (o *Orchestrator) GetAggregatedStats() *stats.AggregatedStats {
	return o.aggregator.Aggregate()
}

// GetActivityStats implements tui.StatsSource.
func (o *Orchestrator) GetActivityStats() timeseries.ActivityStats {
	return o.tracker.GetStats()
}

// GetSessionInfo implements tui.StatsSource and feeds the metrics server's
// /session endpoint.
func (o *Orchestrator) GetSessionInfo() metrics.SessionInfo {
	info := metrics.SessionInfo{
		Category:  o.config.Category,
		Phase:     o.shutdown.Phase().String(),
		StartedAt: o.startTime,
	}
	if o.session != nil {
		info.SessionID = o.session.ID
		info.Dir = o.session.Dir
	}
	return info
}

// Manager returns the component manager, nil before Run creates it.
func (o *Orchestrator) Manager() *ComponentManager {
	return o.manager
}

// Session returns the session, nil before Run creates it.
func (o *Orchestrator) Session() *session.Session {
	return o.session
}
