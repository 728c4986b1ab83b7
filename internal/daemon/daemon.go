// Package daemon wires the watcher, scheduler, store and HTTP surface
// into one long-running service.
package daemon

import (
	"context"
	"log/slog"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/events"
	"git.home.luguber.info/inful/autodoc/internal/eventstore"
	"git.home.luguber.info/inful/autodoc/internal/health"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
	"git.home.luguber.info/inful/autodoc/internal/metrics"
	"git.home.luguber.info/inful/autodoc/internal/registry"
	"git.home.luguber.info/inful/autodoc/internal/retry"
	"git.home.luguber.info/inful/autodoc/internal/revision"
	"git.home.luguber.info/inful/autodoc/internal/scheduler"
	"git.home.luguber.info/inful/autodoc/internal/server"
	"git.home.luguber.info/inful/autodoc/internal/store"
	"git.home.luguber.info/inful/autodoc/internal/watcher"
)

// Daemon owns the full documentation pipeline.
type Daemon struct {
	cfg *config.Config

	registry *registry.Registry
	store    *store.Store
	bus      *events.Broadcaster
	sched    *scheduler.Scheduler
	watch    *watcher.Watcher
	history  *eventstore.SQLiteStore
	periodic *Periodic
	mirror   *events.NATSMirror
	srv      *server.Server
	recorder metrics.Recorder
	revision string

	stopOnce sync.Once
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu               sync.Mutex
	startedAt        time.Time
	initialScanDone  bool
	sourceUnreadable bool
}

// New builds the daemon from configuration. Nothing runs until Start.
func New(cfg *config.Config) (*Daemon, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:      cfg,
		registry: registry.New(),
		store:    store.New(cfg.OutputDir),
		bus:      events.NewBroadcaster(),
		recorder: metrics.NoopRecorder{},
	}

	if rev, ok := revision.Lookup(cfg.SourceDir); ok {
		d.revision = rev
		slog.Info("source revision detected", "revision", rev)
	}

	promRegistry := prom.NewRegistry()
	if cfg.Metrics.Enabled {
		d.recorder = metrics.NewPrometheusRecorder(promRegistry)
	}
	d.bus.SetDropHook(d.recorder.IncEventsDropped)

	if cfg.EventStore.Path != "" {
		hist, err := eventstore.NewSQLiteStore(cfg.EventStore.Path)
		if err != nil {
			return nil, err
		}
		d.history = hist
	}

	var histIface scheduler.History
	if d.history != nil {
		histIface = d.history
	}
	d.sched = scheduler.New(scheduler.Options{
		Workers:   cfg.Generation.Workers,
		QueueSize: cfg.Generation.QueueSize,
		Policy:    retry.FromConfig(cfg.Generation),
		Registry:  d.registry,
		Store:     d.store,
		Bus:       d.bus,
		History:   histIface,
		Recorder:  d.recorder,
		Revision:  d.revision,
	})

	if cfg.Watch.Enabled {
		w, err := watcher.New(cfg.SourceDir, cfg.Watch, d.bus, d.onChange, d.onRemove)
		if err != nil {
			return nil, err
		}
		d.watch = w
	}

	d.periodic = NewPeriodic(d)

	if cfg.Events.NATSEnabled {
		mirror, err := events.NewNATSMirror(cfg.Events.NATSURL, cfg.Events.NATSSubject)
		if err != nil {
			// The mirror is an optional export; the pipeline runs without it.
			slog.Warn("nats mirror unavailable", logfields.Error(err))
		} else {
			d.mirror = mirror
		}
	}

	if cfg.HTTP.Enabled {
		deps := server.Deps{
			Config:          cfg,
			Store:           d.store,
			Bus:             d.bus,
			SchedulerStatus: d.sched.Status,
			WatcherStatus:   d.watcherStatus,
			Health:          d.Health,
			Generate:        d.sched.Schedule,
			GenerateAll:     d.GenerateAll,
			Revision:        d.revision,
		}
		if cfg.Metrics.Enabled {
			deps.Metrics = metrics.HTTPHandler(promRegistry)
		}
		d.srv = server.New(deps)
	}

	return d, nil
}

// Start launches the pipeline: scheduler workers, the initial generation
// wave, the filesystem watcher, periodic jobs and the HTTP surface.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.mu.Lock()
	d.startedAt = time.Now().UTC()
	d.mu.Unlock()

	slog.Info("starting autodoc daemon",
		"source_dir", d.cfg.SourceDir, "output_dir", d.cfg.OutputDir)

	d.sched.Start(ctx)

	queued := d.initialScan()

	if d.watch != nil {
		if err := d.watch.Start(ctx); err != nil {
			// Keep running: the rescan job retries the directory later.
			slog.Error("failed to start filesystem watcher", logfields.Error(err))
			d.setSourceUnreadable(true)
		}
	}

	if err := d.periodic.Start(ctx); err != nil {
		return err
	}

	if d.mirror != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.mirror.Run(ctx, d.bus)
		}()
	}

	if d.srv != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.srv.Start(); err != nil {
				slog.Error("http server exited", logfields.Error(err))
			}
		}()
	}

	// The service reports "starting" until the initial wave drains.
	d.wg.Add(1)
	go d.awaitInitialWave(ctx, queued)

	return nil
}

// Stop shuts the pipeline down in dependency order: stop producing
// triggers first, then drain workers, then close the outward surfaces.
func (d *Daemon) Stop(ctx context.Context) error {
	var err error
	d.stopOnce.Do(func() {
		slog.Info("stopping autodoc daemon")
		if d.watch != nil {
			d.watch.Stop()
		}
		if d.periodic != nil {
			d.periodic.Stop()
		}
		if d.cancel != nil {
			d.cancel()
		}
		d.sched.Stop()
		// Closing the bus first ends open SSE streams so the HTTP
		// shutdown is not stuck waiting on them.
		d.bus.Close()
		if d.srv != nil {
			err = d.srv.Shutdown(ctx)
		}
		if d.mirror != nil {
			d.mirror.Close()
		}
		if d.history != nil {
			if cerr := d.history.Close(); cerr != nil {
				slog.Warn("error closing event store", logfields.Error(cerr))
			}
		}
		d.wg.Wait()
		slog.Info("autodoc daemon stopped")
	})
	return err
}

// Health derives the service status from registry and scheduler counts.
func (d *Daemon) Health() health.Snapshot {
	d.mu.Lock()
	scanDone := d.initialScanDone
	unreadable := d.sourceUnreadable
	d.mu.Unlock()

	counts := d.sched.Counts()
	return health.Compute(health.Inputs{
		InitialScanDone:  scanDone,
		SourceUnreadable: unreadable,
		TotalFiles:       counts.Succeeded + counts.Failed + counts.Pending,
		Succeeded:        counts.Succeeded,
		Failed:           counts.Failed,
		Pending:          counts.Pending,
	})
}

// GenerateAll queues a generation pass over the whole source directory.
// Without force, files whose fingerprint matches the registry are skipped.
func (d *Daemon) GenerateAll(force bool) server.GenerateResult {
	reg := d.registry
	if force {
		// An empty comparison registry makes every file look changed.
		reg = registry.New()
	}
	diff, err := watcher.Scan(d.cfg.SourceDir, d.cfg.Watch, reg)
	if err != nil {
		slog.Error("source scan failed", logfields.Error(err))
		d.setSourceUnreadable(true)
		return server.GenerateResult{}
	}
	d.setSourceUnreadable(false)

	for _, path := range diff.Changed {
		d.sched.Schedule(path)
	}
	for _, path := range diff.Removed {
		d.onRemove(path)
	}

	return server.GenerateResult{
		Queued:  len(diff.Changed),
		Skipped: diff.Unchanged,
	}
}

func (d *Daemon) initialScan() int {
	if d.cfg.Generation.ForceOnStart {
		return d.GenerateAll(true).Queued
	}
	return d.GenerateAll(false).Queued
}

// awaitInitialWave flips the health status out of "starting" once the
// first generation wave has drained.
func (d *Daemon) awaitInitialWave(ctx context.Context, queued int) {
	defer d.wg.Done()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if queued == 0 || d.sched.Counts().Pending == 0 {
				d.mu.Lock()
				d.initialScanDone = true
				d.mu.Unlock()
				slog.Info("initial generation wave complete",
					logfields.Health(string(d.Health().Status)))
				return
			}
		}
	}
}

func (d *Daemon) onChange(path string) {
	d.sched.Schedule(path)
}

func (d *Daemon) onRemove(path string) {
	d.sched.FileRemoved(path)
	d.registry.Remove(path)
	d.store.Delete(path)
}

func (d *Daemon) watcherStatus() watcher.Status {
	if d.watch == nil {
		return watcher.Status{}
	}
	return d.watch.Status()
}

func (d *Daemon) setSourceUnreadable(v bool) {
	d.mu.Lock()
	d.sourceUnreadable = v
	d.mu.Unlock()
}

// StartedAt reports when Start was called.
func (d *Daemon) StartedAt() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.startedAt
}
