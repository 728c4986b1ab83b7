package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
)

// historyRetention bounds how long job events stay in the SQLite log.
const historyRetention = 7 * 24 * time.Hour

// Periodic runs the background jobs that back up filesystem notifications:
// a full directory rescan and event-store pruning.
type Periodic struct {
	daemon    *Daemon
	scheduler gocron.Scheduler
}

// NewPeriodic wraps a gocron scheduler around the daemon's periodic work.
func NewPeriodic(d *Daemon) *Periodic {
	return &Periodic{daemon: d}
}

// Start registers and launches the periodic jobs.
func (p *Periodic) Start(ctx context.Context) error {
	s, err := gocron.NewScheduler()
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "create periodic scheduler").Build()
	}
	p.scheduler = s

	rescan := p.daemon.cfg.Watch.Rescan()
	if _, err := s.NewJob(
		gocron.DurationJob(rescan),
		gocron.NewTask(p.rescan),
		gocron.WithName("source-rescan"),
	); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "schedule source rescan").Build()
	}

	if p.daemon.history != nil {
		if _, err := s.NewJob(
			gocron.DurationJob(time.Hour),
			gocron.NewTask(p.prune, ctx),
			gocron.WithName("history-prune"),
		); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryRuntime, "schedule history prune").Build()
		}
	}

	s.Start()
	slog.Info("periodic jobs started", slog.Duration("rescan_interval", rescan))
	return nil
}

// Stop shuts the gocron scheduler down.
func (p *Periodic) Stop() {
	if p.scheduler == nil {
		return
	}
	if err := p.scheduler.Shutdown(); err != nil {
		slog.Warn("error stopping periodic jobs", logfields.Error(err))
	}
}

// rescan walks the source directory to pick up anything the filesystem
// notifications missed.
func (p *Periodic) rescan() {
	result := p.daemon.GenerateAll(false)
	if result.Queued > 0 {
		slog.Info("rescan queued missed changes", "queued", result.Queued)
	}
}

func (p *Periodic) prune(ctx context.Context) {
	cutoff := time.Now().Add(-historyRetention)
	n, err := p.daemon.history.Prune(ctx, cutoff)
	if err != nil {
		slog.Warn("event store prune failed", logfields.Error(err))
		return
	}
	if n > 0 {
		slog.Debug("pruned job history", "events", n)
	}
}
