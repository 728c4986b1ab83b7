// Package scheduler runs documentation generation jobs through a bounded
// worker pool. It guarantees at most one pending or running job per source
// file and retries transient failures with backoff.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/autodoc/internal/analyzer"
	"git.home.luguber.info/inful/autodoc/internal/events"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
	"git.home.luguber.info/inful/autodoc/internal/metrics"
	"git.home.luguber.info/inful/autodoc/internal/registry"
	"git.home.luguber.info/inful/autodoc/internal/renderer"
	"git.home.luguber.info/inful/autodoc/internal/retry"
	"git.home.luguber.info/inful/autodoc/internal/store"
)

// JobState tracks a generation job through its lifecycle.
type JobState string

const (
	StatePending   JobState = "pending"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	// StateAbandoned means the source file disappeared before or during
	// generation; the job ends without an artifact.
	StateAbandoned JobState = "abandoned"
)

// Job is one unit of generation work for a single source file.
type Job struct {
	ID         string        `json:"id"`
	File       string        `json:"file"`
	State      JobState      `json:"state"`
	Attempts   int           `json:"attempts"`
	CreatedAt  time.Time     `json:"created_at"`
	StartedAt  *time.Time    `json:"started_at,omitempty"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	LastError  string        `json:"last_error,omitempty"`
	// Fingerprint is the source fingerprint of the last attempt.
	Fingerprint string `json:"fingerprint,omitempty"`

	// rerun is set when a change arrived while the job was running; the
	// worker re-enqueues the file after finishing.
	rerun bool
}

// History records job lifecycle events for later inspection. The SQLite
// event store satisfies this; nil disables recording.
type History interface {
	Append(ctx context.Context, jobID, file, eventType string, detail map[string]string) error
}

// Counts is a snapshot of per-file outcomes feeding health computation.
type Counts struct {
	Succeeded int
	Failed    int
	Pending   int
}

// Status is the externally visible queue state.
type Status struct {
	QueueDepth int    `json:"queue_depth"`
	Active     []*Job `json:"active"`
	Recent     []*Job `json:"recent"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	// Errors maps each file whose most recent job failed to its error.
	Errors map[string]string `json:"errors,omitempty"`
}

const historySize = 50

// Scheduler owns the generation worker pool.
type Scheduler struct {
	workers int
	policy  retry.Policy

	registry *registry.Registry
	store    *store.Store
	bus      *events.Broadcaster
	history  History
	recorder metrics.Recorder
	revision string

	jobs     chan *Job
	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup

	// runJob does the actual generation work; replaced in tests.
	runJob func(ctx context.Context, job *Job) error

	mu         sync.Mutex
	active     int                             // jobs currently inside runJob
	inflight   map[string]*Job                 // file -> pending or running job
	outcomes   map[string]metrics.OutcomeLabel // file -> last terminal outcome
	lastErrors map[string]string               // file -> error of last failed job
	recent     []*Job
	timers     map[*time.Timer]struct{}
}

// Options carries the collaborators the scheduler publishes to. Recorder
// and History may be nil.
type Options struct {
	Workers   int
	QueueSize int
	Policy    retry.Policy
	Registry  *registry.Registry
	Store     *store.Store
	Bus       *events.Broadcaster
	History   History
	Recorder  metrics.Recorder
	Revision  string
}

// New creates a scheduler; call Start before scheduling work.
func New(opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 100
	}
	rec := opts.Recorder
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}
	s := &Scheduler{
		workers:    opts.Workers,
		policy:     opts.Policy,
		registry:   opts.Registry,
		store:      opts.Store,
		bus:        opts.Bus,
		history:    opts.History,
		recorder:   rec,
		revision:   opts.Revision,
		jobs:       make(chan *Job, opts.QueueSize),
		stopChan:   make(chan struct{}),
		inflight:   make(map[string]*Job),
		outcomes:   make(map[string]metrics.OutcomeLabel),
		lastErrors: make(map[string]string),
		timers:     make(map[*time.Timer]struct{}),
	}
	s.runJob = s.generate
	return s
}

// Start launches the worker pool.
func (s *Scheduler) Start(ctx context.Context) {
	slog.Info("starting generation scheduler", "workers", s.workers, "queue_size", cap(s.jobs))
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx, fmt.Sprintf("worker-%d", i))
	}
}

// Stop drains the pool. Pending retry timers are cancelled without firing.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		s.mu.Lock()
		for t := range s.timers {
			t.Stop()
		}
		s.timers = make(map[*time.Timer]struct{})
		s.mu.Unlock()
	})
	s.wg.Wait()
	slog.Info("generation scheduler stopped")
}

// Schedule requests generation for a file. Scheduling is idempotent: if a
// job for the file is already pending this is a no-op, and if one is
// running the file is re-enqueued when it finishes.
func (s *Scheduler) Schedule(path string) {
	s.mu.Lock()
	if existing, ok := s.inflight[path]; ok {
		if existing.State == StateRunning {
			existing.rerun = true
		}
		s.mu.Unlock()
		return
	}
	job := &Job{
		ID:        uuid.NewString(),
		File:      path,
		State:     StatePending,
		CreatedAt: time.Now().UTC(),
	}
	s.inflight[path] = job
	s.mu.Unlock()

	s.enqueue(job)
}

// FileRemoved drops all scheduler state for a deleted file. A running job
// notices the deletion itself and ends abandoned.
func (s *Scheduler) FileRemoved(path string) {
	s.mu.Lock()
	delete(s.outcomes, path)
	delete(s.lastErrors, path)
	s.mu.Unlock()
}

func (s *Scheduler) enqueue(job *Job) {
	select {
	case s.jobs <- job:
		s.recorder.SetQueueDepth(len(s.jobs))
		slog.Debug("generation job enqueued", logfields.JobID(job.ID), logfields.File(job.File))
	default:
		// Queue full: drop the reservation so a later change can reschedule.
		s.mu.Lock()
		if s.inflight[job.File] == job {
			delete(s.inflight, job.File)
		}
		s.mu.Unlock()
		slog.Warn("generation queue full, dropping job", logfields.JobID(job.ID), logfields.File(job.File))
	}
}

// Counts reports per-file terminal outcomes plus in-flight work.
func (s *Scheduler) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c Counts
	for _, o := range s.outcomes {
		switch o {
		case metrics.OutcomeSuccess:
			c.Succeeded++
		case metrics.OutcomeFailed:
			c.Failed++
		}
	}
	c.Pending = len(s.inflight)
	return c
}

// Status reports queue depth, active jobs and recent terminal jobs.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{QueueDepth: len(s.jobs)}
	for _, j := range s.inflight {
		if j.State == StateRunning {
			cp := *j
			st.Active = append(st.Active, &cp)
		}
	}
	st.Recent = make([]*Job, 0, len(s.recent))
	for i := len(s.recent) - 1; i >= 0; i-- {
		cp := *s.recent[i]
		st.Recent = append(st.Recent, &cp)
	}
	for _, o := range s.outcomes {
		switch o {
		case metrics.OutcomeSuccess:
			st.Succeeded++
		case metrics.OutcomeFailed:
			st.Failed++
		}
	}
	if len(s.lastErrors) > 0 {
		st.Errors = make(map[string]string, len(s.lastErrors))
		for f, e := range s.lastErrors {
			st.Errors[f] = e
		}
	}
	return st
}

func (s *Scheduler) worker(ctx context.Context, id string) {
	defer s.wg.Done()
	slog.Debug("generation worker started", logfields.Worker(id))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case job := <-s.jobs:
			if job != nil {
				s.process(ctx, job, id)
			}
			s.recorder.SetQueueDepth(len(s.jobs))
		}
	}
}

func (s *Scheduler) process(ctx context.Context, job *Job, workerID string) {
	start := time.Now()
	s.mu.Lock()
	job.State = StateRunning
	job.Attempts++
	job.StartedAt = &start
	attempt := job.Attempts
	s.active++
	active := s.active
	s.mu.Unlock()
	s.recorder.SetActiveJobs(active)

	slog.Info("generation job started",
		logfields.JobID(job.ID), logfields.File(job.File),
		logfields.Attempt(attempt), logfields.Worker(workerID))
	s.publish(ctx, job, events.TypeGenerationStarted, nil)

	err := s.runJob(ctx, job)
	elapsed := time.Since(start)

	s.mu.Lock()
	s.active--
	active = s.active
	s.mu.Unlock()
	s.recorder.SetActiveJobs(active)

	switch {
	case err == nil:
		s.finish(ctx, job, metrics.OutcomeSuccess, elapsed, nil)
	case errors.Is(err, os.ErrNotExist):
		s.finish(ctx, job, metrics.OutcomeAbandoned, elapsed, err)
	case ferrors.IsRetryable(err) && !s.policy.Exhausted(attempt):
		s.retryLater(job, attempt, err)
	default:
		if ferrors.IsRetryable(err) {
			s.recorder.IncRetryExhausted()
		}
		s.finish(ctx, job, metrics.OutcomeFailed, elapsed, err)
	}
}

// generate reads, analyzes and renders one source file, then commits the
// artifact and the registry entry.
func (s *Scheduler) generate(ctx context.Context, job *Job) error {
	if err := ctx.Err(); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "generation cancelled").Build()
	}

	content, fingerprint, modTime, err := registry.ReadAndFingerprint(job.File)
	if err != nil {
		return err
	}
	s.mu.Lock()
	job.Fingerprint = fingerprint
	s.mu.Unlock()

	model := analyzer.Analyze(job.File, content)
	body := renderer.Render(model)

	artifact := &store.DocumentArtifact{
		Path:              job.File,
		Name:              model.Name,
		Model:             model,
		Markdown:          body.Markdown,
		Diagram:           body.Diagram,
		Outline:           body.Outline,
		Fingerprint:       body.Fingerprint,
		SourceFingerprint: fingerprint,
		Revision:          s.revision,
		GeneratedAt:       time.Now().UTC(),
	}
	if err := s.store.Commit(artifact); err != nil {
		return err
	}
	s.registry.Commit(job.File, fingerprint, modTime)
	s.recorder.SetKnownFiles(s.registry.Len())
	return nil
}

func (s *Scheduler) retryLater(job *Job, attempt int, cause error) {
	delay := s.policy.Delay(attempt)
	s.recorder.IncRetry()

	s.mu.Lock()
	job.State = StatePending
	job.LastError = cause.Error()
	s.mu.Unlock()

	slog.Warn("generation failed, retrying",
		logfields.JobID(job.ID), logfields.File(job.File),
		logfields.Attempt(attempt), slog.Duration("delay", delay),
		logfields.Error(cause))

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, timer)
		s.mu.Unlock()
		select {
		case <-s.stopChan:
		default:
			s.enqueue(job)
		}
	})
	s.mu.Lock()
	s.timers[timer] = struct{}{}
	s.mu.Unlock()
}

func (s *Scheduler) finish(ctx context.Context, job *Job, outcome metrics.OutcomeLabel, elapsed time.Duration, cause error) {
	end := time.Now()

	s.mu.Lock()
	job.FinishedAt = &end
	job.Duration = elapsed
	rerun := job.rerun
	job.rerun = false
	switch outcome {
	case metrics.OutcomeSuccess:
		job.State = StateSucceeded
		job.LastError = ""
	case metrics.OutcomeAbandoned:
		// Abandonment is terminal but not an error; the file is simply gone.
		job.State = StateAbandoned
		job.LastError = ""
		rerun = false
	default:
		job.State = StateFailed
		job.LastError = cause.Error()
	}
	if s.inflight[job.File] == job {
		delete(s.inflight, job.File)
	}
	if outcome == metrics.OutcomeAbandoned {
		delete(s.outcomes, job.File)
	} else {
		s.outcomes[job.File] = outcome
	}
	if outcome == metrics.OutcomeFailed {
		s.lastErrors[job.File] = cause.Error()
	} else {
		delete(s.lastErrors, job.File)
	}
	s.recent = append(s.recent, job)
	if len(s.recent) > historySize {
		copy(s.recent, s.recent[len(s.recent)-historySize:])
		s.recent = s.recent[:historySize]
	}
	s.mu.Unlock()

	s.recorder.ObserveGenerationDuration(elapsed, outcome)
	s.recorder.IncJobOutcome(outcome)

	ms := float64(elapsed.Milliseconds())
	switch outcome {
	case metrics.OutcomeSuccess:
		slog.Info("generation job succeeded",
			logfields.JobID(job.ID), logfields.File(job.File), logfields.DurationMS(ms))
		s.publish(ctx, job, events.TypeGenerationSucceeded, map[string]string{
			"fingerprint": job.Fingerprint,
			"duration_ms": fmt.Sprintf("%.0f", ms),
		})
	case metrics.OutcomeAbandoned:
		// The source vanished; unregister it so health and listings agree.
		s.registry.Remove(job.File)
		s.recorder.SetKnownFiles(s.registry.Len())
		slog.Info("generation job abandoned, source removed",
			logfields.JobID(job.ID), logfields.File(job.File))
		s.publish(ctx, job, events.TypeGenerationAbandoned, map[string]string{
			"reason": "source file removed",
			"state":  string(StateAbandoned),
		})
	default:
		slog.Error("generation job failed",
			logfields.JobID(job.ID), logfields.File(job.File),
			logfields.Attempt(job.Attempts), logfields.Error(cause))
		s.publish(ctx, job, events.TypeGenerationFailed, map[string]string{
			"error":    cause.Error(),
			"attempts": fmt.Sprintf("%d", job.Attempts),
		})
	}

	if rerun {
		s.Schedule(job.File)
	}
}

// publish records the lifecycle event durably first, then notifies live
// subscribers.
func (s *Scheduler) publish(ctx context.Context, job *Job, t events.Type, detail map[string]string) {
	if s.history != nil {
		if err := s.history.Append(ctx, job.ID, job.File, string(t), detail); err != nil {
			slog.Warn("failed to record job event", logfields.JobID(job.ID), logfields.Error(err))
		}
	}
	if s.bus != nil {
		s.bus.Publish(events.New(t, job.File, detail))
	}
}
