package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/events"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/metrics"
	"git.home.luguber.info/inful/autodoc/internal/registry"
	"git.home.luguber.info/inful/autodoc/internal/retry"
	"git.home.luguber.info/inful/autodoc/internal/store"
)

func testScheduler(t *testing.T, opts Options) (*Scheduler, *events.Subscription) {
	t.Helper()
	if opts.Registry == nil {
		opts.Registry = registry.New()
	}
	if opts.Store == nil {
		opts.Store = store.New(t.TempDir())
	}
	bus := events.NewBroadcaster()
	opts.Bus = bus
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = retry.NewPolicy(config.RetryBackoffFixed, 10*time.Millisecond, 10*time.Millisecond, 3)
	}

	s := New(opts)
	sub := bus.Subscribe(events.DefaultBuffer)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	t.Cleanup(func() {
		cancel()
		s.Stop()
		sub.Unsubscribe()
		bus.Close()
	})
	return s, sub
}

func waitFor(t *testing.T, sub *events.Subscription, want events.Type) events.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case evt := <-sub.C:
			if evt.Type == want {
				return evt
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", want)
		}
	}
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestScheduleGeneratesArtifact(t *testing.T) {
	srcDir := t.TempDir()
	outDir := t.TempDir()
	path := writeSource(t, srcDir, "lights.py", `"""Light automation."""

class Lights:
    def initialize(self):
        self.listen_state(self.on_motion, "binary_sensor.hall")

    def on_motion(self, entity, attribute, old, new, kwargs):
        pass
`)

	reg := registry.New()
	st := store.New(outDir)
	s, sub := testScheduler(t, Options{Registry: reg, Store: st})

	s.Schedule(path)
	evt := waitFor(t, sub, events.TypeGenerationSucceeded)
	assert.Equal(t, path, evt.File)
	assert.NotEmpty(t, evt.Detail["fingerprint"])

	artifact, ok := st.Get(path)
	require.True(t, ok)
	assert.Contains(t, string(artifact.Markdown), "# Lights")
	assert.NotEmpty(t, artifact.SourceFingerprint)

	entry, ok := reg.Get(path)
	require.True(t, ok)
	assert.Equal(t, artifact.SourceFingerprint, entry.Fingerprint)

	if _, err := os.Stat(filepath.Join(outDir, "lights.md")); err != nil {
		t.Fatalf("expected rendered markdown on disk: %v", err)
	}

	c := s.Counts()
	assert.Equal(t, 1, c.Succeeded)
	assert.Equal(t, 0, c.Pending)
}

func TestScheduleIdempotentWhilePending(t *testing.T) {
	s := New(Options{Workers: 1, QueueSize: 10})
	// Workers not started, so jobs stay queued.
	s.Schedule("a.py")
	s.Schedule("a.py")
	s.Schedule("b.py")

	assert.Equal(t, 2, s.Status().QueueDepth)
}

func TestRetryTransientThenSucceed(t *testing.T) {
	var calls atomic.Int32
	s, sub := testScheduler(t, Options{Workers: 1})
	s.runJob = func(context.Context, *Job) error {
		if calls.Add(1) == 1 {
			return ferrors.IOError("read source file").Build()
		}
		return nil
	}

	s.Schedule("flaky.py")
	waitFor(t, sub, events.TypeGenerationSucceeded)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 1, s.Counts().Succeeded)
}

func TestRetriesBoundedByMaxAttempts(t *testing.T) {
	var calls atomic.Int32
	s, sub := testScheduler(t, Options{Workers: 1})
	s.runJob = func(context.Context, *Job) error {
		calls.Add(1)
		return ferrors.IOError("read source file").Build()
	}

	s.Schedule("broken.py")
	evt := waitFor(t, sub, events.TypeGenerationFailed)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "3", evt.Detail["attempts"])
	assert.Equal(t, 1, s.Counts().Failed)
}

type gaugeRecorder struct {
	metrics.NoopRecorder

	mu     sync.Mutex
	active []int
}

func (g *gaugeRecorder) SetActiveJobs(n int) {
	g.mu.Lock()
	g.active = append(g.active, n)
	g.mu.Unlock()
}

func (g *gaugeRecorder) activeValues() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.active...)
}

func TestActiveJobsGaugeRisesAndFalls(t *testing.T) {
	rec := &gaugeRecorder{}
	s, sub := testScheduler(t, Options{Workers: 1, Recorder: rec})
	s.runJob = func(context.Context, *Job) error { return nil }

	s.Schedule("a.py")
	waitFor(t, sub, events.TypeGenerationSucceeded)

	assert.Equal(t, []int{1, 0}, rec.activeValues())
}

func TestNonRetryableFailsOnFirstAttempt(t *testing.T) {
	var calls atomic.Int32
	s, sub := testScheduler(t, Options{Workers: 1})
	s.runJob = func(context.Context, *Job) error {
		calls.Add(1)
		return ferrors.AnalysisError("unreadable source").Build()
	}

	s.Schedule("bad.py")
	waitFor(t, sub, events.TypeGenerationFailed)
	assert.Equal(t, int32(1), calls.Load())
	assert.Contains(t, s.Status().Errors["bad.py"], "unreadable source")
}

func TestMissingFileEndsAbandoned(t *testing.T) {
	reg := registry.New()
	reg.Commit("/nowhere/gone.py", "deadbeef", time.Now())
	s, sub := testScheduler(t, Options{Registry: reg})

	s.Schedule("/nowhere/gone.py")
	evt := waitFor(t, sub, events.TypeGenerationAbandoned)

	assert.Equal(t, string(StateAbandoned), evt.Detail["state"])
	assert.Equal(t, "source file removed", evt.Detail["reason"])
	_, ok := reg.Get("/nowhere/gone.py")
	assert.False(t, ok, "abandoned file should be unregistered")
	assert.Equal(t, 0, s.Counts().Pending)

	// Terminal but not an error: nothing lands in the error surfaces.
	st := s.Status()
	assert.Empty(t, st.Errors)
	require.NotEmpty(t, st.Recent)
	assert.Empty(t, st.Recent[len(st.Recent)-1].LastError)
}

func TestChangeDuringRunTriggersRerun(t *testing.T) {
	release := make(chan struct{})
	running := make(chan struct{}, 1)
	var active, maxActive atomic.Int32
	var calls atomic.Int32

	s, sub := testScheduler(t, Options{Workers: 2})
	s.runJob = func(context.Context, *Job) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		defer active.Add(-1)
		if calls.Add(1) == 1 {
			running <- struct{}{}
			<-release
		}
		return nil
	}

	s.Schedule("hot.py")
	<-running
	// A change arrives while the first run is in flight.
	s.Schedule("hot.py")
	close(release)

	waitFor(t, sub, events.TypeGenerationSucceeded)
	waitFor(t, sub, events.TypeGenerationSucceeded)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int32(1), maxActive.Load(), "same file must never run concurrently")
}

func TestIndependentFilesRunThroughPool(t *testing.T) {
	s, sub := testScheduler(t, Options{Workers: 2})
	s.runJob = func(context.Context, *Job) error { return nil }

	s.Schedule("a.py")
	s.Schedule("b.py")
	s.Schedule("c.py")

	seen := map[string]bool{}
	for len(seen) < 3 {
		evt := waitFor(t, sub, events.TypeGenerationSucceeded)
		seen[evt.File] = true
	}
	assert.Equal(t, 3, s.Counts().Succeeded)
}

type recordingHistory struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingHistory) Append(_ context.Context, _, file, eventType string, _ map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, file+":"+eventType)
	return nil
}

func (r *recordingHistory) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func TestJobEventsRecordedToHistory(t *testing.T) {
	hist := &recordingHistory{}
	s, sub := testScheduler(t, Options{Workers: 1, History: hist})
	s.runJob = func(context.Context, *Job) error { return nil }

	s.Schedule("a.py")
	waitFor(t, sub, events.TypeGenerationSucceeded)

	entries := hist.snapshot()
	assert.Contains(t, entries, "a.py:generation-started")
	assert.Contains(t, entries, "a.py:generation-succeeded")
}
