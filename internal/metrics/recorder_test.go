package metrics

import (
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks.
var (
	_ Recorder = NoopRecorder{}
	_ Recorder = (*PrometheusRecorder)(nil)
)

func TestNoopRecorderIsSafe(t *testing.T) {
	var r Recorder = NoopRecorder{}
	r.ObserveGenerationDuration(time.Second, OutcomeSuccess)
	r.IncJobOutcome(OutcomeFailed)
	r.IncRetry()
	r.IncRetryExhausted()
	r.SetQueueDepth(3)
	r.SetActiveJobs(1)
	r.SetKnownFiles(10)
	r.IncEventsDropped()
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var p *PrometheusRecorder
	p.ObserveGenerationDuration(time.Second, OutcomeSuccess)
	p.IncJobOutcome(OutcomeSuccess)
	p.IncRetry()
	p.SetQueueDepth(1)
}

func TestPrometheusRecorderRegistersMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusRecorder(reg)

	p.ObserveGenerationDuration(250*time.Millisecond, OutcomeSuccess)
	p.IncJobOutcome(OutcomeSuccess)
	p.IncJobOutcome(OutcomeFailed)
	p.IncRetry()
	p.IncRetryExhausted()
	p.SetQueueDepth(4)
	p.SetActiveJobs(2)
	p.SetKnownFiles(12)
	p.IncEventsDropped()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"autodoc_generation_duration_seconds",
		"autodoc_job_outcomes_total",
		"autodoc_job_retries_total",
		"autodoc_job_retry_exhausted_total",
		"autodoc_queue_depth",
		"autodoc_active_jobs",
		"autodoc_known_files",
		"autodoc_events_dropped_total",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	p := NewPrometheusRecorder(reg)

	p.IncJobOutcome(OutcomeSuccess)
	p.IncJobOutcome(OutcomeSuccess)
	p.IncJobOutcome(OutcomeAbandoned)

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if !strings.HasSuffix(f.GetName(), "job_outcomes_total") {
			continue
		}
		got := map[string]float64{}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" {
					got[l.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
		assert.Equal(t, 2.0, got["success"])
		assert.Equal(t, 1.0, got["abandoned"])
		return
	}
	t.Fatal("job_outcomes_total not found")
}
