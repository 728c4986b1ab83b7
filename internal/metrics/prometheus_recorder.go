package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	genDuration    *prom.HistogramVec
	jobOutcomes    *prom.CounterVec
	retries        prom.Counter
	retryExhausted prom.Counter
	queueDepth     prom.Gauge
	activeJobs     prom.Gauge
	knownFiles     prom.Gauge
	eventsDropped  prom.Counter
}

// NewPrometheusRecorder constructs and registers the generation metrics
// on the given registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		genDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "autodoc",
			Name:      "generation_duration_seconds",
			Help:      "Duration of individual documentation generation jobs",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"}),
		jobOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "autodoc",
			Name:      "job_outcomes_total",
			Help:      "Terminal job outcomes by status",
		}, []string{"outcome"}),
		retries: prom.NewCounter(prom.CounterOpts{
			Namespace: "autodoc",
			Name:      "job_retries_total",
			Help:      "Total job retries after transient failures",
		}),
		retryExhausted: prom.NewCounter(prom.CounterOpts{
			Namespace: "autodoc",
			Name:      "job_retry_exhausted_total",
			Help:      "Jobs that failed permanently after exhausting retries",
		}),
		queueDepth: prom.NewGauge(prom.GaugeOpts{
			Namespace: "autodoc",
			Name:      "queue_depth",
			Help:      "Jobs currently waiting in the generation queue",
		}),
		activeJobs: prom.NewGauge(prom.GaugeOpts{
			Namespace: "autodoc",
			Name:      "active_jobs",
			Help:      "Jobs currently being generated",
		}),
		knownFiles: prom.NewGauge(prom.GaugeOpts{
			Namespace: "autodoc",
			Name:      "known_files",
			Help:      "Source files currently tracked by the registry",
		}),
		eventsDropped: prom.NewCounter(prom.CounterOpts{
			Namespace: "autodoc",
			Name:      "events_dropped_total",
			Help:      "Live-update events dropped due to slow subscribers",
		}),
	}
	reg.MustRegister(pr.genDuration, pr.jobOutcomes, pr.retries, pr.retryExhausted,
		pr.queueDepth, pr.activeJobs, pr.knownFiles, pr.eventsDropped)
	return pr
}

func (p *PrometheusRecorder) ObserveGenerationDuration(d time.Duration, outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.genDuration.WithLabelValues(string(outcome)).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncJobOutcome(outcome OutcomeLabel) {
	if p == nil {
		return
	}
	p.jobOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncRetry() {
	if p == nil {
		return
	}
	p.retries.Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted() {
	if p == nil {
		return
	}
	p.retryExhausted.Inc()
}

func (p *PrometheusRecorder) SetQueueDepth(n int) {
	if p == nil {
		return
	}
	p.queueDepth.Set(float64(n))
}

func (p *PrometheusRecorder) SetActiveJobs(n int) {
	if p == nil {
		return
	}
	p.activeJobs.Set(float64(n))
}

func (p *PrometheusRecorder) SetKnownFiles(n int) {
	if p == nil {
		return
	}
	p.knownFiles.Set(float64(n))
}

func (p *PrometheusRecorder) IncEventsDropped() {
	if p == nil {
		return
	}
	p.eventsDropped.Inc()
}
