// Package metrics provides Prometheus instrumentation for the synthesis
// pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "voiceflow"

// Outcome label values for audio processing.
const (
	OutcomeFatal     = "fatal"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
	OutcomeSuccess   = "success"
)

// Outcome label values for the response race.
const (
	RaceFull    = "full"
	RacePartial = "partial"
	RaceTimeout = "timeout"
	RaceError   = "error"
)

var (
	// requestsActive is a gauge of synthesis requests currently in flight.
	requestsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "requests_active",
			Help:      "Number of synthesis requests currently in flight",
		},
	)

	// requestDuration is a histogram of end-to-end request duration.
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Histogram of end-to-end request duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30, 60, 90, 120},
		},
		[]string{"kind", "status"}, // kind: test, audio, text
	)

	// audioAttemptDuration is a histogram of single audio-service call duration.
	audioAttemptDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "audio_attempt_duration_seconds",
			Help:      "Duration of individual conversational-audio service calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"}, // status: success, error
	)

	// audioOutcomesTotal counts terminal outcomes of the retry orchestrator.
	audioOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_outcomes_total",
			Help:      "Terminal outcomes of audio processing with retries",
		},
		[]string{"outcome"}, // outcome: success, fatal, exhausted, cancelled
	)

	// synthesisDuration is a histogram of workflow generation call duration.
	synthesisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "synthesis_duration_seconds",
			Help:      "Duration of workflow generation backend calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"backend", "status"},
	)

	// synthesisFallbacksTotal counts synthesizer fallback substitutions.
	synthesisFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_fallbacks_total",
			Help:      "Total number of fallback workflows substituted for failed generations",
		},
		[]string{"backend"},
	)

	// raceOutcomesTotal counts which branch of the response race won.
	raceOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "race_outcomes_total",
			Help:      "Winning branch of the partial-response race",
		},
		[]string{"outcome"}, // outcome: full, partial, timeout, error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		requestsActive,
		requestDuration,
		audioAttemptDuration,
		audioOutcomesTotal,
		synthesisDuration,
		synthesisFallbacksTotal,
		raceOutcomesTotal,
	}
)

// RequestStarted records a request entering the pipeline.
func RequestStarted() {
	requestsActive.Inc()
}

// RequestFinished records a completed request.
func RequestFinished(kind, status string, duration time.Duration) {
	requestsActive.Dec()
	requestDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// ObserveAudioAttempt records one call to the conversational-audio service.
func ObserveAudioAttempt(duration time.Duration, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	audioAttemptDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordAudioOutcome records the terminal outcome of a retried audio exchange.
func RecordAudioOutcome(outcome string) {
	audioOutcomesTotal.WithLabelValues(outcome).Inc()
}

// ObserveSynthesis records one workflow generation backend call.
func ObserveSynthesis(backend string, duration time.Duration, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	synthesisDuration.WithLabelValues(backend, status).Observe(duration.Seconds())
}

// RecordFallback records a fallback workflow substitution.
func RecordFallback(backend string) {
	synthesisFallbacksTotal.WithLabelValues(backend).Inc()
}

// RecordRaceOutcome records which branch of the response race won.
func RecordRaceOutcome(outcome string) {
	raceOutcomesTotal.WithLabelValues(outcome).Inc()
}

// Handler returns an HTTP handler exposing all pipeline metrics together
// with Go runtime and process collectors.
func Handler() http.Handler {
	reg := prometheus.NewRegistry()
	for _, collector := range allMetrics {
		reg.MustRegister(collector)
	}
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
