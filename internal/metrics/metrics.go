// Package metrics exposes Prometheus collectors for pipeline activity. All
// collectors register with the default registry at package init; the API
// server serves them on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "moodpipe"

var (
	workflowRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "workflow_runs_total",
		Help:      "Completed workflow invocations by terminal phase.",
	}, []string{"workflow", "status"})

	workflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "workflow_run_duration_seconds",
		Help:      "Wall time of workflow invocations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"workflow"})

	extractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "vision",
		Name:      "extraction_attempts_total",
		Help:      "Extraction strategy attempts by outcome.",
	}, []string{"strategy", "outcome"})

	classifiedMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "emotion",
		Name:      "classified_messages_total",
		Help:      "Classified messages by primary emotion and urgency.",
	}, []string{"emotion", "urgency"})

	subscriberPanics = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "subscriber_panics_total",
		Help:      "Recovered subscriber panics by event name.",
	}, []string{"event"})

	providerSyncs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "providers",
		Name:      "syncs_total",
		Help:      "Provider metric fetches by outcome.",
	}, []string{"provider", "outcome"})
)

// outcome converts a success flag into the label value used across counters.
func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

// RecordWorkflowRun records one finished invocation with its terminal phase
// ("completed" or "error") and duration.
func RecordWorkflowRun(workflow, status string, elapsed time.Duration) {
	workflowRuns.WithLabelValues(workflow, status).Inc()
	workflowDuration.WithLabelValues(workflow).Observe(elapsed.Seconds())
}

// RecordExtraction records one strategy attempt of the vision chain.
func RecordExtraction(strategy string, ok bool) {
	extractionAttempts.WithLabelValues(strategy, outcome(ok)).Inc()
}

// RecordClassification records one classified message.
func RecordClassification(emotion, urgency string) {
	classifiedMessages.WithLabelValues(emotion, urgency).Inc()
}

// RecordSubscriberPanic records one recovered bus subscriber panic.
func RecordSubscriberPanic(event string) {
	subscriberPanics.WithLabelValues(event).Inc()
}

// RecordProviderSync records one provider metric fetch.
func RecordProviderSync(provider string, ok bool) {
	providerSyncs.WithLabelValues(provider, outcome(ok)).Inc()
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
