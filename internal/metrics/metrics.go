package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

var (
	runsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tars",
			Name:      "runs_total",
			Help:      "Completed pipeline runs, partitioned by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	runDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tars",
			Name:      "run_seconds",
			Help:      "End-to-end pipeline run latency in seconds.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	stageDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tars",
			Name:      "stage_seconds",
			Help:      "Pipeline stage latency in seconds.",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage", "outcome"},
	)

	runsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tars",
			Name:      "runs_rejected_total",
			Help:      "Run requests rejected because another run held the lock.",
		},
		[]string{"trigger"},
	)

	runActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tars",
			Name:      "run_active",
			Help:      "1 while a pipeline run holds the run-lock.",
		},
	)

	analyzerDroppedRefsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tars",
			Name:      "analyzer_dropped_refs_total",
			Help:      "Ticket references dropped from analyzer output (unknown, duplicate or already claimed).",
		},
	)

	truncatedInputsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tars",
			Name:      "truncated_inputs_total",
			Help:      "Analyses whose ticket input was truncated to fit the budget.",
		},
	)

	deliveryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tars",
			Name:      "delivery_attempts_total",
			Help:      "Webhook delivery attempts, partitioned by outcome.",
		},
		[]string{"outcome"},
	)
)

// Register attaches the collectors to reg. Registering twice is a no-op.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		runsTotal,
		runDurationSeconds,
		stageDurationSeconds,
		runsRejectedTotal,
		runActive,
		analyzerDroppedRefsTotal,
		truncatedInputsTotal,
		deliveryAttemptsTotal,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

func ObserveRun(trigger string, duration time.Duration, outcome string) {
	runsTotal.WithLabelValues(trigger, normalize(outcome)).Inc()
	runDurationSeconds.Observe(seconds(duration))
}

func ObserveStage(stage string, duration time.Duration, outcome string) {
	stageDurationSeconds.WithLabelValues(stage, normalize(outcome)).Observe(seconds(duration))
}

func RunRejected(trigger string) {
	runsRejectedTotal.WithLabelValues(trigger).Inc()
}

func SetRunActive(active bool) {
	if active {
		runActive.Set(1)
		return
	}
	runActive.Set(0)
}

func AnalyzerDroppedRefs(n int) {
	if n > 0 {
		analyzerDroppedRefsTotal.Add(float64(n))
	}
}

func TruncatedInput() {
	truncatedInputsTotal.Inc()
}

func DeliveryAttempts(n int, outcome string) {
	if n > 0 {
		deliveryAttemptsTotal.WithLabelValues(normalize(outcome)).Add(float64(n))
	}
}

func normalize(outcome string) string {
	if outcome != OutcomeError {
		return OutcomeSuccess
	}
	return OutcomeError
}

func seconds(d time.Duration) float64 {
	if d < 0 {
		return 0
	}
	return d.Seconds()
}
