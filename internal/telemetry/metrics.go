package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/victornm/quizbox/internal/domain"
)

const namespace = "quizbox"

var (
	sessionsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_started_total",
		Help:      "Number of sessions that moved to in progress.",
	})

	sessionsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_finished_total",
		Help:      "Number of finished sessions by finish reason.",
	}, []string{"reason"})

	sessionsLive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_live",
		Help:      "Number of sessions held in memory.",
	})

	roundsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rounds_resolved_total",
		Help:      "Number of resolved rounds by outcome.",
	}, []string{"outcome"})

	roundPoints = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "round_points",
		Help:      "Points awarded for correct answers.",
		Buckets:   prometheus.LinearBuckets(0, 25, 10),
	})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Rejected session operations by error kind.",
	}, []string{"op", "kind"})
)

func SessionStarted() { sessionsStarted.Inc() }

func SessionFinished(reason string) { sessionsFinished.WithLabelValues(reason).Inc() }

func SessionsLive(n int) { sessionsLive.Set(float64(n)) }

// RoundResolved records the outcome of a resolved round.
func RoundResolved(r domain.Round) {
	if r.Outcome == nil {
		return
	}

	switch {
	case r.Outcome.TimedOut:
		roundsResolved.WithLabelValues("timeout").Inc()
	case r.Outcome.Correct:
		roundsResolved.WithLabelValues("correct").Inc()
		roundPoints.Observe(float64(r.Outcome.Points))
	default:
		roundsResolved.WithLabelValues("incorrect").Inc()
	}
}

func OperationFailed(op, kind string) { operationErrors.WithLabelValues(op, kind).Inc() }
