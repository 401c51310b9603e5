package o11y

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	challengesIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletgate",
		Name:      "challenges_issued_total",
		Help:      "Single-use challenges issued, by kind.",
	}, []string{"kind"})

	verifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletgate",
		Name:      "verifications_total",
		Help:      "Verification attempts, by method and outcome.",
	}, []string{"method", "outcome"})

	verifyDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletgate",
		Name:      "verify_duration_seconds",
		Help:      "End-to-end verification latency, by method.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	sessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletgate",
		Name:      "sessions_issued_total",
		Help:      "Session tokens minted.",
	})
)

func RecordChallengeIssued(kind string) {
	challengesIssued.WithLabelValues(kind).Inc()
}

func RecordVerification(method string, err error, started time.Time) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	verifications.WithLabelValues(method, outcome).Inc()
	verifyDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
}

func RecordSessionIssued() {
	sessionsIssued.Inc()
}

// MetricsHandler serves the prometheus scrape endpoint.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
