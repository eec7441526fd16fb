package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "meter_"

	resultAccepted = "accepted"
	resultDeclined = "declined"
	resultRejected = "rejected"
	resultFaulted  = "faulted"

	resultSuccess = "success"
	resultFailure = "failure"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	submissions       *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	readingsStored    prometheus.Counter
	readingsRejected  prometheus.Counter
	diagnosticsTotal  prometheus.Counter
	tokensIssued      *prometheus.CounterVec

	clientCycles  prometheus.Counter
	clientAuth    *prometheus.CounterVec
	clientSubmits *prometheus.CounterVec
)

// Init registers meter metrics. db may be nil when readings are kept in memory.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		submissions = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "submissions_total",
				Help: "Total reading batch submissions by result",
			},
			[]string{"result"},
		)
		submissionLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "submission_latency_seconds",
				Help:    "Reading batch submission latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		readingsStored = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_stored_total",
				Help: "Total readings committed to storage",
			},
		)
		readingsRejected = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "readings_rejected_total",
				Help: "Total batches rejected for implausible reading values",
			},
		)
		diagnosticsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "diagnostics_readings_total",
				Help: "Total readings received on diagnostics streams",
			},
		)
		tokensIssued = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "token_requests_total",
				Help: "Total token requests by result",
			},
			[]string{"result"},
		)

		clientCycles = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "client_cycles_total",
				Help: "Total submission driver cycles",
			},
		)
		clientAuth = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "client_auth_total",
				Help: "Total client authentication attempts by result",
			},
			[]string{"result"},
		)
		clientSubmits = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "client_submissions_total",
				Help: "Total client batch submissions by result",
			},
			[]string{"result"},
		)

		prometheus.MustRegister(
			submissions,
			submissionLatency,
			readingsStored,
			readingsRejected,
			diagnosticsTotal,
			tokensIssued,
			clientCycles,
			clientAuth,
			clientSubmits,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveSubmission records pipeline duration and result.
func ObserveSubmission(result string, duration time.Duration) {
	if result == "" {
		result = resultAccepted
	}
	if submissions != nil {
		submissions.WithLabelValues(result).Inc()
	}
	if submissionLatency != nil {
		submissionLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// AddReadingsStored increments the committed readings counter.
func AddReadingsStored(count int) {
	if count <= 0 {
		return
	}
	if readingsStored != nil {
		readingsStored.Add(float64(count))
	}
}

// IncReadingsRejected increments the rejected batch counter.
func IncReadingsRejected() {
	if readingsRejected != nil {
		readingsRejected.Inc()
	}
}

// AddDiagnosticsReadings increments the diagnostics readings counter.
func AddDiagnosticsReadings(count int) {
	if count <= 0 {
		return
	}
	if diagnosticsTotal != nil {
		diagnosticsTotal.Add(float64(count))
	}
}

// IncTokenRequest increments token request counter.
func IncTokenRequest(result string) {
	if result == "" {
		result = "unknown"
	}
	if tokensIssued != nil {
		tokensIssued.WithLabelValues(result).Inc()
	}
}

// IncClientCycle increments driver cycle counter.
func IncClientCycle() {
	if clientCycles != nil {
		clientCycles.Inc()
	}
}

// IncClientAuth increments client authentication counter.
func IncClientAuth(result string) {
	if result == "" {
		result = "unknown"
	}
	if clientAuth != nil {
		clientAuth.WithLabelValues(result).Inc()
	}
}

// IncClientSubmit increments client submission counter.
func IncClientSubmit(result string) {
	if result == "" {
		result = "unknown"
	}
	if clientSubmits != nil {
		clientSubmits.WithLabelValues(result).Inc()
	}
}

// Exported constants for callers.
const (
	ResultAccepted = resultAccepted
	ResultDeclined = resultDeclined
	ResultRejected = resultRejected
	ResultFaulted  = resultFaulted

	ResultSuccess = resultSuccess
	ResultFailure = resultFailure
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
