package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"TokenPulse/internal/domain/models"
)

var states = []models.ConnState{
	models.StateDisconnected,
	models.StateConnecting,
	models.StateSubscribed,
	models.StateReconnecting,
}

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	events      *prometheus.CounterVec
	rejected    *prometheus.CounterVec
	transitions *prometheus.CounterVec
	state       *prometheus.GaugeVec
	reconnects  *prometheus.CounterVec
	bufferSize  *prometheus.GaugeVec
	archived    *prometheus.CounterVec
	errorsTotal *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// New creates a recorder registered with the default Prometheus registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder's collectors with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		events: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_events_total",
				Help: "Accepted swap events per token",
			},
			[]string{"token"},
		),
		rejected: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_events_rejected_total",
				Help: "Swap events dropped by the normalizer",
			},
			[]string{"token", "reason"},
		),
		transitions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_session_transitions_total",
				Help: "Connection state transitions per token",
			},
			[]string{"token", "state"},
		),
		state: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tokenpulse_session_state",
				Help: "1 for the current connection state of a token session",
			},
			[]string{"token", "state"},
		),
		reconnects: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_reconnects_total",
				Help: "Stream reconnects per token",
			},
			[]string{"token"},
		),
		bufferSize: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tokenpulse_buffer_size",
				Help: "Transactions held in the recent buffer",
			},
			[]string{"token"},
		),
		archived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_archived_total",
				Help: "Transactions forwarded to the archive backend",
			},
			[]string{"backend", "token"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tokenpulse_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tokenpulse_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordEvent(token string) {
	r.events.WithLabelValues(token).Inc()
}

func (r *Recorder) RecordRejected(token, reason string) {
	r.rejected.WithLabelValues(token, reason).Inc()
}

// RecordState counts the transition and flips the state gauge for token.
func (r *Recorder) RecordState(token string, st models.ConnState) {
	r.transitions.WithLabelValues(token, string(st)).Inc()
	for _, s := range states {
		v := 0.0
		if s == st {
			v = 1
		}
		r.state.WithLabelValues(token, string(s)).Set(v)
	}
}

func (r *Recorder) RecordReconnect(token string) {
	r.reconnects.WithLabelValues(token).Inc()
}

func (r *Recorder) RecordBufferSize(token string, n int) {
	r.bufferSize.WithLabelValues(token).Set(float64(n))
}

// RecordArchived records a transaction sent to a backend.
func (r *Recorder) RecordArchived(backend, token string) {
	r.archived.WithLabelValues(backend, token).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
