// Package observability provides request logging and flash metrics for the
// web service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/louisbranch/reqflash/internal/services/web/platform/httpx"
)

// RequestLogger logs one structured line per request.
func RequestLogger(logger *zap.Logger) httpx.Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, r)
			logger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", recorder.statusCode()),
				zap.Int("bytes", recorder.bytes),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", httpx.RequestIDOf(r)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(p)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Metrics counts flash message traffic.
type Metrics struct {
	added     *prometheus.CounterVec
	persisted prometheus.Counter
	consumed  prometheus.Counter
	envelopes *prometheus.CounterVec
	failures  *prometheus.CounterVec
}

// NewMetrics registers the flash collectors with reg. A nil registerer
// leaves the collectors unregistered, which suits tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		added: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflash",
			Name:      "messages_added_total",
			Help:      "Messages added to request stores, by type.",
		}, []string{"type"}),
		persisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reqflash",
			Name:      "messages_persisted_total",
			Help:      "Messages written to session slots.",
		}),
		consumed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "reqflash",
			Name:      "messages_consumed_total",
			Help:      "Persisted messages read and removed from session slots.",
		}),
		envelopes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflash",
			Name:      "envelopes_total",
			Help:      "AJAX envelopes written, by status.",
		}, []string{"status"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reqflash",
			Name:      "session_failures_total",
			Help:      "Session slot operations that failed, by operation.",
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.added, m.persisted, m.consumed, m.envelopes, m.failures)
	}
	return m
}

// MessageAdded counts one message of type t.
func (m *Metrics) MessageAdded(t string) {
	if m == nil {
		return
	}
	m.added.WithLabelValues(t).Inc()
}

// MessagesPersisted counts n messages written to a session slot.
func (m *Metrics) MessagesPersisted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.persisted.Add(float64(n))
}

// MessagesConsumed counts n messages removed by a read.
func (m *Metrics) MessagesConsumed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.consumed.Add(float64(n))
}

// EnvelopeWritten counts one AJAX envelope.
func (m *Metrics) EnvelopeWritten(status string) {
	if m == nil {
		return
	}
	m.envelopes.WithLabelValues(status).Inc()
}

// SessionFailure counts one failed session operation.
func (m *Metrics) SessionFailure(op string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(op).Inc()
}
