// Package metrics expone las métricas Prometheus del cliente AFIP y de la autorización por lotes.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jhoicas/wsfe-api/internal/application/billing"
	"github.com/jhoicas/wsfe-api/internal/infrastructure/afip"
)

const namespace = "wsfe"

var (
	_ afip.Observer   = (*Metrics)(nil)
	_ billing.Metrics = (*Metrics)(nil)
)

// Metrics colectores registrados; implementa afip.Observer y billing.Metrics.
type Metrics struct {
	CallsTotal       *prometheus.CounterVec
	CallDuration     *prometheus.HistogramVec
	SessionRefreshes *prometheus.CounterVec
	Outcomes         *prometheus.CounterVec
	Attempts         *prometheus.CounterVec
	BatchDocuments   *prometheus.CounterVec
	BatchDuration    prometheus.Histogram
}

// New crea y registra los colectores en reg.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CallsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "afip_calls_total",
				Help:      "Llamadas SOAP a AFIP por operación y resultado",
			},
			[]string{"operation", "result"}, // result=ok/transport/timeout/protocol/service/error
		),
		CallDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "afip_call_duration_seconds",
				Help:      "Latencia de las llamadas SOAP a AFIP",
				Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"operation"},
		),
		SessionRefreshes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "session_refreshes_total",
				Help:      "Renovaciones del ticket WSAA",
			},
			[]string{"result"}, // ok/error
		),
		Outcomes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorization_outcomes_total",
				Help:      "Resultados de FECAESolicitar (A, R, P)",
			},
			[]string{"outcome"},
		),
		Attempts: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "authorization_attempts_total",
				Help:      "Intentos de autorización persistidos por estado",
			},
			[]string{"status"}, // approved/rejected/error
		),
		BatchDocuments: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batch_documents_total",
				Help:      "Comprobantes procesados en lotes",
			},
			[]string{"result"}, // succeeded/failed
		),
		BatchDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Duración total de cada lote",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
	}
}

// ObserveCall registra latencia y resultado de una llamada SOAP.
func (m *Metrics) ObserveCall(operation string, elapsed time.Duration, err error) {
	m.CallsTotal.WithLabelValues(operation, callResult(err)).Inc()
	m.CallDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveSessionRefresh(err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SessionRefreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveOutcome(outcome string) {
	m.Outcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAttempt(status string) {
	m.Attempts.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveBatch(succeeded, failed int, elapsed time.Duration) {
	m.BatchDocuments.WithLabelValues("succeeded").Add(float64(succeeded))
	m.BatchDocuments.WithLabelValues("failed").Add(float64(failed))
	m.BatchDuration.Observe(elapsed.Seconds())
}

func callResult(err error) string {
	if err == nil {
		return "ok"
	}
	var te *afip.TransportError
	if errors.As(err, &te) {
		if te.Timeout {
			return "timeout"
		}
		return "transport"
	}
	var pe *afip.ProtocolError
	if errors.As(err, &pe) {
		return "protocol"
	}
	var se *afip.ServiceError
	if errors.As(err, &se) {
		return "service"
	}
	return "error"
}
