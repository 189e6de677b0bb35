// Package metrics exposes Prometheus collectors for the RPC layer and the
// ledger. Collectors live in their own registry rather than the global one.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

// Metrics holds every collector the server reports.
type Metrics struct {
	registry *prometheus.Registry

	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	ledger      *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rejections  prometheus.Counter
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chama",
			Name:      "rpc_requests_total",
			Help:      "RPC calls by procedure and result code.",
		}, []string{"procedure", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chama",
			Name:      "rpc_duration_seconds",
			Help:      "RPC latency by procedure.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"procedure"}),
		ledger: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chama",
			Name:      "ledger_amount_total",
			Help:      "Money committed to group ledgers by transaction type and payment method.",
		}, []string{"type", "method"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chama",
			Name:      "membership_transitions_total",
			Help:      "Committed membership transitions by action.",
		}, []string{"action"}),
		rejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chama",
			Name:      "allocation_rejections_total",
			Help:      "Contributions rejected because their allocation did not validate.",
		}),
	}
	m.registry.MustRegister(
		m.requests,
		m.duration,
		m.ledger,
		m.transitions,
		m.rejections,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveLedger adds a committed amount. A nil receiver is a no-op so
// services can run without metrics in tests.
func (m *Metrics) ObserveLedger(txType, method string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	m.ledger.WithLabelValues(txType, method).Add(amount.InexactFloat64())
}

// ObserveTransition counts a committed membership transition.
func (m *Metrics) ObserveTransition(action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action).Inc()
}

// ObserveAllocationRejected counts a rejected allocation.
func (m *Metrics) ObserveAllocationRejected() {
	if m == nil {
		return
	}
	m.rejections.Inc()
}

// Interceptor records count and latency of every unary RPC.
func (m *Metrics) Interceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			start := time.Now()
			procedure := req.Spec().Procedure

			resp, err := next(ctx, req)

			code := "ok"
			if err != nil {
				code = connect.CodeUnknown.String()
				var connectErr *connect.Error
				if errors.As(err, &connectErr) {
					code = connectErr.Code().String()
				}
			}
			m.requests.WithLabelValues(procedure, code).Inc()
			m.duration.WithLabelValues(procedure).Observe(time.Since(start).Seconds())
			return resp, err
		}
	}
}
