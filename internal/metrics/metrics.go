// Package metrics содержит Prometheus-метрики леджера.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics объединяет коллекторы леджера. Коллекторы регистрируются в переданном Registerer,
// поэтому в тестах можно использовать отдельный реестр.
type Metrics struct {
	Transactions *prometheus.CounterVec
	Amount       *prometheus.CounterVec
	Rejections   *prometheus.CounterVec
	Settled      prometheus.Counter
	HTTPLatency  *prometheus.HistogramVec
}

// New создаёт коллекторы и регистрирует их в reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fodi_ledger_transactions_total",
				Help: "Total committed ledger transactions",
			},
			[]string{"kind"},
		),
		Amount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fodi_ledger_amount_total",
				Help: "Total amount moved by committed transactions, in base units",
			},
			[]string{"kind"},
		),
		Rejections: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fodi_ledger_rejections_total",
				Help: "Total rejected ledger mutations",
			},
			[]string{"operation", "reason"},
		),
		Settled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fodi_ledger_settled_total",
				Help: "Total transactions that received a settlement signature",
			},
		),
		HTTPLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fodi_ledger_http_request_duration_seconds",
				Help:    "Latency of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.Transactions, m.Amount, m.Rejections, m.Settled, m.HTTPLatency)
	return m
}

// ObserveTransaction учитывает зафиксированную операцию.
func (m *Metrics) ObserveTransaction(kind string, amount uint64) {
	m.Transactions.WithLabelValues(kind).Inc()
	m.Amount.WithLabelValues(kind).Add(float64(amount))
}

// ObserveRejection учитывает отклонённую операцию.
func (m *Metrics) ObserveRejection(operation, reason string) {
	m.Rejections.WithLabelValues(operation, reason).Inc()
}
