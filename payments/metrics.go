package payments

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts reconciliation outcomes by path.
type Metrics struct {
	Initiations *prometheus.CounterVec
	Callbacks   *prometheus.CounterVec
	Direct      *prometheus.CounterVec
	Polls       *prometheus.CounterVec
}

// NewMetrics registers the counters with reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Initiations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentpay",
			Name:      "stk_push_total",
			Help:      "STK push initiations by outcome.",
		}, []string{"outcome"}),
		Callbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentpay",
			Name:      "payment_callbacks_total",
			Help:      "STK callbacks processed by outcome.",
		}, []string{"outcome"}),
		Direct: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentpay",
			Name:      "paybill_confirmations_total",
			Help:      "Direct paybill confirmations by outcome.",
		}, []string{"outcome"}),
		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rentpay",
			Name:      "payment_polls_total",
			Help:      "On-demand status polls by outcome.",
		}, []string{"outcome"}),
	}
}
