// Package metrics exposes the invoicing engine's Prometheus collectors.
// A nil *Metrics records nothing.
package metrics

import (
	"net/http"
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeInvoiced = "invoiced"
	OutcomeNothing  = "nothing"
	OutcomeError    = "error"
	OutcomeOK       = "ok"
)

type Metrics struct {
	gatherer     prometheus.Gatherer
	passes       *prometheus.CounterVec
	passDuration prometheus.Histogram
	items        *prometheus.CounterVec
	ledgerOps    *prometheus.CounterVec
	billRuns     *prometheus.CounterVec
	consumerLag  *prometheus.GaugeVec
}

// New registers the collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoicer",
			Name:      "passes_total",
			Help:      "Invoicing passes by outcome and error code.",
		}, []string{"outcome", "code"}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "invoicer",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one invoicing pass including persistence.",
			Buckets:   prometheus.DefBuckets,
		}),
		items: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoicer",
			Name:      "invoice_items_total",
			Help:      "Generated invoice items by type.",
		}, []string{"type"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoicer",
			Name:      "ledger_operations_total",
			Help:      "Ledger operations by operation and outcome.",
		}, []string{"operation", "outcome"}),
		billRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "invoicer",
			Name:      "billrun_accounts_total",
			Help:      "Accounts processed by bill runs.",
		}, []string{"outcome"}),
		consumerLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "invoicer",
			Name:      "consumer_lag_messages",
			Help:      "Messages not yet consumed per topic.",
		}, []string{"topic"}),
	}

	reg.MustRegister(m.passes, m.passDuration, m.items, m.ledgerOps, m.billRuns, m.consumerLag)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func outcomeOf(err error) (string, string) {
	if err != nil {
		return OutcomeError, ierr.CodeFromErr(err)
	}
	return OutcomeOK, ""
}

// ObservePass records one pass. itemTypes holds the type of every new item.
func (m *Metrics) ObservePass(started time.Time, itemTypes []string, err error) {
	if m == nil {
		return
	}
	m.passDuration.Observe(time.Since(started).Seconds())

	switch {
	case err != nil:
		_, code := outcomeOf(err)
		m.passes.WithLabelValues(OutcomeError, code).Inc()
	case len(itemTypes) == 0:
		m.passes.WithLabelValues(OutcomeNothing, "").Inc()
	default:
		m.passes.WithLabelValues(OutcomeInvoiced, "").Inc()
	}

	for _, t := range itemTypes {
		m.items.WithLabelValues(t).Inc()
	}
}

func (m *Metrics) ObserveLedger(operation string, err error) {
	if m == nil {
		return
	}
	outcome, _ := outcomeOf(err)
	m.ledgerOps.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveBillRunAccount(err error) {
	if m == nil {
		return
	}
	outcome, _ := outcomeOf(err)
	m.billRuns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetConsumerLag(topic string, lag int64) {
	if m == nil {
		return
	}
	m.consumerLag.WithLabelValues(topic).Set(float64(lag))
}
