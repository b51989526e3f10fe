package metrics

import (
	"testing"
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObservePass(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObservePass(time.Now(), []string{"RECURRING", "RECURRING", "FIXED"}, nil)
	m.ObservePass(time.Now(), nil, nil)
	m.ObservePass(time.Now(), nil, ierr.NewError("boom").Mark(ierr.ErrDataIntegrity))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeInvoiced, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeNothing, "")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.passes.WithLabelValues(OutcomeError, ierr.ErrCodeDataIntegrity)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.items.WithLabelValues("RECURRING")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObservePass(time.Now(), []string{"FIXED"}, nil)
		m.ObserveLedger("insert_credit", nil)
		m.ObserveBillRunAccount(nil)
		m.SetConsumerLag("invoice_run", 3)
	})
}
