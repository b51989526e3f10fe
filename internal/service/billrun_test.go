package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flexprice/invoicer/internal/domain/account"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/stretchr/testify/suite"
)

// flakyInvoices fails the first passes of each account with the configured errors
type flakyInvoices struct {
	InvoiceService

	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
}

func (f *flakyInvoices) RunInvoice(ctx context.Context, accountID string, targetDate time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[accountID]++
	if errs := f.failures[accountID]; len(errs) > 0 {
		f.failures[accountID] = errs[1:]
		return errs[0]
	}
	return f.InvoiceService.RunInvoice(ctx, accountID, targetDate)
}

type BillRunServiceSuite struct {
	serviceSuite
	invoiceService InvoiceService
}

func TestBillRunService(t *testing.T) {
	suite.Run(t, new(BillRunServiceSuite))
}

func (s *BillRunServiceSuite) SetupTest() {
	s.serviceSuite.SetupTest()
	s.invoiceService = NewInvoiceService(s.params)

	s.createAccount("acc_1")
	s.createAccount("acc_2")
	s.createAccount("acc_off", func(a *account.Account) { a.AutoInvoiceOff = true })
	for _, id := range []string{"acc_1", "acc_2", "acc_off"} {
		s.appendEvents(monthlyEvent(id, "sub_"+id, 1, types.Date(2024, 1, 1), types.TransitionTypeCreate, "10"))
	}
}

func (s *BillRunServiceSuite) TestRunInvoicesEveryAccount() {
	result, err := NewBillRunService(s.params, s.invoiceService).Run(s.GetContext(), types.Date(2024, 1, 1))
	s.Require().NoError(err)

	s.NotEmpty(result.RunID)
	s.Equal(2, result.Accounts)
	s.Equal(2, result.Succeeded)
	s.Empty(result.Failed)

	s.Len(s.invoices("acc_1"), 1)
	s.Len(s.invoices("acc_2"), 1)
	s.Empty(s.invoices("acc_off"))
	s.Equal(2.0, s.counterValue("invoicer_billrun_accounts_total", map[string]string{"outcome": "ok"}))
}

func (s *BillRunServiceSuite) TestRunRetriesTransientFailures() {
	flaky := &flakyInvoices{
		InvoiceService: s.invoiceService,
		failures: map[string][]error{
			"acc_1": {
				ierr.NewError("connection reset").Mark(ierr.ErrDatabase),
				ierr.NewError("stale version").Mark(ierr.ErrVersionConflict),
			},
		},
		calls: make(map[string]int),
	}

	result, err := NewBillRunService(s.params, flaky).Run(s.GetContext(), types.Date(2024, 1, 1))
	s.Require().NoError(err)

	s.Equal(2, result.Succeeded)
	s.Empty(result.Failed)
	s.Equal(3, flaky.calls["acc_1"])
	s.Equal(1, flaky.calls["acc_2"])
	s.Len(s.invoices("acc_1"), 1)
}

func (s *BillRunServiceSuite) TestRunGivesUp() {
	tests := []struct {
		name     string
		failures []error
		calls    int
		checkFn  func(error) bool
	}{
		{
			name:     "permanent error is not retried",
			failures: []error{ierr.NewError("too many items").Mark(ierr.ErrDataIntegrity)},
			calls:    1,
			checkFn:  ierr.IsDataIntegrity,
		},
		{
			name: "retries are bounded",
			failures: []error{
				ierr.NewError("down").Mark(ierr.ErrDatabase),
				ierr.NewError("down").Mark(ierr.ErrDatabase),
				ierr.NewError("down").Mark(ierr.ErrDatabase),
				ierr.NewError("down").Mark(ierr.ErrDatabase),
				ierr.NewError("down").Mark(ierr.ErrDatabase),
			},
			calls:   int(s.config.BillRun.MaxRetries) + 1,
			checkFn: ierr.IsRetryable,
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			flaky := &flakyInvoices{
				InvoiceService: s.invoiceService,
				failures:       map[string][]error{"acc_2": tt.failures},
				calls:          make(map[string]int),
			}

			result, err := NewBillRunService(s.params, flaky).Run(s.GetContext(), types.Date(2024, 1, 1))
			s.Require().NoError(err)

			s.Equal(tt.calls, flaky.calls["acc_2"])
			s.Require().Contains(result.Failed, "acc_2")
			s.True(tt.checkFn(result.Failed["acc_2"]))
			s.Empty(s.invoices("acc_2"))
		})
	}
}

func (s *BillRunServiceSuite) TestRunStopsOnCancelledContext() {
	ctx, cancel := context.WithCancel(s.GetContext())
	cancel()

	_, err := NewBillRunService(s.params, s.invoiceService).Run(ctx, types.Date(2024, 1, 1))
	s.ErrorIs(err, context.Canceled)
}

func (s *BillRunServiceSuite) TestEnqueuePublishesOneRequestPerAccount() {
	n, err := NewBillRunService(s.params, s.invoiceService).Enqueue(s.GetContext(), types.Date(2024, 1, 1))
	s.Require().NoError(err)
	s.Equal(2, n)

	requests := s.runRequests()
	s.Require().Len(requests, 2)
	s.Equal("acc_1", requests[0].AccountID)
	s.Equal("acc_2", requests[1].AccountID)
	s.True(types.Date(2024, 1, 1).Equal(requests[0].TargetDate))

	// nothing is invoiced until the requests are consumed
	s.Empty(s.invoices("acc_1"))
}
