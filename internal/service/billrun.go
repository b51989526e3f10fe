package service

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/notification"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/sourcegraph/conc/pool"
)

// BillRunResult summarises one bill run. Failed maps account ids to the
// error of their last attempt.
type BillRunResult struct {
	RunID      string
	TargetDate time.Time
	Accounts   int
	Succeeded  int
	Failed     map[string]error
}

// BillRunService invoices many accounts. Accounts run concurrently, passes
// of one account never overlap.
type BillRunService interface {
	// Run invoices every invoiceable account in process
	Run(ctx context.Context, targetDate time.Time) (*BillRunResult, error)
	// Enqueue publishes one invoice run request per invoiceable account
	Enqueue(ctx context.Context, targetDate time.Time) (int, error)
}

type billRunService struct {
	ServiceParams
	invoices InvoiceService
}

func NewBillRunService(params ServiceParams, invoices InvoiceService) BillRunService {
	return &billRunService{
		ServiceParams: params,
		invoices:      invoices,
	}
}

func (s *billRunService) newBackOff(ctx context.Context) backoff.BackOff {
	cfg := s.Config.BillRun
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, cfg.MaxRetries), ctx)
}

// runAccount retries transient persistence failures of one account. Any
// other error is final.
func (s *billRunService) runAccount(ctx context.Context, accountID string, targetDate time.Time) error {
	attempt := 0
	operation := func() error {
		attempt++
		err := s.invoices.RunInvoice(ctx, accountID, targetDate)
		if err == nil {
			return nil
		}
		if !ierr.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		s.Logger.Warnw("retrying invoicing pass",
			"account_id", accountID,
			"attempt", attempt,
			"error", err,
		)
		return err
	}
	return backoff.Retry(operation, s.newBackOff(ctx))
}

func (s *billRunService) Run(ctx context.Context, targetDate time.Time) (*BillRunResult, error) {
	accounts, err := s.AccountRepo.ListInvoiceable(ctx)
	if err != nil {
		return nil, err
	}

	result := &BillRunResult{
		RunID:      types.GenerateUUIDWithPrefix(types.UUID_PREFIX_BILL_RUN),
		TargetDate: types.ToDate(targetDate),
		Accounts:   len(accounts),
		Failed:     make(map[string]error),
	}
	ctx = types.SetBillRunID(ctx, result.RunID)

	s.Logger.Infow("starting bill run",
		"run_id", result.RunID,
		"target_date", result.TargetDate,
		"accounts", len(accounts),
	)

	concurrency := s.Config.BillRun.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(concurrency)
	for _, accountID := range accounts {
		accountID := accountID
		p.Go(func() {
			err := s.runAccount(ctx, accountID, targetDate)
			s.Metrics.ObserveBillRunAccount(err)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.Sentry.CaptureInvoiceError(ctx, accountID, err)
				result.Failed[accountID] = err
				return
			}
			result.Succeeded++
		})
	}
	p.Wait()

	s.Logger.Infow("bill run finished",
		"run_id", result.RunID,
		"accounts", result.Accounts,
		"succeeded", result.Succeeded,
		"failed", len(result.Failed),
	)
	return result, ctx.Err()
}

func (s *billRunService) Enqueue(ctx context.Context, targetDate time.Time) (int, error) {
	accounts, err := s.AccountRepo.ListInvoiceable(ctx)
	if err != nil {
		return 0, err
	}
	for i, accountID := range accounts {
		if err := s.Notifications.RequestInvoiceRun(ctx, &notification.InvoiceRunRequest{
			AccountID:  accountID,
			TargetDate: types.ToDate(targetDate),
		}); err != nil {
			return i, err
		}
	}
	s.Logger.Infow("enqueued invoice runs",
		"target_date", types.ToDate(targetDate),
		"accounts", len(accounts),
	)
	return len(accounts), nil
}
