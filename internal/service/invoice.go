package service

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/usage"
	"github.com/flexprice/invoicer/internal/invoicegen"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
)

type InvoiceService interface {
	// RunInvoice brings the account current as of targetDate: it persists
	// the new invoice, if any, and publishes the next wake-up dates.
	RunInvoice(ctx context.Context, accountID string, targetDate time.Time) error

	// DryRun computes what RunInvoice would invoice without persisting it.
	DryRun(ctx context.Context, accountID string, targetDate time.Time) (*invoicegen.Result, error)

	GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context, accountID string) ([]*invoice.Invoice, error)
}

type invoiceService struct {
	ServiceParams
	generator *invoicegen.Generator
	cba       *cbaLedger
}

func NewInvoiceService(params ServiceParams) InvoiceService {
	cfg := params.Config.Invoice
	return &invoiceService{
		ServiceParams: params,
		generator: invoicegen.NewGenerator(invoicegen.Config{
			MaxTargetDateMonths:          cfg.MaxTargetDateMonths,
			ProrationFixedDays:           cfg.ProrationFixedDays,
			MaxDailyItemsPerSubscription: cfg.MaxDailyItemsPerSubscription,
			InArrearGreedy:               cfg.InArrearGreedy,
		}, params.Logger),
		cba: &cbaLedger{ServiceParams: params},
	}
}

func (s *invoiceService) RunInvoice(ctx context.Context, accountID string, targetDate time.Time) error {
	started := time.Now()
	ctx = types.SetAccountID(ctx, accountID)

	result, err := s.generate(ctx, accountID, targetDate, false)

	var itemTypes []string
	if result != nil && result.Invoice != nil {
		itemTypes = lo.Map(result.Invoice.Items, func(item *invoice.InvoiceItem, _ int) string {
			return string(item.Type)
		})
	}
	s.Metrics.ObservePass(started, itemTypes, err)
	if err != nil {
		return err
	}

	// wake-ups go out once the invoice is durable; a failed publish reruns
	// the pass, which is idempotent
	return s.Notifications.PublishNextNotifications(ctx, accountID, result.Notifications)
}

func (s *invoiceService) DryRun(ctx context.Context, accountID string, targetDate time.Time) (*invoicegen.Result, error) {
	return s.generate(types.SetAccountID(ctx, accountID), accountID, targetDate, true)
}

func (s *invoiceService) generate(ctx context.Context, accountID string, targetDate time.Time, dryRun bool) (*invoicegen.Result, error) {
	var result *invoicegen.Result

	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.AccountRepo.LockForInvoicing(ctx, accountID); err != nil {
			return err
		}

		acc, err := s.AccountRepo.Get(ctx, accountID)
		if err != nil {
			return err
		}

		events, err := s.BillingEventRepo.GetEventsForAccount(ctx, accountID)
		if err != nil {
			return err
		}

		today := types.ToDate(s.today())
		cutoff := s.cutoff(today)
		existing, err := s.InvoiceRepo.ListByAccount(ctx, accountID, cutoff)
		if err != nil {
			return err
		}

		var raw []*usage.RawUsage
		if window := invoicegen.UsageWindow(accountID, events, existing, targetDate); window != nil {
			raw, err = s.UsageRepo.GetRawUsage(ctx, window)
			if err != nil {
				return err
			}
		}

		result, err = s.generator.Generate(&invoicegen.Params{
			AccountID:        accountID,
			Currency:         acc.Currency,
			Today:            today,
			TargetDate:       targetDate,
			Events:           events,
			ExistingInvoices: existing,
			Cutoff:           cutoff,
			Flags:            acc.Flags(),
			RawUsage:         raw,
		})
		if err != nil {
			return err
		}

		if dryRun || result.Invoice == nil {
			return nil
		}

		inv := result.Invoice
		if err := inv.Validate(); err != nil {
			return err
		}
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return err
		}

		s.Logger.Infow("created invoice",
			"account_id", accountID,
			"invoice_id", inv.ID,
			"invoice_number", inv.InvoiceNumber,
			"status", inv.Status,
			"target_date", result.TargetDate,
			"items", len(inv.Items),
			"amount", inv.ChargedAmount(),
		)

		if !inv.IsCommitted() {
			return nil
		}
		return s.cba.rebalance(ctx, accountID, today)
	})
	if err != nil {
		s.Logger.Errorw("invoicing pass failed",
			"account_id", accountID,
			"target_date", targetDate,
			"dry_run", dryRun,
			"error", err,
		)
		return nil, err
	}
	return result, nil
}

func (s *invoiceService) cutoff(today time.Time) *time.Time {
	months := s.Config.Invoice.ExistingInvoicesCutoffMonths
	if months <= 0 {
		return nil
	}
	return lo.ToPtr(types.AddClampedDate(today, 0, -months, 0))
}

func (s *invoiceService) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	return s.InvoiceRepo.Get(ctx, id)
}

func (s *invoiceService) ListInvoices(ctx context.Context, accountID string) ([]*invoice.Invoice, error) {
	return s.InvoiceRepo.ListByAccount(ctx, accountID, nil)
}
