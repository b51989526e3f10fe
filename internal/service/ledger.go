package service

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// LedgerService applies the balance operations of an account. Each call
// runs in one transaction under the account lock.
type LedgerService interface {
	InsertCredit(ctx context.Context, req *InsertCreditRequest) (*invoice.Invoice, error)
	DeleteCBA(ctx context.Context, req *DeleteCBARequest) (*invoice.Invoice, error)
	AdjustInvoiceItem(ctx context.Context, req *AdjustItemRequest) (*invoice.Invoice, error)
	RecordPayment(ctx context.Context, req *PaymentRequest) (*invoice.Invoice, error)
	RecordRefund(ctx context.Context, req *PaymentRequest) (*invoice.Invoice, error)
	InsertExternalCharges(ctx context.Context, req *ExternalChargesRequest) (*invoice.Invoice, error)
	CommitInvoice(ctx context.Context, accountID, invoiceID string) (*invoice.Invoice, error)
	GetAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error)
	GetAccountCBA(ctx context.Context, accountID string) (decimal.Decimal, error)
}

type ledgerService struct {
	ServiceParams
	cba *cbaLedger
}

func NewLedgerService(params ServiceParams) LedgerService {
	return &ledgerService{
		ServiceParams: params,
		cba:           &cbaLedger{ServiceParams: params},
	}
}

// run executes fn under the account lock and reloads the touched invoice.
func (s *ledgerService) run(ctx context.Context, operation, accountID string, fn func(ctx context.Context, day time.Time) (string, error)) (*invoice.Invoice, error) {
	var out *invoice.Invoice
	err := s.DB.WithTx(ctx, func(ctx context.Context) error {
		if err := s.AccountRepo.LockForInvoicing(ctx, accountID); err != nil {
			return err
		}
		day := types.ToDate(s.today())
		invoiceID, err := fn(ctx, day)
		if err != nil {
			return err
		}
		if err := s.cba.rebalance(ctx, accountID, day); err != nil {
			return err
		}
		out, err = s.InvoiceRepo.Get(ctx, invoiceID)
		return err
	})
	s.Metrics.ObserveLedger(operation, err)
	if err != nil {
		s.Logger.Errorw("ledger operation failed",
			"operation", operation,
			"account_id", accountID,
			"error", err,
		)
		return nil, err
	}
	s.Logger.Infow("ledger operation applied",
		"operation", operation,
		"account_id", accountID,
		"invoice_id", out.ID,
		"balance", out.Balance(),
	)
	return out, nil
}

// accountInvoice loads an invoice and checks it belongs to the account
func (s *ledgerService) accountInvoice(ctx context.Context, accountID, invoiceID string) (*invoice.Invoice, error) {
	inv, err := s.InvoiceRepo.Get(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.AccountID != accountID {
		return nil, ierr.NewError("invoice not found").
			WithHintf("Invoice %s does not belong to account %s", invoiceID, accountID).
			WithReportableDetails(map[string]any{
				"account_id": accountID,
				"invoice_id": invoiceID,
			}).
			Mark(ierr.ErrNotFound)
	}
	return inv, nil
}

func (s *ledgerService) checkCurrency(ctx context.Context, accountID, currency string) error {
	acc, err := s.AccountRepo.Get(ctx, accountID)
	if err != nil {
		return err
	}
	if !types.IsMatchingCurrency(acc.Currency, currency) {
		return ierr.NewError("currency does not match account currency").
			WithHintf("Account %s is billed in %s", accountID, acc.Currency).
			WithReportableDetails(map[string]any{
				"account_id":       accountID,
				"account_currency": acc.Currency,
				"currency":         currency,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func effectiveDay(requested *time.Time, day time.Time) time.Time {
	if requested == nil {
		return day
	}
	return types.ToDate(*requested)
}

func (s *ledgerService) InsertCredit(ctx context.Context, req *InsertCreditRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "insert_credit", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		if err := s.checkCurrency(ctx, req.AccountID, req.Currency); err != nil {
			return "", err
		}
		day = effectiveDay(req.EffectiveDate, day)
		credit := invoice.NewCreditItem(day, req.Amount.Neg(), req.Currency, req.Description)

		if req.InvoiceID == nil {
			inv := invoice.NewInvoice(req.AccountID, req.Currency, day, day, types.InvoiceStatusCommitted)
			inv.AddItems(credit)
			inv.AddItems(invoice.NewCBAItem(day, req.Amount, req.Currency))
			if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
				return "", err
			}
			return inv.ID, nil
		}

		inv, err := s.accountInvoice(ctx, req.AccountID, *req.InvoiceID)
		if err != nil {
			return "", err
		}
		if !types.IsMatchingCurrency(inv.Currency, req.Currency) {
			return "", ierr.NewError("credit currency does not match invoice currency").
				WithHint("Credits must be issued in the invoice currency").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"currency":   req.Currency,
				}).
				Mark(ierr.ErrValidation)
		}
		if err := s.cba.addItem(ctx, inv, credit); err != nil {
			return "", err
		}
		if err := s.cba.offsetNegative(ctx, inv, day); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

// DeleteCBA reverses what is left of a credit grant. Credit already spent
// on other invoices is taken back from them first.
func (s *ledgerService) DeleteCBA(ctx context.Context, req *DeleteCBARequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "delete_cba", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		invoices, err := s.InvoiceRepo.ListByAccount(ctx, req.AccountID, nil)
		if err != nil {
			return "", err
		}
		inv, found := lo.Find(invoices, func(inv *invoice.Invoice) bool {
			return inv.ID == req.InvoiceID
		})
		if !found {
			return "", ierr.NewError("invoice not found").
				WithHintf("Invoice %s not found for account %s", req.InvoiceID, req.AccountID).
				Mark(ierr.ErrNotFound)
		}
		grant, ok := inv.ItemByID(req.ItemID)
		if !ok {
			return "", ierr.NewError("invoice item not found").
				WithHintf("Item %s not found on invoice %s", req.ItemID, req.InvoiceID).
				Mark(ierr.ErrNotFound)
		}
		if grant.Type != types.InvoiceItemTypeCBAAdj || !grant.Amount.IsPositive() || grant.GetLinkedItemID() != "" {
			return "", ierr.NewError("item is not a credit grant").
				WithHint("Only positive CBA adjustments can be deleted").
				WithReportableDetails(map[string]any{
					"item_id": grant.ID,
					"type":    grant.Type,
					"amount":  grant.Amount,
				}).
				Mark(ierr.ErrValidation)
		}

		remaining := grant.Amount
		for _, r := range invoice.LinkedItems(invoices)[grant.ID] {
			remaining = remaining.Add(r.Amount)
		}
		if !remaining.IsPositive() {
			return "", ierr.NewError("credit grant already reversed").
				WithHint("Nothing is left of this credit grant").
				WithReportableDetails(map[string]any{"item_id": grant.ID}).
				Mark(ierr.ErrInvalidOperation)
		}
		if inv.Balance().Sub(remaining).IsNegative() {
			return "", ierr.NewError("invoice would be negative").
				WithHint("Deleting this credit would leave the invoice with a negative balance").
				WithReportableDetails(map[string]any{
					"invoice_id": inv.ID,
					"balance":    inv.Balance(),
					"credit":     remaining,
				}).
				Mark(ierr.ErrInvoiceWouldBeNegative)
		}

		if inv.IsCommitted() {
			available := invoice.AccountCBA(invoices)
			if shortfall := remaining.Sub(available); shortfall.IsPositive() {
				if err := s.cba.unwindConsumption(ctx, invoices, inv.ID, shortfall, day); err != nil {
					return "", err
				}
			}
		}
		if err := s.cba.addItem(ctx, inv, invoice.NewCBAReversal(grant, day, remaining.Neg())); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

// AdjustInvoiceItem credits part or all of what remains of a charge. The
// adjustment is capped by the remaining amount.
func (s *ledgerService) AdjustInvoiceItem(ctx context.Context, req *AdjustItemRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "adjust_item", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		invoices, err := s.InvoiceRepo.ListByAccount(ctx, req.AccountID, nil)
		if err != nil {
			return "", err
		}
		inv, item, ok := invoice.FindItem(invoices, req.ItemID)
		if !ok || inv.ID != req.InvoiceID {
			return "", ierr.NewError("invoice item not found").
				WithHintf("Item %s not found on invoice %s", req.ItemID, req.InvoiceID).
				WithReportableDetails(map[string]any{
					"account_id": req.AccountID,
					"invoice_id": req.InvoiceID,
					"item_id":    req.ItemID,
				}).
				Mark(ierr.ErrNotFound)
		}
		if !item.Type.IsCharge() && item.Type != types.InvoiceItemTypeExternalCharge {
			return "", ierr.NewError("item cannot be adjusted").
				WithHintf("%s items cannot be adjusted", item.Type).
				WithReportableDetails(map[string]any{"item_id": item.ID}).
				Mark(ierr.ErrValidation)
		}

		remaining := invoice.RemainingAmount(item, invoice.LinkedItems(invoices)[item.ID])
		if !remaining.IsPositive() {
			return "", ierr.NewError("item already fully adjusted").
				WithHint("Nothing is left to adjust on this item").
				WithReportableDetails(map[string]any{
					"item_id":   item.ID,
					"remaining": remaining,
				}).
				Mark(ierr.ErrInvalidOperation)
		}
		amount := remaining
		if req.Amount != nil {
			amount = decimal.Min(*req.Amount, remaining)
		}

		day = effectiveDay(req.EffectiveDate, day)
		if err := s.cba.addItem(ctx, inv, invoice.NewItemAdjustment(item, day, amount.Neg(), req.Description)); err != nil {
			return "", err
		}
		if err := s.cba.offsetNegative(ctx, inv, day); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

func (s *ledgerService) RecordPayment(ctx context.Context, req *PaymentRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "payment", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		inv, err := s.accountInvoice(ctx, req.AccountID, req.InvoiceID)
		if err != nil {
			return "", err
		}
		if !inv.IsCommitted() {
			return "", ierr.NewError("cannot pay a draft invoice").
				WithHint("Commit the invoice before recording payments").
				WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
				Mark(ierr.ErrInvalidOperation)
		}
		inv.PaidAmount = inv.PaidAmount.Add(req.Amount)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

func (s *ledgerService) RecordRefund(ctx context.Context, req *PaymentRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "refund", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		inv, err := s.accountInvoice(ctx, req.AccountID, req.InvoiceID)
		if err != nil {
			return "", err
		}
		if req.Amount.GreaterThan(inv.PaidAmount) {
			return "", ierr.NewError("refund exceeds paid amount").
				WithHintf("At most %s can be refunded on this invoice", inv.PaidAmount).
				WithReportableDetails(map[string]any{
					"invoice_id":  inv.ID,
					"paid_amount": inv.PaidAmount,
					"refund":      req.Amount,
				}).
				Mark(ierr.ErrValidation)
		}
		inv.PaidAmount = inv.PaidAmount.Sub(req.Amount)
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

func (s *ledgerService) InsertExternalCharges(ctx context.Context, req *ExternalChargesRequest) (*invoice.Invoice, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	return s.run(ctx, "external_charges", req.AccountID, func(ctx context.Context, day time.Time) (string, error) {
		if err := s.checkCurrency(ctx, req.AccountID, req.Currency); err != nil {
			return "", err
		}
		day = effectiveDay(req.EffectiveDate, day)
		inv := invoice.NewInvoice(req.AccountID, req.Currency, day, day, types.InvoiceStatusCommitted)
		for _, c := range req.Charges {
			inv.AddItems(invoice.NewExternalCharge(day, c.Amount, req.Currency, c.Description, c.SubscriptionID))
		}
		if err := s.InvoiceRepo.Create(ctx, inv); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

func (s *ledgerService) CommitInvoice(ctx context.Context, accountID, invoiceID string) (*invoice.Invoice, error) {
	return s.run(ctx, "commit", accountID, func(ctx context.Context, day time.Time) (string, error) {
		inv, err := s.accountInvoice(ctx, accountID, invoiceID)
		if err != nil {
			return "", err
		}
		if inv.IsCommitted() {
			return "", ierr.NewError("invoice already committed").
				WithHint("Only draft invoices can be committed").
				WithReportableDetails(map[string]any{"invoice_id": inv.ID}).
				Mark(ierr.ErrInvalidOperation)
		}
		inv.Status = types.InvoiceStatusCommitted
		if err := s.InvoiceRepo.Update(ctx, inv); err != nil {
			return "", err
		}
		return inv.ID, nil
	})
}

func (s *ledgerService) GetAccountBalance(ctx context.Context, accountID string) (decimal.Decimal, error) {
	invoices, err := s.InvoiceRepo.ListByAccount(ctx, accountID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return invoice.AccountBalance(invoices), nil
}

func (s *ledgerService) GetAccountCBA(ctx context.Context, accountID string) (decimal.Decimal, error) {
	invoices, err := s.InvoiceRepo.ListByAccount(ctx, accountID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	return invoice.AccountCBA(invoices), nil
}
