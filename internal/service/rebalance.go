package service

import (
	"context"
	"time"

	"github.com/flexprice/invoicer/internal/domain/invoice"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
)

// cbaLedger moves account credit between the committed invoices of one
// account. Callers hold the account lock inside a transaction.
type cbaLedger struct {
	ServiceParams
}

func (l *cbaLedger) addItem(ctx context.Context, inv *invoice.Invoice, item *invoice.InvoiceItem) error {
	inv.AddItems(item)
	if err := l.InvoiceRepo.AddItems(ctx, inv.ID, []*invoice.InvoiceItem{item}); err != nil {
		return err
	}
	l.Logger.Debugw("added ledger item",
		"account_id", inv.AccountID,
		"invoice_id", inv.ID,
		"item_id", item.ID,
		"type", item.Type,
		"amount", item.Amount,
	)
	return nil
}

// offsetNegative grants the credit that brings a negative invoice back to zero.
func (l *cbaLedger) offsetNegative(ctx context.Context, inv *invoice.Invoice, day time.Time) error {
	balance := inv.Balance()
	if !balance.IsNegative() {
		return nil
	}
	return l.addItem(ctx, inv, invoice.NewCBAItem(day, balance.Neg(), inv.Currency))
}

// rebalance grants credit for every committed invoice with a negative
// balance, then spends the available credit on unpaid invoices oldest first.
func (l *cbaLedger) rebalance(ctx context.Context, accountID string, day time.Time) error {
	invoices, err := l.InvoiceRepo.ListByAccount(ctx, accountID, nil)
	if err != nil {
		return err
	}

	var committed []*invoice.Invoice
	for _, inv := range invoices {
		if inv.IsCommitted() {
			committed = append(committed, inv)
		}
	}

	for _, inv := range committed {
		if err := l.offsetNegative(ctx, inv, day); err != nil {
			return err
		}
	}

	available := invoice.AccountCBA(committed)
	for _, inv := range committed {
		if !available.IsPositive() {
			break
		}
		balance := inv.Balance()
		if !balance.IsPositive() {
			continue
		}
		use := decimal.Min(balance, available)
		if err := l.addItem(ctx, inv, invoice.NewCBAItem(day, use.Neg(), inv.Currency)); err != nil {
			return err
		}
		available = available.Sub(use)
	}

	if available.IsNegative() {
		return ierr.NewError("account credit is negative").
			WithHint("More credit was consumed than granted").
			WithReportableDetails(map[string]any{
				"account_id": accountID,
				"cba":        available,
			}).
			Mark(ierr.ErrDataIntegrity)
	}
	return nil
}

// unwindConsumption gives back up to amount of consumed credit, latest
// invoice first, skipping the invoice identified by exceptID.
func (l *cbaLedger) unwindConsumption(ctx context.Context, invoices []*invoice.Invoice, exceptID string, amount decimal.Decimal, day time.Time) error {
	linked := invoice.LinkedItems(invoices)
	remaining := amount

	for i := len(invoices) - 1; i >= 0 && remaining.IsPositive(); i-- {
		inv := invoices[i]
		if inv.ID == exceptID || !inv.IsCommitted() {
			continue
		}
		for j := len(inv.Items) - 1; j >= 0 && remaining.IsPositive(); j-- {
			item := inv.Items[j]
			if item.Type != types.InvoiceItemTypeCBAAdj || !item.Amount.IsNegative() || item.GetLinkedItemID() != "" {
				continue
			}
			outstanding := item.Amount.Neg()
			for _, r := range linked[item.ID] {
				outstanding = outstanding.Sub(r.Amount)
			}
			if !outstanding.IsPositive() {
				continue
			}
			give := decimal.Min(outstanding, remaining)
			if err := l.addItem(ctx, inv, invoice.NewCBAReversal(item, day, give)); err != nil {
				return err
			}
			remaining = remaining.Sub(give)
		}
	}

	if remaining.IsPositive() {
		return ierr.NewError("not enough consumed credit to unwind").
			WithHint("Account credit history is inconsistent").
			WithReportableDetails(map[string]any{
				"invoice_id": exceptID,
				"missing":    remaining,
			}).
			Mark(ierr.ErrDataIntegrity)
	}
	return nil
}
