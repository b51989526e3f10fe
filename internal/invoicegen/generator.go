// Package invoicegen computes the invoice items needed to bring an account
// current as of a target date. Generation is pure: everything it reads is
// passed in and nothing is persisted.
package invoicegen

import (
	"time"

	"github.com/flexprice/invoicer/internal/domain/account"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/invoice"
	"github.com/flexprice/invoicer/internal/domain/proration"
	"github.com/flexprice/invoicer/internal/domain/usage"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
)

// Config holds the generation knobs, see config.InvoiceConfig.
type Config struct {
	// MaxTargetDateMonths rejects target dates further away from today.
	// Zero disables the check.
	MaxTargetDateMonths int
	// ProrationFixedDays switches proration to a fixed month length.
	ProrationFixedDays int
	// MaxDailyItemsPerSubscription bounds the items one subscription may
	// receive on one invoice date. Zero disables the check.
	MaxDailyItemsPerSubscription int
	// InArrearGreedy bills every completed IN_ARREAR period since start.
	InArrearGreedy bool
}

// Params is the input of one generation pass for one account.
type Params struct {
	AccountID string
	Currency  string
	// Today is the invoice date
	Today      time.Time
	TargetDate time.Time
	Events     billing.EventSet
	// ExistingInvoices are the account's invoices, possibly bounded by Cutoff
	ExistingInvoices []*invoice.Invoice
	Cutoff           *time.Time
	Flags            account.InvoicingFlags
	// RawUsage covers the window returned by UsageWindow
	RawUsage []*usage.RawUsage
}

// Result of a pass. Invoice is nil when nothing needs billing.
type Result struct {
	Invoice       *invoice.Invoice
	TargetDate    time.Time
	Notifications FutureNotifications
}

type Generator struct {
	config Config
	calc   proration.Calculator
	logger *logger.Logger
}

func NewGenerator(config Config, log *logger.Logger) *Generator {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Generator{
		config: config,
		calc:   proration.NewCalculator(config.ProrationFixedDays),
		logger: log,
	}
}

// EffectiveTargetDate moves target forward to the latest target date of the
// existing invoices, so a pass never bills less than an earlier one did.
func EffectiveTargetDate(target time.Time, existing []*invoice.Invoice) time.Time {
	target = types.ToDate(target)
	for _, inv := range existing {
		target = types.MaxDate(target, types.ToDate(inv.TargetDate))
	}
	return target
}

// Generate computes the new invoice for the account, nil when the events
// imply nothing new.
func (g *Generator) Generate(p *Params) (*Result, error) {
	result := &Result{Notifications: make(FutureNotifications)}
	if p == nil || p.Events.IsEmpty() {
		return result, nil
	}
	if err := p.Events.Validate(); err != nil {
		return nil, err
	}

	today := types.ToDate(p.Today)
	target := types.ToDate(p.TargetDate)
	if g.config.MaxTargetDateMonths > 0 && types.MonthsBetween(today, target) > g.config.MaxTargetDateMonths {
		return nil, ierr.NewError("target date too far in the future").
			WithHintf("Target date %s is more than %d months away", target.Format(time.DateOnly), g.config.MaxTargetDateMonths).
			WithReportableDetails(map[string]any{
				"account_id":  p.AccountID,
				"target_date": target,
				"today":       today,
			}).
			Mark(ierr.ErrTargetDateTooFar)
	}

	target = EffectiveTargetDate(target, p.ExistingInvoices)
	result.TargetDate = target

	if p.Flags.AutoInvoiceOff {
		g.logger.Debugw("auto invoicing is off for account", "account_id", p.AccountID)
		return result, nil
	}

	events := p.Events.Without(p.Flags.SubscriptionsAutoInvoiceOff)
	if events.IsEmpty() {
		return result, nil
	}

	currency := p.Currency
	if currency == "" {
		currency = events[0].Currency
	}

	idx, err := buildIndex(p.ExistingInvoices, p.Cutoff == nil)
	if err != nil {
		return nil, err
	}

	safety := newSafetyBounds(g.config.MaxDailyItemsPerSubscription, today)
	usageGen := newUsageGenerator(target, p.ExistingInvoices, p.RawUsage)

	var items []*invoice.InvoiceItem
	bySubscription := events.BySubscription()
	for _, sub := range events.SubscriptionIDs() {
		subItems, err := g.generateForSubscription(sub, bySubscription[sub], target, p.Cutoff, idx, usageGen, result.Notifications)
		if err != nil {
			return nil, err
		}
		items = append(items, subItems...)

		existing := idx.subscription(sub)
		for _, x := range existing.fixed {
			safety.addExisting(x)
		}
		for _, x := range existing.recurring {
			safety.addExisting(x)
		}
	}

	for _, item := range items {
		if !types.IsMatchingCurrency(item.Currency, currency) {
			return nil, ierr.NewError("billing event currency does not match account currency").
				WithHint("Invoices are issued in a single currency").
				WithReportableDetails(map[string]any{
					"account_id":      p.AccountID,
					"currency":        currency,
					"item_currency":   item.Currency,
					"subscription_id": item.GetSubscriptionID(),
				}).
				Mark(ierr.ErrValidation)
		}
		safety.addNew(item)
	}
	if err := safety.check(idx); err != nil {
		return nil, err
	}
	result.Notifications.prune()

	if len(items) == 0 {
		g.logger.Debugw("nothing to invoice", "account_id", p.AccountID, "target_date", target)
		return result, nil
	}

	inv := invoice.NewInvoice(p.AccountID, currency, today, target, p.Flags.InvoiceStatus())
	inv.AddItems(items...)
	result.Invoice = inv

	g.logger.Debugw("generated invoice",
		"account_id", p.AccountID,
		"invoice_id", inv.ID,
		"items", len(items),
		"target_date", target,
		"status", inv.Status)
	return result, nil
}

func (g *Generator) generateForSubscription(
	sub string,
	events []*billing.Event,
	target time.Time,
	cutoff *time.Time,
	idx *itemIndex,
	usageGen *usageGenerator,
	notifications FutureNotifications,
) ([]*invoice.InvoiceItem, error) {
	existing := idx.subscription(sub)

	fixed := proposeFixed(events, target)
	fixedItems, err := reconcileFixed(sub, fixed, existing.fixed, cutoff)
	if err != nil {
		return nil, err
	}

	proposal, err := g.proposeRecurring(events, target)
	if err != nil {
		return nil, err
	}
	proposals := proposal.items
	if cutoff != nil {
		proposals = lo.Filter(proposals, func(item *invoice.InvoiceItem, _ int) bool {
			return !item.EndDate.Before(*cutoff)
		})
	}
	tree := &recurringTree{
		calc:     g.calc,
		period:   proposal.period,
		existing: existing.recurring,
		frozen: func(x *existingItem) bool {
			end := x.period().end
			if proposal.floor != nil && !end.After(*proposal.floor) {
				return true
			}
			return cutoff != nil && end.Before(*cutoff)
		},
	}
	recurringItems := tree.reconcile(proposals)

	if proposal.nextDate != nil {
		notifications.setRecurring(sub, *proposal.nextDate, proposal.mode)
	}

	usageItems, err := usageGen.generate(events, existing.usage, notifications)
	if err != nil {
		return nil, err
	}

	out := make([]*invoice.InvoiceItem, 0, len(fixedItems)+len(recurringItems)+len(usageItems))
	out = append(out, fixedItems...)
	out = append(out, recurringItems...)
	out = append(out, usageItems...)
	return out, nil
}
