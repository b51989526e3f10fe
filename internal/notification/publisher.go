package notification

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/idempotency"
	"github.com/flexprice/invoicer/internal/invoicegen"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/pubsub"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/flexprice/invoicer/internal/validator"
	"github.com/samber/lo"
)

// Publisher emits the wake-up messages of the invoicing engine
type Publisher struct {
	pubsub            pubsub.Publisher
	notificationTopic string
	runTopic          string
	keys              *idempotency.Generator
	logger            *logger.Logger
}

func NewPublisher(ps pubsub.Publisher, cfg *config.Configuration, logger *logger.Logger) *Publisher {
	return &Publisher{
		pubsub:            ps,
		notificationTopic: cfg.Notification.Topic,
		runTopic:          cfg.BillRun.Topic,
		keys:              idempotency.NewGenerator(),
		logger:            logger,
	}
}

// Messages flattens the notifications of a pass, one message per recurring
// date and per usage date, ordered by subscription.
func Messages(accountID string, notifications invoicegen.FutureNotifications) []*NextBilling {
	ids := lo.Keys(notifications)
	sort.Strings(ids)

	var out []*NextBilling
	for _, id := range ids {
		n := notifications[id]
		if n.NextRecurringDate != nil {
			out = append(out, &NextBilling{
				AccountID:      accountID,
				SubscriptionID: id,
				Kind:           KindRecurring,
				BillingMode:    n.RecurringMode,
				NextDate:       *n.NextRecurringDate,
			})
		}

		names := lo.Keys(n.NextUsageDates)
		sort.Strings(names)
		for _, name := range names {
			out = append(out, &NextBilling{
				AccountID:      accountID,
				SubscriptionID: id,
				Kind:           KindUsage,
				BillingMode:    types.BillingModeInArrear,
				UsageName:      name,
				NextDate:       n.NextUsageDates[name],
			})
		}
	}
	return out
}

// PublishNextNotifications sends the next wake-up dates of a pass
func (p *Publisher) PublishNextNotifications(ctx context.Context, accountID string, notifications invoicegen.FutureNotifications) error {
	items := Messages(accountID, notifications)
	if len(items) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(items))
	for _, item := range items {
		msg, err := newMessage(p.keys.GenerateKey(idempotency.ScopeNextBilling, map[string]interface{}{
			"account_id":      item.AccountID,
			"subscription_id": item.SubscriptionID,
			"kind":            item.Kind,
			"usage_name":      item.UsageName,
			"next_date":       item.NextDate,
		}), item)
		if err != nil {
			return err
		}
		msg.Metadata.Set("account_id", accountID)
		msg.Metadata.Set("subscription_id", item.SubscriptionID)
		msgs = append(msgs, msg)
	}

	p.logger.Debugw("publishing next billing notifications",
		"account_id", accountID,
		"count", len(msgs),
	)

	if err := p.pubsub.Publish(ctx, p.notificationTopic, msgs...); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to publish next billing notifications").
			WithReportableDetails(map[string]any{"account_id": accountID}).
			Mark(ierr.ErrSystem)
	}
	return nil
}

// RequestInvoiceRun enqueues an invoicing pass for the account
func (p *Publisher) RequestInvoiceRun(ctx context.Context, req *InvoiceRunRequest) error {
	if req.RequestedAt.IsZero() {
		req.RequestedAt = time.Now().UTC()
	}
	if err := validator.ValidateRequest(req); err != nil {
		return err
	}

	// the same run requested twice shares a message id so consumers can drop duplicates
	msg, err := newMessage(p.keys.GenerateKey(idempotency.ScopeInvoiceRun, map[string]interface{}{
		"account_id":  req.AccountID,
		"target_date": req.TargetDate,
	}), req)
	if err != nil {
		return err
	}
	msg.Metadata.Set("account_id", req.AccountID)

	if err := p.pubsub.Publish(ctx, p.runTopic, msg); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to enqueue invoice run").
			WithReportableDetails(map[string]any{"account_id": req.AccountID}).
			Mark(ierr.ErrSystem)
	}
	return nil
}

func newMessage(uuid string, payload any) (*message.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to encode message").
			Mark(ierr.ErrValidation)
	}
	return message.NewMessage(uuid, body), nil
}
