package service

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicer/internal/domain/billing"
	"github.com/flexprice/invoicer/internal/domain/usage"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/notification"
	pubsubRouter "github.com/flexprice/invoicer/internal/pubsub/router"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
)

// IngestService stores what upstream systems report: subscription billing
// events and raw usage.
type IngestService interface {
	// AppendBillingEvents stores the events and asks for an invoicing pass
	// of every account they touch
	AppendBillingEvents(ctx context.Context, events []*billing.Event) error
	RecordUsage(ctx context.Context, records []*usage.RawUsage) error
	RegisterHandlers(router *pubsubRouter.Router, subscriber message.Subscriber)
}

type ingestService struct {
	ServiceParams
}

func NewIngestService(params ServiceParams) IngestService {
	return &ingestService{ServiceParams: params}
}

func (s *ingestService) AppendBillingEvents(ctx context.Context, events []*billing.Event) error {
	if len(events) == 0 {
		return nil
	}
	for _, e := range events {
		if e.AccountID == "" {
			return ierr.NewError("account_id is required").
				WithHint("Billing events must reference an account").
				WithReportableDetails(map[string]any{
					"subscription_id": e.SubscriptionID,
					"sequence_number": e.SequenceNumber,
				}).
				Mark(ierr.ErrValidation)
		}
	}

	if err := s.BillingEventRepo.Append(ctx, events); err != nil {
		return err
	}

	accounts := lo.Uniq(lo.Map(events, func(e *billing.Event, _ int) string {
		return e.AccountID
	}))
	sort.Strings(accounts)

	today := types.ToDate(s.today())
	for _, accountID := range accounts {
		if err := s.Notifications.RequestInvoiceRun(ctx, &notification.InvoiceRunRequest{
			AccountID:  accountID,
			TargetDate: today,
		}); err != nil {
			return err
		}
	}

	s.Logger.Infow("appended billing events",
		"events", len(events),
		"accounts", len(accounts),
	)
	return nil
}

func (s *ingestService) RecordUsage(ctx context.Context, records []*usage.RawUsage) error {
	if len(records) == 0 {
		return nil
	}
	for _, r := range records {
		if r.TrackingID == "" || r.AccountID == "" || r.SubscriptionID == "" || r.UnitType == "" {
			return ierr.NewError("incomplete usage record").
				WithHint("Usage records need a tracking id, account, subscription and unit type").
				WithReportableDetails(map[string]any{"tracking_id": r.TrackingID}).
				Mark(ierr.ErrValidation)
		}
		if r.Amount.IsNegative() {
			return ierr.NewError("negative usage amount").
				WithHint("Usage amounts cannot be negative").
				WithReportableDetails(map[string]any{
					"tracking_id": r.TrackingID,
					"amount":      r.Amount,
				}).
				Mark(ierr.ErrValidation)
		}
	}
	return s.UsageRepo.BulkInsert(ctx, records)
}

// RegisterHandlers consumes the ingest topics
func (s *ingestService) RegisterHandlers(router *pubsubRouter.Router, subscriber message.Subscriber) {
	router.AddNoPublishHandler(
		"billing_events_handler",
		s.Config.Ingest.EventsTopic,
		subscriber,
		s.handleBillingEvents,
	)
	router.AddNoPublishHandler(
		"raw_usage_handler",
		s.Config.Ingest.UsageTopic,
		subscriber,
		s.handleRawUsage,
	)
	s.Logger.Infow("registered ingest handlers",
		"events_topic", s.Config.Ingest.EventsTopic,
		"usage_topic", s.Config.Ingest.UsageTopic,
	)
}

func decodePayload(msg *message.Message, out any) error {
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return ierr.WithError(err).
			WithHint("Malformed message payload").
			WithReportableDetails(map[string]any{"message_uuid": msg.UUID}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (s *ingestService) handleBillingEvents(msg *message.Message) error {
	var events []*billing.Event
	if err := decodePayload(msg, &events); err != nil {
		return err
	}
	return s.AppendBillingEvents(msg.Context(), events)
}

func (s *ingestService) handleRawUsage(msg *message.Message) error {
	var records []*usage.RawUsage
	if err := decodePayload(msg, &records); err != nil {
		return err
	}
	return s.RecordUsage(msg.Context(), records)
}
