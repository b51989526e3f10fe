package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/sentry"
	"github.com/flexprice/invoicer/internal/validator"
)

// Runner runs one invoicing pass
type Runner interface {
	RunInvoice(ctx context.Context, accountID string, targetDate time.Time) error
}

// InvoiceRunHandler consumes invoice run requests
type InvoiceRunHandler struct {
	runner Runner
	sentry *sentry.Service
	logger *logger.Logger
}

func NewInvoiceRunHandler(runner Runner, sentry *sentry.Service, logger *logger.Logger) *InvoiceRunHandler {
	return &InvoiceRunHandler{runner: runner, sentry: sentry, logger: logger}
}

// Handle decodes a request and runs the pass. Failures are returned to the
// router, which decides whether to redeliver.
func (h *InvoiceRunHandler) Handle(msg *message.Message) error {
	var req InvoiceRunRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return ierr.WithError(err).
			WithHint("Malformed invoice run request").
			WithReportableDetails(map[string]any{"message_uuid": msg.UUID}).
			Mark(ierr.ErrValidation)
	}
	if err := validator.ValidateRequest(&req); err != nil {
		return err
	}

	span, ctx := h.sentry.MonitorInvoiceRun(msg.Context(), req.AccountID, req.RequestedAt)
	if span != nil {
		defer span.Finish()
	}

	h.logger.Infow("running invoice pass",
		"account_id", req.AccountID,
		"target_date", req.TargetDate,
		"message_uuid", msg.UUID,
	)

	if err := h.runner.RunInvoice(ctx, req.AccountID, req.TargetDate); err != nil {
		h.sentry.CaptureInvoiceError(ctx, req.AccountID, err)
		return err
	}
	return nil
}
