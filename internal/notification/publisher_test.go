package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/cockroachdb/errors"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/invoicegen"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/testutil"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*Publisher, *testutil.InMemoryPubSub, *config.Configuration) {
	t.Helper()
	cfg := config.GetDefaultConfig()
	ps := testutil.NewInMemoryPubSub()
	return NewPublisher(ps, cfg, logger.NewNoopLogger()), ps, cfg
}

func sampleNotifications() invoicegen.FutureNotifications {
	return invoicegen.FutureNotifications{
		"sub_b": {
			SubscriptionID:    "sub_b",
			NextRecurringDate: lo.ToPtr(types.Date(2024, 2, 1)),
			RecurringMode:     types.BillingModeInAdvance,
			NextUsageDates: map[string]time.Time{
				"storage": types.Date(2024, 3, 1),
				"api":     types.Date(2024, 2, 1),
			},
		},
		"sub_a": {
			SubscriptionID:    "sub_a",
			NextRecurringDate: lo.ToPtr(types.Date(2024, 1, 15)),
			RecurringMode:     types.BillingModeInArrear,
		},
	}
}

func TestMessagesAreOrdered(t *testing.T) {
	msgs := Messages("acc_1", sampleNotifications())
	require.Len(t, msgs, 4)

	assert.Equal(t, "sub_a", msgs[0].SubscriptionID)
	assert.Equal(t, KindRecurring, msgs[0].Kind)
	assert.Equal(t, types.BillingModeInArrear, msgs[0].BillingMode)

	assert.Equal(t, "sub_b", msgs[1].SubscriptionID)
	assert.Equal(t, KindRecurring, msgs[1].Kind)

	assert.Equal(t, KindUsage, msgs[2].Kind)
	assert.Equal(t, "api", msgs[2].UsageName)
	assert.Equal(t, types.BillingModeInArrear, msgs[2].BillingMode)
	assert.Equal(t, "storage", msgs[3].UsageName)

	for _, m := range msgs {
		assert.Equal(t, "acc_1", m.AccountID)
	}
	assert.Empty(t, Messages("acc_1", nil))
}

func TestPublishNextNotifications(t *testing.T) {
	p, ps, cfg := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.PublishNextNotifications(ctx, "acc_1", sampleNotifications()))
	require.NoError(t, p.PublishNextNotifications(ctx, "acc_1", sampleNotifications()))

	msgs := ps.GetMessages(cfg.Notification.Topic)
	require.Len(t, msgs, 8)

	var first NextBilling
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &first))
	assert.Equal(t, "sub_a", first.SubscriptionID)
	assert.Equal(t, "acc_1", msgs[0].Metadata.Get("account_id"))

	// republishing the same dates reuses the message ids
	for i := 0; i < 4; i++ {
		assert.Equal(t, msgs[i].UUID, msgs[i+4].UUID)
	}
	ids := lo.Uniq(lo.Map(msgs[:4], func(m *message.Message, _ int) string { return m.UUID }))
	assert.Len(t, ids, 4)

	require.NoError(t, p.PublishNextNotifications(ctx, "acc_1", nil))
	assert.Len(t, ps.GetMessages(cfg.Notification.Topic), 8)
}

func TestPublishFailureIsSystemError(t *testing.T) {
	p, ps, _ := newTestPublisher(t)
	ps.FailWith(assert.AnError)

	err := p.PublishNextNotifications(context.Background(), "acc_1", sampleNotifications())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ierr.ErrSystem))

	err = p.RequestInvoiceRun(context.Background(), &InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 1, 1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ierr.ErrSystem))
}

func TestRequestInvoiceRun(t *testing.T) {
	p, ps, cfg := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.RequestInvoiceRun(ctx, &InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 1, 1)}))
	require.NoError(t, p.RequestInvoiceRun(ctx, &InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 1, 1)}))
	require.NoError(t, p.RequestInvoiceRun(ctx, &InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 2, 1)}))

	msgs := ps.GetMessages(cfg.BillRun.Topic)
	require.Len(t, msgs, 3)
	assert.Equal(t, msgs[0].UUID, msgs[1].UUID)
	assert.NotEqual(t, msgs[0].UUID, msgs[2].UUID)

	var req InvoiceRunRequest
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &req))
	assert.Equal(t, "acc_1", req.AccountID)
	assert.False(t, req.RequestedAt.IsZero())

	err := p.RequestInvoiceRun(ctx, &InvoiceRunRequest{TargetDate: types.Date(2024, 1, 1)})
	require.Error(t, err)
	assert.True(t, ierr.IsValidation(err))
}
