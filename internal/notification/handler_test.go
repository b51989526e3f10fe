package notification

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/flexprice/invoicer/internal/config"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/logger"
	"github.com/flexprice/invoicer/internal/sentry"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	err   error
	calls []InvoiceRunRequest
}

func (r *recordingRunner) RunInvoice(ctx context.Context, accountID string, targetDate time.Time) error {
	r.calls = append(r.calls, InvoiceRunRequest{AccountID: accountID, TargetDate: targetDate})
	return r.err
}

func newTestHandler(runner Runner) *InvoiceRunHandler {
	log := logger.NewNoopLogger()
	return NewInvoiceRunHandler(runner, sentry.NewSentryService(config.GetDefaultConfig(), log), log)
}

func runRequestMessage(t *testing.T, req InvoiceRunRequest) *message.Message {
	t.Helper()
	payload, err := json.Marshal(req)
	require.NoError(t, err)
	return message.NewMessage("msg_1", payload)
}

func TestInvoiceRunHandler(t *testing.T) {
	failure := ierr.NewError("connection reset").Mark(ierr.ErrDatabase)

	tests := []struct {
		name      string
		msg       func(t *testing.T) *message.Message
		runErr    error
		wantCalls int
		checkFn   func(error) bool
	}{
		{
			name: "runs the requested pass",
			msg: func(t *testing.T) *message.Message {
				return runRequestMessage(t, InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 1, 1)})
			},
			wantCalls: 1,
		},
		{
			name: "malformed payload",
			msg: func(t *testing.T) *message.Message {
				return message.NewMessage("msg_1", []byte("not json"))
			},
			checkFn: ierr.IsValidation,
		},
		{
			name: "missing account",
			msg: func(t *testing.T) *message.Message {
				return runRequestMessage(t, InvoiceRunRequest{TargetDate: types.Date(2024, 1, 1)})
			},
			checkFn: ierr.IsValidation,
		},
		{
			name: "runner failure is returned for redelivery",
			msg: func(t *testing.T) *message.Message {
				return runRequestMessage(t, InvoiceRunRequest{AccountID: "acc_1", TargetDate: types.Date(2024, 1, 1)})
			},
			runErr:    failure,
			wantCalls: 1,
			checkFn:   ierr.IsRetryable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &recordingRunner{err: tt.runErr}
			err := newTestHandler(runner).Handle(tt.msg(t))

			assert.Len(t, runner.calls, tt.wantCalls)
			if tt.checkFn == nil {
				require.NoError(t, err)
				assert.Equal(t, "acc_1", runner.calls[0].AccountID)
				assert.True(t, types.Date(2024, 1, 1).Equal(runner.calls[0].TargetDate))
				return
			}
			require.Error(t, err)
			assert.True(t, tt.checkFn(err))
		})
	}
}
