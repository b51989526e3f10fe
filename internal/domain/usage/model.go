package usage

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawUsage is one metered record reported for a subscription.
type RawUsage struct {
	// TrackingID deduplicates records re-sent by the producer
	TrackingID string `json:"tracking_id" ch:"tracking_id"`

	AccountID      string          `json:"account_id" ch:"account_id"`
	SubscriptionID string          `json:"subscription_id" ch:"subscription_id"`
	UnitType       string          `json:"unit_type" ch:"unit_type"`
	RecordDate     time.Time       `json:"record_date" ch:"record_date,timezone('UTC')"`
	Amount         decimal.Decimal `json:"amount" ch:"amount"`

	// IngestedAt is set by the database
	IngestedAt time.Time `json:"ingested_at" ch:"ingested_at,timezone('UTC')"`
}

// Window bounds the raw usage fetched for a pass, [StartDate, EndDate).
type Window struct {
	AccountID       string    `validate:"required"`
	SubscriptionIDs []string  `validate:"required,min=1"`
	StartDate       time.Time `validate:"required"`
	EndDate         time.Time `validate:"required,gtfield=StartDate"`
}
