package types

import (
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/samber/lo"
)

// BillingPeriod is the cadence of recurring charges.
type BillingPeriod string

const (
	BILLING_PERIOD_WEEKLY      BillingPeriod = "WEEKLY"
	BILLING_PERIOD_MONTHLY     BillingPeriod = "MONTHLY"
	BILLING_PERIOD_THIRTY_DAYS BillingPeriod = "THIRTY_DAYS"
	BILLING_PERIOD_ANNUAL      BillingPeriod = "ANNUAL"
	// BILLING_PERIOD_NONE marks plans without a recurring component.
	BILLING_PERIOD_NONE BillingPeriod = "NO_BILLING_PERIOD"
)

func (p BillingPeriod) Validate() error {
	allowed := []BillingPeriod{
		BILLING_PERIOD_WEEKLY,
		BILLING_PERIOD_MONTHLY,
		BILLING_PERIOD_THIRTY_DAYS,
		BILLING_PERIOD_ANNUAL,
		BILLING_PERIOD_NONE,
	}
	if !lo.Contains(allowed, p) {
		return ierr.NewError("invalid billing period").
			WithHint("Please provide a valid billing period").
			WithReportableDetails(map[string]any{
				"allowed":        allowed,
				"billing_period": p,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// NumberOfMonths is the calendar length of month-based periods, 0 otherwise.
func (p BillingPeriod) NumberOfMonths() int {
	switch p {
	case BILLING_PERIOD_MONTHLY:
		return 1
	case BILLING_PERIOD_ANNUAL:
		return 12
	default:
		return 0
	}
}

// NumberOfDays is the fixed length of day-based periods, 0 otherwise.
func (p BillingPeriod) NumberOfDays() int {
	switch p {
	case BILLING_PERIOD_WEEKLY:
		return 7
	case BILLING_PERIOD_THIRTY_DAYS:
		return 30
	default:
		return 0
	}
}

func (p BillingPeriod) IsMonthBased() bool {
	return p.NumberOfMonths() > 0
}

func (p BillingPeriod) IsRecurring() bool {
	return p != BILLING_PERIOD_NONE && p != ""
}

// BillingMode represents when a subscription is billed relative to the
// service period.
type BillingMode string

const (
	BillingModeInAdvance BillingMode = "IN_ADVANCE"
	BillingModeInArrear  BillingMode = "IN_ARREAR"
)

func (b BillingMode) Validate() error {
	allowed := []BillingMode{
		BillingModeInAdvance,
		BillingModeInArrear,
	}
	if !lo.Contains(allowed, b) {
		return ierr.NewError("invalid billing mode").
			WithHint("Billing mode must be IN_ADVANCE or IN_ARREAR").
			WithReportableDetails(map[string]any{
				"allowed":      allowed,
				"billing_mode": b,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// TransitionType is the kind of subscription change a billing event records.
type TransitionType string

const (
	TransitionTypeCreate TransitionType = "CREATE"
	TransitionTypeChange TransitionType = "CHANGE"
	TransitionTypeCancel TransitionType = "CANCEL"
	TransitionTypePhase  TransitionType = "PHASE"
	TransitionTypePause  TransitionType = "PAUSE"
	TransitionTypeResume TransitionType = "RESUME"
)

func (t TransitionType) Validate() error {
	allowed := []TransitionType{
		TransitionTypeCreate,
		TransitionTypeChange,
		TransitionTypeCancel,
		TransitionTypePhase,
		TransitionTypePause,
		TransitionTypeResume,
	}
	if !lo.Contains(allowed, t) {
		return ierr.NewError("invalid transition type").
			WithHint("Please provide a valid transition type").
			WithReportableDetails(map[string]any{
				"allowed":         allowed,
				"transition_type": t,
			}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// StopsBilling reports whether the transition ends the billable window of
// the subscription until a later event reopens it.
func (t TransitionType) StopsBilling() bool {
	return t == TransitionTypeCancel || t == TransitionTypePause
}
