package billing

import (
	"sort"
	"time"

	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Event is an immutable subscription change bounding a service period.
// Events are ordered by SequenceNumber, never by wall clock.
type Event struct {
	SubscriptionID    string               `json:"subscription_id" db:"subscription_id"`
	BundleID          string               `json:"bundle_id" db:"bundle_id"`
	AccountID         string               `json:"account_id" db:"account_id"`
	EffectiveDate     time.Time            `json:"effective_date" db:"effective_date"`
	PlanName          string               `json:"plan_name" db:"plan_name"`
	PhaseName         string               `json:"phase_name" db:"phase_name"`
	FixedPrice        *decimal.Decimal     `json:"fixed_price,omitempty" db:"fixed_price"`
	RecurringPrice    *decimal.Decimal     `json:"recurring_price,omitempty" db:"recurring_price"`
	Currency          string               `json:"currency" db:"currency"`
	BillingPeriod     types.BillingPeriod  `json:"billing_period" db:"billing_period"`
	BillCycleDayLocal int                  `json:"bill_cycle_day_local" db:"bill_cycle_day_local"`
	BillingMode       types.BillingMode    `json:"billing_mode" db:"billing_mode"`
	TransitionType    types.TransitionType `json:"transition_type" db:"transition_type"`
	SequenceNumber    int64                `json:"sequence_number" db:"sequence_number"`
	Usages            []UsageDefinition    `json:"usages,omitempty" db:"-"`
}

func (e *Event) Validate() error {
	if e.SubscriptionID == "" {
		return ierr.NewError("subscription_id is required").
			WithHint("Billing events must reference a subscription").
			Mark(ierr.ErrValidation)
	}
	if e.Currency == "" {
		return ierr.NewError("currency is required").
			WithHint("Billing events must carry a currency").
			WithReportableDetails(map[string]any{
				"subscription_id": e.SubscriptionID,
				"sequence_number": e.SequenceNumber,
			}).
			Mark(ierr.ErrValidation)
	}
	if err := e.TransitionType.Validate(); err != nil {
		return err
	}
	if err := e.BillingPeriod.Validate(); err != nil {
		return err
	}
	if err := e.BillingMode.Validate(); err != nil {
		return err
	}
	if e.BillCycleDayLocal < 1 || e.BillCycleDayLocal > 31 {
		return ierr.NewError("invalid bill cycle day").
			WithHint("Bill cycle day must be between 1 and 31").
			WithReportableDetails(map[string]any{
				"subscription_id": e.SubscriptionID,
				"bill_cycle_day":  e.BillCycleDayLocal,
			}).
			Mark(ierr.ErrValidation)
	}
	for _, u := range e.Usages {
		if err := u.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Day returns the effective date truncated to the day.
func (e *Event) Day() time.Time {
	return types.ToDate(e.EffectiveDate)
}

// BillsRecurring reports whether the event opens a recurring window.
func (e *Event) BillsRecurring() bool {
	return !e.TransitionType.StopsBilling() &&
		e.RecurringPrice != nil &&
		e.BillingPeriod.IsRecurring()
}

// SubscriptionDetails returns the catalog identifiers stamped on generated items.
func (e *Event) SubscriptionDetails() (string, string, string, string) {
	return e.SubscriptionID, e.BundleID, e.PlanName, e.PhaseName
}

// EventSet is an account's billing events ordered by subscription and
// sequence number.
type EventSet []*Event

// NewEventSet copies and sorts the events.
func NewEventSet(events []*Event) EventSet {
	set := make(EventSet, len(events))
	copy(set, events)
	sort.SliceStable(set, func(i, j int) bool {
		if set[i].SubscriptionID != set[j].SubscriptionID {
			return set[i].SubscriptionID < set[j].SubscriptionID
		}
		return set[i].SequenceNumber < set[j].SequenceNumber
	})
	return set
}

func (s EventSet) IsEmpty() bool {
	return len(s) == 0
}

func (s EventSet) Validate() error {
	for _, e := range s {
		if err := e.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SubscriptionIDs returns the subscriptions in order of first appearance.
func (s EventSet) SubscriptionIDs() []string {
	return lo.Uniq(lo.Map(s, func(e *Event, _ int) string {
		return e.SubscriptionID
	}))
}

// BySubscription groups the events per subscription keeping their order.
func (s EventSet) BySubscription() map[string][]*Event {
	return lo.GroupBy([]*Event(s), func(e *Event) string {
		return e.SubscriptionID
	})
}

// Without drops the events of the given subscriptions.
func (s EventSet) Without(subscriptionIDs map[string]bool) EventSet {
	if len(subscriptionIDs) == 0 {
		return s
	}
	return lo.Filter(s, func(e *Event, _ int) bool {
		return !subscriptionIDs[e.SubscriptionID]
	})
}

// FirstEffectiveDate returns the earliest effective date of the set.
func (s EventSet) FirstEffectiveDate() (time.Time, bool) {
	if len(s) == 0 {
		return time.Time{}, false
	}
	first := s[0].Day()
	for _, e := range s[1:] {
		first = types.MinDate(first, e.Day())
	}
	return first, true
}
