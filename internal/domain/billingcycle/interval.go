package billingcycle

import (
	"time"

	"github.com/flexprice/invoicer/internal/domain/proration"
	ierr "github.com/flexprice/invoicer/internal/errors"
	"github.com/flexprice/invoicer/internal/types"
)

// Params describes one billable window of a subscription.
type Params struct {
	StartDate    time.Time
	EndDate      *time.Time // nil means open ended
	TargetDate   time.Time
	BillCycleDay int
	Period       types.BillingPeriod
	Mode         types.BillingMode
	// Greedy makes IN_ARREAR bill every completed period since start instead
	// of only the most recent one.
	Greedy bool
}

// Interval holds the billing cycle boundaries of a window as of a target date.
type Interval struct {
	params Params

	firstBCD      time.Time
	lastBCD       time.Time
	nextBCD       time.Time
	billableStart time.Time
	effectiveEnd  *time.Time
	// index of lastBCD in the boundary lattice, -1 when the effective end
	// precedes the first billing cycle date
	lastIndex int
}

// New computes the interval. EndDate before StartDate and TargetDate before
// StartDate are usage errors.
func New(p Params) (*Interval, error) {
	p.StartDate = types.ToDate(p.StartDate)
	p.TargetDate = types.ToDate(p.TargetDate)
	if p.EndDate != nil {
		end := types.ToDate(*p.EndDate)
		p.EndDate = &end
	}

	if err := validate(p); err != nil {
		return nil, err
	}

	i := &Interval{params: p}
	i.firstBCD = i.computeFirstBillingCycleDate()
	i.computeEffectiveEndDate()
	i.computeLastBillingCycleDate()
	i.computeBillableStartDate()
	return i, nil
}

func validate(p Params) error {
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return ierr.NewError("end date before start date").
			WithHintf("End date %s is before start date %s", p.EndDate.Format(time.DateOnly), p.StartDate.Format(time.DateOnly)).
			Mark(ierr.ErrInvalidDateSequence)
	}
	if p.TargetDate.Before(p.StartDate) {
		return ierr.NewError("target date before start date").
			WithHintf("Target date %s is before start date %s", p.TargetDate.Format(time.DateOnly), p.StartDate.Format(time.DateOnly)).
			Mark(ierr.ErrInvalidDateSequence)
	}
	if p.BillCycleDay < 1 || p.BillCycleDay > 31 {
		return ierr.NewError("invalid bill cycle day").
			WithHint("Bill cycle day must be between 1 and 31").
			WithReportableDetails(map[string]any{
				"bill_cycle_day": p.BillCycleDay,
			}).
			Mark(ierr.ErrValidation)
	}
	if !p.Period.IsRecurring() {
		return ierr.NewError("billing period has no cycle").
			WithHintf("Billing period %s cannot be split into cycles", p.Period).
			Mark(ierr.ErrValidation)
	}
	if err := p.Period.Validate(); err != nil {
		return err
	}
	return p.Mode.Validate()
}

func (i *Interval) FirstBillingCycleDate() time.Time { return i.firstBCD }

func (i *Interval) LastBillingCycleDate() time.Time { return i.lastBCD }

func (i *Interval) NextBillingCycleDate() time.Time { return i.nextBCD }

// BillableStartDate is where billing starts. It is the start date except for
// non-greedy IN_ARREAR windows, which only bill the latest completed period.
func (i *Interval) BillableStartDate() time.Time { return i.billableStart }

// EffectiveEndDate is where billing stops as of the target date, nil when
// nothing can be billed yet.
func (i *Interval) EffectiveEndDate() *time.Time { return i.effectiveEnd }

func (i *Interval) HasSomethingToBill() bool {
	return i.effectiveEnd != nil && i.effectiveEnd.After(i.billableStart)
}

// WholePeriods is the number of complete periods between the first and the
// last billing cycle date.
func (i *Interval) WholePeriods() int {
	if i.lastIndex < 0 {
		return 0
	}
	return i.lastIndex
}

// FutureBillingDateFor returns the n-th billing cycle date, the first one
// being n=0. Negative n walks backwards.
func (i *Interval) FutureBillingDateFor(n int) time.Time {
	p := i.params
	if months := p.Period.NumberOfMonths(); months > 0 {
		firstOfMonth := time.Date(i.firstBCD.Year(), i.firstBCD.Month(), 1, 0, 0, 0, 0, time.UTC)
		return types.WithDayOfMonth(types.AddClampedDate(firstOfMonth, 0, months*n, 0), p.BillCycleDay)
	}
	return proration.AdvanceByNPeriods(i.firstBCD, p.Period, n)
}

func (i *Interval) align(t time.Time) time.Time {
	if i.params.Period.IsMonthBased() {
		return types.WithDayOfMonth(t, i.params.BillCycleDay)
	}
	return t
}

func (i *Interval) computeFirstBillingCycleDate() time.Time {
	p := i.params
	proposed := types.WithDayOfMonth(p.StartDate, p.BillCycleDay)
	for proposed.Before(p.StartDate) {
		proposed = i.align(proration.AdvanceByNPeriods(proposed, p.Period, 1))
	}
	if !p.Period.IsMonthBased() {
		// day-based lattices are anchored on the bill cycle day of the start
		// month; step back to the first point on or after start
		for {
			previous := proration.RecedeByNPeriods(proposed, p.Period, 1)
			if previous.Before(p.StartDate) {
				break
			}
			proposed = previous
		}
	}
	return proposed
}

// lastIndexOnOrBefore returns the largest n >= 0 whose boundary is on or
// before date, or -1 when the first boundary is already after it.
func (i *Interval) lastIndexOnOrBefore(date time.Time) int {
	if date.Before(i.firstBCD) {
		return -1
	}
	n := proration.NumberOfWholePeriods(i.firstBCD, date, i.params.Period)
	for n > 0 && i.FutureBillingDateFor(n).After(date) {
		n--
	}
	for !i.FutureBillingDateFor(n + 1).After(date) {
		n++
	}
	return n
}

func (i *Interval) computeEffectiveEndDate() {
	p := i.params

	if p.EndDate != nil && !p.TargetDate.Before(*p.EndDate) {
		end := *p.EndDate
		i.effectiveEnd = &end
		return
	}

	var proposed time.Time
	switch p.Mode {
	case types.BillingModeInAdvance:
		if p.TargetDate.Before(i.firstBCD) {
			// the leading partial period is billed up front
			proposed = i.firstBCD
		} else {
			proposed = i.FutureBillingDateFor(i.lastIndexOnOrBefore(p.TargetDate) + 1)
		}
	default:
		if p.TargetDate.Before(i.firstBCD) {
			return
		}
		proposed = i.FutureBillingDateFor(i.lastIndexOnOrBefore(p.TargetDate))
	}

	if p.EndDate != nil && p.EndDate.Before(proposed) {
		proposed = *p.EndDate
	}
	i.effectiveEnd = &proposed
}

func (i *Interval) computeLastBillingCycleDate() {
	if i.effectiveEnd == nil {
		i.lastIndex = -1
		i.lastBCD = i.firstBCD
		i.nextBCD = i.firstBCD
		return
	}

	i.lastIndex = i.lastIndexOnOrBefore(*i.effectiveEnd)
	if i.lastIndex < 0 {
		i.lastBCD = i.firstBCD
		i.nextBCD = i.firstBCD
		return
	}
	i.lastBCD = i.FutureBillingDateFor(i.lastIndex)
	i.nextBCD = i.FutureBillingDateFor(i.lastIndex + 1)
}

func (i *Interval) computeBillableStartDate() {
	p := i.params
	i.billableStart = p.StartDate
	if p.Mode != types.BillingModeInArrear || p.Greedy {
		return
	}

	// most recently completed period as of the target date
	k := i.lastIndexOnOrBefore(p.TargetDate)
	if k < 1 {
		return
	}
	i.billableStart = types.MaxDate(p.StartDate, i.FutureBillingDateFor(k-1))
}
