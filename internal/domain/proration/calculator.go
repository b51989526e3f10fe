package proration

import (
	"time"

	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
)

// ProrationScale is the number of fractional digits kept on proration
// fractions. Rounding is half-up.
const ProrationScale int32 = 9

// CalculatorType defines the day-count convention of a calculator
type CalculatorType string

const (
	// CalculatorTypeCalendar counts true calendar days
	CalculatorTypeCalendar CalculatorType = "calendar"
	// CalculatorTypeFixedDays counts every month as a fixed number of days
	CalculatorTypeFixedDays CalculatorType = "fixed_days"
)

// Calculator computes proration fractions for partial billing periods.
type Calculator interface {
	Type() CalculatorType

	// DaysBetween returns the day count between two dates under the
	// calculator's convention.
	DaysBetween(start, end time.Time, period types.BillingPeriod) int

	// ProrationBetween returns days(start, end) / days(periodStart, periodEnd).
	ProrationBetween(start, end, periodStart, periodEnd time.Time, period types.BillingPeriod) decimal.Decimal

	// ProrationBeforeFirstBillingPeriod prorates [start, firstBillingCycleDate)
	// against the period ending on the first billing cycle date.
	ProrationBeforeFirstBillingPeriod(start, firstBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal

	// ProrationAfterLastBillingCycleDate prorates [lastBillingCycleDate, end)
	// against the period starting on the last billing cycle date.
	ProrationAfterLastBillingCycleDate(end, lastBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal
}

// NewCalculator returns a fixed-days calculator when fixedDays is positive,
// a calendar calculator otherwise.
func NewCalculator(fixedDays int) Calculator {
	if fixedDays > 0 {
		return &fixedDaysCalculator{fixedDays: fixedDays}
	}
	return &calendarCalculator{}
}

type calendarCalculator struct{}

func (c *calendarCalculator) Type() CalculatorType {
	return CalculatorTypeCalendar
}

func (c *calendarCalculator) DaysBetween(start, end time.Time, _ types.BillingPeriod) int {
	return types.DaysBetween(start, end)
}

func (c *calendarCalculator) ProrationBetween(start, end, periodStart, periodEnd time.Time, period types.BillingPeriod) decimal.Decimal {
	return fraction(c.DaysBetween(start, end, period), c.DaysBetween(periodStart, periodEnd, period))
}

func (c *calendarCalculator) ProrationBeforeFirstBillingPeriod(start, firstBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal {
	previous := RecedeByNPeriods(firstBillingCycleDate, period, 1)
	return c.ProrationBetween(start, firstBillingCycleDate, previous, firstBillingCycleDate, period)
}

func (c *calendarCalculator) ProrationAfterLastBillingCycleDate(end, lastBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal {
	next := AdvanceByNPeriods(lastBillingCycleDate, period, 1)
	return c.ProrationBetween(lastBillingCycleDate, end, lastBillingCycleDate, next, period)
}

// fixedDaysCalculator pretends every month has exactly fixedDays days for
// month-based periods. Day-based periods keep calendar days.
type fixedDaysCalculator struct {
	fixedDays int
}

func (c *fixedDaysCalculator) Type() CalculatorType {
	return CalculatorTypeFixedDays
}

func (c *fixedDaysCalculator) DaysBetween(start, end time.Time, period types.BillingPeriod) int {
	if !period.IsMonthBased() {
		return types.DaysBetween(start, end)
	}
	start, end = types.ToDate(start), types.ToDate(end)

	years := end.Year() - start.Year()
	months := int(end.Month()) - int(start.Month())
	return (years*12+months)*c.fixedDays + c.dayOfMonth(end) - c.dayOfMonth(start)
}

// dayOfMonth caps the day at fixedDays and maps the last day of any month
// to fixedDays, so a whole calendar month always counts fixedDays.
func (c *fixedDaysCalculator) dayOfMonth(t time.Time) int {
	d := t.Day()
	if d == types.LastDayOfMonth(t.Year(), t.Month()) || d > c.fixedDays {
		return c.fixedDays
	}
	return d
}

func (c *fixedDaysCalculator) ProrationBetween(start, end, periodStart, periodEnd time.Time, period types.BillingPeriod) decimal.Decimal {
	total := c.DaysBetween(periodStart, periodEnd, period)
	if months := period.NumberOfMonths(); months > 0 {
		total = c.fixedDays * months
	}
	return fraction(c.DaysBetween(start, end, period), total)
}

func (c *fixedDaysCalculator) ProrationBeforeFirstBillingPeriod(start, firstBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal {
	previous := RecedeByNPeriods(firstBillingCycleDate, period, 1)
	return c.ProrationBetween(start, firstBillingCycleDate, previous, firstBillingCycleDate, period)
}

func (c *fixedDaysCalculator) ProrationAfterLastBillingCycleDate(end, lastBillingCycleDate time.Time, period types.BillingPeriod) decimal.Decimal {
	next := AdvanceByNPeriods(lastBillingCycleDate, period, 1)
	return c.ProrationBetween(lastBillingCycleDate, end, lastBillingCycleDate, next, period)
}

func fraction(days, total int) decimal.Decimal {
	if total <= 0 || days <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(days)).DivRound(decimal.NewFromInt(int64(total)), ProrationScale)
}

// PortionOf returns the share of [outerStart, outerEnd) covered by
// [start, end) under the calculator's day count.
func PortionOf(c Calculator, start, end, outerStart, outerEnd time.Time, period types.BillingPeriod) decimal.Decimal {
	return fraction(c.DaysBetween(start, end, period), c.DaysBetween(outerStart, outerEnd, period))
}
