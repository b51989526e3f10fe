package proration

import (
	"time"

	"github.com/flexprice/invoicer/internal/types"
)

// NumberOfWholePeriods returns how many whole billing periods fit in
// [start, end). Month-based periods count calendar months, day-based periods
// count fixed blocks of days.
func NumberOfWholePeriods(start, end time.Time, period types.BillingPeriod) int {
	if !end.After(start) {
		return 0
	}
	if months := period.NumberOfMonths(); months > 0 {
		return types.MonthsBetween(start, end) / months
	}
	if days := period.NumberOfDays(); days > 0 {
		return types.DaysBetween(start, end) / days
	}
	return 0
}

// AdvanceByNPeriods moves date forward by n billing periods. Month-based
// periods clamp to the end of the month.
func AdvanceByNPeriods(date time.Time, period types.BillingPeriod, n int) time.Time {
	date = types.ToDate(date)
	if months := period.NumberOfMonths(); months > 0 {
		return types.AddClampedDate(date, 0, months*n, 0)
	}
	if days := period.NumberOfDays(); days > 0 {
		return date.AddDate(0, 0, days*n)
	}
	return date
}

// RecedeByNPeriods moves date backward by n billing periods.
func RecedeByNPeriods(date time.Time, period types.BillingPeriod, n int) time.Time {
	return AdvanceByNPeriods(date, period, -n)
}
