package types

import (
	"time"
)

// ToDate truncates t to midnight UTC of its calendar day. Billing arithmetic
// works on dates only.
func ToDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Date is a shorthand for a UTC midnight date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// LastDayOfMonth returns the number of days in the given month.
func LastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// AddClampedDate moves t by the given number of years and months, clamping the
// day to the last day of the resulting month, then adds days.
// Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
func AddClampedDate(t time.Time, years, months, days int) time.Time {
	y, m, d := t.Date()
	h, min, sec := t.Clock()

	total := int(m) - 1 + months + years*12
	newY := y + total/12
	newM := total % 12
	if newM < 0 {
		newM += 12
		newY--
	}
	month := time.Month(newM + 1)

	if last := LastDayOfMonth(newY, month); d > last {
		d = last
	}

	out := time.Date(newY, month, d, h, min, sec, t.Nanosecond(), t.Location())
	if days != 0 {
		out = out.AddDate(0, 0, days)
	}
	return out
}

// WithDayOfMonth returns the date in the same month as t on the given day,
// clamped to the month's last day.
func WithDayOfMonth(t time.Time, day int) time.Time {
	y, m, _ := t.Date()
	if last := LastDayOfMonth(y, m); day > last {
		day = last
	}
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from start to end.
func DaysBetween(start, end time.Time) int {
	return int(ToDate(end).Sub(ToDate(start)).Hours() / 24)
}

// MonthsBetween returns the number of whole calendar months from start to
// end using clamped month arithmetic.
func MonthsBetween(start, end time.Time) int {
	start, end = ToDate(start), ToDate(end)
	if end.Before(start) {
		return -MonthsBetween(end, start)
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	for months > 0 && AddClampedDate(start, 0, months, 0).After(end) {
		months--
	}
	return months
}

// MaxDate returns the latest of the given dates.
func MaxDate(first time.Time, rest ...time.Time) time.Time {
	out := first
	for _, t := range rest {
		if t.After(out) {
			out = t
		}
	}
	return out
}

// MinDate returns the earliest of the given dates.
func MinDate(first time.Time, rest ...time.Time) time.Time {
	out := first
	for _, t := range rest {
		if t.Before(out) {
			out = t
		}
	}
	return out
}
