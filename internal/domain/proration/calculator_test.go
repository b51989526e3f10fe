package proration

import (
	"testing"
	"time"

	"github.com/flexprice/invoicer/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNumberOfWholePeriods(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		end    time.Time
		period types.BillingPeriod
		want   int
	}{
		{"three months", types.Date(2023, 1, 1), types.Date(2023, 4, 1), types.BILLING_PERIOD_MONTHLY, 3},
		{"partial month", types.Date(2023, 1, 1), types.Date(2023, 3, 31), types.BILLING_PERIOD_MONTHLY, 2},
		{"clamped month end", types.Date(2023, 1, 31), types.Date(2023, 2, 28), types.BILLING_PERIOD_MONTHLY, 1},
		{"two years", types.Date(2023, 1, 1), types.Date(2025, 1, 1), types.BILLING_PERIOD_ANNUAL, 2},
		{"weeks", types.Date(2023, 1, 1), types.Date(2023, 1, 22), types.BILLING_PERIOD_WEEKLY, 3},
		{"thirty day blocks", types.Date(2023, 1, 1), types.Date(2023, 3, 2), types.BILLING_PERIOD_THIRTY_DAYS, 2},
		{"end before start", types.Date(2023, 3, 1), types.Date(2023, 1, 1), types.BILLING_PERIOD_MONTHLY, 0},
		{"no billing period", types.Date(2023, 1, 1), types.Date(2023, 4, 1), types.BILLING_PERIOD_NONE, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NumberOfWholePeriods(tt.start, tt.end, tt.period))
		})
	}
}

func TestAdvanceAndRecede(t *testing.T) {
	assert.Equal(t, types.Date(2023, 2, 28), AdvanceByNPeriods(types.Date(2023, 1, 31), types.BILLING_PERIOD_MONTHLY, 1))
	assert.Equal(t, types.Date(2024, 1, 31), AdvanceByNPeriods(types.Date(2023, 1, 31), types.BILLING_PERIOD_ANNUAL, 1))
	assert.Equal(t, types.Date(2023, 1, 15), AdvanceByNPeriods(types.Date(2023, 1, 1), types.BILLING_PERIOD_WEEKLY, 2))
	assert.Equal(t, types.Date(2023, 1, 31), AdvanceByNPeriods(types.Date(2023, 1, 1), types.BILLING_PERIOD_THIRTY_DAYS, 1))
	assert.Equal(t, types.Date(2023, 2, 28), RecedeByNPeriods(types.Date(2023, 3, 31), types.BILLING_PERIOD_MONTHLY, 1))
	assert.Equal(t, types.Date(2022, 12, 25), RecedeByNPeriods(types.Date(2023, 1, 1), types.BILLING_PERIOD_WEEKLY, 1))
}

func TestCalendarCalculator(t *testing.T) {
	calc := NewCalculator(0)
	assert.Equal(t, CalculatorTypeCalendar, calc.Type())

	tests := []struct {
		name string
		got  decimal.Decimal
		want string
	}{
		{
			name: "half of february",
			got:  calc.ProrationBetween(types.Date(2023, 2, 1), types.Date(2023, 2, 15), types.Date(2023, 2, 1), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY),
			want: "0.5",
		},
		{
			name: "leading proration",
			got:  calc.ProrationBeforeFirstBillingPeriod(types.Date(2011, 9, 15), types.Date(2011, 10, 1), types.BILLING_PERIOD_MONTHLY),
			want: "0.533333333",
		},
		{
			name: "trailing proration rounds half up",
			got:  calc.ProrationAfterLastBillingCycleDate(types.Date(2011, 10, 10), types.Date(2011, 10, 1), types.BILLING_PERIOD_MONTHLY),
			want: "0.290322581",
		},
		{
			name: "leap february",
			got:  calc.ProrationBetween(types.Date(2024, 2, 15), types.Date(2024, 3, 1), types.Date(2024, 2, 1), types.Date(2024, 3, 1), types.BILLING_PERIOD_MONTHLY),
			want: "0.517241379",
		},
		{
			name: "weekly",
			got:  calc.ProrationBeforeFirstBillingPeriod(types.Date(2023, 1, 5), types.Date(2023, 1, 8), types.BILLING_PERIOD_WEEKLY),
			want: "0.428571429",
		},
		{
			name: "empty range",
			got:  calc.ProrationBetween(types.Date(2023, 2, 1), types.Date(2023, 2, 1), types.Date(2023, 2, 1), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY),
			want: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, decimal.RequireFromString(tt.want).Equal(tt.got), "want %s got %s", tt.want, tt.got)
		})
	}
}

func TestFixedDaysCalculator(t *testing.T) {
	calc := NewCalculator(30)
	assert.Equal(t, CalculatorTypeFixedDays, calc.Type())

	// a clamped calendar month counts as exactly one fixed month
	assert.Equal(t, 30, calc.DaysBetween(types.Date(2023, 1, 31), types.Date(2023, 2, 28), types.BILLING_PERIOD_MONTHLY))
	assert.Equal(t, 30, calc.DaysBetween(types.Date(2023, 2, 1), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY))
	assert.Equal(t, 16, calc.DaysBetween(types.Date(2023, 2, 15), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY))
	// day-based periods keep calendar days
	assert.Equal(t, 7, calc.DaysBetween(types.Date(2023, 3, 28), types.Date(2023, 4, 4), types.BILLING_PERIOD_WEEKLY))

	got := calc.ProrationBetween(types.Date(2023, 2, 15), types.Date(2023, 3, 1), types.Date(2023, 2, 1), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY)
	assert.True(t, decimal.RequireFromString("0.533333333").Equal(got), got.String())

	// february and march prorate identically in fixed-days mode
	feb := calc.ProrationAfterLastBillingCycleDate(types.Date(2023, 2, 16), types.Date(2023, 2, 1), types.BILLING_PERIOD_MONTHLY)
	mar := calc.ProrationAfterLastBillingCycleDate(types.Date(2023, 3, 16), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY)
	assert.True(t, feb.Equal(mar), "feb %s mar %s", feb, mar)
	assert.True(t, decimal.NewFromInt(1).Equal(calc.ProrationBetween(types.Date(2023, 1, 1), types.Date(2024, 1, 1), types.Date(2023, 1, 1), types.Date(2024, 1, 1), types.BILLING_PERIOD_ANNUAL)))
}

func TestPortionOf(t *testing.T) {
	calc := NewCalculator(0)
	got := PortionOf(calc, types.Date(2023, 2, 20), types.Date(2023, 3, 1), types.Date(2023, 2, 15), types.Date(2023, 3, 1), types.BILLING_PERIOD_MONTHLY)
	assert.True(t, decimal.RequireFromString("0.642857143").Equal(got), got.String())
}
