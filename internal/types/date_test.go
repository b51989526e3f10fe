package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddClampedDate(t *testing.T) {
	tests := []struct {
		name   string
		start  time.Time
		years  int
		months int
		days   int
		want   time.Time
	}{
		{
			name:   "simple month",
			start:  Date(2024, time.March, 10),
			months: 1,
			want:   Date(2024, time.April, 10),
		},
		{
			name:   "jan 31 clamps to leap february",
			start:  Date(2024, time.January, 31),
			months: 1,
			want:   Date(2024, time.February, 29),
		},
		{
			name:   "jan 31 clamps to february",
			start:  Date(2023, time.January, 31),
			months: 1,
			want:   Date(2023, time.February, 28),
		},
		{
			name:   "cross year boundary",
			start:  Date(2024, time.November, 30),
			months: 3,
			want:   Date(2025, time.February, 28),
		},
		{
			name:   "negative months",
			start:  Date(2024, time.March, 31),
			months: -1,
			want:   Date(2024, time.February, 29),
		},
		{
			name:   "negative months across year",
			start:  Date(2024, time.January, 15),
			months: -13,
			want:   Date(2022, time.December, 15),
		},
		{
			name:  "leap day plus one year",
			start: Date(2024, time.February, 29),
			years: 1,
			want:  Date(2025, time.February, 28),
		},
		{
			name:  "days roll over month",
			start: Date(2024, time.March, 31),
			days:  5,
			want:  Date(2024, time.April, 5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddClampedDate(tt.start, tt.years, tt.months, tt.days)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestMonthsBetween(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		want  int
	}{
		{"same day", Date(2024, time.March, 1), Date(2024, time.March, 1), 0},
		{"one month", Date(2024, time.March, 1), Date(2024, time.April, 1), 1},
		{"one day short", Date(2024, time.March, 1), Date(2024, time.March, 31), 0},
		{"end of month clamp", Date(2023, time.January, 31), Date(2023, time.February, 28), 1},
		{"year", Date(2023, time.May, 15), Date(2024, time.May, 15), 12},
		{"reversed", Date(2024, time.April, 1), Date(2024, time.March, 1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthsBetween(tt.start, tt.end))
		})
	}
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 28, DaysBetween(Date(2023, time.February, 1), Date(2023, time.March, 1)))
	assert.Equal(t, 29, DaysBetween(Date(2024, time.February, 1), Date(2024, time.March, 1)))
	assert.Equal(t, 366, DaysBetween(Date(2024, time.January, 1), Date(2025, time.January, 1)))
	// time of day is ignored
	assert.Equal(t, 1, DaysBetween(
		time.Date(2024, time.March, 1, 23, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 2, 1, 0, 0, 0, time.UTC),
	))
}

func TestWithDayOfMonth(t *testing.T) {
	assert.Equal(t, Date(2023, time.February, 28), WithDayOfMonth(Date(2023, time.February, 3), 31))
	assert.Equal(t, Date(2023, time.March, 15), WithDayOfMonth(Date(2023, time.March, 3), 15))
}
