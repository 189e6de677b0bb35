package schedule

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/chamaledger/internal/models"
)

var now = time.Date(2024, time.January, 10, 8, 30, 0, 0, time.UTC)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 8, 30, 0, 0, time.UTC)
}

func TestMonthlyDatesDueDay15(t *testing.T) {
	got := MonthlyDates(now, 15, nil, Options{})
	want := []time.Time{
		date(2024, time.January, 15),
		date(2024, time.February, 15),
		date(2024, time.March, 15),
		date(2024, time.April, 15),
		date(2024, time.May, 15),
		date(2024, time.June, 15),
	}
	require.Len(t, got, 6)
	for i := range want {
		assert.True(t, want[i].Equal(got[i]), "candidate %d = %s, want %s", i, got[i], want[i])
	}
}

func TestMonthlyDatesFiltersPastAndHorizon(t *testing.T) {
	// Day 5 of this month is already past; the sixth offset lands in June,
	// still before the July 10 horizon.
	got := MonthlyDates(now, 5, nil, Options{})
	require.Len(t, got, 5)
	assert.Equal(t, time.February, got[0].Month())
	assert.Equal(t, time.June, got[4].Month())

	// The day itself at the same time is not strictly after now.
	same := MonthlyDates(now, 10, nil, Options{})
	require.Len(t, same, 5)
	assert.Equal(t, time.February, same[0].Month())
}

func TestMonthlyDatesUnsetDay(t *testing.T) {
	assert.Empty(t, MonthlyDates(now, 0, nil, Options{}))
}

func TestMonthlyDatesDayOverflow(t *testing.T) {
	jan31 := time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)

	rolled := MonthlyDates(jan31, 31, nil, Options{DayOverflow: Rollover})
	clamped := MonthlyDates(jan31, 31, nil, Options{DayOverflow: Clamp})

	// Rollover: Feb 31 normalises to Mar 2 in 2024.
	require.GreaterOrEqual(t, len(rolled), 2)
	assert.Equal(t, time.March, rolled[1].Month())
	assert.Equal(t, 2, rolled[1].Day())

	// Clamp: Feb 31 becomes Feb 29 in 2024.
	require.GreaterOrEqual(t, len(clamped), 2)
	assert.Equal(t, time.February, clamped[1].Month())
	assert.Equal(t, 29, clamped[1].Day())
	assert.Len(t, clamped, 6)
}

func TestMonthlyDatesFromMonthEnd(t *testing.T) {
	jan31 := time.Date(2024, time.January, 31, 12, 0, 0, 0, time.UTC)
	date := func(m time.Month, d int) time.Time {
		return time.Date(2024, m, d, 12, 0, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		day  int
		opts Options
		want []time.Time
	}{
		{
			name: "mid-month due day visits every month",
			day:  15,
			want: []time.Time{date(time.February, 15), date(time.March, 15), date(time.April, 15), date(time.May, 15), date(time.June, 15)},
		},
		{
			name: "month-end due day with rollover",
			day:  31,
			opts: Options{DayOverflow: Rollover},
			want: []time.Time{date(time.March, 2), date(time.March, 31), date(time.May, 1), date(time.May, 31), date(time.July, 1)},
		},
		{
			name: "month-end due day with clamp",
			day:  31,
			opts: Options{DayOverflow: Clamp},
			want: []time.Time{date(time.February, 29), date(time.March, 31), date(time.April, 30), date(time.May, 31), date(time.June, 30)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MonthlyDates(jan31, tt.day, nil, tt.opts))
		})
	}
}

func TestMonthlyDatesMeetingTime(t *testing.T) {
	tod := TimeOfDay{Hour: 18, Minute: 45}
	got := MonthlyDates(now, 10, &tod, Options{})
	require.Len(t, got, 6)
	// Today at 18:45 is still ahead of 08:30.
	assert.Equal(t, time.Date(2024, time.January, 10, 18, 45, 0, 0, time.UTC), got[0])
}

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"14:30", TimeOfDay{14, 30}, false},
		{"07:05", TimeOfDay{7, 5}, false},
		{"9:00", TimeOfDay{9, 0}, false},
		{"24:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"12:5", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTimeOfDay(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseTimeOfDay(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLoanEvents(t *testing.T) {
	loans := []models.Loan{{
		ID:      "loan-1",
		GroupID: "g1",
		RepaymentSchedule: []models.Installment{
			{InstallmentNumber: 1, DueDate: now.AddDate(0, 0, -5), TotalAmount: decimal.NewFromInt(100)},
			{InstallmentNumber: 2, DueDate: now.AddDate(0, 0, 5), TotalAmount: decimal.NewFromInt(100), Paid: true},
			{InstallmentNumber: 3, DueDate: now.AddDate(0, 1, 0), TotalAmount: decimal.NewFromInt(100)},
		},
	}}

	events := LoanEvents(loans, now)
	require.Len(t, events, 1)
	assert.Equal(t, EventLoan, events[0].Type)
	assert.Equal(t, "loan-1", events[0].LoanID)
	assert.True(t, events[0].DueDate.Equal(now.AddDate(0, 1, 0)))
}

func TestProjectMergesSortsAndCaps(t *testing.T) {
	group := models.NewGroup("Umoja", models.GroupTypeChama, models.Settings{
		ContributionSchedule: models.ContributionSchedule{Frequency: models.FrequencyMonthly, Amount: decimal.NewFromInt(500), DueDay: 15},
		MeetingSchedule:      models.MeetingSchedule{Frequency: models.FrequencyMonthly, DayOfMonth: 12, Time: "14:00"},
	})
	group.ID = "g1"

	loans := []models.Loan{{
		ID: "loan-1",
		RepaymentSchedule: []models.Installment{
			{InstallmentNumber: 1, DueDate: now.AddDate(0, 0, 1), TotalAmount: decimal.NewFromInt(250)},
		},
	}}

	candidates := Candidates(now, loans, []*models.Group{group}, Options{})
	assert.Len(t, candidates, 13)

	events := Project(now, loans, []*models.Group{group}, Options{})
	require.Len(t, events, MaxEvents)

	wantTypes := []EventType{EventLoan, EventMeeting, EventContribution, EventMeeting, EventContribution}
	for i, want := range wantTypes {
		assert.Equal(t, want, events[i].Type, "event %d", i)
	}
	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].DueDate.Before(events[i-1].DueDate), "events not sorted at %d", i)
	}
}

func TestGroupEventsBadMeetingTimeSkipsMeetings(t *testing.T) {
	group := models.NewGroup("Umoja", models.GroupTypeChama, models.Settings{
		ContributionSchedule: models.ContributionSchedule{DueDay: 15},
		MeetingSchedule:      models.MeetingSchedule{DayOfMonth: 12, Time: "late"},
	})
	events := GroupEvents(group, now, Options{})
	for _, e := range events {
		assert.Equal(t, EventContribution, e.Type)
	}
	assert.Len(t, events, 6)
}

func TestValidateSettings(t *testing.T) {
	assert.NoError(t, ValidateSettings(models.Settings{MeetingSchedule: models.MeetingSchedule{DayOfMonth: 3, Time: "10:00"}}))
	assert.Error(t, ValidateSettings(models.Settings{MeetingSchedule: models.MeetingSchedule{Time: "25:00"}}))
	assert.Error(t, ValidateSettings(models.Settings{ContributionSchedule: models.ContributionSchedule{DueDay: 32}}))
}

func TestParseDayOverflow(t *testing.T) {
	got, err := ParseDayOverflow("Clamp")
	require.NoError(t, err)
	assert.Equal(t, Clamp, got)

	got, err = ParseDayOverflow("")
	require.NoError(t, err)
	assert.Equal(t, Rollover, got)

	_, err = ParseDayOverflow("skip")
	assert.Error(t, err)
}

func TestAddMonths(t *testing.T) {
	jan31 := date(2024, time.January, 31)

	assert.Equal(t, date(2024, time.March, 2), AddMonths(jan31, 1, Options{}))
	assert.Equal(t, date(2024, time.February, 29), AddMonths(jan31, 1, Options{DayOverflow: Clamp}))
	assert.Equal(t, date(2024, time.April, 30), AddMonths(jan31, 3, Options{DayOverflow: Clamp}))
	assert.Equal(t, date(2025, time.January, 10), AddMonths(now, 12, Options{DayOverflow: Clamp}))
}
