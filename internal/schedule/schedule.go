// Package schedule projects recurring group obligations (contribution due
// dates, meetings) and loan installments into one bounded, sorted timeline
// of upcoming events for a member.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/models"
)

const (
	// candidateMonths is how many month offsets (0..n-1) are tried per recurrence.
	candidateMonths = 6

	// horizonMonths bounds projected dates to strictly before now + horizon.
	horizonMonths = 6

	// MaxEvents caps the merged timeline.
	MaxEvents = 5
)

// EventType identifies the source of an upcoming event.
type EventType string

const (
	EventLoan         EventType = "loan"
	EventContribution EventType = "contribution"
	EventMeeting      EventType = "meeting"
)

// Event is one upcoming obligation.
type Event struct {
	Type      EventType       `json:"type"`
	GroupID   string          `json:"groupId,omitempty"`
	GroupName string          `json:"groupName,omitempty"`
	LoanID    string          `json:"loanId,omitempty"`
	DueDate   time.Time       `json:"dueDate"`
	Amount    decimal.Decimal `json:"amount"`
}

// DayOverflow decides what happens when the configured day does not exist
// in a month (e.g. day 31 in February).
type DayOverflow int

const (
	// Rollover lets the date spill into the following month, the way
	// time.Date normalises out-of-range days.
	Rollover DayOverflow = iota

	// Clamp pins the date to the last day of the month.
	Clamp
)

// ParseDayOverflow parses "rollover" or "clamp".
func ParseDayOverflow(s string) (DayOverflow, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rollover":
		return Rollover, nil
	case "clamp":
		return Clamp, nil
	}
	return Rollover, fmt.Errorf("unknown day overflow policy %q", s)
}

// String returns the policy name.
func (o DayOverflow) String() string {
	if o == Clamp {
		return "clamp"
	}
	return "rollover"
}

// Options tunes projection.
type Options struct {
	DayOverflow DayOverflow
}

// TimeOfDay is an hour and minute parsed from "HH:MM".
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses a 24-hour "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("invalid minute in %q", s)
	}
	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ValidateSettings checks the schedule fields projection relies on.
func ValidateSettings(s models.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if s.MeetingSchedule.Time != "" {
		if _, err := ParseTimeOfDay(s.MeetingSchedule.Time); err != nil {
			return fmt.Errorf("meeting schedule: %w", err)
		}
	}
	return nil
}

// MonthlyDates returns the candidate dates for a monthly recurrence on day
// of month `day`: for each offset 0..5 from now's month, the date on that day
// (keeping now's time of day unless tod is given), filtered to
// now < date < now+6 months. A zero day yields no dates.
func MonthlyDates(now time.Time, day int, tod *TimeOfDay, opts Options) []time.Time {
	if day <= 0 {
		return nil
	}

	horizon := now.AddDate(0, horizonMonths, 0)
	hour, minute, sec, nsec := now.Hour(), now.Minute(), now.Second(), now.Nanosecond()
	if tod != nil {
		hour, minute, sec, nsec = tod.Hour, tod.Minute, 0, 0
	}

	var dates []time.Time
	for offset := 0; offset < candidateMonths; offset++ {
		first := time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
		year, month := first.Year(), first.Month()
		dom := day
		if opts.DayOverflow == Clamp {
			if last := daysIn(year, month, now.Location()); dom > last {
				dom = last
			}
		}

		candidate := time.Date(year, month, dom, hour, minute, sec, nsec, now.Location())
		if candidate.After(now) && candidate.Before(horizon) {
			dates = append(dates, candidate)
		}
	}
	return dates
}

// AddMonths moves t forward by n months keeping its day and time of day.
// A day missing from the target month follows the overflow policy.
func AddMonths(t time.Time, n int, opts Options) time.Time {
	if opts.DayOverflow == Clamp {
		first := time.Date(t.Year(), t.Month()+time.Month(n), 1, 0, 0, 0, 0, t.Location())
		day := t.Day()
		if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
			day = last
		}
		return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return t.AddDate(0, n, 0)
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}

// LoanEvents returns one event per unpaid installment due after now.
func LoanEvents(loans []models.Loan, now time.Time) []Event {
	var events []Event
	for _, loan := range loans {
		for _, inst := range loan.RepaymentSchedule {
			if inst.Paid || !inst.DueDate.After(now) {
				continue
			}
			events = append(events, Event{
				Type:    EventLoan,
				GroupID: loan.GroupID,
				LoanID:  loan.ID,
				DueDate: inst.DueDate,
				Amount:  inst.TotalAmount,
			})
		}
	}
	return events
}

// GroupEvents projects contribution and meeting dates for one group.
// An unparseable meeting time skips the meeting recurrence.
func GroupEvents(group *models.Group, now time.Time, opts Options) []Event {
	var events []Event

	contribution := group.Settings.ContributionSchedule
	for _, date := range MonthlyDates(now, contribution.DueDay, nil, opts) {
		events = append(events, Event{
			Type:      EventContribution,
			GroupID:   group.ID,
			GroupName: group.Name,
			DueDate:   date,
			Amount:    contribution.Amount,
		})
	}

	meeting := group.Settings.MeetingSchedule
	var tod *TimeOfDay
	if meeting.Time != "" {
		parsed, err := ParseTimeOfDay(meeting.Time)
		if err != nil {
			return events
		}
		tod = &parsed
	}
	for _, date := range MonthlyDates(now, meeting.DayOfMonth, tod, opts) {
		events = append(events, Event{
			Type:      EventMeeting,
			GroupID:   group.ID,
			GroupName: group.Name,
			DueDate:   date,
			Amount:    decimal.Zero,
		})
	}
	return events
}

// Candidates returns every projected event, sorted by due date, before the
// MaxEvents cap is applied.
func Candidates(now time.Time, loans []models.Loan, groups []*models.Group, opts Options) []Event {
	events := LoanEvents(loans, now)
	for _, group := range groups {
		events = append(events, GroupEvents(group, now, opts)...)
	}
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].DueDate.Before(events[j].DueDate)
	})
	return events
}

// Project returns the member's upcoming events: loan installments and group
// recurrences merged, sorted ascending by due date and capped at MaxEvents.
func Project(now time.Time, loans []models.Loan, groups []*models.Group, opts Options) []Event {
	events := Candidates(now, loans, groups, opts)
	if len(events) > MaxEvents {
		events = events[:MaxEvents]
	}
	return events
}
