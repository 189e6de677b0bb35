package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Frequency is how often a recurring obligation occurs.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// ContributionSchedule describes the recurring member contribution.
type ContributionSchedule struct {
	Frequency Frequency       `json:"frequency"`
	Amount    decimal.Decimal `json:"amount"`

	// DueDay is the day of month contributions fall due. Zero means unset.
	DueDay int `json:"dueDay,omitempty"`
}

// MonthlyTarget converts the scheduled amount to a per-month figure.
func (c ContributionSchedule) MonthlyTarget() decimal.Decimal {
	switch c.Frequency {
	case FrequencyDaily:
		return c.Amount.Mul(decimal.NewFromInt(30))
	case FrequencyWeekly:
		return c.Amount.Mul(decimal.NewFromInt(4))
	default:
		return c.Amount
	}
}

// LoanSettings configures lending in a group.
type LoanSettings struct {
	MaxLoanMultiplier  decimal.Decimal `json:"maxLoanMultiplier"`
	InterestRate       decimal.Decimal `json:"interestRate"`
	MaxRepaymentPeriod int             `json:"maxRepaymentPeriod"` // months
	LatePaymentFee     decimal.Decimal `json:"latePaymentFee"`
	ProcessingFee      decimal.Decimal `json:"processingFee"`
	RequiresGuarantors bool            `json:"requiresGuarantors"`
	GuarantorsRequired int             `json:"guarantorsRequired"`
}

// MeetingSchedule describes the recurring group meeting.
type MeetingSchedule struct {
	Frequency Frequency `json:"frequency"`

	// DayOfMonth is the meeting day. Zero means unset.
	DayOfMonth int `json:"dayOfMonth,omitempty"`

	// Time is the meeting time of day as "HH:MM".
	Time string `json:"time,omitempty"`
}

// Settings groups every configurable schedule of a group.
type Settings struct {
	ContributionSchedule ContributionSchedule `json:"contributionSchedule"`
	LoanSettings         LoanSettings         `json:"loanSettings"`
	MeetingSchedule      MeetingSchedule      `json:"meetingSchedule"`
}

// Validate checks ranges that later computations depend on. The meeting
// time format is checked by the schedule package.
func (s Settings) Validate() error {
	if d := s.ContributionSchedule.DueDay; d < 0 || d > 31 {
		return fmt.Errorf("contribution due day must be between 1 and 31, got %d", d)
	}
	if d := s.MeetingSchedule.DayOfMonth; d < 0 || d > 31 {
		return fmt.Errorf("meeting day of month must be between 1 and 31, got %d", d)
	}
	if s.ContributionSchedule.Amount.IsNegative() {
		return fmt.Errorf("contribution amount cannot be negative")
	}
	if s.LoanSettings.InterestRate.IsNegative() {
		return fmt.Errorf("interest rate cannot be negative")
	}
	if s.LoanSettings.MaxRepaymentPeriod < 0 {
		return fmt.Errorf("max repayment period cannot be negative")
	}
	if s.LoanSettings.RequiresGuarantors && s.LoanSettings.GuarantorsRequired < 1 {
		return fmt.Errorf("guarantors required must be at least 1 when guarantors are required")
	}
	return nil
}
