package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LoanStatus is the lifecycle state of a loan.
type LoanStatus string

const (
	LoanPending   LoanStatus = "pending"
	LoanApproved  LoanStatus = "approved"
	LoanDisbursed LoanStatus = "disbursed"
	LoanActive    LoanStatus = "active"
	LoanRejected  LoanStatus = "rejected"
	LoanPaid      LoanStatus = "paid"
	LoanClosed    LoanStatus = "closed"
)

// Installment is one scheduled repayment unit.
type Installment struct {
	InstallmentNumber int             `json:"installmentNumber"`
	DueDate           time.Time       `json:"dueDate"`
	TotalAmount       decimal.Decimal `json:"totalAmount"`
	Paid              bool            `json:"paid"`
}

// Guarantor is a member vouching for a loan.
type Guarantor struct {
	UserID   string `json:"userId"`
	Approved bool   `json:"approved"`
}

// Loan is money lent by the group to one member.
type Loan struct {
	ID                string          `json:"id"`
	GroupID           string          `json:"groupId"`
	MemberID          string          `json:"memberId"`
	PrincipalAmount   decimal.Decimal `json:"principalAmount"`
	InterestRate      decimal.Decimal `json:"interestRate"`
	Status            LoanStatus      `json:"status"`
	RemainingBalance  decimal.Decimal `json:"remainingBalance"`
	RepaymentSchedule []Installment   `json:"repaymentSchedule"`
	Guarantors        []Guarantor     `json:"guarantors,omitempty"`

	// CreatedAt is the Unix timestamp when the loan was recorded.
	CreatedAt int64 `json:"createdAt"`
}

// NextPaymentDue returns the earliest unpaid installment due strictly after now,
// or nil if there is none.
func (l *Loan) NextPaymentDue(now time.Time) *Installment {
	var next *Installment
	for i := range l.RepaymentSchedule {
		inst := &l.RepaymentSchedule[i]
		if inst.Paid || !inst.DueDate.After(now) {
			continue
		}
		if next == nil || inst.DueDate.Before(next.DueDate) {
			next = inst
		}
	}
	return next
}

// IsActive reports whether the loan still expects repayments: it is neither
// paid nor closed, and it either has a remaining balance or a positive
// installment coming due.
func (l *Loan) IsActive(now time.Time) bool {
	if l.Status == LoanPaid || l.Status == LoanClosed {
		return false
	}
	if l.RemainingBalance.IsPositive() {
		return true
	}
	next := l.NextPaymentDue(now)
	return next != nil && next.TotalAmount.IsPositive()
}
