package calculator

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)

	defaultSavingsShare = decimal.RequireFromString("0.20")
	defaultLoanCapShare = decimal.RequireFromString("0.30")
	defaultGroupShare   = decimal.RequireFromString("0.80")
)

// CustomSplit is a caller-chosen allocation. The group share is always
// derived as 100 - SavingsPercent - LoanPercent.
type CustomSplit struct {
	SavingsPercent decimal.Decimal `json:"savingsPercent"`
	LoanPercent    decimal.Decimal `json:"loanPercent"`
}

// GroupPercent is the derived share of the general pool.
func (c CustomSplit) GroupPercent() decimal.Decimal {
	return hundred.Sub(c.SavingsPercent).Sub(c.LoanPercent)
}

// Validate rejects percentages outside 0..100 and splits that do not sum to
// exactly 100 with a non-negative group share. Nothing is clamped.
func (c CustomSplit) Validate() error {
	for name, pct := range map[string]decimal.Decimal{
		"savings": c.SavingsPercent,
		"loan":    c.LoanPercent,
	} {
		if pct.IsNegative() || pct.GreaterThan(hundred) {
			return apperr.Validation("%s percent must be between 0 and 100, got %s", name, pct)
		}
	}
	group := c.GroupPercent()
	if group.IsNegative() {
		return apperr.Validation("savings and loan percentages exceed 100 (group share %s)", group)
	}
	if !c.SavingsPercent.Add(c.LoanPercent).Add(group).Equal(hundred) {
		return apperr.Validation("allocation percentages must sum to 100")
	}
	return nil
}

// ActiveLoans returns the loans that still expect repayment, ordered by
// their next due date (loans without one last).
func ActiveLoans(loans []models.Loan, now time.Time) []models.Loan {
	var active []models.Loan
	for _, loan := range loans {
		if loan.IsActive(now) {
			active = append(active, loan)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].NextPaymentDue(now), active[j].NextPaymentDue(now)
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		}
		return a.DueDate.Before(b.DueDate)
	})
	return active
}

// nextDues sums the next installment of each active loan and returns the
// IDs of the loans with a positive amount due.
func nextDues(active []models.Loan, now time.Time) (decimal.Decimal, []string) {
	total := decimal.Zero
	var ids []string
	for i := range active {
		next := active[i].NextPaymentDue(now)
		if next == nil || !next.TotalAmount.IsPositive() {
			continue
		}
		total = total.Add(next.TotalAmount)
		ids = append(ids, active[i].ID)
	}
	return total, ids
}

func loanIDs(active []models.Loan) []string {
	ids := make([]string, len(active))
	for i := range active {
		ids[i] = active[i].ID
	}
	return ids
}

// DefaultAllocation splits total using the default policy: 20% to savings,
// the next loan dues (capped at 30% of total) to the loan account, and the
// remainder to the group pool. Without a positive due the group pool takes 80%.
func DefaultAllocation(total decimal.Decimal, active []models.Loan, now time.Time) ([]models.Allocation, error) {
	if !total.IsPositive() {
		return nil, apperr.Validation("total amount must be positive")
	}

	savings := total.Mul(defaultSavingsShare).Round(2)
	due, ids := nextDues(active, now)

	if !due.IsPositive() {
		return []models.Allocation{
			{Account: models.AccountSavings, Amount: savings},
			{Account: models.AccountGroup, Amount: total.Mul(defaultGroupShare).Round(2)},
		}, nil
	}

	loan := decimal.Min(due, total.Mul(defaultLoanCapShare)).Round(2)
	group := total.Sub(savings).Sub(loan).Round(2)

	return []models.Allocation{
		{Account: models.AccountSavings, Amount: savings},
		{Account: models.AccountLoan, Amount: loan, LoanIDs: ids},
		{Account: models.AccountGroup, Amount: group},
	}, nil
}

// CustomAllocation splits total by caller-chosen percentages. Each amount is
// rounded to cents independently; rounding remainders are not redistributed.
// Zero-amount entries are omitted.
func CustomAllocation(total decimal.Decimal, split CustomSplit, active []models.Loan) ([]models.Allocation, error) {
	if !total.IsPositive() {
		return nil, apperr.Validation("total amount must be positive")
	}
	if err := split.Validate(); err != nil {
		return nil, err
	}
	if split.LoanPercent.IsPositive() && len(active) == 0 {
		return nil, apperr.Validation("loan share requested but member has no active loans")
	}

	share := func(pct decimal.Decimal) decimal.Decimal {
		return total.Mul(pct).Div(hundred).Round(2)
	}

	var out []models.Allocation
	if amount := share(split.SavingsPercent); amount.IsPositive() {
		out = append(out, models.Allocation{Account: models.AccountSavings, Amount: amount})
	}
	if amount := share(split.LoanPercent); amount.IsPositive() {
		out = append(out, models.Allocation{Account: models.AccountLoan, Amount: amount, LoanIDs: loanIDs(active)})
	}
	if amount := share(split.GroupPercent()); amount.IsPositive() {
		out = append(out, models.Allocation{Account: models.AccountGroup, Amount: amount})
	}
	return out, nil
}

// ValidateAllocations checks a client-supplied allocation list against total.
// Only savings, loan and group may receive a contribution, each at most
// once, in whole cents, and the amounts must add up to total exactly: the
// rounding slack of computed splits does not apply to caller input.
func ValidateAllocations(total decimal.Decimal, allocations []models.Allocation) error {
	if !total.IsPositive() {
		return apperr.Validation("total amount must be positive")
	}
	if len(allocations) == 0 {
		return apperr.Validation("at least one allocation is required")
	}

	seen := make(map[models.AccountKind]bool, len(allocations))
	for _, a := range allocations {
		switch a.Account {
		case models.AccountSavings, models.AccountLoan, models.AccountGroup:
		default:
			return apperr.Validation("contributions cannot be allocated to %q", a.Account)
		}
		if seen[a.Account] {
			return apperr.Validation("account %s allocated more than once", a.Account)
		}
		seen[a.Account] = true
		if a.Amount.IsNegative() {
			return apperr.Validation("allocation to %s cannot be negative", a.Account)
		}
		if !a.Amount.Equal(a.Amount.Round(2)) {
			return apperr.Validation("allocation to %s has fractions of a cent", a.Account)
		}
	}

	if sum := SumAllocations(allocations); !sum.Equal(total) {
		return apperr.Validation("allocations sum to %s, expected %s", sum.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// SumAllocations returns the total of all allocation amounts.
func SumAllocations(allocations []models.Allocation) decimal.Decimal {
	sum := decimal.Zero
	for _, a := range allocations {
		sum = sum.Add(a.Amount)
	}
	return sum
}

// ApplyLoanRepayment spreads amount over the targeted loans, earliest due
// installment first. Installments are marked paid once fully covered,
// remaining balances never drop below zero, and a loan reaching zero is
// marked paid. It returns the loans that changed and any unapplied amount.
func ApplyLoanRepayment(loans []models.Loan, amount decimal.Decimal, now time.Time) ([]models.Loan, decimal.Decimal) {
	ordered := ActiveLoans(loans, now)
	remaining := amount
	var changed []models.Loan

	for _, loan := range ordered {
		if !remaining.IsPositive() {
			break
		}
		loan.RepaymentSchedule = append([]models.Installment(nil), loan.RepaymentSchedule...)

		applied := decimal.Min(remaining, loan.RemainingBalance)
		if !applied.IsPositive() {
			continue
		}
		loan.RemainingBalance = loan.RemainingBalance.Sub(applied)
		remaining = remaining.Sub(applied)

		// Mark installments paid in due order while the applied amount covers them.
		budget := applied
		indexes := make([]int, 0, len(loan.RepaymentSchedule))
		for i := range loan.RepaymentSchedule {
			if !loan.RepaymentSchedule[i].Paid {
				indexes = append(indexes, i)
			}
		}
		sort.SliceStable(indexes, func(a, b int) bool {
			return loan.RepaymentSchedule[indexes[a]].DueDate.Before(loan.RepaymentSchedule[indexes[b]].DueDate)
		})
		for _, i := range indexes {
			inst := &loan.RepaymentSchedule[i]
			if budget.LessThan(inst.TotalAmount) {
				break
			}
			budget = budget.Sub(inst.TotalAmount)
			inst.Paid = true
		}

		if loan.RemainingBalance.IsZero() {
			loan.Status = models.LoanPaid
			for i := range loan.RepaymentSchedule {
				loan.RepaymentSchedule[i].Paid = true
			}
		}
		changed = append(changed, loan)
	}
	return changed, remaining
}

// Channel is a single-account submission path.
type Channel string

const (
	ChannelCash        Channel = "cash"
	ChannelMobileMoney Channel = "mobile_money"
	ChannelFund        Channel = "fund"
	ChannelPayMember   Channel = "pay_member"
)

// SingleAccountSubmission is a money movement that bypasses the split
// algorithm and touches exactly one account.
type SingleAccountSubmission struct {
	Channel   Channel
	Amount    decimal.Decimal
	Account   models.AccountKind
	Reference string
	MemberID  string
}

// Validate checks the per-channel required fields.
func (s SingleAccountSubmission) Validate() error {
	if !s.Amount.IsPositive() {
		return apperr.Validation("amount must be positive")
	}
	if s.Account != "" && !s.Account.Valid() {
		return apperr.Validation("unknown account %q", s.Account)
	}

	switch s.Channel {
	case ChannelCash:
		if s.MemberID == "" {
			return apperr.Validation("cash contribution requires a member")
		}
	case ChannelMobileMoney:
		if s.MemberID == "" {
			return apperr.Validation("mobile money contribution requires a member")
		}
		if s.Reference == "" {
			return apperr.Validation("mobile money contribution requires a transaction reference")
		}
	case ChannelFund:
		if s.Account == "" {
			return apperr.Validation("fund requires a target account")
		}
	case ChannelPayMember:
		if s.Account == "" {
			return apperr.Validation("pay member requires a source account")
		}
		if s.MemberID == "" {
			return apperr.Validation("pay member requires a member")
		}
	default:
		return apperr.Validation("unknown channel %q", s.Channel)
	}
	return nil
}

// TargetAccount is the account the submission touches, defaulting
// contributions to the group pool.
func (s SingleAccountSubmission) TargetAccount() models.AccountKind {
	if s.Account == "" {
		return models.AccountGroup
	}
	return s.Account
}
