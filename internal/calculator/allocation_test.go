package calculator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
)

var testNow = time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func loanWithDue(id string, due string, remaining string) models.Loan {
	return models.Loan{
		ID:               id,
		Status:           models.LoanActive,
		RemainingBalance: d(remaining),
		RepaymentSchedule: []models.Installment{
			{InstallmentNumber: 1, DueDate: testNow.AddDate(0, 0, -20), TotalAmount: d(due), Paid: true},
			{InstallmentNumber: 2, DueDate: testNow.AddDate(0, 0, 10), TotalAmount: d(due)},
			{InstallmentNumber: 3, DueDate: testNow.AddDate(0, 1, 10), TotalAmount: d(due)},
		},
	}
}

func amountFor(allocs []models.Allocation, kind models.AccountKind) (decimal.Decimal, bool) {
	for _, a := range allocs {
		if a.Account == kind {
			return a.Amount, true
		}
	}
	return decimal.Zero, false
}

func TestDefaultAllocation(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		loans   []models.Loan
		wantErr bool
		savings string
		loan    string // empty means no loan entry
		group   string
		loanIDs int
	}{
		{
			name:    "no active loans",
			total:   "1000",
			savings: "200.00",
			group:   "800.00",
		},
		{
			name:    "loan due below cap",
			total:   "1000",
			loans:   []models.Loan{loanWithDue("l1", "150", "450")},
			savings: "200.00",
			loan:    "150.00",
			group:   "650.00",
			loanIDs: 1,
		},
		{
			name:    "loan due above cap is capped at 30%",
			total:   "1000",
			loans:   []models.Loan{loanWithDue("l1", "500", "1500")},
			savings: "200.00",
			loan:    "300.00",
			group:   "500.00",
			loanIDs: 1,
		},
		{
			name:    "two loans sum their next dues",
			total:   "1000",
			loans:   []models.Loan{loanWithDue("l1", "100", "300"), loanWithDue("l2", "50", "150")},
			savings: "200.00",
			loan:    "150.00",
			group:   "650.00",
			loanIDs: 2,
		},
		{
			name:    "fractional total rounds each share",
			total:   "333.33",
			savings: "66.67",
			group:   "266.66",
		},
		{
			name:    "zero total is rejected",
			total:   "0",
			wantErr: true,
		},
		{
			name:    "negative total is rejected",
			total:   "-10",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active := ActiveLoans(tt.loans, testNow)
			allocs, err := DefaultAllocation(d(tt.total), active, testNow)
			if (err != nil) != tt.wantErr {
				t.Fatalf("DefaultAllocation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if apperr.KindOf(err) != apperr.KindValidation {
					t.Errorf("expected validation error, got %v", apperr.KindOf(err))
				}
				return
			}

			if got, _ := amountFor(allocs, models.AccountSavings); !got.Equal(d(tt.savings)) {
				t.Errorf("savings = %s, want %s", got, tt.savings)
			}
			if got, _ := amountFor(allocs, models.AccountGroup); !got.Equal(d(tt.group)) {
				t.Errorf("group = %s, want %s", got, tt.group)
			}
			got, ok := amountFor(allocs, models.AccountLoan)
			if tt.loan == "" {
				if ok {
					t.Errorf("unexpected loan entry %s", got)
				}
			} else {
				if !got.Equal(d(tt.loan)) {
					t.Errorf("loan = %s, want %s", got, tt.loan)
				}
				if n := len(allocs[1].LoanIDs); n != tt.loanIDs {
					t.Errorf("loan ids = %d, want %d", n, tt.loanIDs)
				}
			}
		})
	}
}

func TestDefaultAllocationSumsToTotal(t *testing.T) {
	loans := ActiveLoans([]models.Loan{loanWithDue("l1", "37.13", "400")}, testNow)
	for _, total := range []string{"0.01", "1", "9.99", "123.45", "1000", "98765.43"} {
		for _, withLoan := range []bool{false, true} {
			active := loans
			if !withLoan {
				active = nil
			}
			allocs, err := DefaultAllocation(d(total), active, testNow)
			if err != nil {
				t.Fatalf("DefaultAllocation(%s) failed: %v", total, err)
			}
			tolerance := d("0.01").Mul(decimal.NewFromInt(int64(len(allocs))))
			if diff := SumAllocations(allocs).Sub(d(total)).Abs(); diff.GreaterThan(tolerance) {
				t.Errorf("total %s (loan=%v): allocations off by %s", total, withLoan, diff)
			}
		}
	}
}

func TestCustomAllocation(t *testing.T) {
	active := ActiveLoans([]models.Loan{loanWithDue("l1", "100", "500")}, testNow)

	tests := []struct {
		name    string
		split   CustomSplit
		loans   []models.Loan
		wantErr bool
		want    map[models.AccountKind]string
	}{
		{
			name:  "savings and group only",
			split: CustomSplit{SavingsPercent: d("40"), LoanPercent: d("0")},
			want:  map[models.AccountKind]string{models.AccountSavings: "400.00", models.AccountGroup: "600.00"},
		},
		{
			name:  "with loan share",
			split: CustomSplit{SavingsPercent: d("25"), LoanPercent: d("25")},
			loans: active,
			want: map[models.AccountKind]string{
				models.AccountSavings: "250.00",
				models.AccountLoan:    "250.00",
				models.AccountGroup:   "500.00",
			},
		},
		{
			name:  "all to savings omits empty entries",
			split: CustomSplit{SavingsPercent: d("100"), LoanPercent: d("0")},
			want:  map[models.AccountKind]string{models.AccountSavings: "1000.00"},
		},
		{
			name:    "over 100 rejected",
			split:   CustomSplit{SavingsPercent: d("70"), LoanPercent: d("40")},
			loans:   active,
			wantErr: true,
		},
		{
			name:    "negative percent rejected",
			split:   CustomSplit{SavingsPercent: d("-10"), LoanPercent: d("0")},
			wantErr: true,
		},
		{
			name:    "loan share without active loans rejected",
			split:   CustomSplit{SavingsPercent: d("20"), LoanPercent: d("10")},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allocs, err := CustomAllocation(d("1000"), tt.split, tt.loans)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CustomAllocation() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(allocs) != len(tt.want) {
				t.Fatalf("got %d entries, want %d: %+v", len(allocs), len(tt.want), allocs)
			}
			for kind, want := range tt.want {
				got, ok := amountFor(allocs, kind)
				if !ok || !got.Equal(d(want)) {
					t.Errorf("%s = %s (present=%v), want %s", kind, got, ok, want)
				}
			}
		})
	}
}

func TestCustomSplitPercentagesSumTo100(t *testing.T) {
	for s := 0; s <= 100; s += 5 {
		for l := 0; l <= 100-s; l += 5 {
			split := CustomSplit{SavingsPercent: decimal.NewFromInt(int64(s)), LoanPercent: decimal.NewFromInt(int64(l))}
			if err := split.Validate(); err != nil {
				t.Fatalf("split %d/%d rejected: %v", s, l, err)
			}
			sum := split.SavingsPercent.Add(split.LoanPercent).Add(split.GroupPercent())
			if !sum.Equal(hundred) || split.GroupPercent().IsNegative() {
				t.Errorf("split %d/%d: sum %s group %s", s, l, sum, split.GroupPercent())
			}
		}
	}
}

func TestValidateAllocations(t *testing.T) {
	tests := []struct {
		name    string
		total   string
		allocs  []models.Allocation
		wantErr bool
	}{
		{
			name:  "exact sum",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("20")},
				{Account: models.AccountGroup, Amount: d("80")},
			},
		},
		{
			name:  "three way split in cents",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("33.33")},
				{Account: models.AccountLoan, Amount: d("33.33")},
				{Account: models.AccountGroup, Amount: d("33.34")},
			},
		},
		{
			name:  "off by a cent",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("33.33")},
				{Account: models.AccountLoan, Amount: d("33.33")},
				{Account: models.AccountGroup, Amount: d("33.33")},
			},
			wantErr: true,
		},
		{
			name:  "fraction of a cent",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("20.005")},
				{Account: models.AccountGroup, Amount: d("79.995")},
			},
			wantErr: true,
		},
		{
			name:  "fines cannot take a contribution",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountFines, Amount: d("10")},
				{Account: models.AccountGroup, Amount: d("90")},
			},
			wantErr: true,
		},
		{
			name:    "sum mismatch",
			total:   "100",
			allocs:  []models.Allocation{{Account: models.AccountSavings, Amount: d("90")}},
			wantErr: true,
		},
		{
			name:    "unknown account",
			total:   "100",
			allocs:  []models.Allocation{{Account: "holiday", Amount: d("100")}},
			wantErr: true,
		},
		{
			name:  "duplicate account",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("50")},
				{Account: models.AccountSavings, Amount: d("50")},
			},
			wantErr: true,
		},
		{
			name:  "negative amount",
			total: "100",
			allocs: []models.Allocation{
				{Account: models.AccountSavings, Amount: d("-20")},
				{Account: models.AccountGroup, Amount: d("120")},
			},
			wantErr: true,
		},
		{
			name:    "empty list",
			total:   "100",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAllocations(d(tt.total), tt.allocs)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAllocations() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestActiveLoans(t *testing.T) {
	paid := loanWithDue("paid", "100", "0")
	paid.Status = models.LoanPaid
	closed := loanWithDue("closed", "100", "200")
	closed.Status = models.LoanClosed
	settled := models.Loan{ID: "settled", Status: models.LoanActive, RemainingBalance: decimal.Zero}
	later := loanWithDue("later", "100", "300")
	later.RepaymentSchedule[1].DueDate = testNow.AddDate(0, 0, 25)
	sooner := loanWithDue("sooner", "100", "300")

	active := ActiveLoans([]models.Loan{paid, closed, settled, later, sooner}, testNow)
	if len(active) != 2 {
		t.Fatalf("expected 2 active loans, got %d", len(active))
	}
	if active[0].ID != "sooner" || active[1].ID != "later" {
		t.Errorf("expected loans ordered by next due date, got %s, %s", active[0].ID, active[1].ID)
	}
}

func TestApplyLoanRepayment(t *testing.T) {
	t.Run("covers next installment", func(t *testing.T) {
		loans := []models.Loan{loanWithDue("l1", "150", "300")}
		changed, left := ApplyLoanRepayment(loans, d("150"), testNow)
		if len(changed) != 1 {
			t.Fatalf("expected 1 changed loan, got %d", len(changed))
		}
		if !left.IsZero() {
			t.Errorf("expected nothing left, got %s", left)
		}
		loan := changed[0]
		if !loan.RemainingBalance.Equal(d("150")) {
			t.Errorf("remaining = %s, want 150", loan.RemainingBalance)
		}
		if !loan.RepaymentSchedule[1].Paid {
			t.Error("expected installment 2 marked paid")
		}
		if loan.RepaymentSchedule[2].Paid {
			t.Error("installment 3 must stay unpaid")
		}
		if loans[0].RepaymentSchedule[1].Paid {
			t.Error("input loan must not be mutated")
		}
	})

	t.Run("pays off loan and returns excess", func(t *testing.T) {
		changed, left := ApplyLoanRepayment([]models.Loan{loanWithDue("l1", "150", "100")}, d("130"), testNow)
		if !left.Equal(d("30")) {
			t.Errorf("left = %s, want 30", left)
		}
		if changed[0].Status != models.LoanPaid {
			t.Errorf("status = %s, want paid", changed[0].Status)
		}
		if !changed[0].RemainingBalance.IsZero() {
			t.Errorf("remaining = %s, want 0", changed[0].RemainingBalance)
		}
	})

	t.Run("partial payment leaves installment unpaid", func(t *testing.T) {
		changed, _ := ApplyLoanRepayment([]models.Loan{loanWithDue("l1", "150", "300")}, d("100"), testNow)
		if changed[0].RepaymentSchedule[1].Paid {
			t.Error("installment must not be paid by a partial amount")
		}
		if !changed[0].RemainingBalance.Equal(d("200")) {
			t.Errorf("remaining = %s, want 200", changed[0].RemainingBalance)
		}
	})
}

func TestSingleAccountSubmissionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     SingleAccountSubmission
		wantErr bool
	}{
		{"cash ok", SingleAccountSubmission{Channel: ChannelCash, Amount: d("50"), MemberID: "u1"}, false},
		{"cash without member", SingleAccountSubmission{Channel: ChannelCash, Amount: d("50")}, true},
		{"mobile money ok", SingleAccountSubmission{Channel: ChannelMobileMoney, Amount: d("50"), MemberID: "u1", Reference: "QW12ER"}, false},
		{"mobile money without reference", SingleAccountSubmission{Channel: ChannelMobileMoney, Amount: d("50"), MemberID: "u1"}, true},
		{"fund ok", SingleAccountSubmission{Channel: ChannelFund, Amount: d("50"), Account: models.AccountFines}, false},
		{"fund without account", SingleAccountSubmission{Channel: ChannelFund, Amount: d("50")}, true},
		{"pay ok", SingleAccountSubmission{Channel: ChannelPayMember, Amount: d("50"), Account: models.AccountSavings, MemberID: "u1"}, false},
		{"pay without member", SingleAccountSubmission{Channel: ChannelPayMember, Amount: d("50"), Account: models.AccountSavings}, true},
		{"zero amount", SingleAccountSubmission{Channel: ChannelFund, Amount: d("0"), Account: models.AccountGroup}, true},
		{"unknown account", SingleAccountSubmission{Channel: ChannelFund, Amount: d("5"), Account: "holiday"}, true},
		{"unknown channel", SingleAccountSubmission{Channel: "cheque", Amount: d("5")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
