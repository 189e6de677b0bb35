package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// GroupType is the kind of collective a group runs as.
type GroupType string

const (
	GroupTypeChama          GroupType = "chama"
	GroupTypeSacco          GroupType = "sacco"
	GroupTypeTableBanking   GroupType = "table_banking"
	GroupTypeInvestmentClub GroupType = "investment_club"
)

// Valid reports whether t is a known group type.
func (t GroupType) Valid() bool {
	switch t {
	case GroupTypeChama, GroupTypeSacco, GroupTypeTableBanking, GroupTypeInvestmentClub:
		return true
	}
	return false
}

// AccountKind names a balance bucket inside a group ledger.
type AccountKind string

const (
	AccountSavings        AccountKind = "savings"
	AccountLoan           AccountKind = "loan"
	AccountInterestEarned AccountKind = "interestEarned"
	AccountFines          AccountKind = "fines"
	AccountGroup          AccountKind = "group"
)

// AllAccountKinds lists every account kind in display order.
var AllAccountKinds = []AccountKind{
	AccountSavings,
	AccountLoan,
	AccountInterestEarned,
	AccountFines,
	AccountGroup,
}

// Valid reports whether k is a known account kind.
func (k AccountKind) Valid() bool {
	for _, known := range AllAccountKinds {
		if k == known {
			return true
		}
	}
	return false
}

// AllowsNegative reports whether the account may carry a negative balance.
// Only the loan account does, representing outstanding principal.
func (k AccountKind) AllowsNegative() bool {
	return k == AccountLoan
}

// Account is a single balance bucket.
type Account struct {
	Kind    AccountKind     `json:"kind"`
	Balance decimal.Decimal `json:"balance"`
}

// Validate checks the non-negative balance invariant.
func (a Account) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("unknown account kind %q", a.Kind)
	}
	if a.Balance.IsNegative() && !a.Kind.AllowsNegative() {
		return fmt.Errorf("account %s cannot have a negative balance (%s)", a.Kind, a.Balance.StringFixed(2))
	}
	return nil
}

// Group is a savings or lending collective with its own ledger.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group.
	Name string `json:"name"`

	// Type is the kind of collective.
	Type GroupType `json:"groupType"`

	// Public groups accept join requests from non-members.
	Public bool `json:"public"`

	Settings Settings `json:"settings"`

	// Accounts maps every account kind to its balance. NewGroup populates
	// all kinds with zero balances.
	Accounts map[AccountKind]Account `json:"accounts"`

	// Members is ordered by join time. Order is for display only.
	Members []Membership `json:"members"`

	// Version is the optimistic-lock sequence number. Every committed
	// mutation of the group increments it by one.
	Version int64 `json:"version"`

	CreatedBy string `json:"createdBy"`

	// CreatedAt is the Unix timestamp when the group was created.
	CreatedAt int64 `json:"createdAt"`
}

// NewGroup returns a group with zeroed balances for every account kind.
func NewGroup(name string, groupType GroupType, settings Settings) *Group {
	accounts := make(map[AccountKind]Account, len(AllAccountKinds))
	for _, kind := range AllAccountKinds {
		accounts[kind] = Account{Kind: kind, Balance: decimal.Zero}
	}
	return &Group{
		Name:     name,
		Type:     groupType,
		Settings: settings,
		Accounts: accounts,
	}
}

// TotalBalance is the sum of every account balance.
func (g *Group) TotalBalance() decimal.Decimal {
	total := decimal.Zero
	for _, account := range g.Accounts {
		total = total.Add(account.Balance)
	}
	return total
}

// Balance returns the balance of one account, zero if the account is missing.
func (g *Group) Balance(kind AccountKind) decimal.Decimal {
	if account, ok := g.Accounts[kind]; ok {
		return account.Balance
	}
	return decimal.Zero
}

// Member returns the membership for userID, or nil if the user is not a member.
func (g *Group) Member(userID string) *Membership {
	for i := range g.Members {
		if g.Members[i].UserID == userID {
			return &g.Members[i]
		}
	}
	return nil
}

// Owner returns the owner membership, or nil for a group without one.
func (g *Group) Owner() *Membership {
	for i := range g.Members {
		if g.Members[i].Role == RoleOwner {
			return &g.Members[i]
		}
	}
	return nil
}
