package models

import "github.com/shopspring/decimal"

// TransactionType classifies a ledger record.
type TransactionType string

const (
	TransactionContribution TransactionType = "contribution"
	TransactionLoan         TransactionType = "loan"
	TransactionPayment      TransactionType = "payment"
	TransactionFine         TransactionType = "fine"
)

// PaymentMethod is the channel money arrived or left through.
type PaymentMethod string

const (
	MethodWallet       PaymentMethod = "wallet"
	MethodCash         PaymentMethod = "cash"
	MethodMobileMoney  PaymentMethod = "mobile_money"
	MethodBankTransfer PaymentMethod = "bank_transfer"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodWallet, MethodCash, MethodMobileMoney, MethodBankTransfer:
		return true
	}
	return false
}

// TransactionStatus tracks verification of a ledger record.
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionCompleted TransactionStatus = "completed"
	TransactionVerified  TransactionStatus = "verified"
)

// Allocation is the share of a transaction that lands in one account.
type Allocation struct {
	Account AccountKind     `json:"account"`
	Amount  decimal.Decimal `json:"amount"`

	// LoanIDs lists the loans a loan-account allocation repays.
	LoanIDs []string `json:"loanIds,omitempty"`
}

// Transaction is an immutable ledger record.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string `json:"id"`

	GroupID string            `json:"groupId"`
	Type    TransactionType   `json:"type"`
	Amount  decimal.Decimal   `json:"amount"`
	Method  PaymentMethod     `json:"method"`
	Status  TransactionStatus `json:"status"`

	// MemberID is a weak reference to the member the money came from or went to.
	// Empty for group-level movements such as a fund top-up.
	MemberID string `json:"memberId,omitempty"`

	// Reference is the external receipt, e.g. a mobile money code.
	Reference string `json:"reference,omitempty"`

	Allocations []Allocation `json:"allocations"`

	// RequestID is the client-generated idempotency key.
	RequestID string `json:"requestId,omitempty"`

	CreatedBy string `json:"createdBy"`

	// CreatedAt is the Unix timestamp when the transaction was committed.
	CreatedAt int64 `json:"createdAt"`
}
