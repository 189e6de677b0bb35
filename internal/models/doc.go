// Package models defines the core domain models for the group ledger.
//
// # Models
//
//   - Group: a savings collective with its own multi-account ledger
//   - Account: a named balance bucket inside a group (savings, loan, interest, fines, general pool)
//   - Membership: the relationship between a user and a group, carrying role and status
//   - Transaction: an immutable ledger record (contribution, loan, payment, fine)
//   - Loan / Installment: a member loan and its repayment schedule
//   - JoinRequest / Invitation: the two ways an outside user becomes a member
//   - User: a registered account
//
// # Design Principles
//
// 1. **Money is decimal**: every amount is a shopspring decimal, never a float
// 2. **Weak references**: memberships, transactions and loans reference users by ID string
// 3. **Derived values are computed**: balances totals and next-due installments are methods, not stored fields
// 4. **Append-only ledger**: transactions are never edited; corrections are new transactions
package models
