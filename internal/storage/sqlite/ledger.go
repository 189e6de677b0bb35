package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/storage"
)

// CommitTransaction applies a ledger commit in a single database transaction.
// The idempotency key is checked before the version so that a retried request
// returns its original result even after the group has moved on.
func (s *SQLiteStore) CommitTransaction(ctx context.Context, commit storage.Commit) (*storage.CommitResult, error) {
	txn := commit.Transaction
	if txn.ID == "" {
		txn.ID = uuid.New().String()
	}
	if txn.CreatedAt == 0 {
		txn.CreatedAt = time.Now().Unix()
	}
	txn.GroupID = commit.GroupID

	for kind := range commit.Deltas {
		if !kind.Valid() {
			return nil, apperr.Validation("unknown account %q", kind)
		}
	}

	var result *storage.CommitResult
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if txn.RequestID != "" {
			replayed, err := lookupIdempotent(ctx, tx, commit.GroupID, txn.RequestID)
			if err != nil {
				return err
			}
			if replayed != nil {
				result = replayed
				return nil
			}
		}

		version, err := bumpVersion(ctx, tx, commit.GroupID, commit.ExpectedVersion)
		if err != nil {
			return err
		}

		// Walk accounts in a fixed order so error messages are stable.
		for _, kind := range models.AllAccountKinds {
			delta, ok := commit.Deltas[kind]
			if !ok || delta.IsZero() {
				continue
			}
			if err := applyDelta(ctx, tx, commit.GroupID, kind, delta); err != nil {
				return err
			}
		}

		if err := insertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		if commit.ContributorID != "" {
			if err := creditContribution(ctx, tx, commit.GroupID, commit.ContributorID, txn); err != nil {
				return err
			}
		}

		for _, loan := range commit.LoanUpdates {
			if err := updateLoan(ctx, tx, loan); err != nil {
				return err
			}
		}
		if commit.NewLoan != nil {
			loan := *commit.NewLoan
			loan.GroupID = commit.GroupID
			if err := insertLoan(ctx, tx, &loan); err != nil {
				return err
			}
		}

		if txn.RequestID != "" {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO idempotency_keys (group_id, request_id, transaction_id, created_at) VALUES (?, ?, ?, ?)",
				commit.GroupID, txn.RequestID, txn.ID, txn.CreatedAt,
			); err != nil {
				return fmt.Errorf("failed to record request id: %w", err)
			}
		}

		result = &storage.CommitResult{Transaction: txn, Version: version}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LookupRequest finds the commit recorded under requestID in a group.
func (s *SQLiteStore) LookupRequest(ctx context.Context, groupID, requestID string) (*storage.CommitResult, error) {
	if requestID == "" {
		return nil, nil
	}
	return lookupIdempotent(ctx, s.db, groupID, requestID)
}

func lookupIdempotent(ctx context.Context, q querier, groupID, requestID string) (*storage.CommitResult, error) {
	var txID string
	err := q.QueryRowContext(ctx,
		"SELECT transaction_id FROM idempotency_keys WHERE group_id = ? AND request_id = ?",
		groupID, requestID,
	).Scan(&txID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check request id: %w", err)
	}

	stored, err := getTransaction(ctx, q, txID)
	if err != nil {
		return nil, err
	}
	var version int64
	if err := q.QueryRowContext(ctx, "SELECT version FROM groups WHERE id = ?", groupID).Scan(&version); err != nil {
		return nil, fmt.Errorf("failed to read group version: %w", err)
	}
	return &storage.CommitResult{Transaction: *stored, Version: version, Replayed: true}, nil
}

func applyDelta(ctx context.Context, q querier, groupID string, kind models.AccountKind, delta decimal.Decimal) error {
	var balance decimal.Decimal
	err := q.QueryRowContext(ctx,
		"SELECT balance FROM group_accounts WHERE group_id = ? AND kind = ?",
		groupID, string(kind),
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		balance = decimal.Zero
		if _, err := q.ExecContext(ctx,
			"INSERT INTO group_accounts (group_id, kind, balance) VALUES (?, ?, '0')",
			groupID, string(kind),
		); err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}

	next := models.Account{Kind: kind, Balance: balance.Add(delta)}
	if err := next.Validate(); err != nil {
		return apperr.Validation("insufficient funds in %s account: balance %s, change %s", kind, balance.StringFixed(2), delta.StringFixed(2))
	}

	if _, err := q.ExecContext(ctx,
		"UPDATE group_accounts SET balance = ? WHERE group_id = ? AND kind = ?",
		next.Balance.String(), groupID, string(kind),
	); err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	return nil
}

func insertTransaction(ctx context.Context, q querier, txn models.Transaction) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO transactions (id, group_id, type, amount, method, status, member_id, reference, request_id, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		txn.ID, txn.GroupID, string(txn.Type), txn.Amount.String(), string(txn.Method), string(txn.Status),
		txn.MemberID, txn.Reference, txn.RequestID, txn.CreatedBy, txn.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for i, alloc := range txn.Allocations {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO transaction_allocations (transaction_id, position, account, amount, loan_ids) VALUES (?, ?, ?, ?, ?)",
			txn.ID, i, string(alloc.Account), alloc.Amount.String(), strings.Join(alloc.LoanIDs, ","),
		); err != nil {
			return fmt.Errorf("failed to insert allocation: %w", err)
		}
	}
	return nil
}

func creditContribution(ctx context.Context, q querier, groupID, userID string, txn models.Transaction) error {
	var total decimal.Decimal
	err := q.QueryRowContext(ctx,
		"SELECT contributions_total FROM memberships WHERE group_id = ? AND user_id = ?",
		groupID, userID,
	).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound("member %s not found in group", userID)
	}
	if err != nil {
		return fmt.Errorf("failed to read contributions: %w", err)
	}

	if _, err := q.ExecContext(ctx,
		"UPDATE memberships SET contributions_total = ? WHERE group_id = ? AND user_id = ?",
		total.Add(txn.Amount).String(), groupID, userID,
	); err != nil {
		return fmt.Errorf("failed to update contributions: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		"INSERT INTO membership_contributions (group_id, user_id, transaction_id, amount) VALUES (?, ?, ?, ?)",
		groupID, userID, txn.ID, txn.Amount.String(),
	); err != nil {
		return fmt.Errorf("failed to record contribution: %w", err)
	}
	return nil
}

const transactionColumns = "id, group_id, type, amount, method, status, member_id, reference, request_id, created_by, created_at"

func scanTransaction(row interface{ Scan(...any) error }) (models.Transaction, error) {
	var txn models.Transaction
	var txType, method, status string
	var memberID, reference, requestID sql.NullString
	err := row.Scan(&txn.ID, &txn.GroupID, &txType, &txn.Amount, &method, &status,
		&memberID, &reference, &requestID, &txn.CreatedBy, &txn.CreatedAt)
	txn.Type = models.TransactionType(txType)
	txn.Method = models.PaymentMethod(method)
	txn.Status = models.TransactionStatus(status)
	txn.MemberID = memberID.String
	txn.Reference = reference.String
	txn.RequestID = requestID.String
	return txn, err
}

func getTransaction(ctx context.Context, q querier, id string) (*models.Transaction, error) {
	txn, err := scanTransaction(q.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("transaction not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	if txn.Allocations, err = listAllocations(ctx, q, id); err != nil {
		return nil, err
	}
	return &txn, nil
}

func listAllocations(ctx context.Context, q querier, transactionID string) ([]models.Allocation, error) {
	rows, err := q.QueryContext(ctx,
		"SELECT account, amount, loan_ids FROM transaction_allocations WHERE transaction_id = ? ORDER BY position",
		transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get allocations: %w", err)
	}
	defer rows.Close()

	var allocs []models.Allocation
	for rows.Next() {
		var alloc models.Allocation
		var account, loanIDs string
		if err := rows.Scan(&account, &alloc.Amount, &loanIDs); err != nil {
			return nil, fmt.Errorf("failed to scan allocation: %w", err)
		}
		alloc.Account = models.AccountKind(account)
		if loanIDs != "" {
			alloc.LoanIDs = strings.Split(loanIDs, ",")
		}
		allocs = append(allocs, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating allocations: %w", err)
	}
	return allocs, nil
}

// ListTransactions returns a group's transactions, newest first.
func (s *SQLiteStore) ListTransactions(ctx context.Context, groupID string, limit int) ([]models.Transaction, error) {
	query := "SELECT " + transactionColumns + " FROM transactions WHERE group_id = ? ORDER BY created_at DESC, rowid DESC"
	args := []any{groupID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var txns []models.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	for i := range txns {
		if txns[i].Allocations, err = listAllocations(ctx, s.db, txns[i].ID); err != nil {
			return nil, err
		}
	}
	return txns, nil
}

func insertLoan(ctx context.Context, q querier, loan *models.Loan) error {
	if loan.ID == "" {
		loan.ID = uuid.New().String()
	}
	if loan.CreatedAt == 0 {
		loan.CreatedAt = time.Now().Unix()
	}

	_, err := q.ExecContext(ctx,
		`INSERT INTO loans (id, group_id, member_id, principal, interest_rate, status, remaining_balance, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID, loan.GroupID, loan.MemberID, loan.PrincipalAmount.String(), loan.InterestRate.String(),
		string(loan.Status), loan.RemainingBalance.String(), loan.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	if err := insertInstallments(ctx, q, loan); err != nil {
		return err
	}

	for _, g := range loan.Guarantors {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO guarantors (loan_id, user_id, approved) VALUES (?, ?, ?)",
			loan.ID, g.UserID, g.Approved,
		); err != nil {
			return fmt.Errorf("failed to insert guarantor: %w", err)
		}
	}
	return nil
}

func insertInstallments(ctx context.Context, q querier, loan *models.Loan) error {
	for _, inst := range loan.RepaymentSchedule {
		if _, err := q.ExecContext(ctx,
			"INSERT INTO installments (loan_id, number, due_date, total_amount, paid) VALUES (?, ?, ?, ?, ?)",
			loan.ID, inst.InstallmentNumber, inst.DueDate.Unix(), inst.TotalAmount.String(), inst.Paid,
		); err != nil {
			return fmt.Errorf("failed to insert installment: %w", err)
		}
	}
	return nil
}

// updateLoan replaces the mutable parts of a stored loan.
func updateLoan(ctx context.Context, q querier, loan models.Loan) error {
	res, err := q.ExecContext(ctx,
		"UPDATE loans SET status = ?, remaining_balance = ? WHERE id = ?",
		string(loan.Status), loan.RemainingBalance.String(), loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("loan not found: %s", loan.ID)
	}

	if _, err := q.ExecContext(ctx, "DELETE FROM installments WHERE loan_id = ?", loan.ID); err != nil {
		return fmt.Errorf("failed to clear installments: %w", err)
	}
	return insertInstallments(ctx, q, &loan)
}

const loanColumns = "id, group_id, member_id, principal, interest_rate, status, remaining_balance, created_at"

func (s *SQLiteStore) listLoans(ctx context.Context, where string, args ...any) ([]models.Loan, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE "+where+" ORDER BY created_at, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list loans: %w", err)
	}

	var loans []models.Loan
	for rows.Next() {
		var loan models.Loan
		var status string
		if err := rows.Scan(&loan.ID, &loan.GroupID, &loan.MemberID, &loan.PrincipalAmount,
			&loan.InterestRate, &status, &loan.RemainingBalance, &loan.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan loan: %w", err)
		}
		loan.Status = models.LoanStatus(status)
		loans = append(loans, loan)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating loans: %w", err)
	}

	for i := range loans {
		if err := s.loadLoanDetails(ctx, &loans[i]); err != nil {
			return nil, err
		}
	}
	return loans, nil
}

func (s *SQLiteStore) loadLoanDetails(ctx context.Context, loan *models.Loan) error {
	rows, err := s.db.QueryContext(ctx,
		"SELECT number, due_date, total_amount, paid FROM installments WHERE loan_id = ? ORDER BY number",
		loan.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to get installments: %w", err)
	}
	for rows.Next() {
		var inst models.Installment
		var due int64
		if err := rows.Scan(&inst.InstallmentNumber, &due, &inst.TotalAmount, &inst.Paid); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan installment: %w", err)
		}
		inst.DueDate = time.Unix(due, 0).UTC()
		loan.RepaymentSchedule = append(loan.RepaymentSchedule, inst)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating installments: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT user_id, approved FROM guarantors WHERE loan_id = ? ORDER BY rowid", loan.ID)
	if err != nil {
		return fmt.Errorf("failed to get guarantors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var g models.Guarantor
		if err := rows.Scan(&g.UserID, &g.Approved); err != nil {
			return fmt.Errorf("failed to scan guarantor: %w", err)
		}
		loan.Guarantors = append(loan.Guarantors, g)
	}
	return rows.Err()
}

// ListLoansByGroup returns every loan of a group.
func (s *SQLiteStore) ListLoansByGroup(ctx context.Context, groupID string) ([]models.Loan, error) {
	return s.listLoans(ctx, "group_id = ?", groupID)
}

// ListLoansForMember returns a member's loans. An empty groupID spans all groups.
func (s *SQLiteStore) ListLoansForMember(ctx context.Context, groupID, userID string) ([]models.Loan, error) {
	if groupID == "" {
		return s.listLoans(ctx, "member_id = ?", userID)
	}
	return s.listLoans(ctx, "group_id = ? AND member_id = ?", groupID, userID)
}
