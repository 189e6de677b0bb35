// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
//
// The pool is limited to one connection so writers serialise inside the
// process; the per-group version column still guards against lost updates
// between a read and the write planned from it.
type SQLiteStore struct {
	db *sql.DB
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := runMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, committing on success.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Transient(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return classify(err)
	}
	if err := tx.Commit(); err != nil {
		return apperr.Transient(err, "failed to commit transaction")
	}
	return nil
}

// classify marks lock contention as retryable and unique violations as
// conflicts. Already classified errors pass through.
func classify(err error) error {
	if apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "database is locked"), strings.Contains(msg, "SQLITE_BUSY"):
		return apperr.Transient(err, "database busy")
	case isUniqueViolation(err):
		return &apperr.Error{Kind: apperr.KindConflict, Message: "duplicate record", Err: err}
	}
	return err
}

// bumpVersion increments the group version if it still equals expected.
func bumpVersion(ctx context.Context, q querier, groupID string, expected int64) (int64, error) {
	res, err := q.ExecContext(ctx,
		"UPDATE groups SET version = version + 1 WHERE id = ? AND version = ?",
		groupID, expected,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to bump group version: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check group version: %w", err)
	}
	if n == 1 {
		return expected + 1, nil
	}

	var current int64
	err = q.QueryRowContext(ctx, "SELECT version FROM groups WHERE id = ?", groupID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperr.NotFound("group not found: %s", groupID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read group version: %w", err)
	}
	return 0, apperr.Conflict("group %s changed (version %d, expected %d); refresh and retry", groupID, current, expected)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CreateGroup persists a new group with its accounts and initial members.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.Owner() == nil {
		return apperr.Validation("group %q has no owner", group.Name)
	}
	// Generate ID if not set
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	if group.Accounts == nil {
		group.Accounts = models.NewGroup(group.Name, group.Type, group.Settings).Accounts
	}

	settings, err := json.Marshal(group.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, type, public, settings, version, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			group.ID, group.Name, string(group.Type), group.Public, string(settings),
			group.Version, group.CreatedBy, group.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}

		for _, kind := range models.AllAccountKinds {
			account, ok := group.Accounts[kind]
			if !ok {
				account = models.Account{Kind: kind, Balance: decimal.Zero}
				group.Accounts[kind] = account
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO group_accounts (group_id, kind, balance) VALUES (?, ?, ?)",
				group.ID, string(kind), account.Balance.String(),
			); err != nil {
				return fmt.Errorf("failed to insert account: %w", err)
			}
		}

		for i := range group.Members {
			m := &group.Members[i]
			m.GroupID = group.ID
			if m.JoinedAt == 0 {
				m.JoinedAt = group.CreatedAt
			}
			if err := upsertMembership(ctx, tx, *m); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetGroup retrieves a group by ID, including accounts and members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	return getGroup(ctx, s.db, groupID)
}

func getGroup(ctx context.Context, q querier, groupID string) (*models.Group, error) {
	group := &models.Group{Accounts: make(map[models.AccountKind]models.Account)}
	var groupType, settings string

	err := q.QueryRowContext(ctx,
		"SELECT id, name, type, public, settings, version, created_by, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &groupType, &group.Public, &settings, &group.Version, &group.CreatedBy, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("group not found: %s", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	group.Type = models.GroupType(groupType)
	if err := json.Unmarshal([]byte(settings), &group.Settings); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}

	// Get accounts
	rows, err := q.QueryContext(ctx, "SELECT kind, balance FROM group_accounts WHERE group_id = ?", groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	for rows.Next() {
		var kind string
		var balance decimal.Decimal
		if err := rows.Scan(&kind, &balance); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		group.Accounts[models.AccountKind(kind)] = models.Account{Kind: models.AccountKind(kind), Balance: balance}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate accounts: %w", err)
	}

	members, err := listMemberships(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	group.Members = members

	return group, nil
}

func listMemberships(ctx context.Context, q querier, groupID string) ([]models.Membership, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT group_id, user_id, role, status, contributions_total, joined_at
		 FROM memberships WHERE group_id = ? ORDER BY joined_at, rowid`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get members: %w", err)
	}

	var members []models.Membership
	for rows.Next() {
		var m models.Membership
		var role, status string
		if err := rows.Scan(&m.GroupID, &m.UserID, &role, &status, &m.Contributions.Total, &m.JoinedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = models.Role(role)
		m.Status = models.MemberStatus(status)
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}

	history, err := q.QueryContext(ctx,
		"SELECT user_id, transaction_id FROM membership_contributions WHERE group_id = ? ORDER BY rowid",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get contribution history: %w", err)
	}
	defer history.Close()

	index := make(map[string]int, len(members))
	for i, m := range members {
		index[m.UserID] = i
	}
	for history.Next() {
		var userID, txID string
		if err := history.Scan(&userID, &txID); err != nil {
			return nil, fmt.Errorf("failed to scan contribution: %w", err)
		}
		if i, ok := index[userID]; ok {
			members[i].Contributions.History = append(members[i].Contributions.History, txID)
		}
	}
	if err := history.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contributions: %w", err)
	}
	return members, nil
}

// ListGroupsForUser retrieves every group the user belongs to.
func (s *SQLiteStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT g.id FROM groups g JOIN memberships m ON m.group_id = g.id
		 WHERE m.user_id = ? ORDER BY g.created_at, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate groups: %w", err)
	}

	groups := make([]*models.Group, 0, len(ids))
	for _, id := range ids {
		group, err := s.GetGroup(ctx, id)
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// UpdateGroupSettings replaces a group's settings and visibility.
func (s *SQLiteStore) UpdateGroupSettings(ctx context.Context, groupID string, expectedVersion int64, settings models.Settings, public bool) (int64, error) {
	encoded, err := json.Marshal(settings)
	if err != nil {
		return 0, fmt.Errorf("failed to encode settings: %w", err)
	}

	var version int64
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := bumpVersion(ctx, tx, groupID, expectedVersion)
		if err != nil {
			return err
		}
		version = v
		if _, err := tx.ExecContext(ctx,
			"UPDATE groups SET settings = ?, public = ? WHERE id = ?",
			string(encoded), public, groupID,
		); err != nil {
			return fmt.Errorf("failed to update settings: %w", err)
		}
		return nil
	})
	return version, err
}

// SetAccountBalances overrides account balances directly.
func (s *SQLiteStore) SetAccountBalances(ctx context.Context, groupID string, expectedVersion int64, balances map[models.AccountKind]decimal.Decimal) (int64, error) {
	for kind, balance := range balances {
		if err := (models.Account{Kind: kind, Balance: balance}).Validate(); err != nil {
			return 0, apperr.Validation("%v", err)
		}
	}

	var version int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := bumpVersion(ctx, tx, groupID, expectedVersion)
		if err != nil {
			return err
		}
		version = v
		for kind, balance := range balances {
			if _, err := tx.ExecContext(ctx,
				"UPDATE group_accounts SET balance = ? WHERE group_id = ? AND kind = ?",
				balance.String(), groupID, string(kind),
			); err != nil {
				return fmt.Errorf("failed to set balance: %w", err)
			}
		}
		return nil
	})
	return version, err
}
