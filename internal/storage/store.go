// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
)

// Commit is one atomic ledger write: a transaction record plus every balance
// delta it causes. Either all of it is applied or none of it is.
type Commit struct {
	GroupID string

	// ExpectedVersion is the group version the commit was planned against.
	// A mismatch fails the commit with a conflict.
	ExpectedVersion int64

	// Transaction is recorded as-is. A non-empty RequestID makes the commit
	// idempotent: a second commit with the same key returns the first result.
	Transaction models.Transaction

	// Deltas are signed balance changes per account.
	Deltas map[models.AccountKind]decimal.Decimal

	// ContributorID, when set, credits Transaction.Amount to that member's
	// contribution total and appends the transaction to their history.
	ContributorID string

	// LoanUpdates replace the stored status, balance and installments of
	// existing loans.
	LoanUpdates []models.Loan

	// NewLoan is inserted with its schedule and guarantors.
	NewLoan *models.Loan
}

// CommitResult describes the outcome of a Commit.
type CommitResult struct {
	Transaction models.Transaction

	// Version is the group version after the commit.
	Version int64

	// Replayed is true when the request ID had already been committed and
	// nothing new was written.
	Replayed bool
}

// Store defines the interface for ledger storage operations.
// This abstraction allows swapping storage backends without changing the
// service layer. Every mutating group operation takes the version the caller
// read and fails with an apperr conflict if the group moved since.
type Store interface {
	// CreateUser inserts a new user.
	CreateUser(ctx context.Context, user *models.User) error

	// GetUserByEmail returns nil, nil when no user has the email.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	// GetUserByUsername returns nil, nil when no user has the username.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)

	// GetUserByID returns nil, nil when the user does not exist.
	GetUserByID(ctx context.Context, id string) (*models.User, error)

	// GetUsersByIDs returns the users that exist among ids, keyed by ID.
	GetUsersByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)

	// CreateGroup persists a new group with its accounts and initial members,
	// one of which must be the owner.
	// The group.ID and CreatedAt fields are populated by the store.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group with accounts and members.
	// Returns an apperr not-found error if the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// ListGroupsForUser returns every group the user is a member of.
	ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error)

	// UpdateGroupSettings replaces the settings and visibility of a group.
	UpdateGroupSettings(ctx context.Context, groupID string, expectedVersion int64, settings models.Settings, public bool) (int64, error)

	// SetAccountBalances overrides the listed account balances.
	SetAccountBalances(ctx context.Context, groupID string, expectedVersion int64, balances map[models.AccountKind]decimal.Decimal) (int64, error)

	// CommitTransaction applies a ledger Commit atomically.
	CommitTransaction(ctx context.Context, commit Commit) (*CommitResult, error)

	// LookupRequest returns the replayed result of an earlier commit made
	// with requestID, or nil, nil if the request id is unused.
	LookupRequest(ctx context.Context, groupID, requestID string) (*CommitResult, error)

	// ListTransactions returns a group's transactions, newest first.
	// A limit of zero or less returns all of them.
	ListTransactions(ctx context.Context, groupID string, limit int) ([]models.Transaction, error)

	// ListLoansByGroup returns every loan of a group.
	ListLoansByGroup(ctx context.Context, groupID string) ([]models.Loan, error)

	// ListLoansForMember returns a member's loans, in one group or, with an
	// empty groupID, across all groups.
	ListLoansForMember(ctx context.Context, groupID, userID string) ([]models.Loan, error)

	// ApplyMembershipEffect commits a planned membership transition.
	// Resolving an invitation or join request that is no longer pending
	// fails with a conflict.
	ApplyMembershipEffect(ctx context.Context, groupID string, expectedVersion int64, effect membership.Effect) (int64, error)

	// GetInvitation retrieves an invitation by ID.
	GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error)

	// ListPendingInvitations returns pending invitations of a group.
	ListPendingInvitations(ctx context.Context, groupID string) ([]models.Invitation, error)

	// ListPendingInvitationsForUser returns pending invitations addressed to a user.
	ListPendingInvitationsForUser(ctx context.Context, userID string) ([]models.Invitation, error)

	// GetJoinRequest retrieves a join request by ID.
	GetJoinRequest(ctx context.Context, requestID string) (*models.JoinRequest, error)

	// ListPendingJoinRequests returns pending join requests of a group.
	ListPendingJoinRequests(ctx context.Context, groupID string) ([]models.JoinRequest, error)

	// Close releases any resources held by the store.
	Close() error
}
