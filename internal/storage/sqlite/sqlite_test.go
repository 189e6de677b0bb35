package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/storage"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "chamaledger-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedGroup(t *testing.T, store *SQLiteStore, members ...models.Membership) *models.Group {
	t.Helper()
	group := models.NewGroup("Umoja", models.GroupTypeChama, models.Settings{})
	group.CreatedBy = "owner"
	group.Members = append([]models.Membership{{UserID: "owner", Role: models.RoleOwner, Status: models.StatusActive}}, members...)
	require.NoError(t, store.CreateGroup(context.Background(), group))
	return group
}

func contribution(amount string, requestID string) models.Transaction {
	return models.Transaction{
		Type:      models.TransactionContribution,
		Amount:    d(amount),
		Method:    models.MethodCash,
		Status:    models.TransactionCompleted,
		MemberID:  "owner",
		RequestID: requestID,
		CreatedBy: "owner",
		Allocations: []models.Allocation{
			{Account: models.AccountSavings, Amount: d(amount)},
		},
	}
}

func TestUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	user := models.NewUser("wanjiku", "wanjiku@example.com", "Wanjiku", "hash")
	require.NoError(t, store.CreateUser(ctx, user))

	byEmail, err := store.GetUserByEmail(ctx, "wanjiku@example.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, user.ID, byEmail.ID)

	byName, err := store.GetUserByUsername(ctx, "wanjiku")
	require.NoError(t, err)
	require.NotNil(t, byName)
	assert.Equal(t, "Wanjiku", byName.DisplayName)

	missing, err := store.GetUserByID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)

	dup := models.NewUser("wanjiku", "other@example.com", "W", "hash")
	err = store.CreateUser(ctx, dup)
	assert.True(t, errors.Is(err, apperr.ErrConflict))

	users, err := store.GetUsersByIDs(ctx, []string{user.ID, "nobody"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestCreateAndGetGroup(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	group := seedGroup(t, store, models.Membership{UserID: "amina", Role: models.RoleTreasurer, Status: models.StatusActive})
	assert.NotEmpty(t, group.ID)
	assert.NotZero(t, group.CreatedAt)

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.Equal(t, "Umoja", got.Name)
	assert.Len(t, got.Accounts, len(models.AllAccountKinds))
	require.Len(t, got.Members, 2)
	assert.Equal(t, models.RoleOwner, got.Members[0].Role)
	assert.True(t, got.Members[0].Contributions.Total.IsZero())

	_, err = store.GetGroup(ctx, "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	groups, err := store.ListGroupsForUser(ctx, "amina")
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, group.ID, groups[0].ID)

	ownerless := models.NewGroup("Harambee", models.GroupTypeSacco, models.Settings{})
	ownerless.Members = []models.Membership{{UserID: "amina", Role: models.RoleAdmin, Status: models.StatusActive}}
	err = store.CreateGroup(ctx, ownerless)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestCommitTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("applies deltas and credits contributor", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		res, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:         group.ID,
			ExpectedVersion: 0,
			Transaction:     contribution("1000", "req-1"),
			Deltas: map[models.AccountKind]decimal.Decimal{
				models.AccountSavings: d("200"),
				models.AccountGroup:   d("800"),
			},
			ContributorID: "owner",
		})
		require.NoError(t, err)
		assert.False(t, res.Replayed)
		assert.Equal(t, int64(1), res.Version)
		assert.NotEmpty(t, res.Transaction.ID)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance(models.AccountSavings).Equal(d("200")))
		assert.True(t, got.Balance(models.AccountGroup).Equal(d("800")))
		owner := got.Member("owner")
		require.NotNil(t, owner)
		assert.True(t, owner.Contributions.Total.Equal(d("1000")))
		assert.Equal(t, []string{res.Transaction.ID}, owner.Contributions.History)

		txns, err := store.ListTransactions(ctx, group.ID, 0)
		require.NoError(t, err)
		require.Len(t, txns, 1)
		assert.Equal(t, "req-1", txns[0].RequestID)
		require.Len(t, txns[0].Allocations, 1)
	})

	t.Run("replays a request id without writing", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		commit := storage.Commit{
			GroupID:       group.ID,
			Transaction:   contribution("500", "req-dup"),
			Deltas:        map[models.AccountKind]decimal.Decimal{models.AccountSavings: d("500")},
			ContributorID: "owner",
		}
		first, err := store.CommitTransaction(ctx, commit)
		require.NoError(t, err)

		// Stale version on purpose: the replay must win over the version check.
		second, err := store.CommitTransaction(ctx, commit)
		require.NoError(t, err)
		assert.True(t, second.Replayed)
		assert.Equal(t, first.Transaction.ID, second.Transaction.ID)
		assert.Equal(t, first.Version, second.Version)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.True(t, got.Balance(models.AccountSavings).Equal(d("500")))
		assert.Len(t, got.Member("owner").Contributions.History, 1)

		found, err := store.LookupRequest(ctx, group.ID, "req-dup")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.True(t, found.Replayed)
		assert.Equal(t, first.Transaction.ID, found.Transaction.ID)

		unused, err := store.LookupRequest(ctx, group.ID, "req-new")
		require.NoError(t, err)
		assert.Nil(t, unused)
	})

	t.Run("rejects a stale version", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		_, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:         group.ID,
			ExpectedVersion: 3,
			Transaction:     contribution("10", ""),
			Deltas:          map[models.AccountKind]decimal.Decimal{models.AccountSavings: d("10")},
		})
		assert.True(t, errors.Is(err, apperr.ErrConflict))

		_, err = store.CommitTransaction(ctx, storage.Commit{
			GroupID:     "missing",
			Transaction: contribution("10", ""),
		})
		assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
	})

	t.Run("rolls back when a balance would go negative", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		_, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:     group.ID,
			Transaction: contribution("50", "req-neg"),
			Deltas: map[models.AccountKind]decimal.Decimal{
				models.AccountSavings: d("50"),
				models.AccountGroup:   d("-50"),
			},
		})
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(0), got.Version)
		assert.True(t, got.Balance(models.AccountSavings).IsZero())

		txns, err := store.ListTransactions(ctx, group.ID, 0)
		require.NoError(t, err)
		assert.Empty(t, txns)
	})

	t.Run("loan account may go negative", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		_, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:     group.ID,
			Transaction: contribution("10", ""),
			Deltas:      map[models.AccountKind]decimal.Decimal{models.AccountLoan: d("-10")},
		})
		require.NoError(t, err)
	})

	t.Run("stores new loans and loan updates", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)
		due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

		loan := &models.Loan{
			ID:               "loan-1",
			MemberID:         "owner",
			PrincipalAmount:  d("1000"),
			InterestRate:     d("10"),
			Status:           models.LoanActive,
			RemainingBalance: d("1100"),
			RepaymentSchedule: []models.Installment{
				{InstallmentNumber: 1, DueDate: due, TotalAmount: d("550")},
				{InstallmentNumber: 2, DueDate: due.AddDate(0, 1, 0), TotalAmount: d("550")},
			},
			Guarantors: []models.Guarantor{{UserID: "amina"}},
		}
		res, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:     group.ID,
			Transaction: models.Transaction{Type: models.TransactionLoan, Amount: d("1000"), Method: models.MethodCash, Status: models.TransactionCompleted, CreatedBy: "owner"},
			Deltas:      map[models.AccountKind]decimal.Decimal{models.AccountLoan: d("-1000")},
			NewLoan:     loan,
		})
		require.NoError(t, err)

		loans, err := store.ListLoansByGroup(ctx, group.ID)
		require.NoError(t, err)
		require.Len(t, loans, 1)
		assert.Len(t, loans[0].RepaymentSchedule, 2)
		assert.True(t, loans[0].RepaymentSchedule[0].DueDate.Equal(due))
		assert.Len(t, loans[0].Guarantors, 1)

		updated := loans[0]
		updated.RemainingBalance = d("550")
		updated.RepaymentSchedule[0].Paid = true
		_, err = store.CommitTransaction(ctx, storage.Commit{
			GroupID:         group.ID,
			ExpectedVersion: res.Version,
			Transaction:     contribution("550", ""),
			Deltas:          map[models.AccountKind]decimal.Decimal{models.AccountLoan: d("550")},
			LoanUpdates:     []models.Loan{updated},
		})
		require.NoError(t, err)

		mine, err := store.ListLoansForMember(ctx, "", "owner")
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.True(t, mine[0].RemainingBalance.Equal(d("550")))
		assert.True(t, mine[0].RepaymentSchedule[0].Paid)
		assert.False(t, mine[0].RepaymentSchedule[1].Paid)
	})
}

func TestAccountOverrides(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	group := seedGroup(t, store)

	v, err := store.SetAccountBalances(ctx, group.ID, 0, map[models.AccountKind]decimal.Decimal{
		models.AccountSavings: d("1500.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = store.SetAccountBalances(ctx, group.ID, v, map[models.AccountKind]decimal.Decimal{
		models.AccountFines: d("-1"),
	})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	settings := models.Settings{ContributionSchedule: models.ContributionSchedule{Frequency: models.FrequencyMonthly, Amount: d("1000"), DueDay: 5}}
	v, err = store.UpdateGroupSettings(ctx, group.ID, v, settings, true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	got, err := store.GetGroup(ctx, group.ID)
	require.NoError(t, err)
	assert.True(t, got.Public)
	assert.Equal(t, 5, got.Settings.ContributionSchedule.DueDay)
	assert.True(t, got.Balance(models.AccountSavings).Equal(d("1500.5")))
}

func TestMembershipEffects(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

	t.Run("invitation resolves exactly once", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		inv := models.Invitation{ID: "inv-1", GroupID: group.ID, InviteeID: "baraka", InvitedBy: "owner", Role: models.RoleMember, Status: models.InvitationPending, CreatedAt: now.Unix()}
		v, err := store.ApplyMembershipEffect(ctx, group.ID, 0, membership.Effect{Invitation: &inv})
		require.NoError(t, err)

		pending, err := store.ListPendingInvitationsForUser(ctx, "baraka")
		require.NoError(t, err)
		require.Len(t, pending, 1)

		dup := inv
		dup.ID = "inv-2"
		_, err = store.ApplyMembershipEffect(ctx, group.ID, v, membership.Effect{Invitation: &dup})
		assert.True(t, errors.Is(err, apperr.ErrConflict))

		accepted := inv
		accepted.Status = models.InvitationAccepted
		accepted.ResolvedAt = now.Unix()
		effect := membership.Effect{
			Invitation: &accepted,
			Upsert:     []models.Membership{{UserID: "baraka", Role: models.RoleMember, Status: models.StatusActive, JoinedAt: now.Unix()}},
		}
		v, err = store.ApplyMembershipEffect(ctx, group.ID, v, effect)
		require.NoError(t, err)

		_, err = store.ApplyMembershipEffect(ctx, group.ID, v, effect)
		assert.True(t, errors.Is(err, apperr.ErrConflict))

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Member("baraka"))
		assert.Equal(t, v, got.Version)
	})

	t.Run("join request resolves exactly once", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store)

		req := models.JoinRequest{ID: "jr-1", GroupID: group.ID, UserID: "chebet", Status: models.JoinRequestPending, CreatedAt: now.Unix()}
		v, err := store.ApplyMembershipEffect(ctx, group.ID, 0, membership.Effect{JoinRequest: &req})
		require.NoError(t, err)

		rejected := req
		rejected.Status = models.JoinRequestRejected
		rejected.ReviewedBy = "owner"
		v, err = store.ApplyMembershipEffect(ctx, group.ID, v, membership.Effect{JoinRequest: &rejected})
		require.NoError(t, err)

		_, err = store.ApplyMembershipEffect(ctx, group.ID, v, membership.Effect{JoinRequest: &rejected})
		assert.True(t, errors.Is(err, apperr.ErrConflict))

		stored, err := store.GetJoinRequest(ctx, "jr-1")
		require.NoError(t, err)
		assert.Equal(t, models.JoinRequestRejected, stored.Status)
		assert.Equal(t, "owner", stored.ReviewedBy)

		pending, err := store.ListPendingJoinRequests(ctx, group.ID)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("upsert keeps contributions and delete drops history", func(t *testing.T) {
		store := newTestStore(t)
		group := seedGroup(t, store, models.Membership{UserID: "amina", Role: models.RoleMember, Status: models.StatusActive})

		res, err := store.CommitTransaction(ctx, storage.Commit{
			GroupID:       group.ID,
			Transaction:   contribution("300", ""),
			Deltas:        map[models.AccountKind]decimal.Decimal{models.AccountSavings: d("300")},
			ContributorID: "amina",
		})
		require.NoError(t, err)

		v, err := store.ApplyMembershipEffect(ctx, group.ID, res.Version, membership.Effect{
			Upsert: []models.Membership{{UserID: "amina", Role: models.RoleTreasurer, Status: models.StatusSuspended}},
		})
		require.NoError(t, err)

		got, err := store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		amina := got.Member("amina")
		require.NotNil(t, amina)
		assert.Equal(t, models.RoleTreasurer, amina.Role)
		assert.True(t, amina.Contributions.Total.Equal(d("300")))
		assert.Len(t, amina.Contributions.History, 1)

		_, err = store.ApplyMembershipEffect(ctx, group.ID, v, membership.Effect{Delete: []string{"amina"}})
		require.NoError(t, err)

		got, err = store.GetGroup(ctx, group.ID)
		require.NoError(t, err)
		assert.Nil(t, got.Member("amina"))
	})
}
