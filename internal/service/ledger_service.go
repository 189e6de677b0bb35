package service

import (
	"context"
	"time"

	"connectrpc.com/connect"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/calculator"
	"github.com/mmynk/chamaledger/internal/events"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/schedule"
	"github.com/mmynk/chamaledger/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// LedgerService implements contributions, fund movements and loans.
type LedgerService struct {
	base
}

// NewLedgerService creates a new LedgerService with the given storage backend.
func NewLedgerService(store storage.Store, opts ...Option) *LedgerService {
	return &LedgerService{base: newBase(store, opts)}
}

// memberGroup loads a group and checks the caller may perform action in it.
func (s *LedgerService) memberGroup(ctx context.Context, groupID string, action membership.Action) (string, *models.Group, *models.Membership, error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return "", nil, nil, err
	}
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return "", nil, nil, err
	}
	actor, err := membership.RequireActor(group, actorID, action)
	if err != nil {
		return "", nil, nil, err
	}
	return actorID, group, actor, nil
}

func newTransaction(actorID, requestID string, t models.TransactionType, amount decimal.Decimal, method models.PaymentMethod, now time.Time) models.Transaction {
	return models.Transaction{
		Type:      t,
		Amount:    amount,
		Method:    method,
		Status:    models.TransactionCompleted,
		RequestID: requestID,
		CreatedBy: actorID,
		CreatedAt: now.Unix(),
	}
}

func methodOr(method, fallback models.PaymentMethod) (models.PaymentMethod, error) {
	if method == "" {
		return fallback, nil
	}
	if !method.Valid() {
		return "", apperr.Validation("unknown payment method %q", method)
	}
	return method, nil
}

// commit writes c and builds the response. Metrics and events are only
// emitted for new writes, never for replays.
func (s *LedgerService) commit(ctx context.Context, op string, eventType events.Type, actorID string, c storage.Commit) (*LedgerResponse, error) {
	result, err := s.store.CommitTransaction(ctx, c)
	if err != nil {
		return nil, s.fail(op, err, "group_id", c.GroupID, "request_id", c.Transaction.RequestID)
	}

	txn := result.Transaction
	if result.Replayed {
		s.logger.Info(op+" replayed", "group_id", c.GroupID, "request_id", txn.RequestID, "transaction_id", txn.ID)
	} else {
		s.metrics.ObserveLedger(string(txn.Type), string(txn.Method), txn.Amount)
		s.publish(ctx, events.New(eventType, c.GroupID, actorID, result.Version, s.now(), txn))
		s.logger.Info(op+" committed",
			"group_id", c.GroupID,
			"transaction_id", txn.ID,
			"amount", txn.Amount.StringFixed(2),
			"version", result.Version,
		)
	}
	return s.response(ctx, op, c.GroupID, result)
}

// replay returns the stored result when requestID was already committed in
// the group, and nil otherwise. It runs before any validation that depends
// on ledger state, since the first commit may have changed that state.
func (s *LedgerService) replay(ctx context.Context, op, groupID, requestID string) (*LedgerResponse, error) {
	if requestID == "" {
		return nil, nil
	}
	result, err := s.store.LookupRequest(ctx, groupID, requestID)
	if err != nil {
		return nil, s.fail(op, err, "group_id", groupID, "request_id", requestID)
	}
	if result == nil {
		return nil, nil
	}
	s.logger.Info(op+" replayed", "group_id", groupID, "request_id", requestID, "transaction_id", result.Transaction.ID)
	return s.response(ctx, op, groupID, result)
}

func (s *LedgerService) response(ctx context.Context, op, groupID string, result *storage.CommitResult) (*LedgerResponse, error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, s.fail(op, err, "group_id", groupID)
	}
	return &LedgerResponse{
		Transaction: result.Transaction,
		Accounts:    group.Accounts,
		Version:     result.Version,
		Replayed:    result.Replayed,
	}, nil
}

// allocate resolves the split of a wallet contribution: explicit
// allocations are validated, otherwise the custom or default policy runs.
func allocate(amount decimal.Decimal, explicit []models.Allocation, custom *calculator.CustomSplit, active []models.Loan, now time.Time) ([]models.Allocation, error) {
	switch {
	case len(explicit) > 0:
		if err := calculator.ValidateAllocations(amount, explicit); err != nil {
			return nil, err
		}
		allocations := make([]models.Allocation, len(explicit))
		copy(allocations, explicit)
		for i := range allocations {
			a := &allocations[i]
			if a.Account != models.AccountLoan || !a.Amount.IsPositive() {
				continue
			}
			if len(active) == 0 {
				return nil, apperr.Validation("loan share requested but member has no active loans")
			}
			if len(a.LoanIDs) == 0 {
				for _, loan := range active {
					a.LoanIDs = append(a.LoanIDs, loan.ID)
				}
			}
		}
		return allocations, nil
	case custom != nil:
		return calculator.CustomAllocation(amount, *custom, active)
	default:
		return calculator.DefaultAllocation(amount, active, now)
	}
}

// repayLoans applies the loan share of a contribution to the targeted loans.
// A share larger than what the loans still owe is rejected.
func repayLoans(active []models.Loan, allocation models.Allocation, now time.Time) ([]models.Loan, error) {
	targets := active
	if len(allocation.LoanIDs) > 0 {
		byID := make(map[string]models.Loan, len(active))
		for _, loan := range active {
			byID[loan.ID] = loan
		}
		targets = make([]models.Loan, 0, len(allocation.LoanIDs))
		for _, id := range allocation.LoanIDs {
			loan, ok := byID[id]
			if !ok {
				return nil, apperr.Validation("loan %s is not an active loan of the member", id)
			}
			targets = append(targets, loan)
			delete(byID, id)
		}
	}

	changed, leftover := calculator.ApplyLoanRepayment(targets, allocation.Amount, now)
	if leftover.IsPositive() {
		return nil, apperr.Validation("loan allocation exceeds the outstanding balance by %s", leftover.StringFixed(2))
	}
	return changed, nil
}

// PreviewAllocation computes how a wallet contribution would be split
// without committing anything.
func (s *LedgerService) PreviewAllocation(ctx context.Context, req *connect.Request[PreviewAllocationRequest]) (*connect.Response[PreviewAllocationResponse], error) {
	actorID, group, _, err := s.memberGroup(ctx, req.Msg.GroupID, membership.ActionContribute)
	if err != nil {
		return nil, s.fail("PreviewAllocation", err, "group_id", req.Msg.GroupID)
	}

	loans, err := s.store.ListLoansForMember(ctx, group.ID, actorID)
	if err != nil {
		return nil, s.fail("PreviewAllocation", err, "group_id", group.ID)
	}
	now := s.now()
	active := calculator.ActiveLoans(loans, now)

	allocations, err := allocate(req.Msg.Amount, nil, req.Msg.Custom, active, now)
	if err != nil {
		s.metrics.ObserveAllocationRejected()
		return nil, s.fail("PreviewAllocation", err, "group_id", group.ID)
	}

	return connect.NewResponse(&PreviewAllocationResponse{
		Allocations: allocations,
		ActiveLoans: loanViews(active, now),
	}), nil
}

// ContributeFromWallet records the caller's own contribution, split across
// savings, loan repayment and the group pool.
func (s *LedgerService) ContributeFromWallet(ctx context.Context, req *connect.Request[ContributeFromWalletRequest]) (*connect.Response[LedgerResponse], error) {
	actorID, group, _, err := s.memberGroup(ctx, req.Msg.GroupID, membership.ActionContribute)
	if err != nil {
		return nil, s.fail("ContributeFromWallet", err, "group_id", req.Msg.GroupID)
	}
	s.logger.Info("ContributeFromWallet request received",
		"group_id", group.ID,
		"user_id", actorID,
		"amount", req.Msg.Amount.StringFixed(2),
	)

	replayed, err := s.replay(ctx, "ContributeFromWallet", group.ID, req.Msg.RequestID)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return connect.NewResponse(replayed), nil
	}

	loans, err := s.store.ListLoansForMember(ctx, group.ID, actorID)
	if err != nil {
		return nil, s.fail("ContributeFromWallet", err, "group_id", group.ID)
	}
	now := s.now()
	active := calculator.ActiveLoans(loans, now)

	allocations, err := allocate(req.Msg.Amount, req.Msg.Allocations, req.Msg.Custom, active, now)
	if err != nil {
		s.metrics.ObserveAllocationRejected()
		return nil, s.fail("ContributeFromWallet", err, "group_id", group.ID)
	}

	deltas := make(map[models.AccountKind]decimal.Decimal, len(allocations))
	var loanUpdates []models.Loan
	for _, a := range allocations {
		deltas[a.Account] = deltas[a.Account].Add(a.Amount)
		if a.Account == models.AccountLoan && a.Amount.IsPositive() {
			loanUpdates, err = repayLoans(active, a, now)
			if err != nil {
				s.metrics.ObserveAllocationRejected()
				return nil, s.fail("ContributeFromWallet", err, "group_id", group.ID)
			}
		}
	}

	txn := newTransaction(actorID, req.Msg.RequestID, models.TransactionContribution, req.Msg.Amount, models.MethodWallet, now)
	txn.MemberID = actorID
	txn.Allocations = allocations

	resp, err := s.commit(ctx, "ContributeFromWallet", events.ContributionRecorded, actorID, storage.Commit{
		GroupID:         group.ID,
		ExpectedVersion: versionOr(req.Msg.ExpectedVersion, group.Version),
		Transaction:     txn,
		Deltas:          deltas,
		ContributorID:   actorID,
		LoanUpdates:     loanUpdates,
	})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// singleAccount commits a submission that touches exactly one account.
func (s *LedgerService) singleAccount(ctx context.Context, op string, action membership.Action, sub calculator.SingleAccountSubmission, requestID string, method models.PaymentMethod, txType models.TransactionType, groupID string, expected *int64) (*LedgerResponse, error) {
	actorID, group, _, err := s.memberGroup(ctx, groupID, action)
	if err != nil {
		return nil, s.fail(op, err, "group_id", groupID)
	}
	if resp, err := s.replay(ctx, op, group.ID, requestID); err != nil || resp != nil {
		return resp, err
	}
	if err := sub.Validate(); err != nil {
		return nil, s.fail(op, err, "group_id", groupID)
	}
	if sub.MemberID != "" && group.Member(sub.MemberID) == nil {
		return nil, s.fail(op, apperr.NotFound("user %s is not a member of group %s", sub.MemberID, group.ID))
	}

	account := sub.TargetAccount()
	amount := sub.Amount
	if sub.Channel == calculator.ChannelPayMember {
		amount = amount.Neg()
	}

	txn := newTransaction(actorID, requestID, txType, sub.Amount, method, s.now())
	txn.MemberID = sub.MemberID
	txn.Reference = sub.Reference
	txn.Allocations = []models.Allocation{{Account: account, Amount: sub.Amount}}

	commit := storage.Commit{
		GroupID:         group.ID,
		ExpectedVersion: versionOr(expected, group.Version),
		Transaction:     txn,
		Deltas:          map[models.AccountKind]decimal.Decimal{account: amount},
	}
	eventType := events.FundsMoved
	if txType == models.TransactionContribution {
		commit.ContributorID = sub.MemberID
		eventType = events.ContributionRecorded
	}
	return s.commit(ctx, op, eventType, actorID, commit)
}

func (s *LedgerService) recordContribution(ctx context.Context, op string, channel calculator.Channel, action membership.Action, method models.PaymentMethod, msg *RecordContributionRequest) (*LedgerResponse, error) {
	if msg.Account == models.AccountLoan {
		return nil, s.fail(op, apperr.Validation("loan repayments must go through a wallet contribution"))
	}
	sub := calculator.SingleAccountSubmission{
		Channel:   channel,
		Amount:    msg.Amount,
		Account:   msg.Account,
		Reference: msg.Reference,
		MemberID:  msg.MemberID,
	}
	return s.singleAccount(ctx, op, action, sub, msg.RequestID, method, models.TransactionContribution, msg.GroupID, msg.ExpectedVersion)
}

// RecordCashContribution records cash a treasurer collected from a member.
func (s *LedgerService) RecordCashContribution(ctx context.Context, req *connect.Request[RecordContributionRequest]) (*connect.Response[LedgerResponse], error) {
	resp, err := s.recordContribution(ctx, "RecordCashContribution", calculator.ChannelCash, membership.ActionRecordCash, models.MethodCash, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// RecordMobileMoneyContribution records a member's mobile money payment by
// its receipt reference.
func (s *LedgerService) RecordMobileMoneyContribution(ctx context.Context, req *connect.Request[RecordContributionRequest]) (*connect.Response[LedgerResponse], error) {
	resp, err := s.recordContribution(ctx, "RecordMobileMoneyContribution", calculator.ChannelMobileMoney, membership.ActionRecordMobileMoney, models.MethodMobileMoney, req.Msg)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// FundWallet deposits money into one group account.
func (s *LedgerService) FundWallet(ctx context.Context, req *connect.Request[FundWalletRequest]) (*connect.Response[LedgerResponse], error) {
	method, err := methodOr(req.Msg.Method, models.MethodCash)
	if err != nil {
		return nil, s.fail("FundWallet", err)
	}
	sub := calculator.SingleAccountSubmission{
		Channel:   calculator.ChannelFund,
		Amount:    req.Msg.Amount,
		Account:   req.Msg.Account,
		Reference: req.Msg.Reference,
	}
	resp, err := s.singleAccount(ctx, "FundWallet", membership.ActionFund, sub, req.Msg.RequestID, method, models.TransactionPayment, req.Msg.GroupID, req.Msg.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// PayMember pays money out of one group account to a member. The account
// must hold enough to cover it.
func (s *LedgerService) PayMember(ctx context.Context, req *connect.Request[PayMemberRequest]) (*connect.Response[LedgerResponse], error) {
	method, err := methodOr(req.Msg.Method, models.MethodCash)
	if err != nil {
		return nil, s.fail("PayMember", err)
	}
	sub := calculator.SingleAccountSubmission{
		Channel:   calculator.ChannelPayMember,
		Amount:    req.Msg.Amount,
		Account:   req.Msg.Account,
		Reference: req.Msg.Reference,
		MemberID:  req.Msg.MemberID,
	}
	resp, err := s.singleAccount(ctx, "PayMember", membership.ActionPayMember, sub, req.Msg.RequestID, method, models.TransactionPayment, req.Msg.GroupID, req.Msg.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(resp), nil
}

// ListTransactions returns the group ledger, newest first.
func (s *LedgerService) ListTransactions(ctx context.Context, req *connect.Request[ListTransactionsRequest]) (*connect.Response[ListTransactionsResponse], error) {
	_, group, _, err := s.memberGroup(ctx, req.Msg.GroupID, membership.ActionViewLedger)
	if err != nil {
		return nil, s.fail("ListTransactions", err, "group_id", req.Msg.GroupID)
	}
	if req.Msg.Limit < 0 {
		return nil, s.fail("ListTransactions", apperr.Validation("limit cannot be negative"))
	}

	transactions, err := s.store.ListTransactions(ctx, group.ID, req.Msg.Limit)
	if err != nil {
		return nil, s.fail("ListTransactions", err, "group_id", group.ID)
	}
	return connect.NewResponse(&ListTransactionsResponse{Transactions: transactions}), nil
}

// installments splits total into n monthly installments starting one month
// after now. Each is rounded to cents and the last absorbs the remainder.
func installments(total decimal.Decimal, n int, now time.Time, opts schedule.Options) []models.Installment {
	each := total.Div(decimal.NewFromInt(int64(n))).Round(2)
	out := make([]models.Installment, n)
	for i := range out {
		amount := each
		if i == n-1 {
			amount = total.Sub(each.Mul(decimal.NewFromInt(int64(n - 1))))
		}
		out[i] = models.Installment{
			InstallmentNumber: i + 1,
			DueDate:           schedule.AddMonths(now, i+1, opts),
			TotalAmount:       amount,
		}
	}
	return out
}

// validateLoan checks a loan request against the group's lending policy.
func validateLoan(group *models.Group, req *CreateLoanRequest) error {
	policy := group.Settings.LoanSettings

	if !req.Principal.IsPositive() {
		return apperr.Validation("principal must be positive")
	}
	if req.RepaymentMonths < 1 {
		return apperr.Validation("repayment period must be at least one month")
	}
	if policy.MaxRepaymentPeriod > 0 && req.RepaymentMonths > policy.MaxRepaymentPeriod {
		return apperr.Validation("repayment period of %d months exceeds the maximum of %d", req.RepaymentMonths, policy.MaxRepaymentPeriod)
	}

	borrower := group.Member(req.MemberID)
	if borrower == nil {
		return apperr.NotFound("user %s is not a member of group %s", req.MemberID, group.ID)
	}
	if borrower.Status != models.StatusActive {
		return apperr.Validation("borrower membership is %s", borrower.Status)
	}
	if policy.MaxLoanMultiplier.IsPositive() {
		limit := borrower.Contributions.Total.Mul(policy.MaxLoanMultiplier)
		if req.Principal.GreaterThan(limit) {
			return apperr.Validation("principal %s exceeds the limit of %s", req.Principal.StringFixed(2), limit.StringFixed(2))
		}
	}

	seen := make(map[string]bool, len(req.Guarantors))
	for _, id := range req.Guarantors {
		if id == req.MemberID {
			return apperr.Validation("borrower cannot guarantee their own loan")
		}
		if seen[id] {
			return apperr.Validation("guarantor %s listed more than once", id)
		}
		seen[id] = true
		if g := group.Member(id); g == nil || g.Status != models.StatusActive {
			return apperr.Validation("guarantor %s is not an active member", id)
		}
	}
	if policy.RequiresGuarantors && len(seen) < policy.GuarantorsRequired {
		return apperr.Validation("loan requires %d guarantors, got %d", policy.GuarantorsRequired, len(seen))
	}
	return nil
}

// CreateLoan disburses a flat-interest loan to a member. The loan account
// is debited by the principal; repayments credit it back.
func (s *LedgerService) CreateLoan(ctx context.Context, req *connect.Request[CreateLoanRequest]) (*connect.Response[CreateLoanResponse], error) {
	actorID, group, _, err := s.memberGroup(ctx, req.Msg.GroupID, membership.ActionCreateLoan)
	if err != nil {
		return nil, s.fail("CreateLoan", err, "group_id", req.Msg.GroupID)
	}
	s.logger.Info("CreateLoan request received",
		"group_id", group.ID,
		"member_id", req.Msg.MemberID,
		"principal", req.Msg.Principal.StringFixed(2),
		"months", req.Msg.RepaymentMonths,
	)

	replayed, err := s.replay(ctx, "CreateLoan", group.ID, req.Msg.RequestID)
	if err != nil {
		return nil, err
	}
	if replayed != nil {
		return s.loanResponse(ctx, group.ID, replayed)
	}

	if err := validateLoan(group, req.Msg); err != nil {
		return nil, s.fail("CreateLoan", err, "group_id", group.ID)
	}
	method, err := methodOr(req.Msg.Method, models.MethodCash)
	if err != nil {
		return nil, s.fail("CreateLoan", err)
	}

	now := s.now()
	rate := group.Settings.LoanSettings.InterestRate
	total := req.Msg.Principal.Mul(hundred.Add(rate)).Div(hundred).Round(2)

	loan := &models.Loan{
		ID:                uuid.New().String(),
		GroupID:           group.ID,
		MemberID:          req.Msg.MemberID,
		PrincipalAmount:   req.Msg.Principal,
		InterestRate:      rate,
		Status:            models.LoanActive,
		RemainingBalance:  total,
		RepaymentSchedule: installments(total, req.Msg.RepaymentMonths, now, s.schedule),
		CreatedAt:         now.Unix(),
	}
	for _, id := range req.Msg.Guarantors {
		loan.Guarantors = append(loan.Guarantors, models.Guarantor{UserID: id})
	}

	txn := newTransaction(actorID, req.Msg.RequestID, models.TransactionLoan, req.Msg.Principal, method, now)
	txn.MemberID = req.Msg.MemberID
	txn.Reference = loan.ID
	txn.Allocations = []models.Allocation{{Account: models.AccountLoan, Amount: req.Msg.Principal, LoanIDs: []string{loan.ID}}}

	ledger, err := s.commit(ctx, "CreateLoan", events.LoanCreated, actorID, storage.Commit{
		GroupID:         group.ID,
		ExpectedVersion: versionOr(req.Msg.ExpectedVersion, group.Version),
		Transaction:     txn,
		Deltas:          map[models.AccountKind]decimal.Decimal{models.AccountLoan: req.Msg.Principal.Neg()},
		NewLoan:         loan,
	})
	if err != nil {
		return nil, err
	}

	if ledger.Replayed {
		return s.loanResponse(ctx, group.ID, ledger)
	}
	views := loanViews([]models.Loan{*loan}, now)
	return connect.NewResponse(&CreateLoanResponse{Loan: &views[0], Ledger: *ledger}), nil
}

// loanResponse rebuilds the response of a replayed CreateLoan from the loan
// the original request created.
func (s *LedgerService) loanResponse(ctx context.Context, groupID string, ledger *LedgerResponse) (*connect.Response[CreateLoanResponse], error) {
	loans, err := s.store.ListLoansForMember(ctx, groupID, ledger.Transaction.MemberID)
	if err != nil {
		return nil, s.fail("CreateLoan", err, "group_id", groupID)
	}
	for i := range loans {
		if loans[i].ID == ledger.Transaction.Reference {
			views := loanViews(loans[i:i+1], s.now())
			return connect.NewResponse(&CreateLoanResponse{Loan: &views[0], Ledger: *ledger}), nil
		}
	}
	return nil, s.fail("CreateLoan", apperr.NotFound("loan %s not found", ledger.Transaction.Reference))
}
