package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmynk/chamaledger/internal/calculator"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/schedule"
)

// Auth

type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	CreatedAt   int64  `json:"createdAt"`
}

func userView(u *models.User) *User {
	return &User{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		CreatedAt:   u.CreatedAt,
	}
}

type RegisterRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Password    string `json:"password"`
}

type RegisterResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type LoginRequest struct {
	// Login is an email address or a username.
	Login    string `json:"login"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

type GetCurrentUserRequest struct{}

type GetCurrentUserResponse struct {
	User *User `json:"user"`
}

// Groups

type CreateGroupRequest struct {
	Name      string           `json:"name"`
	GroupType models.GroupType `json:"groupType"`
	Public    bool             `json:"public"`
	Settings  models.Settings  `json:"settings"`
}

type GroupResponse struct {
	Group *models.Group `json:"group"`
}

type GetGroupRequest struct {
	GroupID string `json:"groupId"`
}

type ListMyGroupsRequest struct{}

type ListMyGroupsResponse struct {
	Groups []*models.Group `json:"groups"`
}

type UpdateGroupAccountsRequest struct {
	GroupID         string                                 `json:"groupId"`
	ExpectedVersion *int64                                 `json:"expectedVersion,omitempty"`
	Balances        map[models.AccountKind]decimal.Decimal `json:"balances"`
}

type UpdateGroupSettingsRequest struct {
	GroupID         string          `json:"groupId"`
	ExpectedVersion *int64          `json:"expectedVersion,omitempty"`
	Settings        models.Settings `json:"settings"`
	Public          *bool           `json:"public,omitempty"`
}

type GetGroupStatsRequest struct {
	GroupID string `json:"groupId"`
}

type GetGroupStatsResponse struct {
	Stats   calculator.Stats           `json:"stats"`
	Members []calculator.MemberSummary `json:"members"`
}

type GetUpcomingEventsRequest struct{}

type GetUpcomingEventsResponse struct {
	Events []schedule.Event `json:"events"`
}

// Ledger

// Loan is a loan with its next due installment resolved.
type Loan struct {
	models.Loan
	NextPaymentDue *models.Installment `json:"nextPaymentDue"`
}

func loanViews(loans []models.Loan, now time.Time) []Loan {
	views := make([]Loan, len(loans))
	for i := range loans {
		views[i] = Loan{Loan: loans[i]}
		if next := loans[i].NextPaymentDue(now); next != nil {
			inst := *next
			views[i].NextPaymentDue = &inst
		}
	}
	return views
}

type PreviewAllocationRequest struct {
	GroupID string                  `json:"groupId"`
	Amount  decimal.Decimal         `json:"amount"`
	Custom  *calculator.CustomSplit `json:"custom,omitempty"`
}

type PreviewAllocationResponse struct {
	Allocations []models.Allocation `json:"allocations"`
	ActiveLoans []Loan              `json:"activeLoans"`
}

type ContributeFromWalletRequest struct {
	GroupID   string          `json:"groupId"`
	RequestID string          `json:"requestId"`
	Amount    decimal.Decimal `json:"amount"`

	// Allocations, when given, are validated and used as-is. Otherwise
	// Custom or the default policy computes them.
	Allocations []models.Allocation     `json:"allocations,omitempty"`
	Custom      *calculator.CustomSplit `json:"custom,omitempty"`

	ExpectedVersion *int64 `json:"expectedVersion,omitempty"`
}

type RecordContributionRequest struct {
	GroupID         string             `json:"groupId"`
	RequestID       string             `json:"requestId"`
	MemberID        string             `json:"memberId"`
	Amount          decimal.Decimal    `json:"amount"`
	Account         models.AccountKind `json:"account,omitempty"`
	Reference       string             `json:"reference,omitempty"`
	ExpectedVersion *int64             `json:"expectedVersion,omitempty"`
}

type FundWalletRequest struct {
	GroupID         string               `json:"groupId"`
	RequestID       string               `json:"requestId"`
	Amount          decimal.Decimal      `json:"amount"`
	Account         models.AccountKind   `json:"account"`
	Method          models.PaymentMethod `json:"method,omitempty"`
	Reference       string               `json:"reference,omitempty"`
	ExpectedVersion *int64               `json:"expectedVersion,omitempty"`
}

type PayMemberRequest struct {
	GroupID         string               `json:"groupId"`
	RequestID       string               `json:"requestId"`
	MemberID        string               `json:"memberId"`
	Amount          decimal.Decimal      `json:"amount"`
	Account         models.AccountKind   `json:"account"`
	Method          models.PaymentMethod `json:"method,omitempty"`
	Reference       string               `json:"reference,omitempty"`
	ExpectedVersion *int64               `json:"expectedVersion,omitempty"`
}

// LedgerResponse is the outcome of any money movement.
type LedgerResponse struct {
	Transaction models.Transaction                    `json:"transaction"`
	Accounts    map[models.AccountKind]models.Account `json:"accounts"`
	Version     int64                                 `json:"version"`
	Replayed    bool                                  `json:"replayed"`
}

type ListTransactionsRequest struct {
	GroupID string `json:"groupId"`
	Limit   int    `json:"limit,omitempty"`
}

type ListTransactionsResponse struct {
	Transactions []models.Transaction `json:"transactions"`
}

type CreateLoanRequest struct {
	GroupID         string               `json:"groupId"`
	RequestID       string               `json:"requestId"`
	MemberID        string               `json:"memberId"`
	Principal       decimal.Decimal      `json:"principal"`
	RepaymentMonths int                  `json:"repaymentMonths"`
	Guarantors      []string             `json:"guarantors,omitempty"`
	Method          models.PaymentMethod `json:"method,omitempty"`
	ExpectedVersion *int64               `json:"expectedVersion,omitempty"`
}

type CreateLoanResponse struct {
	Loan   *Loan          `json:"loan"`
	Ledger LedgerResponse `json:"ledger"`
}

type ListLoansRequest struct {
	GroupID string `json:"groupId"`

	// MemberID narrows the list to one borrower. Members without lending
	// rights only ever see their own loans.
	MemberID string `json:"memberId,omitempty"`
}

type ListLoansResponse struct {
	Loans []Loan `json:"loans"`
}

// Membership

type AddGroupMembersRequest struct {
	GroupID string                 `json:"groupId"`
	Members []membership.NewMember `json:"members"`
}

// MembershipResponse returns the group after a membership change.
type MembershipResponse struct {
	Group *models.Group `json:"group"`
}

type InviteMemberRequest struct {
	GroupID string `json:"groupId"`

	// Invitee is a username or an email address.
	Invitee string      `json:"invitee"`
	Role    models.Role `json:"role,omitempty"`
}

type InviteMemberResponse struct {
	Invitation models.Invitation `json:"invitation"`
}

type ListMyInvitationsRequest struct{}

// Invitation is a pending invitation with the inviting group's name.
type Invitation struct {
	models.Invitation
	GroupName string `json:"groupName"`
}

type ListMyInvitationsResponse struct {
	Invitations []Invitation `json:"invitations"`
}

type RespondToInvitationRequest struct {
	InvitationID string `json:"invitationId"`
	Accept       bool   `json:"accept"`
}

type RespondToInvitationResponse struct {
	Invitation models.Invitation `json:"invitation"`
}

type RequestToJoinRequest struct {
	GroupID string `json:"groupId"`
	Message string `json:"message,omitempty"`
}

type RequestToJoinResponse struct {
	JoinRequest models.JoinRequest `json:"joinRequest"`
}

type GetJoinRequestsRequest struct {
	GroupID string `json:"groupId"`
}

type GetJoinRequestsResponse struct {
	JoinRequests []models.JoinRequest `json:"joinRequests"`
}

type ReviewJoinRequestRequest struct {
	GroupID   string `json:"groupId"`
	RequestID string `json:"requestId"`
	Approve   bool   `json:"approve"`
}

type ReviewJoinRequestResponse struct {
	JoinRequest models.JoinRequest `json:"joinRequest"`
}

type UpdateGroupMemberRequest struct {
	GroupID string               `json:"groupId"`
	UserID  string               `json:"userId"`
	Role    *models.Role         `json:"role,omitempty"`
	Status  *models.MemberStatus `json:"status,omitempty"`
}

type RemoveGroupMemberRequest struct {
	GroupID string `json:"groupId"`
	UserID  string `json:"userId"`
}

type LeaveGroupRequest struct {
	GroupID string `json:"groupId"`
}

type LeaveGroupResponse struct{}

type TransferOwnershipRequest struct {
	GroupID    string `json:"groupId"`
	NewOwnerID string `json:"newOwnerId"`
}
