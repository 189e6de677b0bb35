package service

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Fully-qualified service names. Procedures are "/<service>/<method>".
const (
	AuthServiceName       = "chama.v1.AuthService"
	GroupServiceName      = "chama.v1.GroupService"
	LedgerServiceName     = "chama.v1.LedgerService"
	MembershipServiceName = "chama.v1.MembershipService"
)

func procedure(service, method string) string {
	return "/" + service + "/" + method
}

type route func(mux *http.ServeMux, opts []connect.HandlerOption)

func unary[Req, Res any](service, method string, fn func(context.Context, *connect.Request[Req]) (*connect.Response[Res], error)) route {
	return func(mux *http.ServeMux, opts []connect.HandlerOption) {
		path := procedure(service, method)
		mux.Handle(path, connect.NewUnaryHandler(path, fn, opts...))
	}
}

func newServiceHandler(service string, opts []connect.HandlerOption, routes ...route) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)
	mux := http.NewServeMux()
	for _, r := range routes {
		r(mux, opts)
	}
	return "/" + service + "/", mux
}

// NewAuthServiceHandler returns the mount path and handler for the auth service.
func NewAuthServiceHandler(svc *AuthService, opts ...connect.HandlerOption) (string, http.Handler) {
	return newServiceHandler(AuthServiceName, opts,
		unary(AuthServiceName, "Register", svc.Register),
		unary(AuthServiceName, "Login", svc.Login),
		unary(AuthServiceName, "GetCurrentUser", svc.GetCurrentUser),
	)
}

// NewGroupServiceHandler returns the mount path and handler for the group service.
func NewGroupServiceHandler(svc *GroupService, opts ...connect.HandlerOption) (string, http.Handler) {
	return newServiceHandler(GroupServiceName, opts,
		unary(GroupServiceName, "CreateGroup", svc.CreateGroup),
		unary(GroupServiceName, "GetGroup", svc.GetGroup),
		unary(GroupServiceName, "ListMyGroups", svc.ListMyGroups),
		unary(GroupServiceName, "UpdateGroupAccounts", svc.UpdateGroupAccounts),
		unary(GroupServiceName, "UpdateGroupSettings", svc.UpdateGroupSettings),
		unary(GroupServiceName, "GetGroupStats", svc.GetGroupStats),
		unary(GroupServiceName, "GetUpcomingEvents", svc.GetUpcomingEvents),
	)
}

// NewLedgerServiceHandler returns the mount path and handler for the ledger service.
func NewLedgerServiceHandler(svc *LedgerService, opts ...connect.HandlerOption) (string, http.Handler) {
	return newServiceHandler(LedgerServiceName, opts,
		unary(LedgerServiceName, "PreviewAllocation", svc.PreviewAllocation),
		unary(LedgerServiceName, "ContributeFromWallet", svc.ContributeFromWallet),
		unary(LedgerServiceName, "RecordCashContribution", svc.RecordCashContribution),
		unary(LedgerServiceName, "RecordMobileMoneyContribution", svc.RecordMobileMoneyContribution),
		unary(LedgerServiceName, "FundWallet", svc.FundWallet),
		unary(LedgerServiceName, "PayMember", svc.PayMember),
		unary(LedgerServiceName, "ListTransactions", svc.ListTransactions),
		unary(LedgerServiceName, "CreateLoan", svc.CreateLoan),
		unary(LedgerServiceName, "ListLoans", svc.ListLoans),
	)
}

// NewMembershipServiceHandler returns the mount path and handler for the membership service.
func NewMembershipServiceHandler(svc *MembershipService, opts ...connect.HandlerOption) (string, http.Handler) {
	return newServiceHandler(MembershipServiceName, opts,
		unary(MembershipServiceName, "AddGroupMembers", svc.AddGroupMembers),
		unary(MembershipServiceName, "InviteMember", svc.InviteMember),
		unary(MembershipServiceName, "ListMyInvitations", svc.ListMyInvitations),
		unary(MembershipServiceName, "RespondToInvitation", svc.RespondToInvitation),
		unary(MembershipServiceName, "RequestToJoin", svc.RequestToJoin),
		unary(MembershipServiceName, "GetJoinRequests", svc.GetJoinRequests),
		unary(MembershipServiceName, "ReviewJoinRequest", svc.ReviewJoinRequest),
		unary(MembershipServiceName, "UpdateGroupMember", svc.UpdateGroupMember),
		unary(MembershipServiceName, "RemoveGroupMember", svc.RemoveGroupMember),
		unary(MembershipServiceName, "LeaveGroup", svc.LeaveGroup),
		unary(MembershipServiceName, "TransferOwnership", svc.TransferOwnership),
	)
}

func newClient[Req, Res any](httpClient connect.HTTPClient, baseURL, service, method string, opts []connect.ClientOption) *connect.Client[Req, Res] {
	return connect.NewClient[Req, Res](httpClient, strings.TrimRight(baseURL, "/")+procedure(service, method), opts...)
}

func clientOptions(opts []connect.ClientOption) []connect.ClientOption {
	return append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
}

// AuthServiceClient calls the auth service.
type AuthServiceClient struct {
	register       *connect.Client[RegisterRequest, RegisterResponse]
	login          *connect.Client[LoginRequest, LoginResponse]
	getCurrentUser *connect.Client[GetCurrentUserRequest, GetCurrentUserResponse]
}

// NewAuthServiceClient creates a client for the auth service at baseURL.
func NewAuthServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *AuthServiceClient {
	opts = clientOptions(opts)
	return &AuthServiceClient{
		register:       newClient[RegisterRequest, RegisterResponse](httpClient, baseURL, AuthServiceName, "Register", opts),
		login:          newClient[LoginRequest, LoginResponse](httpClient, baseURL, AuthServiceName, "Login", opts),
		getCurrentUser: newClient[GetCurrentUserRequest, GetCurrentUserResponse](httpClient, baseURL, AuthServiceName, "GetCurrentUser", opts),
	}
}

func (c *AuthServiceClient) Register(ctx context.Context, req *connect.Request[RegisterRequest]) (*connect.Response[RegisterResponse], error) {
	return c.register.CallUnary(ctx, req)
}

func (c *AuthServiceClient) Login(ctx context.Context, req *connect.Request[LoginRequest]) (*connect.Response[LoginResponse], error) {
	return c.login.CallUnary(ctx, req)
}

func (c *AuthServiceClient) GetCurrentUser(ctx context.Context, req *connect.Request[GetCurrentUserRequest]) (*connect.Response[GetCurrentUserResponse], error) {
	return c.getCurrentUser.CallUnary(ctx, req)
}

// GroupServiceClient calls the group service.
type GroupServiceClient struct {
	createGroup         *connect.Client[CreateGroupRequest, GroupResponse]
	getGroup            *connect.Client[GetGroupRequest, GroupResponse]
	listMyGroups        *connect.Client[ListMyGroupsRequest, ListMyGroupsResponse]
	updateGroupAccounts *connect.Client[UpdateGroupAccountsRequest, GroupResponse]
	updateGroupSettings *connect.Client[UpdateGroupSettingsRequest, GroupResponse]
	getGroupStats       *connect.Client[GetGroupStatsRequest, GetGroupStatsResponse]
	getUpcomingEvents   *connect.Client[GetUpcomingEventsRequest, GetUpcomingEventsResponse]
}

// NewGroupServiceClient creates a client for the group service at baseURL.
func NewGroupServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *GroupServiceClient {
	opts = clientOptions(opts)
	return &GroupServiceClient{
		createGroup:         newClient[CreateGroupRequest, GroupResponse](httpClient, baseURL, GroupServiceName, "CreateGroup", opts),
		getGroup:            newClient[GetGroupRequest, GroupResponse](httpClient, baseURL, GroupServiceName, "GetGroup", opts),
		listMyGroups:        newClient[ListMyGroupsRequest, ListMyGroupsResponse](httpClient, baseURL, GroupServiceName, "ListMyGroups", opts),
		updateGroupAccounts: newClient[UpdateGroupAccountsRequest, GroupResponse](httpClient, baseURL, GroupServiceName, "UpdateGroupAccounts", opts),
		updateGroupSettings: newClient[UpdateGroupSettingsRequest, GroupResponse](httpClient, baseURL, GroupServiceName, "UpdateGroupSettings", opts),
		getGroupStats:       newClient[GetGroupStatsRequest, GetGroupStatsResponse](httpClient, baseURL, GroupServiceName, "GetGroupStats", opts),
		getUpcomingEvents:   newClient[GetUpcomingEventsRequest, GetUpcomingEventsResponse](httpClient, baseURL, GroupServiceName, "GetUpcomingEvents", opts),
	}
}

func (c *GroupServiceClient) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.createGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	return c.getGroup.CallUnary(ctx, req)
}

func (c *GroupServiceClient) ListMyGroups(ctx context.Context, req *connect.Request[ListMyGroupsRequest]) (*connect.Response[ListMyGroupsResponse], error) {
	return c.listMyGroups.CallUnary(ctx, req)
}

func (c *GroupServiceClient) UpdateGroupAccounts(ctx context.Context, req *connect.Request[UpdateGroupAccountsRequest]) (*connect.Response[GroupResponse], error) {
	return c.updateGroupAccounts.CallUnary(ctx, req)
}

func (c *GroupServiceClient) UpdateGroupSettings(ctx context.Context, req *connect.Request[UpdateGroupSettingsRequest]) (*connect.Response[GroupResponse], error) {
	return c.updateGroupSettings.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetGroupStats(ctx context.Context, req *connect.Request[GetGroupStatsRequest]) (*connect.Response[GetGroupStatsResponse], error) {
	return c.getGroupStats.CallUnary(ctx, req)
}

func (c *GroupServiceClient) GetUpcomingEvents(ctx context.Context, req *connect.Request[GetUpcomingEventsRequest]) (*connect.Response[GetUpcomingEventsResponse], error) {
	return c.getUpcomingEvents.CallUnary(ctx, req)
}

// LedgerServiceClient calls the ledger service.
type LedgerServiceClient struct {
	previewAllocation             *connect.Client[PreviewAllocationRequest, PreviewAllocationResponse]
	contributeFromWallet          *connect.Client[ContributeFromWalletRequest, LedgerResponse]
	recordCashContribution        *connect.Client[RecordContributionRequest, LedgerResponse]
	recordMobileMoneyContribution *connect.Client[RecordContributionRequest, LedgerResponse]
	fundWallet                    *connect.Client[FundWalletRequest, LedgerResponse]
	payMember                     *connect.Client[PayMemberRequest, LedgerResponse]
	listTransactions              *connect.Client[ListTransactionsRequest, ListTransactionsResponse]
	createLoan                    *connect.Client[CreateLoanRequest, CreateLoanResponse]
	listLoans                     *connect.Client[ListLoansRequest, ListLoansResponse]
}

// NewLedgerServiceClient creates a client for the ledger service at baseURL.
func NewLedgerServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *LedgerServiceClient {
	opts = clientOptions(opts)
	return &LedgerServiceClient{
		previewAllocation:             newClient[PreviewAllocationRequest, PreviewAllocationResponse](httpClient, baseURL, LedgerServiceName, "PreviewAllocation", opts),
		contributeFromWallet:          newClient[ContributeFromWalletRequest, LedgerResponse](httpClient, baseURL, LedgerServiceName, "ContributeFromWallet", opts),
		recordCashContribution:        newClient[RecordContributionRequest, LedgerResponse](httpClient, baseURL, LedgerServiceName, "RecordCashContribution", opts),
		recordMobileMoneyContribution: newClient[RecordContributionRequest, LedgerResponse](httpClient, baseURL, LedgerServiceName, "RecordMobileMoneyContribution", opts),
		fundWallet:                    newClient[FundWalletRequest, LedgerResponse](httpClient, baseURL, LedgerServiceName, "FundWallet", opts),
		payMember:                     newClient[PayMemberRequest, LedgerResponse](httpClient, baseURL, LedgerServiceName, "PayMember", opts),
		listTransactions:              newClient[ListTransactionsRequest, ListTransactionsResponse](httpClient, baseURL, LedgerServiceName, "ListTransactions", opts),
		createLoan:                    newClient[CreateLoanRequest, CreateLoanResponse](httpClient, baseURL, LedgerServiceName, "CreateLoan", opts),
		listLoans:                     newClient[ListLoansRequest, ListLoansResponse](httpClient, baseURL, LedgerServiceName, "ListLoans", opts),
	}
}

func (c *LedgerServiceClient) PreviewAllocation(ctx context.Context, req *connect.Request[PreviewAllocationRequest]) (*connect.Response[PreviewAllocationResponse], error) {
	return c.previewAllocation.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ContributeFromWallet(ctx context.Context, req *connect.Request[ContributeFromWalletRequest]) (*connect.Response[LedgerResponse], error) {
	return c.contributeFromWallet.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) RecordCashContribution(ctx context.Context, req *connect.Request[RecordContributionRequest]) (*connect.Response[LedgerResponse], error) {
	return c.recordCashContribution.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) RecordMobileMoneyContribution(ctx context.Context, req *connect.Request[RecordContributionRequest]) (*connect.Response[LedgerResponse], error) {
	return c.recordMobileMoneyContribution.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) FundWallet(ctx context.Context, req *connect.Request[FundWalletRequest]) (*connect.Response[LedgerResponse], error) {
	return c.fundWallet.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) PayMember(ctx context.Context, req *connect.Request[PayMemberRequest]) (*connect.Response[LedgerResponse], error) {
	return c.payMember.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListTransactions(ctx context.Context, req *connect.Request[ListTransactionsRequest]) (*connect.Response[ListTransactionsResponse], error) {
	return c.listTransactions.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) CreateLoan(ctx context.Context, req *connect.Request[CreateLoanRequest]) (*connect.Response[CreateLoanResponse], error) {
	return c.createLoan.CallUnary(ctx, req)
}

func (c *LedgerServiceClient) ListLoans(ctx context.Context, req *connect.Request[ListLoansRequest]) (*connect.Response[ListLoansResponse], error) {
	return c.listLoans.CallUnary(ctx, req)
}

// MembershipServiceClient calls the membership service.
type MembershipServiceClient struct {
	addGroupMembers     *connect.Client[AddGroupMembersRequest, MembershipResponse]
	inviteMember        *connect.Client[InviteMemberRequest, InviteMemberResponse]
	listMyInvitations   *connect.Client[ListMyInvitationsRequest, ListMyInvitationsResponse]
	respondToInvitation *connect.Client[RespondToInvitationRequest, RespondToInvitationResponse]
	requestToJoin       *connect.Client[RequestToJoinRequest, RequestToJoinResponse]
	getJoinRequests     *connect.Client[GetJoinRequestsRequest, GetJoinRequestsResponse]
	reviewJoinRequest   *connect.Client[ReviewJoinRequestRequest, ReviewJoinRequestResponse]
	updateGroupMember   *connect.Client[UpdateGroupMemberRequest, MembershipResponse]
	removeGroupMember   *connect.Client[RemoveGroupMemberRequest, MembershipResponse]
	leaveGroup          *connect.Client[LeaveGroupRequest, LeaveGroupResponse]
	transferOwnership   *connect.Client[TransferOwnershipRequest, MembershipResponse]
}

// NewMembershipServiceClient creates a client for the membership service at baseURL.
func NewMembershipServiceClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *MembershipServiceClient {
	opts = clientOptions(opts)
	return &MembershipServiceClient{
		addGroupMembers:     newClient[AddGroupMembersRequest, MembershipResponse](httpClient, baseURL, MembershipServiceName, "AddGroupMembers", opts),
		inviteMember:        newClient[InviteMemberRequest, InviteMemberResponse](httpClient, baseURL, MembershipServiceName, "InviteMember", opts),
		listMyInvitations:   newClient[ListMyInvitationsRequest, ListMyInvitationsResponse](httpClient, baseURL, MembershipServiceName, "ListMyInvitations", opts),
		respondToInvitation: newClient[RespondToInvitationRequest, RespondToInvitationResponse](httpClient, baseURL, MembershipServiceName, "RespondToInvitation", opts),
		requestToJoin:       newClient[RequestToJoinRequest, RequestToJoinResponse](httpClient, baseURL, MembershipServiceName, "RequestToJoin", opts),
		getJoinRequests:     newClient[GetJoinRequestsRequest, GetJoinRequestsResponse](httpClient, baseURL, MembershipServiceName, "GetJoinRequests", opts),
		reviewJoinRequest:   newClient[ReviewJoinRequestRequest, ReviewJoinRequestResponse](httpClient, baseURL, MembershipServiceName, "ReviewJoinRequest", opts),
		updateGroupMember:   newClient[UpdateGroupMemberRequest, MembershipResponse](httpClient, baseURL, MembershipServiceName, "UpdateGroupMember", opts),
		removeGroupMember:   newClient[RemoveGroupMemberRequest, MembershipResponse](httpClient, baseURL, MembershipServiceName, "RemoveGroupMember", opts),
		leaveGroup:          newClient[LeaveGroupRequest, LeaveGroupResponse](httpClient, baseURL, MembershipServiceName, "LeaveGroup", opts),
		transferOwnership:   newClient[TransferOwnershipRequest, MembershipResponse](httpClient, baseURL, MembershipServiceName, "TransferOwnership", opts),
	}
}

func (c *MembershipServiceClient) AddGroupMembers(ctx context.Context, req *connect.Request[AddGroupMembersRequest]) (*connect.Response[MembershipResponse], error) {
	return c.addGroupMembers.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteMemberResponse], error) {
	return c.inviteMember.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) ListMyInvitations(ctx context.Context, req *connect.Request[ListMyInvitationsRequest]) (*connect.Response[ListMyInvitationsResponse], error) {
	return c.listMyInvitations.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) RespondToInvitation(ctx context.Context, req *connect.Request[RespondToInvitationRequest]) (*connect.Response[RespondToInvitationResponse], error) {
	return c.respondToInvitation.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) RequestToJoin(ctx context.Context, req *connect.Request[RequestToJoinRequest]) (*connect.Response[RequestToJoinResponse], error) {
	return c.requestToJoin.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) GetJoinRequests(ctx context.Context, req *connect.Request[GetJoinRequestsRequest]) (*connect.Response[GetJoinRequestsResponse], error) {
	return c.getJoinRequests.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) ReviewJoinRequest(ctx context.Context, req *connect.Request[ReviewJoinRequestRequest]) (*connect.Response[ReviewJoinRequestResponse], error) {
	return c.reviewJoinRequest.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) UpdateGroupMember(ctx context.Context, req *connect.Request[UpdateGroupMemberRequest]) (*connect.Response[MembershipResponse], error) {
	return c.updateGroupMember.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) RemoveGroupMember(ctx context.Context, req *connect.Request[RemoveGroupMemberRequest]) (*connect.Response[MembershipResponse], error) {
	return c.removeGroupMember.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	return c.leaveGroup.CallUnary(ctx, req)
}

func (c *MembershipServiceClient) TransferOwnership(ctx context.Context, req *connect.Request[TransferOwnershipRequest]) (*connect.Response[MembershipResponse], error) {
	return c.transferOwnership.CallUnary(ctx, req)
}
