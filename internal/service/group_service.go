package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/calculator"
	"github.com/mmynk/chamaledger/internal/events"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/schedule"
	"github.com/mmynk/chamaledger/internal/storage"
)

// GroupService implements the Connect GroupService.
type GroupService struct {
	base
}

// NewGroupService creates a new GroupService with the given storage backend.
func NewGroupService(store storage.Store, opts ...Option) *GroupService {
	return &GroupService{base: newBase(store, opts)}
}

// CreateGroup creates a group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[CreateGroupRequest]) (*connect.Response[GroupResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("CreateGroup request received",
		"name", req.Msg.Name,
		"group_type", req.Msg.GroupType,
		"user_id", actorID,
	)

	name := strings.TrimSpace(req.Msg.Name)
	if name == "" {
		return nil, s.fail("CreateGroup", apperr.Validation("group name is required"))
	}
	groupType := req.Msg.GroupType
	if groupType == "" {
		groupType = models.GroupTypeChama
	}
	if !groupType.Valid() {
		return nil, s.fail("CreateGroup", apperr.Validation("unknown group type %q", groupType))
	}
	if err := schedule.ValidateSettings(req.Msg.Settings); err != nil {
		return nil, s.fail("CreateGroup", apperr.Validation("%v", err))
	}

	now := s.now()
	group := models.NewGroup(name, groupType, req.Msg.Settings)
	group.Public = req.Msg.Public
	group.CreatedBy = actorID
	group.CreatedAt = now.Unix()
	group.Members = []models.Membership{{
		UserID:   actorID,
		Role:     models.RoleOwner,
		Status:   models.StatusActive,
		JoinedAt: now.Unix(),
	}}

	if err := s.store.CreateGroup(ctx, group); err != nil {
		return nil, s.fail("CreateGroup", err)
	}

	s.logger.Info("Group created", "group_id", group.ID)
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// GetGroup returns a group to its members, or to anyone if it is public.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[GetGroupRequest]) (*connect.Response[GroupResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.loadGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("GetGroup", err, "group_id", req.Msg.GroupID)
	}
	if group.Member(actorID) == nil && !group.Public {
		return nil, s.fail("GetGroup", apperr.Forbidden("user %s is not a member of group %s", actorID, group.ID))
	}
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// ListMyGroups returns every group the caller belongs to.
func (s *GroupService) ListMyGroups(ctx context.Context, req *connect.Request[ListMyGroupsRequest]) (*connect.Response[ListMyGroupsResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, actorID)
	if err != nil {
		return nil, s.fail("ListMyGroups", err, "user_id", actorID)
	}

	s.logger.Info("ListMyGroups successful", "user_id", actorID, "count", len(groups))
	return connect.NewResponse(&ListMyGroupsResponse{Groups: groups}), nil
}

// UpdateGroupAccounts overrides account balances. It is the admin escape
// hatch for correcting a ledger and leaves no transaction behind.
func (s *GroupService) UpdateGroupAccounts(ctx context.Context, req *connect.Request[UpdateGroupAccountsRequest]) (*connect.Response[GroupResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("UpdateGroupAccounts request received",
		"group_id", req.Msg.GroupID,
		"accounts", len(req.Msg.Balances),
	)

	group, err := s.loadGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("UpdateGroupAccounts", err, "group_id", req.Msg.GroupID)
	}
	if _, err := membership.RequireActor(group, actorID, membership.ActionUpdateAccounts); err != nil {
		return nil, s.fail("UpdateGroupAccounts", err, "group_id", group.ID)
	}
	if len(req.Msg.Balances) == 0 {
		return nil, s.fail("UpdateGroupAccounts", apperr.Validation("no balances to update"))
	}

	version, err := s.store.SetAccountBalances(ctx, group.ID, versionOr(req.Msg.ExpectedVersion, group.Version), req.Msg.Balances)
	if err != nil {
		return nil, s.fail("UpdateGroupAccounts", err, "group_id", group.ID)
	}

	updated, err := s.store.GetGroup(ctx, group.ID)
	if err != nil {
		return nil, s.fail("UpdateGroupAccounts", err, "group_id", group.ID)
	}
	s.publish(ctx, events.New(events.AccountsOverridden, group.ID, actorID, version, s.now(), req.Msg.Balances))

	s.logger.Info("Group accounts updated", "group_id", group.ID, "version", version)
	return connect.NewResponse(&GroupResponse{Group: updated}), nil
}

// UpdateGroupSettings replaces the schedules, loan policy and visibility.
func (s *GroupService) UpdateGroupSettings(ctx context.Context, req *connect.Request[UpdateGroupSettingsRequest]) (*connect.Response[GroupResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.loadGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("UpdateGroupSettings", err, "group_id", req.Msg.GroupID)
	}
	if _, err := membership.RequireActor(group, actorID, membership.ActionUpdateSettings); err != nil {
		return nil, s.fail("UpdateGroupSettings", err, "group_id", group.ID)
	}
	if err := schedule.ValidateSettings(req.Msg.Settings); err != nil {
		return nil, s.fail("UpdateGroupSettings", apperr.Validation("%v", err))
	}

	public := group.Public
	if req.Msg.Public != nil {
		public = *req.Msg.Public
	}
	version, err := s.store.UpdateGroupSettings(ctx, group.ID, versionOr(req.Msg.ExpectedVersion, group.Version), req.Msg.Settings, public)
	if err != nil {
		return nil, s.fail("UpdateGroupSettings", err, "group_id", group.ID)
	}

	group.Settings = req.Msg.Settings
	group.Public = public
	group.Version = version

	s.logger.Info("Group settings updated", "group_id", group.ID, "version", version)
	return connect.NewResponse(&GroupResponse{Group: group}), nil
}

// GetGroupStats computes the dashboard aggregates and per-member summaries.
func (s *GroupService) GetGroupStats(ctx context.Context, req *connect.Request[GetGroupStatsRequest]) (*connect.Response[GetGroupStatsResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	group, err := s.loadGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("GetGroupStats", err, "group_id", req.Msg.GroupID)
	}
	if _, err := membership.RequireActor(group, actorID, membership.ActionViewLedger); err != nil {
		return nil, s.fail("GetGroupStats", err, "group_id", group.ID)
	}

	transactions, err := s.store.ListTransactions(ctx, group.ID, 0)
	if err != nil {
		return nil, s.fail("GetGroupStats", err, "group_id", group.ID)
	}

	return connect.NewResponse(&GetGroupStatsResponse{
		Stats:   calculator.GroupStats(group, transactions, s.now()),
		Members: calculator.MemberSummaries(group),
	}), nil
}

// GetUpcomingEvents projects the caller's next loan installments,
// contribution due dates and meetings across all their groups.
func (s *GroupService) GetUpcomingEvents(ctx context.Context, req *connect.Request[GetUpcomingEventsRequest]) (*connect.Response[GetUpcomingEventsResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	groups, err := s.store.ListGroupsForUser(ctx, actorID)
	if err != nil {
		return nil, s.fail("GetUpcomingEvents", err, "user_id", actorID)
	}
	loans, err := s.store.ListLoansForMember(ctx, "", actorID)
	if err != nil {
		return nil, s.fail("GetUpcomingEvents", err, "user_id", actorID)
	}

	upcoming := schedule.Project(s.now(), loans, groups, s.schedule)
	return connect.NewResponse(&GetUpcomingEventsResponse{Events: upcoming}), nil
}
