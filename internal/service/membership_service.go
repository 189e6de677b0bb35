package service

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/events"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/storage"
)

// MembershipService implements invitations, join requests and member
// administration on top of the membership state machine.
type MembershipService struct {
	base
}

// NewMembershipService creates a new MembershipService with the given storage backend.
func NewMembershipService(store storage.Store, opts ...Option) *MembershipService {
	return &MembershipService{base: newBase(store, opts)}
}

// membershipChange is the payload of a MembershipChanged event.
type membershipChange struct {
	Action   membership.Action   `json:"action"`
	Upserted []models.Membership `json:"upserted,omitempty"`
	Removed  []string            `json:"removed,omitempty"`
}

// snapshot reads the group and its pending requests for planning.
func (s *MembershipService) snapshot(ctx context.Context, groupID string) (membership.Snapshot, error) {
	group, err := s.loadGroup(ctx, groupID)
	if err != nil {
		return membership.Snapshot{}, err
	}
	invitations, err := s.store.ListPendingInvitations(ctx, group.ID)
	if err != nil {
		return membership.Snapshot{}, err
	}
	requests, err := s.store.ListPendingJoinRequests(ctx, group.ID)
	if err != nil {
		return membership.Snapshot{}, err
	}
	return membership.Snapshot{
		Group:               group,
		PendingInvitations:  invitations,
		PendingJoinRequests: requests,
	}, nil
}

// commit writes a planned effect against the snapshot's version.
func (s *MembershipService) commit(ctx context.Context, op string, snap membership.Snapshot, actorID string, effect membership.Effect) error {
	version, err := s.store.ApplyMembershipEffect(ctx, snap.Group.ID, snap.Group.Version, effect)
	if err != nil {
		return s.fail(op, err, "group_id", snap.Group.ID)
	}

	s.metrics.ObserveTransition(string(effect.Action))
	s.publish(ctx, events.New(events.MembershipChanged, snap.Group.ID, actorID, version, s.now(), membershipChange{
		Action:   effect.Action,
		Upserted: effect.Upsert,
		Removed:  effect.Delete,
	}))
	s.logger.Info("Membership changed",
		"group_id", snap.Group.ID,
		"action", effect.Action,
		"actor_id", actorID,
		"version", version,
	)
	return nil
}

// run plans cmd against a fresh snapshot of groupID and commits it.
func (s *MembershipService) run(ctx context.Context, op, groupID string, cmd membership.Command) (string, membership.Effect, error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return "", membership.Effect{}, err
	}
	snap, err := s.snapshot(ctx, groupID)
	if err != nil {
		return "", membership.Effect{}, s.fail(op, err, "group_id", groupID)
	}
	effect, err := membership.Plan(cmd, snap, actorID, s.now())
	if err != nil {
		return "", membership.Effect{}, s.fail(op, err, "group_id", groupID)
	}
	if err := s.commit(ctx, op, snap, actorID, effect); err != nil {
		return "", membership.Effect{}, err
	}
	return actorID, effect, nil
}

func (s *MembershipService) groupResponse(ctx context.Context, op, groupID string) (*connect.Response[MembershipResponse], error) {
	group, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return nil, s.fail(op, err, "group_id", groupID)
	}
	return connect.NewResponse(&MembershipResponse{Group: group}), nil
}

// AddGroupMembers adds registered users directly. Either every entry is
// added or none is, and the error lists each rejected entry.
func (s *MembershipService) AddGroupMembers(ctx context.Context, req *connect.Request[AddGroupMembersRequest]) (*connect.Response[MembershipResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Info("AddGroupMembers request received", "group_id", req.Msg.GroupID, "members_count", len(req.Msg.Members))

	snap, err := s.snapshot(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("AddGroupMembers", err, "group_id", req.Msg.GroupID)
	}
	effect, planErr := membership.Plan(membership.AddMembers{Members: req.Msg.Members}, snap, actorID, s.now())
	if planErr != nil {
		if _, ok := membership.AsBulkError(planErr); !ok {
			return nil, s.fail("AddGroupMembers", planErr, "group_id", snap.Group.ID)
		}
	}

	ids := make([]string, 0, len(req.Msg.Members))
	for _, m := range req.Msg.Members {
		if m.UserID != "" {
			ids = append(ids, m.UserID)
		}
	}
	users, err := s.store.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, s.fail("AddGroupMembers", err, "group_id", snap.Group.ID)
	}
	var missing []membership.ItemFailure
	for _, id := range ids {
		if users[id] == nil {
			missing = append(missing, membership.ItemFailure{UserID: id, Reason: "no such user"})
		}
	}

	if len(missing) > 0 || planErr != nil {
		var failures []membership.ItemFailure
		if bulk, ok := membership.AsBulkError(planErr); ok {
			failures = append(failures, bulk.Failures...)
		}
		failures = append(failures, missing...)
		return nil, s.fail("AddGroupMembers", membership.WrapBulk(&membership.BulkError{Failures: failures}), "group_id", snap.Group.ID)
	}

	if err := s.commit(ctx, "AddGroupMembers", snap, actorID, effect); err != nil {
		return nil, err
	}
	return s.groupResponse(ctx, "AddGroupMembers", snap.Group.ID)
}

// resolveUser finds a user by email when login contains "@", otherwise by
// username.
func (s *MembershipService) resolveUser(ctx context.Context, login string) (*models.User, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return nil, apperr.Validation("invitee is required")
	}
	var user *models.User
	var err error
	if strings.Contains(login, "@") {
		user, err = s.store.GetUserByEmail(ctx, strings.ToLower(login))
	} else {
		user, err = s.store.GetUserByUsername(ctx, login)
	}
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("no user with username or email %q", login)
	}
	return user, nil
}

// InviteMember offers membership to a registered user.
func (s *MembershipService) InviteMember(ctx context.Context, req *connect.Request[InviteMemberRequest]) (*connect.Response[InviteMemberResponse], error) {
	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}
	invitee, err := s.resolveUser(ctx, req.Msg.Invitee)
	if err != nil {
		return nil, s.fail("InviteMember", err, "group_id", req.Msg.GroupID)
	}

	_, effect, err := s.run(ctx, "InviteMember", req.Msg.GroupID, membership.Invite{InviteeID: invitee.ID, Role: req.Msg.Role})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&InviteMemberResponse{Invitation: *effect.Invitation}), nil
}

// ListMyInvitations returns the caller's pending invitations.
func (s *MembershipService) ListMyInvitations(ctx context.Context, req *connect.Request[ListMyInvitationsRequest]) (*connect.Response[ListMyInvitationsResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	pending, err := s.store.ListPendingInvitationsForUser(ctx, actorID)
	if err != nil {
		return nil, s.fail("ListMyInvitations", err, "user_id", actorID)
	}

	names := make(map[string]string)
	invitations := make([]Invitation, 0, len(pending))
	for _, inv := range pending {
		name, ok := names[inv.GroupID]
		if !ok {
			group, err := s.store.GetGroup(ctx, inv.GroupID)
			if apperr.KindOf(err) == apperr.KindNotFound {
				continue
			}
			if err != nil {
				return nil, s.fail("ListMyInvitations", err, "group_id", inv.GroupID)
			}
			name = group.Name
			names[inv.GroupID] = name
		}
		invitations = append(invitations, Invitation{Invitation: inv, GroupName: name})
	}
	return connect.NewResponse(&ListMyInvitationsResponse{Invitations: invitations}), nil
}

// RespondToInvitation accepts or declines an invitation addressed to the caller.
func (s *MembershipService) RespondToInvitation(ctx context.Context, req *connect.Request[RespondToInvitationRequest]) (*connect.Response[RespondToInvitationResponse], error) {
	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}
	inv, err := s.store.GetInvitation(ctx, req.Msg.InvitationID)
	if err != nil {
		return nil, s.fail("RespondToInvitation", err, "invitation_id", req.Msg.InvitationID)
	}

	_, effect, err := s.run(ctx, "RespondToInvitation", inv.GroupID, membership.RespondToInvitation{Invitation: *inv, Accept: req.Msg.Accept})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&RespondToInvitationResponse{Invitation: *effect.Invitation}), nil
}

// RequestToJoin asks to join a public group.
func (s *MembershipService) RequestToJoin(ctx context.Context, req *connect.Request[RequestToJoinRequest]) (*connect.Response[RequestToJoinResponse], error) {
	_, effect, err := s.run(ctx, "RequestToJoin", req.Msg.GroupID, membership.RequestToJoin{Message: req.Msg.Message})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&RequestToJoinResponse{JoinRequest: *effect.JoinRequest}), nil
}

// GetJoinRequests lists a group's pending join requests.
func (s *MembershipService) GetJoinRequests(ctx context.Context, req *connect.Request[GetJoinRequestsRequest]) (*connect.Response[GetJoinRequestsResponse], error) {
	actorID, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	group, err := s.loadGroup(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, s.fail("GetJoinRequests", err, "group_id", req.Msg.GroupID)
	}
	if _, err := membership.RequireActor(group, actorID, membership.ActionViewJoinRequests); err != nil {
		return nil, s.fail("GetJoinRequests", err, "group_id", group.ID)
	}

	requests, err := s.store.ListPendingJoinRequests(ctx, group.ID)
	if err != nil {
		return nil, s.fail("GetJoinRequests", err, "group_id", group.ID)
	}
	return connect.NewResponse(&GetJoinRequestsResponse{JoinRequests: requests}), nil
}

// ReviewJoinRequest approves or rejects a pending join request.
func (s *MembershipService) ReviewJoinRequest(ctx context.Context, req *connect.Request[ReviewJoinRequestRequest]) (*connect.Response[ReviewJoinRequestResponse], error) {
	if _, err := s.actor(ctx); err != nil {
		return nil, err
	}
	stored, err := s.store.GetJoinRequest(ctx, req.Msg.RequestID)
	if err != nil {
		return nil, s.fail("ReviewJoinRequest", err, "request_id", req.Msg.RequestID)
	}
	if stored.GroupID != req.Msg.GroupID {
		return nil, s.fail("ReviewJoinRequest", apperr.NotFound("join request not found: %s", req.Msg.RequestID))
	}

	_, effect, err := s.run(ctx, "ReviewJoinRequest", stored.GroupID, membership.ReviewJoinRequest{RequestID: stored.ID, Approve: req.Msg.Approve})
	if err != nil {
		return nil, err
	}
	return connect.NewResponse(&ReviewJoinRequestResponse{JoinRequest: *effect.JoinRequest}), nil
}

// UpdateGroupMember changes a member's role or status.
func (s *MembershipService) UpdateGroupMember(ctx context.Context, req *connect.Request[UpdateGroupMemberRequest]) (*connect.Response[MembershipResponse], error) {
	cmd := membership.UpdateMember{UserID: req.Msg.UserID, Role: req.Msg.Role, Status: req.Msg.Status}
	if _, _, err := s.run(ctx, "UpdateGroupMember", req.Msg.GroupID, cmd); err != nil {
		return nil, err
	}
	return s.groupResponse(ctx, "UpdateGroupMember", req.Msg.GroupID)
}

// RemoveGroupMember removes another member from the group.
func (s *MembershipService) RemoveGroupMember(ctx context.Context, req *connect.Request[RemoveGroupMemberRequest]) (*connect.Response[MembershipResponse], error) {
	if _, _, err := s.run(ctx, "RemoveGroupMember", req.Msg.GroupID, membership.RemoveMember{UserID: req.Msg.UserID}); err != nil {
		return nil, err
	}
	return s.groupResponse(ctx, "RemoveGroupMember", req.Msg.GroupID)
}

// LeaveGroup removes the caller from the group.
func (s *MembershipService) LeaveGroup(ctx context.Context, req *connect.Request[LeaveGroupRequest]) (*connect.Response[LeaveGroupResponse], error) {
	if _, _, err := s.run(ctx, "LeaveGroup", req.Msg.GroupID, membership.Leave{}); err != nil {
		return nil, err
	}
	return connect.NewResponse(&LeaveGroupResponse{}), nil
}

// TransferOwnership hands the owner role to another active member.
func (s *MembershipService) TransferOwnership(ctx context.Context, req *connect.Request[TransferOwnershipRequest]) (*connect.Response[MembershipResponse], error) {
	if _, _, err := s.run(ctx, "TransferOwnership", req.Msg.GroupID, membership.TransferOwnership{NewOwnerID: req.Msg.NewOwnerID}); err != nil {
		return nil, err
	}
	return s.groupResponse(ctx, "TransferOwnership", req.Msg.GroupID)
}
