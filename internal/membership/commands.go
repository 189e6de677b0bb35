package membership

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
)

// Snapshot is the consistent state a command is planned against.
type Snapshot struct {
	Group               *models.Group
	PendingInvitations  []models.Invitation
	PendingJoinRequests []models.JoinRequest
}

// Effect is the set of writes a planned command asks the store to commit.
// Memberships in Upsert replace role and status only; contribution history
// is owned by the ledger and never rewritten here.
type Effect struct {
	Action Action

	Upsert []models.Membership
	Delete []string // user IDs

	// Invitation and JoinRequest are either newly created (status pending)
	// or resolved. Resolution must only apply to a row still pending.
	Invitation  *models.Invitation
	JoinRequest *models.JoinRequest
}

// Command is one membership transition.
type Command interface {
	Action() Action
	Plan(snap Snapshot, actorID string, now time.Time) (Effect, error)
}

// Plan runs cmd against snap and stamps the resulting Effect with its action.
func Plan(cmd Command, snap Snapshot, actorID string, now time.Time) (Effect, error) {
	if snap.Group == nil {
		return Effect{}, apperr.NotFound("group not found")
	}
	effect, err := cmd.Plan(snap, actorID, now)
	if err != nil {
		return Effect{}, err
	}
	effect.Action = cmd.Action()
	return effect, nil
}

// ItemFailure is one rejected entry of a bulk command.
type ItemFailure struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// BulkError reports every rejected entry of a bulk add. Nothing from the
// batch is applied when it is returned.
type BulkError struct {
	Failures []ItemFailure
}

func (e *BulkError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %s", f.UserID, f.Reason)
	}
	return fmt.Sprintf("%d member(s) rejected: %s", len(e.Failures), strings.Join(parts, "; "))
}

// AsBulkError extracts a BulkError from err's chain.
func AsBulkError(err error) (*BulkError, bool) {
	var bulk *BulkError
	ok := errors.As(err, &bulk)
	return bulk, ok
}

// WrapBulk classifies a BulkError as a validation failure.
func WrapBulk(bulk *BulkError) error {
	return &apperr.Error{Kind: apperr.KindValidation, Message: "bulk add rejected", Err: bulk}
}

// canGrant reports whether actor may hand out role. Ownership is only ever
// moved by TransferOwnership, and nobody below owner may grant a role
// ranked above their own.
func canGrant(actor *models.Membership, role models.Role) error {
	if !role.Valid() {
		return apperr.Validation("unknown role %q", role)
	}
	if role == models.RoleOwner {
		return apperr.Forbidden("ownership can only be transferred")
	}
	if actor.Role != models.RoleOwner && role.Rank() > actor.Role.Rank() {
		return apperr.Forbidden("role %s may not grant %s", actor.Role, role)
	}
	return nil
}

func newMembership(groupID, userID string, role models.Role, now time.Time) models.Membership {
	return models.Membership{
		GroupID:  groupID,
		UserID:   userID,
		Role:     role,
		Status:   models.StatusActive,
		JoinedAt: now.Unix(),
	}
}

// NewMember is one entry of an AddMembers batch.
type NewMember struct {
	UserID string      `json:"userId"`
	Role   models.Role `json:"role,omitempty"`
}

// AddMembers adds existing users directly as active members. The batch is
// all-or-nothing.
type AddMembers struct {
	Members []NewMember
}

func (AddMembers) Action() Action { return ActionAddMember }

func (c AddMembers) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	actor, err := RequireActor(g, actorID, ActionAddMember)
	if err != nil {
		return Effect{}, err
	}
	if len(c.Members) == 0 {
		return Effect{}, apperr.Validation("no members to add")
	}

	var failures []ItemFailure
	var upserts []models.Membership
	seen := make(map[string]bool, len(c.Members))

	for _, m := range c.Members {
		role := m.Role
		if role == "" {
			role = models.RoleMember
		}
		switch {
		case m.UserID == "":
			failures = append(failures, ItemFailure{UserID: m.UserID, Reason: "user id is required"})
			continue
		case seen[m.UserID]:
			failures = append(failures, ItemFailure{UserID: m.UserID, Reason: "listed more than once"})
			continue
		case g.Member(m.UserID) != nil:
			failures = append(failures, ItemFailure{UserID: m.UserID, Reason: "already a member"})
			continue
		}
		seen[m.UserID] = true
		if err := canGrant(actor, role); err != nil {
			failures = append(failures, ItemFailure{UserID: m.UserID, Reason: err.Error()})
			continue
		}
		upserts = append(upserts, newMembership(g.ID, m.UserID, role, now))
	}

	if len(failures) > 0 {
		return Effect{}, WrapBulk(&BulkError{Failures: failures})
	}
	return Effect{Upsert: upserts}, nil
}

// Invite offers membership to a user who is not yet a member.
type Invite struct {
	InviteeID string
	Role      models.Role
}

func (Invite) Action() Action { return ActionInvite }

func (c Invite) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	actor, err := RequireActor(g, actorID, ActionInvite)
	if err != nil {
		return Effect{}, err
	}
	role := c.Role
	if role == "" {
		role = models.RoleMember
	}
	if err := canGrant(actor, role); err != nil {
		return Effect{}, err
	}
	if c.InviteeID == actorID || g.Member(c.InviteeID) != nil {
		return Effect{}, apperr.Conflict("user %s is already a member", c.InviteeID)
	}
	for _, inv := range snap.PendingInvitations {
		if inv.InviteeID == c.InviteeID {
			return Effect{}, apperr.Conflict("user %s already has a pending invitation", c.InviteeID)
		}
	}

	return Effect{Invitation: &models.Invitation{
		ID:        uuid.New().String(),
		GroupID:   g.ID,
		InviteeID: c.InviteeID,
		InvitedBy: actorID,
		Role:      role,
		Status:    models.InvitationPending,
		CreatedAt: now.Unix(),
	}}, nil
}

// RespondToInvitation accepts or declines an invitation. Only the invitee
// may respond, and only once.
type RespondToInvitation struct {
	Invitation models.Invitation
	Accept     bool
}

func (RespondToInvitation) Action() Action { return ActionRespondInvitation }

func (c RespondToInvitation) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	inv := c.Invitation
	if inv.InviteeID != actorID {
		return Effect{}, apperr.Forbidden("invitation %s is addressed to another user", inv.ID)
	}
	if inv.Status != models.InvitationPending {
		return Effect{}, apperr.Conflict("invitation %s is already %s", inv.ID, inv.Status)
	}

	inv.ResolvedAt = now.Unix()
	if !c.Accept {
		inv.Status = models.InvitationDeclined
		return Effect{Invitation: &inv}, nil
	}

	if snap.Group.Member(actorID) != nil {
		return Effect{}, apperr.Conflict("user %s is already a member", actorID)
	}
	inv.Status = models.InvitationAccepted
	role := inv.Role
	if role == "" || role == models.RoleOwner {
		role = models.RoleMember
	}
	return Effect{
		Invitation: &inv,
		Upsert:     []models.Membership{newMembership(snap.Group.ID, actorID, role, now)},
	}, nil
}

// RequestToJoin files a join request for a public group.
type RequestToJoin struct {
	Message string
}

func (RequestToJoin) Action() Action { return ActionRequestToJoin }

func (c RequestToJoin) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	if !g.Public {
		return Effect{}, apperr.Forbidden("group %s does not accept join requests", g.ID)
	}
	if g.Member(actorID) != nil {
		return Effect{}, apperr.Conflict("user %s is already a member", actorID)
	}
	for _, req := range snap.PendingJoinRequests {
		if req.UserID == actorID {
			return Effect{}, apperr.Conflict("user %s already has a pending join request", actorID)
		}
	}
	return Effect{JoinRequest: &models.JoinRequest{
		ID:        uuid.New().String(),
		GroupID:   g.ID,
		UserID:    actorID,
		Message:   c.Message,
		Status:    models.JoinRequestPending,
		CreatedAt: now.Unix(),
	}}, nil
}

// ReviewJoinRequest approves or rejects a pending join request.
type ReviewJoinRequest struct {
	RequestID string
	Approve   bool
}

func (ReviewJoinRequest) Action() Action { return ActionReviewJoinRequest }

func (c ReviewJoinRequest) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	if _, err := RequireActor(g, actorID, ActionReviewJoinRequest); err != nil {
		return Effect{}, err
	}

	var req *models.JoinRequest
	for i := range snap.PendingJoinRequests {
		if snap.PendingJoinRequests[i].ID == c.RequestID {
			r := snap.PendingJoinRequests[i]
			req = &r
			break
		}
	}
	if req == nil {
		return Effect{}, apperr.Conflict("join request %s is not pending", c.RequestID)
	}

	req.ReviewedBy = actorID
	req.ResolvedAt = now.Unix()
	if !c.Approve {
		req.Status = models.JoinRequestRejected
		return Effect{JoinRequest: req}, nil
	}

	if g.Member(req.UserID) != nil {
		return Effect{}, apperr.Conflict("user %s is already a member", req.UserID)
	}
	req.Status = models.JoinRequestApproved
	return Effect{
		JoinRequest: req,
		Upsert:      []models.Membership{newMembership(g.ID, req.UserID, models.RoleMember, now)},
	}, nil
}

// UpdateMember changes a member's role, status, or both.
type UpdateMember struct {
	UserID string
	Role   *models.Role
	Status *models.MemberStatus
}

func (UpdateMember) Action() Action { return ActionUpdateMember }

func (c UpdateMember) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	actor, err := RequireActor(g, actorID, ActionUpdateMember)
	if err != nil {
		return Effect{}, err
	}
	if c.Role == nil && c.Status == nil {
		return Effect{}, apperr.Validation("nothing to update")
	}

	target := g.Member(c.UserID)
	if target == nil {
		return Effect{}, apperr.NotFound("user %s is not a member", c.UserID)
	}
	if target.Role == models.RoleOwner {
		return Effect{}, apperr.Forbidden("the owner can only change through ownership transfer")
	}
	if actor.Role != models.RoleOwner && target.Role.Rank() > actor.Role.Rank() {
		return Effect{}, apperr.Forbidden("role %s may not modify a %s", actor.Role, target.Role)
	}

	updated := *target
	if c.Role != nil {
		if err := canGrant(actor, *c.Role); err != nil {
			return Effect{}, err
		}
		updated.Role = *c.Role
	}
	if c.Status != nil {
		if !c.Status.Valid() {
			return Effect{}, apperr.Validation("unknown status %q", *c.Status)
		}
		if !CanTransition(target.Status, *c.Status) {
			return Effect{}, apperr.Validation("cannot move member from %s to %s", target.Status, *c.Status)
		}
		updated.Status = *c.Status
	}
	return Effect{Upsert: []models.Membership{updated}}, nil
}

// RemoveMember deletes another member's membership.
type RemoveMember struct {
	UserID string
}

func (RemoveMember) Action() Action { return ActionRemoveMember }

func (c RemoveMember) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	actor, err := RequireActor(g, actorID, ActionRemoveMember)
	if err != nil {
		return Effect{}, err
	}
	if c.UserID == actorID {
		return Effect{}, apperr.Forbidden("members cannot remove themselves; leave the group instead")
	}
	target := g.Member(c.UserID)
	if target == nil {
		return Effect{}, apperr.NotFound("user %s is not a member", c.UserID)
	}
	if target.Role == models.RoleOwner {
		return Effect{}, apperr.Forbidden("the owner cannot be removed")
	}
	if target.Role.Rank() > actor.Role.Rank() {
		return Effect{}, apperr.Forbidden("role %s may not remove a %s", actor.Role, target.Role)
	}
	return Effect{Delete: []string{c.UserID}}, nil
}

// Leave deletes the actor's own membership. Owners must transfer ownership
// first.
type Leave struct{}

func (Leave) Action() Action { return ActionLeave }

func (Leave) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	self := snap.Group.Member(actorID)
	if self == nil {
		return Effect{}, apperr.NotFound("user %s is not a member", actorID)
	}
	if self.Role == models.RoleOwner {
		return Effect{}, apperr.Forbidden("the owner must transfer ownership before leaving")
	}
	if Authorize(self.Role, ActionLeave) != Allow {
		return Effect{}, apperr.Forbidden("role %s may not leave", self.Role)
	}
	return Effect{Delete: []string{actorID}}, nil
}

// TransferOwnership hands the owner role to another active member. The
// previous owner becomes an admin.
type TransferOwnership struct {
	NewOwnerID string
}

func (TransferOwnership) Action() Action { return ActionTransferOwnership }

func (c TransferOwnership) Plan(snap Snapshot, actorID string, now time.Time) (Effect, error) {
	g := snap.Group
	owner, err := RequireActor(g, actorID, ActionTransferOwnership)
	if err != nil {
		return Effect{}, err
	}
	if c.NewOwnerID == actorID {
		return Effect{}, apperr.Validation("user %s already owns the group", actorID)
	}
	next := g.Member(c.NewOwnerID)
	if next == nil {
		return Effect{}, apperr.NotFound("user %s is not a member", c.NewOwnerID)
	}
	if next.Status != models.StatusActive {
		return Effect{}, apperr.Validation("new owner must be an active member, is %s", next.Status)
	}

	previous := *owner
	previous.Role = models.RoleAdmin
	promoted := *next
	promoted.Role = models.RoleOwner
	return Effect{Upsert: []models.Membership{previous, promoted}}, nil
}
