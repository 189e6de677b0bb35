// Package membership implements the group membership state machine.
//
// Every transition is a typed Command. A command is planned against a
// consistent Snapshot of the group and produces an Effect describing the
// rows to write; the caller commits the Effect atomically together with a
// group version check. Commands never touch storage themselves.
//
// # Authorization
//
// All role checks go through one table keyed by (role, action). A command
// first resolves the actor's membership, requires it to be active, and
// consults Authorize. Command-specific constraints (never remove yourself,
// owners cannot leave, treasurers cannot grant roles above their own) are
// layered on top. Every rejection is an apperr Authorization error.
//
// # Status transitions
//
//	pending   -> active
//	active    -> inactive | suspended
//	inactive  -> active
//	suspended -> active
//
// Removal and leaving delete the membership row; they are not stored states.
package membership

import (
	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/models"
)

// Action is an operation subject to role checks.
type Action string

const (
	ActionAddMember         Action = "add_member"
	ActionInvite            Action = "invite"
	ActionViewJoinRequests  Action = "view_join_requests"
	ActionReviewJoinRequest Action = "review_join_request"
	ActionUpdateMember      Action = "update_member"
	ActionRemoveMember      Action = "remove_member"
	ActionLeave             Action = "leave"
	ActionTransferOwnership Action = "transfer_ownership"
	ActionRecordCash        Action = "record_cash"
	ActionRecordMobileMoney Action = "record_mobile_money"
	ActionFund              Action = "fund"
	ActionPayMember         Action = "pay_member"
	ActionUpdateAccounts    Action = "update_accounts"
	ActionUpdateSettings    Action = "update_settings"
	ActionContribute        Action = "contribute"
	ActionCreateLoan        Action = "create_loan"
	ActionViewLedger        Action = "view_ledger"

	// Actions taken by outsiders. They have no row in the table; the
	// commands check them against the invitation or group directly.
	ActionRequestToJoin     Action = "request_to_join"
	ActionRespondInvitation Action = "respond_invitation"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	// Deny means the action is not permitted.
	Deny Decision = iota

	// Allow means the action is permitted.
	Allow
)

// String returns "allow" or "deny".
func (d Decision) String() string {
	if d == Allow {
		return "allow"
	}
	return "deny"
}

var (
	everyone   = []models.Role{models.RoleMember, models.RoleSecretary, models.RoleTreasurer, models.RoleChair, models.RoleAdmin, models.RoleOwner}
	moneyRoles = []models.Role{models.RoleTreasurer, models.RoleAdmin, models.RoleOwner}
	adminRoles = []models.Role{models.RoleAdmin, models.RoleOwner}
)

// table maps each action to the roles allowed to perform it.
var table = map[Action][]models.Role{
	ActionAddMember:         moneyRoles,
	ActionInvite:            moneyRoles,
	ActionViewJoinRequests:  adminRoles,
	ActionReviewJoinRequest: adminRoles,
	ActionUpdateMember:      moneyRoles,
	ActionRemoveMember:      adminRoles,
	ActionLeave:             {models.RoleMember, models.RoleSecretary, models.RoleTreasurer, models.RoleChair, models.RoleAdmin},
	ActionTransferOwnership: {models.RoleOwner},
	ActionRecordCash:        moneyRoles,
	ActionRecordMobileMoney: moneyRoles,
	ActionFund:              moneyRoles,
	ActionPayMember:         moneyRoles,
	ActionUpdateAccounts:    adminRoles,
	ActionUpdateSettings:    adminRoles,
	ActionContribute:        everyone,
	ActionCreateLoan:        moneyRoles,
	ActionViewLedger:        everyone,
}

// Authorize consults the (role, action) table.
func Authorize(role models.Role, action Action) Decision {
	for _, allowed := range table[action] {
		if allowed == role {
			return Allow
		}
	}
	return Deny
}

// RequireActor returns the actor's membership if the actor is an active
// member whose role allows action.
func RequireActor(group *models.Group, actorID string, action Action) (*models.Membership, error) {
	actor := group.Member(actorID)
	if actor == nil {
		return nil, apperr.Forbidden("user %s is not a member of group %s", actorID, group.ID)
	}
	if actor.Status != models.StatusActive {
		return nil, apperr.Forbidden("membership is %s, only active members may %s", actor.Status, action)
	}
	if Authorize(actor.Role, action) != Allow {
		return nil, apperr.Forbidden("role %s may not %s", actor.Role, action)
	}
	return actor, nil
}

// transitions lists the allowed status changes.
var transitions = map[models.MemberStatus][]models.MemberStatus{
	models.StatusPending:   {models.StatusActive},
	models.StatusActive:    {models.StatusInactive, models.StatusSuspended},
	models.StatusInactive:  {models.StatusActive},
	models.StatusSuspended: {models.StatusActive},
}

// CanTransition reports whether a membership may move from one status to
// another. Staying in the same status is always allowed.
func CanTransition(from, to models.MemberStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
