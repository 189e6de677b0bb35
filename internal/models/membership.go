package models

import "github.com/shopspring/decimal"

// Role is a member's position in a group. Exactly one member holds RoleOwner.
type Role string

const (
	RoleMember    Role = "member"
	RoleSecretary Role = "secretary"
	RoleTreasurer Role = "treasurer"
	RoleChair     Role = "chair"
	RoleAdmin     Role = "admin"
	RoleOwner     Role = "owner"
)

// Rank orders roles from least to most privileged. Unknown roles rank -1.
func (r Role) Rank() int {
	switch r {
	case RoleMember:
		return 0
	case RoleSecretary:
		return 1
	case RoleTreasurer:
		return 2
	case RoleChair:
		return 3
	case RoleAdmin:
		return 4
	case RoleOwner:
		return 5
	}
	return -1
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r.Rank() >= 0 }

// MemberStatus is the lifecycle state of a membership.
type MemberStatus string

const (
	StatusActive    MemberStatus = "active"
	StatusPending   MemberStatus = "pending"
	StatusInactive  MemberStatus = "inactive"
	StatusSuspended MemberStatus = "suspended"
)

// Valid reports whether s is a known status.
func (s MemberStatus) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusInactive, StatusSuspended:
		return true
	}
	return false
}

// Contributions tracks what a member has paid in.
// Total always equals the sum of the amounts of the transactions in History.
type Contributions struct {
	Total decimal.Decimal `json:"total"`

	// History holds transaction IDs in commit order.
	History []string `json:"history"`
}

// Membership links a user to a group.
type Membership struct {
	GroupID string `json:"groupId"`

	// UserID is a weak reference; the user may since have been deleted.
	UserID string `json:"userId"`

	Role          Role          `json:"role"`
	Status        MemberStatus  `json:"status"`
	Contributions Contributions `json:"contributions"`

	// JoinedAt is the Unix timestamp when the membership was created.
	JoinedAt int64 `json:"joinedAt"`
}

// IsActive reports whether the member is active and still references a user.
func (m Membership) IsActive() bool {
	return m.Status == StatusActive && m.UserID != ""
}
