package models

// JoinRequestStatus is the state of an inbound join request.
// Approved and rejected are terminal.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a non-member asking to join a public group.
type JoinRequest struct {
	ID         string            `json:"id"`
	GroupID    string            `json:"groupId"`
	UserID     string            `json:"userId"`
	Message    string            `json:"message,omitempty"`
	Status     JoinRequestStatus `json:"status"`
	ReviewedBy string            `json:"reviewedBy,omitempty"`
	CreatedAt  int64             `json:"createdAt"`
	ResolvedAt int64             `json:"resolvedAt,omitempty"`
}

// InvitationStatus is the state of an outbound invitation.
// Accepted and declined are terminal.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
)

// Invitation is a group admin offering membership to a user.
type Invitation struct {
	ID         string           `json:"id"`
	GroupID    string           `json:"groupId"`
	InviteeID  string           `json:"inviteeId"`
	InvitedBy  string           `json:"invitedBy"`
	Role       Role             `json:"role"`
	Status     InvitationStatus `json:"status"`
	CreatedAt  int64            `json:"createdAt"`
	ResolvedAt int64            `json:"resolvedAt,omitempty"`
}
