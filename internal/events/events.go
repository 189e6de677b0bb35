// Package events publishes ledger events after state has been committed.
// Delivery is best effort: a failed publish never undoes a commit.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type names a ledger event.
type Type string

const (
	ContributionRecorded Type = "contribution.recorded"
	FundsMoved           Type = "funds.moved"
	LoanCreated          Type = "loan.created"
	MembershipChanged    Type = "membership.changed"
	AccountsOverridden   Type = "accounts.overridden"
)

// Event is one committed change to a group.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	GroupID    string    `json:"groupId"`
	ActorID    string    `json:"actorId"`
	Version    int64     `json:"version"`
	OccurredAt time.Time `json:"occurredAt"`
	Data       any       `json:"data,omitempty"`
}

// New returns an event with a fresh ID.
func New(t Type, groupID, actorID string, version int64, now time.Time, data any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       t,
		GroupID:    groupID,
		ActorID:    actorID,
		Version:    version,
		OccurredAt: now.UTC(),
		Data:       data,
	}
}

// Publisher delivers events to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }
