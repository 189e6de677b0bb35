// Package service implements the Connect RPC services: auth, groups, the
// ledger and membership. Handlers translate requests into calls on the
// calculator, schedule and membership packages and commit the results
// through storage.Store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/auth"
	"github.com/mmynk/chamaledger/internal/events"
	"github.com/mmynk/chamaledger/internal/metrics"
	"github.com/mmynk/chamaledger/internal/middleware"
	"github.com/mmynk/chamaledger/internal/models"
	"github.com/mmynk/chamaledger/internal/schedule"
	"github.com/mmynk/chamaledger/internal/storage"
)

// Option configures the services.
type Option func(*base)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *base) { b.now = now }
}

// WithPublisher sets the ledger event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(b *base) { b.publisher = p }
}

// WithMetrics sets the metrics collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// WithScheduleOptions sets the projection policy used for upcoming events
// and loan installment dates.
func WithScheduleOptions(o schedule.Options) Option {
	return func(b *base) { b.schedule = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// base holds the collaborators every service shares.
type base struct {
	store     storage.Store
	now       func() time.Time
	publisher events.Publisher
	metrics   *metrics.Metrics
	schedule  schedule.Options
	logger    *slog.Logger
}

func newBase(store storage.Store, opts []Option) base {
	b := base{
		store:     store,
		now:       time.Now,
		publisher: events.NopPublisher{},
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// actor returns the authenticated caller.
func (b *base) actor(ctx context.Context) (string, error) {
	userID := middleware.GetUserID(ctx)
	if userID == "" {
		return "", connect.NewError(connect.CodeUnauthenticated, auth.ErrMissingToken)
	}
	return userID, nil
}

// fail logs a failed operation and converts err for the wire.
func (b *base) fail(op string, err error, attrs ...any) error {
	attrs = append(attrs, "error", err)
	var connectErr *connect.Error
	if errors.As(err, &connectErr) {
		b.logger.Warn(op+" rejected", append(attrs, "code", connectErr.Code().String())...)
		return connectErr
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		b.logger.Error(op+" failed", attrs...)
	} else {
		b.logger.Warn(op+" rejected", append(attrs, "kind", apperr.KindOf(err).String())...)
	}
	return toConnectError(err)
}

// publish sends an event after a commit. Failures are logged only.
func (b *base) publish(ctx context.Context, event events.Event) {
	if err := b.publisher.Publish(ctx, event); err != nil {
		b.logger.Warn("Event publish failed",
			"type", event.Type,
			"group_id", event.GroupID,
			"error", err,
		)
	}
}

// loadGroup fetches a group, rejecting an empty ID up front.
func (b *base) loadGroup(ctx context.Context, groupID string) (*models.Group, error) {
	if groupID == "" {
		return nil, apperr.Validation("group id is required")
	}
	return b.store.GetGroup(ctx, groupID)
}

// versionOr returns the caller's expected version, or current when the
// caller did not send one.
func versionOr(expected *int64, current int64) int64 {
	if expected != nil {
		return *expected
	}
	return current
}
