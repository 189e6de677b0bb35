package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mmynk/chamaledger/internal/apperr"
	"github.com/mmynk/chamaledger/internal/membership"
	"github.com/mmynk/chamaledger/internal/models"
)

// upsertMembership writes role and status. Contributions are left alone.
func upsertMembership(ctx context.Context, q querier, m models.Membership) error {
	_, err := q.ExecContext(ctx,
		`INSERT INTO memberships (group_id, user_id, role, status, contributions_total, joined_at)
		 VALUES (?, ?, ?, ?, '0', ?)
		 ON CONFLICT(group_id, user_id) DO UPDATE SET role = excluded.role, status = excluded.status`,
		m.GroupID, m.UserID, string(m.Role), string(m.Status), m.JoinedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert membership: %w", err)
	}
	return nil
}

// ApplyMembershipEffect commits a planned membership transition atomically.
func (s *SQLiteStore) ApplyMembershipEffect(ctx context.Context, groupID string, expectedVersion int64, effect membership.Effect) (int64, error) {
	var version int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		v, err := bumpVersion(ctx, tx, groupID, expectedVersion)
		if err != nil {
			return err
		}
		version = v

		for _, m := range effect.Upsert {
			m.GroupID = groupID
			if err := upsertMembership(ctx, tx, m); err != nil {
				return err
			}
		}

		for _, userID := range effect.Delete {
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM membership_contributions WHERE group_id = ? AND user_id = ?",
				groupID, userID,
			); err != nil {
				return fmt.Errorf("failed to delete contribution history: %w", err)
			}
			res, err := tx.ExecContext(ctx,
				"DELETE FROM memberships WHERE group_id = ? AND user_id = ?",
				groupID, userID,
			)
			if err != nil {
				return fmt.Errorf("failed to delete membership: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return apperr.NotFound("user %s is not a member", userID)
			}
		}

		if effect.Invitation != nil {
			if err := saveInvitation(ctx, tx, *effect.Invitation); err != nil {
				return err
			}
		}
		if effect.JoinRequest != nil {
			if err := saveJoinRequest(ctx, tx, *effect.JoinRequest); err != nil {
				return err
			}
		}
		return nil
	})
	return version, err
}

func saveInvitation(ctx context.Context, q querier, inv models.Invitation) error {
	if inv.Status == models.InvitationPending {
		_, err := q.ExecContext(ctx,
			`INSERT INTO invitations (id, group_id, invitee_id, invited_by, role, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			inv.ID, inv.GroupID, inv.InviteeID, inv.InvitedBy, string(inv.Role), string(inv.Status), inv.CreatedAt,
		)
		if isUniqueViolation(err) {
			return apperr.Conflict("user %s already has a pending invitation", inv.InviteeID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert invitation: %w", err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx,
		"UPDATE invitations SET status = ?, resolved_at = ? WHERE id = ? AND status = 'pending'",
		string(inv.Status), inv.ResolvedAt, inv.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve invitation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict("invitation %s is no longer pending", inv.ID)
	}
	return nil
}

func saveJoinRequest(ctx context.Context, q querier, req models.JoinRequest) error {
	if req.Status == models.JoinRequestPending {
		_, err := q.ExecContext(ctx,
			`INSERT INTO join_requests (id, group_id, user_id, message, status, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			req.ID, req.GroupID, req.UserID, req.Message, string(req.Status), req.CreatedAt,
		)
		if isUniqueViolation(err) {
			return apperr.Conflict("user %s already has a pending join request", req.UserID)
		}
		if err != nil {
			return fmt.Errorf("failed to insert join request: %w", err)
		}
		return nil
	}

	res, err := q.ExecContext(ctx,
		"UPDATE join_requests SET status = ?, reviewed_by = ?, resolved_at = ? WHERE id = ? AND status = 'pending'",
		string(req.Status), req.ReviewedBy, req.ResolvedAt, req.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve join request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.Conflict("join request %s is no longer pending", req.ID)
	}
	return nil
}

const invitationColumns = "id, group_id, invitee_id, invited_by, role, status, created_at, resolved_at"

func scanInvitation(row interface{ Scan(...any) error }) (models.Invitation, error) {
	var inv models.Invitation
	var role, status string
	err := row.Scan(&inv.ID, &inv.GroupID, &inv.InviteeID, &inv.InvitedBy, &role, &status, &inv.CreatedAt, &inv.ResolvedAt)
	inv.Role = models.Role(role)
	inv.Status = models.InvitationStatus(status)
	return inv, err
}

// GetInvitation retrieves an invitation by ID.
func (s *SQLiteStore) GetInvitation(ctx context.Context, invitationID string) (*models.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE id = ?", invitationID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invitation not found: %s", invitationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

func (s *SQLiteStore) listInvitations(ctx context.Context, where string, arg string) ([]models.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE "+where+" AND status = 'pending' ORDER BY created_at, id", arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating invitations: %w", err)
	}
	return invitations, nil
}

// ListPendingInvitations returns pending invitations of a group.
func (s *SQLiteStore) ListPendingInvitations(ctx context.Context, groupID string) ([]models.Invitation, error) {
	return s.listInvitations(ctx, "group_id = ?", groupID)
}

// ListPendingInvitationsForUser returns pending invitations addressed to a user.
func (s *SQLiteStore) ListPendingInvitationsForUser(ctx context.Context, userID string) ([]models.Invitation, error) {
	return s.listInvitations(ctx, "invitee_id = ?", userID)
}

const joinRequestColumns = "id, group_id, user_id, message, status, reviewed_by, created_at, resolved_at"

func scanJoinRequest(row interface{ Scan(...any) error }) (models.JoinRequest, error) {
	var req models.JoinRequest
	var status string
	err := row.Scan(&req.ID, &req.GroupID, &req.UserID, &req.Message, &status, &req.ReviewedBy, &req.CreatedAt, &req.ResolvedAt)
	req.Status = models.JoinRequestStatus(status)
	return req, err
}

// GetJoinRequest retrieves a join request by ID.
func (s *SQLiteStore) GetJoinRequest(ctx context.Context, requestID string) (*models.JoinRequest, error) {
	req, err := scanJoinRequest(s.db.QueryRowContext(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE id = ?", requestID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("join request not found: %s", requestID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get join request: %w", err)
	}
	return &req, nil
}

// ListPendingJoinRequests returns pending join requests of a group, oldest first.
func (s *SQLiteStore) ListPendingJoinRequests(ctx context.Context, groupID string) ([]models.JoinRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+joinRequestColumns+" FROM join_requests WHERE group_id = ? AND status = 'pending' ORDER BY created_at, id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list join requests: %w", err)
	}
	defer rows.Close()

	var requests []models.JoinRequest
	for rows.Next() {
		req, err := scanJoinRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan join request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating join requests: %w", err)
	}
	return requests, nil
}
