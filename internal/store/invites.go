package store

import (
	"context"
	"fmt"
	"strings"
	"time"
)

func (s *PostgresStore) CreateInvite(ctx context.Context, invite TeamInvite) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO team_invites (id, team_id, token_hash, email, role, invited_by, expires_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
	`, invite.ID, invite.TeamID, invite.TokenHash, strings.ToLower(strings.TrimSpace(invite.Email)), invite.Role, invite.InvitedBy, invite.ExpiresAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("insert invite: %w", err)
	}
	return nil
}

// GetInviteByHash returns sql.ErrNoRows when no invite on the team carries
// the hash.
func (s *PostgresStore) GetInviteByHash(ctx context.Context, teamID, tokenHash string) (TeamInvite, error) {
	var invite TeamInvite
	err := s.db.QueryRowContext(ctx, `
		SELECT id, team_id, token_hash, COALESCE(email, ''), role, invited_by, expires_at, used_at, COALESCE(used_by, ''), created_at
		FROM team_invites
		WHERE team_id=$1 AND token_hash=$2
	`, teamID, tokenHash).Scan(
		&invite.ID,
		&invite.TeamID,
		&invite.TokenHash,
		&invite.Email,
		&invite.Role,
		&invite.InvitedBy,
		&invite.ExpiresAt,
		&invite.UsedAt,
		&invite.UsedBy,
		&invite.CreatedAt,
	)
	if err != nil {
		return TeamInvite{}, err
	}
	return invite, nil
}

// RedeemInvite adds the member and consumes the invite in one transaction.
// It reports false, and leaves no membership behind, when another caller
// consumed the invite first. An existing membership is left untouched and
// the invite is still consumed.
func (s *PostgresStore) RedeemInvite(ctx context.Context, inviteID string, member TeamMember, usedAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin redeem invite: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := addTeamMember(ctx, tx, member); err != nil {
		return false, err
	}
	marked, err := markInviteUsed(ctx, tx, inviteID, member.UserID, usedAt)
	if err != nil || !marked {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit redeem invite: %w", err)
	}
	return true, nil
}

// markInviteUsed only succeeds for the first caller.
func markInviteUsed(ctx context.Context, tx execer, inviteID, userID string, usedAt time.Time) (bool, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE team_invites
		SET used_at=$3, used_by=$2
		WHERE id=$1 AND used_at IS NULL
	`, inviteID, userID, usedAt)
	if err != nil {
		return false, fmt.Errorf("mark invite used: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark invite used rows: %w", err)
	}
	return affected == 1, nil
}
