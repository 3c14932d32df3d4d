package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/email"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const defaultInviteTTL = 7 * 24 * time.Hour

type CreateInviteInput struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

type AcceptInviteInput struct {
	Token string `json:"token"`
}

func (s *Service) inviteTTL() time.Duration {
	if s.cfg.InviteTTL > 0 {
		return s.cfg.InviteTTL
	}
	return defaultInviteTTL
}

func (s *Service) CreateInvite(ctx context.Context, session Session, teamID string, input CreateInviteInput) (map[string]any, error) {
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionAdmin); err != nil {
		return nil, err
	}

	role := strings.ToUpper(strings.TrimSpace(input.Role))
	if role == "" {
		role = string(rbac.RoleEditor)
	}
	if !rbac.Assignable(role) {
		return nil, validationError("role must be one of VIEWER, EDITOR, ADMIN")
	}

	address := strings.ToLower(strings.TrimSpace(input.Email))
	if address != "" {
		if _, err := mail.ParseAddress(address); err != nil {
			return nil, validationError("email is invalid")
		}
	}

	raw, hash, err := auth.NewInviteToken()
	if err != nil {
		return nil, err
	}
	now := s.clock()
	invite := store.TeamInvite{
		ID:        util.NewID("inv"),
		TeamID:    teamID,
		TokenHash: hash,
		Email:     address,
		Role:      role,
		InvitedBy: session.UserID,
		ExpiresAt: now.Add(s.inviteTTL()),
		CreatedAt: now,
	}
	if err := s.store.CreateInvite(ctx, invite); err != nil {
		return nil, err
	}

	inviteURL := s.cfg.AppURL + "/invite/" + url.PathEscape(teamID) + "?token=" + url.QueryEscape(raw)
	emailSent := false
	if address != "" {
		emailSent = s.sendInviteEmail(ctx, session, invite, inviteURL)
	}

	return map[string]any{
		"inviteUrl": inviteURL,
		"expiresAt": invite.ExpiresAt.Format(time.RFC3339),
		"role":      role,
		"emailSent": emailSent,
	}, nil
}

// sendInviteEmail never fails the request; the caller still gets the link.
func (s *Service) sendInviteEmail(ctx context.Context, session Session, invite store.TeamInvite, inviteURL string) bool {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return false
	}
	team, err := s.store.GetTeam(ctx, invite.TeamID)
	if err != nil {
		s.log().WithError(err).WithField("team_id", invite.TeamID).Warn("load team for invite email")
		return false
	}
	err = s.mailer.SendInvite(invite.Email, email.InviteData{
		TeamName:  team.Name,
		InviterID: session.Email,
		Role:      invite.Role,
		InviteURL: inviteURL,
		ExpiresAt: invite.ExpiresAt,
	})
	if err != nil {
		s.log().WithError(err).WithField("invite_id", invite.ID).Warn("send invite email")
		return false
	}
	return true
}

// AcceptInvite redeems an invite token. Checks run in a fixed order so each
// failure mode is reported on its own.
func (s *Service) AcceptInvite(ctx context.Context, session Session, teamID string, input AcceptInviteInput) (map[string]any, error) {
	token := strings.TrimSpace(input.Token)
	if token == "" {
		return nil, domainError(http.StatusBadRequest, "INVALID_INVITE", "Invalid invite link", nil)
	}

	invite, err := s.store.GetInviteByHash(ctx, teamID, auth.HashToken(token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domainError(http.StatusBadRequest, "INVALID_INVITE", "Invalid invite link", nil)
		}
		return nil, err
	}
	if invite.UsedAt != nil {
		return nil, domainError(http.StatusBadRequest, "INVITE_USED", "Invite has already been used", nil)
	}
	now := s.clock()
	if !now.Before(invite.ExpiresAt) {
		return nil, domainError(http.StatusBadRequest, "INVITE_EXPIRED", "Invite has expired", nil)
	}
	if invite.Email != "" && !strings.EqualFold(strings.TrimSpace(invite.Email), session.Email) {
		return nil, domainError(http.StatusForbidden, "INVITE_WRONG_ACCOUNT", "This invite was sent to a different account", nil)
	}

	team, err := s.store.GetTeam(ctx, teamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Team not found")
		}
		return nil, err
	}

	redeemed, err := s.store.RedeemInvite(ctx, invite.ID, store.TeamMember{
		TeamID: teamID,
		UserID: session.UserID,
		Email:  session.Email,
		Role:   invite.Role,
	}, now)
	if err != nil {
		return nil, err
	}
	if !redeemed {
		return nil, domainError(http.StatusBadRequest, "INVITE_USED", "Invite has already been used", nil)
	}

	s.metrics.InviteAccepted()
	s.log().WithField("team_id", teamID).WithField("user_id", session.UserID).Info("invite accepted")

	return map[string]any{
		"data": map[string]any{"slug": team.Slug},
	}, nil
}
