package app

import (
	"context"
	"strings"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/publish"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

const (
	sandboxTokenTTL      = 60 * 24 * time.Hour
	sandboxAccountPrefix = "sandbox-"
)

var platformDisplayNames = map[string]string{
	publish.PlatformTwitter:  "X",
	publish.PlatformLinkedIn: "LinkedIn",
}

func platformDisplayName(name string) string {
	if display, ok := platformDisplayNames[name]; ok {
		return display
	}
	return name
}

func (s *Service) SandboxEnabled() bool {
	return s.cfg.SandboxMode
}

// AppOrigin is the origin popup windows post their result to.
func (s *Service) AppOrigin() string {
	return s.cfg.AppURL
}

// ConnectSandboxAccount stores a mock connection as if the platform's OAuth
// flow had completed. Reconnecting replaces the stored token.
func (s *Service) ConnectSandboxAccount(ctx context.Context, session Session, platformName, teamID string) (store.PlatformAccount, error) {
	if !s.cfg.SandboxMode {
		return store.PlatformAccount{}, notFound("Not found")
	}
	platform, err := s.lookupPlatform(platformName)
	if err != nil {
		return store.PlatformAccount{}, err
	}
	teamID = strings.TrimSpace(teamID)
	if teamID == "" {
		return store.PlatformAccount{}, validationError("teamId is required")
	}
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionAdmin); err != nil {
		return store.PlatformAccount{}, err
	}

	token, err := auth.NewShareToken()
	if err != nil {
		return store.PlatformAccount{}, err
	}
	expires := s.clock().Add(sandboxTokenTTL)
	account, err := s.store.UpsertPlatformAccount(ctx, store.PlatformAccount{
		TeamID:         teamID,
		Platform:       platform.Name(),
		AccountID:      sandboxAccountPrefix + session.UserID,
		AccountName:    "Sandbox " + platformDisplayName(platform.Name()) + " account",
		AccessToken:    publish.SandboxTokenPrefix + token,
		TokenExpiresAt: &expires,
	})
	if err != nil {
		return store.PlatformAccount{}, err
	}
	s.log().WithField("team_id", teamID).WithField("platform", platform.Name()).Info("sandbox platform account connected")
	return account, nil
}
