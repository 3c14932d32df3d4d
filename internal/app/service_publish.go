package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inkwell/api/internal/publish"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/store"
)

const storeWriteTimeout = 10 * time.Second

type PublishInput struct {
	ContentID         string `json:"contentId"`
	PlatformAccountID string `json:"platformAccountId"`
}

// Publish posts a content item to one platform and records the outcome. The
// caller's session has already been authenticated by the HTTP layer.
func (s *Service) Publish(ctx context.Context, session Session, platformName string, input PublishInput) (map[string]any, error) {
	contentID := strings.TrimSpace(input.ContentID)
	accountID := strings.TrimSpace(input.PlatformAccountID)
	if contentID == "" || accountID == "" {
		return nil, validationError("contentId and platformAccountId are required")
	}

	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Content not found")
		}
		return nil, err
	}

	role, ok := content.MemberRole(session.UserID)
	if !ok || !rbac.Can(rbac.Normalize(role), rbac.ActionPublish) {
		return nil, forbidden()
	}

	account, err := s.store.GetPlatformAccount(ctx, content.TeamID, accountID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("Platform account not found")
		}
		return nil, err
	}

	platform, err := s.lookupPlatform(platformName)
	if err != nil {
		return nil, err
	}
	if account.Platform != platform.Name() {
		return nil, domainError(http.StatusBadRequest, "PLATFORM_MISMATCH", "Platform account is not connected to "+platform.Name(), nil)
	}
	if !s.cfg.SandboxMode && strings.HasPrefix(account.AccountID, sandboxAccountPrefix) {
		return nil, domainError(http.StatusBadRequest, "SANDBOX_ACCOUNT", "Sandbox accounts can only publish while sandbox mode is on", nil)
	}

	msg, err := platform.Extract(content.Blocks)
	if err != nil {
		if errors.Is(err, publish.ErrNoContent) {
			s.metrics.ObservePublish(platform.Name(), "no_content", 0)
			return nil, domainError(http.StatusInternalServerError, "NO_CONTENT", "No content to post", nil)
		}
		return nil, err
	}

	if err := s.store.ClaimPublish(ctx, content.ID, s.clock()); err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyPublished):
			return nil, domainError(http.StatusConflict, "ALREADY_PUBLISHED", "Content is already published", nil)
		case errors.Is(err, store.ErrPublishInProgress):
			return nil, domainError(http.StatusConflict, "PUBLISH_IN_PROGRESS", "Content is already being published", nil)
		case errors.Is(err, sql.ErrNoRows):
			return nil, notFound("Content not found")
		}
		return nil, err
	}

	// Once the lease is held the publish runs to completion even if the
	// caller goes away, so a live post is never left unrecorded.
	workCtx := context.WithoutCancel(ctx)

	started := time.Now()
	result := platform.Post(workCtx, content.TeamID, account.ID, msg)
	elapsed := time.Since(started)

	entry := s.log().WithFields(logrus.Fields{
		"content_id":          content.ID,
		"team_id":             content.TeamID,
		"platform":            platform.Name(),
		"platform_account_id": account.ID,
		"duration_ms":         elapsed.Milliseconds(),
	})

	if !result.Success {
		s.metrics.ObservePublish(platform.Name(), "failed", elapsed)
		entry.WithError(result.Cause).Warn("publish failed")
		releaseCtx, cancel := context.WithTimeout(workCtx, storeWriteTimeout)
		defer cancel()
		if err := s.store.ReleasePublish(releaseCtx, content.ID); err != nil {
			entry.WithError(err).Error("release publish lease")
		}
		return nil, domainError(http.StatusInternalServerError, "PUBLISH_FAILED", result.Error, nil)
	}

	publishedAt := s.clock()
	metadata := map[string]any{
		"platform":       platform.Name(),
		"platformPostId": result.Data.ID,
	}
	if len(result.Data.ThreadIDs) > 1 {
		metadata["threadIds"] = result.Data.ThreadIDs
	}
	finalizeCtx, cancel := context.WithTimeout(workCtx, storeWriteTimeout)
	defer cancel()
	if err := s.store.FinalizePublish(finalizeCtx, store.PublishFinalization{
		ContentID:         content.ID,
		TeamID:            content.TeamID,
		UserID:            session.UserID,
		Platform:          platform.Name(),
		PlatformAccountID: account.ID,
		PlatformPostID:    result.Data.ID,
		FromStatus:        content.Status,
		PublishedAt:       publishedAt,
		Metadata:          metadata,
	}); err != nil {
		// The post is live; keep the lease so a retry cannot post it twice.
		s.metrics.ObservePublish(platform.Name(), "finalize_failed", elapsed)
		entry.WithError(err).WithField("platform_post_id", result.Data.ID).Error("finalize publish")
		return nil, err
	}

	s.metrics.ObservePublish(platform.Name(), "success", elapsed)
	entry.WithField("platform_post_id", result.Data.ID).Info("content published")

	content.Status = store.StatusPublished
	content.PublishedAt = &publishedAt
	s.indexContent(content)

	return map[string]any{
		"success":        true,
		"platformPostId": result.Data.ID,
		"publishedAt":    publishedAt.Format(time.RFC3339),
	}, nil
}
