package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"inkwell/api/internal/store"
)

const maxLinkedInCommentary = 3000

// LinkedIn creates member shares through the UGC posts endpoint.
type LinkedIn struct {
	creds CredentialStore
	api   *apiClient
	now   func() time.Time
}

func NewLinkedIn(creds CredentialStore, baseURL string, opts ClientOptions) *LinkedIn {
	return &LinkedIn{
		creds: creds,
		api:   newAPIClient(PlatformLinkedIn, baseURL, opts),
		now:   time.Now,
	}
}

func (l *LinkedIn) Name() string { return PlatformLinkedIn }

func (l *LinkedIn) Extract(blocks []store.ContentBlock) (Message, error) {
	return ExtractLinkedIn(blocks)
}

func (l *LinkedIn) Post(ctx context.Context, teamID, platformAccountID string, msg Message) Result {
	account, err := l.creds.GetPlatformCredentials(ctx, teamID, platformAccountID, PlatformLinkedIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return failure(ErrCredentialsNotFound, "LinkedIn credentials not found")
		}
		return failure(err, "Could not load LinkedIn credentials")
	}
	if msg.Kind != KindArticle && strings.TrimSpace(msg.Text) == "" {
		return failure(ErrNoContent, "No content to post")
	}

	resp, err := l.api.postJSON(ctx, account.AccessToken, "/v2/ugcPosts",
		map[string]string{"X-Restli-Protocol-Version": "2.0.0"},
		ugcPayload(authorURN(account.AccountID), msg))
	if err != nil {
		return failure(err, err.Error())
	}
	if !resp.ok() {
		err := fmt.Errorf("LinkedIn API error (%d): %s", resp.status, resp.detail())
		return failure(err, err.Error())
	}

	id := resp.header.Get("X-RestLi-Id")
	if id == "" {
		var out struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(resp.body, &out); err == nil {
			id = out.ID
		}
	}
	if id == "" {
		err := errors.New("LinkedIn API returned no post id")
		return failure(err, err.Error())
	}

	return Result{
		Success: true,
		Data:    &PostData{ID: id, CreatedAt: l.now().UTC()},
	}
}

func authorURN(accountID string) string {
	if strings.HasPrefix(accountID, "urn:li:") {
		return accountID
	}
	return "urn:li:person:" + accountID
}

func ugcPayload(author string, msg Message) map[string]any {
	category := "NONE"
	content := map[string]any{
		"shareCommentary": map[string]any{"text": ClipText(msg.Text, maxLinkedInCommentary)},
	}
	if msg.Kind == KindArticle && msg.Article != nil {
		category = "ARTICLE"
		media := map[string]any{
			"status":      "READY",
			"originalUrl": msg.Article.URL,
		}
		if msg.Article.Title != "" {
			media["title"] = map[string]any{"text": msg.Article.Title}
		}
		if msg.Article.Description != "" {
			media["description"] = map[string]any{"text": msg.Article.Description}
		}
		content["media"] = []any{media}
	}
	content["shareMediaCategory"] = category

	return map[string]any{
		"author":         author,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": content,
		},
		"visibility": map[string]any{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
}
