package publish

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"inkwell/api/internal/store"
)

const maxTweetLength = 280

// Twitter posts threads through the X v2 API, each tweet replying to the
// previous one.
type Twitter struct {
	creds CredentialStore
	api   *apiClient
	now   func() time.Time
}

func NewTwitter(creds CredentialStore, baseURL string, opts ClientOptions) *Twitter {
	return &Twitter{
		creds: creds,
		api:   newAPIClient(PlatformTwitter, baseURL, opts),
		now:   time.Now,
	}
}

func (t *Twitter) Name() string { return PlatformTwitter }

func (t *Twitter) Extract(blocks []store.ContentBlock) (Message, error) {
	return ExtractX(blocks)
}

type tweetReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Reply *tweetReply `json:"reply,omitempty"`
}

type tweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

func (t *Twitter) Post(ctx context.Context, teamID, platformAccountID string, msg Message) Result {
	account, err := t.creds.GetPlatformCredentials(ctx, teamID, platformAccountID, PlatformTwitter)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return failure(ErrCredentialsNotFound, "Twitter credentials not found")
		}
		return failure(err, "Could not load Twitter credentials")
	}

	tweets := msg.Tweets
	if len(tweets) == 0 && msg.Text != "" {
		tweets = []string{msg.Text}
	}
	if len(tweets) == 0 {
		return failure(ErrNoContent, "No content to post")
	}

	ids := make([]string, 0, len(tweets))
	replyTo := ""
	for i, tweet := range tweets {
		id, err := t.postTweet(ctx, account.AccessToken, ClipText(tweet, maxTweetLength), replyTo)
		if err != nil {
			if len(tweets) == 1 {
				return failure(err, err.Error())
			}
			return failure(err, fmt.Sprintf("Failed to post tweet %d of %d: %s", i+1, len(tweets), err.Error()))
		}
		ids = append(ids, id)
		replyTo = id
	}

	return Result{
		Success: true,
		Data: &PostData{
			ID:        ids[0],
			CreatedAt: t.now().UTC(),
			ThreadIDs: ids,
		},
	}
}

func (t *Twitter) postTweet(ctx context.Context, accessToken, text, replyTo string) (string, error) {
	req := tweetRequest{Text: text}
	if replyTo != "" {
		req.Reply = &tweetReply{InReplyToTweetID: replyTo}
	}

	resp, err := t.api.postJSON(ctx, accessToken, "/2/tweets", nil, req)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", fmt.Errorf("Twitter API error (%d): %s", resp.status, resp.detail())
	}

	var out tweetResponse
	if err := json.Unmarshal(resp.body, &out); err != nil {
		return "", fmt.Errorf("decode Twitter response: %w", err)
	}
	if out.Data.ID == "" {
		return "", errors.New("Twitter API returned no tweet id")
	}
	return out.Data.ID, nil
}
