package publish

import (
	"context"
	"strings"
	"time"

	"inkwell/api/internal/util"
)

// SandboxTokenPrefix marks access tokens minted by the dev-connect flow.
const SandboxTokenPrefix = "sandbox_"

// Sandbox answers for dev-connect accounts without calling the platform.
// Accounts holding real tokens go through to the wrapped adapter.
type Sandbox struct {
	Platform
	creds CredentialStore
	now   func() time.Time
}

func NewSandbox(inner Platform, creds CredentialStore) *Sandbox {
	return &Sandbox{Platform: inner, creds: creds, now: time.Now}
}

func (s *Sandbox) Post(ctx context.Context, teamID, platformAccountID string, msg Message) Result {
	account, err := s.creds.GetPlatformCredentials(ctx, teamID, platformAccountID, s.Name())
	if err != nil || !strings.HasPrefix(account.AccessToken, SandboxTokenPrefix) {
		return s.Platform.Post(ctx, teamID, platformAccountID, msg)
	}

	posts := 1
	if msg.Kind == KindThread && len(msg.Tweets) > 1 {
		posts = len(msg.Tweets)
	}
	ids := make([]string, posts)
	for i := range ids {
		ids[i] = util.NewID("sandbox")
	}
	return Result{
		Success: true,
		Data: &PostData{
			ID:        ids[0],
			CreatedAt: s.now().UTC(),
			ThreadIDs: ids,
		},
	}
}
