// Package publish turns content blocks into platform posts and sends them
// through per-platform adapters.
package publish

import (
	"context"
	"errors"
	"time"

	"inkwell/api/internal/store"
)

var (
	ErrNoContent           = errors.New("no content to post")
	ErrCredentialsNotFound = errors.New("platform credentials not found")
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	ErrPlatformUnavailable = errors.New("platform temporarily unavailable")
	errUpstreamStatus      = errors.New("upstream server error")
)

type MessageKind string

const (
	KindThread  MessageKind = "thread"
	KindText    MessageKind = "text"
	KindArticle MessageKind = "article"
)

// Message is the platform-neutral result of block extraction.
type Message struct {
	Kind MessageKind
	// Tweets holds one entry per post in a thread, in order.
	Tweets   []string
	Text     string
	HasImage bool
	ImageURL string
	Article  *Article
}

type Article struct {
	URL         string
	Title       string
	Description string
	Thumbnail   string
}

// PostData describes what the platform created.
type PostData struct {
	ID        string
	CreatedAt time.Time
	// ThreadIDs lists every id created, first to last, for threaded posts.
	ThreadIDs []string
}

// Result is the normalised outcome of an adapter call. Adapters never return
// errors; failures are reported with Success=false.
type Result struct {
	Success bool
	Data    *PostData
	Error   string
	Cause   error
}

func failure(cause error, message string) Result {
	return Result{Success: false, Error: message, Cause: cause}
}

// Platform is the capability set every publishing target provides.
type Platform interface {
	Name() string
	Extract(blocks []store.ContentBlock) (Message, error)
	Post(ctx context.Context, teamID, platformAccountID string, msg Message) Result
}

// CredentialStore resolves the stored account for a team and platform.
// It returns sql.ErrNoRows when nothing matches.
type CredentialStore interface {
	GetPlatformCredentials(ctx context.Context, teamID, platformAccountID, platform string) (store.PlatformAccount, error)
}
