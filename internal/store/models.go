package store

import (
	"encoding/json"
	"time"
)

const (
	StatusDraft     = "DRAFT"
	StatusInReview  = "IN_REVIEW"
	StatusApproved  = "APPROVED"
	StatusScheduled = "SCHEDULED"
	StatusPublished = "PUBLISHED"
	StatusArchived  = "ARCHIVED"
)

// Block types consulted by publishing. Other types pass through untouched.
const (
	BlockText   = "text"
	BlockThread = "thread"
	BlockLink   = "link"
	BlockImage  = "image"
)

const (
	SchedulePending = "PENDING"
	ScheduleSent    = "SENT"
	ScheduleFailed  = "FAILED"
)

type Team struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
	// Role is the caller's role when listed through ListTeamsForUser.
	Role string
}

type TeamMember struct {
	TeamID    string `json:"team_id"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt time.Time
}

// ContentBlock is persisted inside contents.blocks as JSONB.
type ContentBlock struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	Props   json.RawMessage `json:"props,omitempty"`
}

type ShareSettings struct {
	Enabled       bool
	Token         string
	AllowComments bool
	PasswordHash  string
}

type Content struct {
	ID           string
	TeamID       string
	Title        string
	Blocks       []ContentBlock
	Status       string
	ScheduledAt  *time.Time
	PublishedAt  *time.Time
	PublishingAt *time.Time
	CreatedBy    string
	AssignedTo   string
	Share        ShareSettings
	CreatedAt    time.Time
	UpdatedAt    time.Time
	// Members is the owning team's member list, loaded with the row.
	Members []TeamMember
}

// MemberRole reports the role userID holds on the content's team.
func (c Content) MemberRole(userID string) (string, bool) {
	for _, member := range c.Members {
		if member.UserID == userID {
			return member.Role, true
		}
	}
	return "", false
}

type ContentFilter struct {
	TeamID     string
	Status     string
	AssignedTo string
	Query      string
	// IDs restricts the result to these rows, in no particular order.
	IDs   []string
	Limit uint64
}

type PlatformAccount struct {
	ID             string
	TeamID         string
	Platform       string
	AccountID      string
	AccountName    string
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt *time.Time
	CreatedAt      time.Time
}

type ContentActivity struct {
	ID         string
	ContentID  string
	TeamID     string
	UserID     string
	Action     string
	FromStatus string
	ToStatus   string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type ContentSchedule struct {
	ID                string
	ContentID         string
	PlatformAccountID string
	ScheduledAt       time.Time
	Status            string
	PlatformPostID    string
	CreatedAt         time.Time
}

// PublishFinalization carries everything written once a platform accepted a post.
type PublishFinalization struct {
	ContentID         string
	TeamID            string
	UserID            string
	Platform          string
	PlatformAccountID string
	PlatformPostID    string
	FromStatus        string
	PublishedAt       time.Time
	Metadata          map[string]any
}

type TeamInvite struct {
	ID        string
	TeamID    string
	TokenHash string
	Email     string
	Role      string
	InvitedBy string
	ExpiresAt time.Time
	UsedAt    *time.Time
	UsedBy    string
	CreatedAt time.Time
}

type ShareAnnotation struct {
	ID         string
	ContentID  string
	BlockID    string
	Quote      string
	Body       string
	AuthorName string
	CreatedAt  time.Time
	Comments   []ShareAnnotationComment
}

type ShareAnnotationComment struct {
	ID           string
	AnnotationID string
	Body         string
	AuthorName   string
	CreatedAt    time.Time
}
