package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/config"
	"inkwell/api/internal/email"
	"inkwell/api/internal/metrics"
	"inkwell/api/internal/publish"
	"inkwell/api/internal/ratelimit"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
)

type Session struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type dataStore interface {
	Ping(context.Context) error

	CreateTeam(context.Context, store.Team, store.TeamMember) error
	GetTeam(context.Context, string) (store.Team, error)
	ListTeamsForUser(context.Context, string) ([]store.Team, error)
	GetMembership(context.Context, string, string) (store.TeamMember, error)
	ListTeamMembers(context.Context, string) ([]store.TeamMember, error)

	ListPlatformAccounts(context.Context, string) ([]store.PlatformAccount, error)
	GetPlatformAccount(context.Context, string, string) (store.PlatformAccount, error)
	GetPlatformCredentials(context.Context, string, string, string) (store.PlatformAccount, error)
	UpsertPlatformAccount(context.Context, store.PlatformAccount) (store.PlatformAccount, error)

	GetContent(context.Context, string) (store.Content, error)
	ListContent(context.Context, store.ContentFilter) ([]store.Content, error)
	CreateContent(context.Context, store.Content) error
	TransitionContent(context.Context, store.ContentActivity) error
	UpdateShareSettings(context.Context, string, store.ShareSettings) error
	ListActivities(context.Context, string, int) ([]store.ContentActivity, error)

	ClaimPublish(context.Context, string, time.Time) error
	ReleasePublish(context.Context, string) error
	FinalizePublish(context.Context, store.PublishFinalization) error

	CreateInvite(context.Context, store.TeamInvite) error
	GetInviteByHash(context.Context, string, string) (store.TeamInvite, error)
	RedeemInvite(context.Context, string, store.TeamMember, time.Time) (bool, error)

	InsertShareAnnotation(context.Context, store.ShareAnnotation) (store.ShareAnnotation, error)
	GetShareAnnotation(context.Context, string) (store.ShareAnnotation, error)
	InsertShareAnnotationComment(context.Context, store.ShareAnnotationComment) (store.ShareAnnotationComment, error)
	ListShareAnnotations(context.Context, string) ([]store.ShareAnnotation, error)
}

type contentIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexContent(search.ContentRecord)
	Healthy() bool
}

type inviteMailer interface {
	IsConfigured() bool
	SendInvite(string, email.InviteData) error
}

// pinger is satisfied by limiters backed by a shared store.
type pinger interface {
	Ping(context.Context) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	platforms *publish.Registry
	limiter   ratelimit.Limiter
	search    contentIndex
	mailer    inviteMailer
	metrics   *metrics.Collector
	logger    *logrus.Logger
	now       func() time.Time
}

// Deps are the collaborators main wires into the service. Search and Mailer
// are optional.
type Deps struct {
	Store     *store.PostgresStore
	Platforms *publish.Registry
	Limiter   ratelimit.Limiter
	Search    *search.Service
	Mailer    *email.Service
	Metrics   *metrics.Collector
	Logger    *logrus.Logger
}

func New(cfg config.Config, deps Deps) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     deps.Store,
		platforms: deps.Platforms,
		limiter:   deps.Limiter,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		now:       time.Now,
	}
	if svc.limiter == nil {
		svc.limiter = ratelimit.NewMemoryLimiter()
	}
	if deps.Search != nil {
		svc.search = deps.Search
	}
	if deps.Mailer != nil {
		svc.mailer = deps.Mailer
	}
	return svc
}

var discardLogger = func() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}()

func (s *Service) log() *logrus.Logger {
	if s.logger == nil {
		return discardLogger
	}
	return s.logger
}

func (s *Service) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

func (s *Service) SessionFromToken(_ context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	session := Session{
		Token:  token,
		UserID: claims.Subject,
		Email:  strings.ToLower(strings.TrimSpace(claims.Email)),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}

// Ping verifies the database connection is alive
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports per-dependency checks. The search index is advisory:
// queries fall back to Postgres when it is down.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	ready := true
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.Ping(ctx); err != nil {
		ready = false
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}

	if p, ok := s.limiter.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			ready = false
			checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
		} else {
			checks["redis"] = map[string]any{"status": "ok"}
		}
	}

	if s.search != nil {
		if s.search.Healthy() {
			checks["search"] = map[string]any{"status": "ok"}
		} else {
			checks["search"] = map[string]any{"status": "degraded"}
		}
	}

	return ready, checks
}

// PlatformNames lists the registered publish targets.
func (s *Service) PlatformNames() []string {
	if s.platforms == nil {
		return []string{}
	}
	return s.platforms.Names()
}

func (s *Service) lookupPlatform(name string) (publish.Platform, error) {
	if s.platforms != nil {
		if platform, ok := s.platforms.Lookup(name); ok {
			return platform, nil
		}
	}
	return nil, domainError(http.StatusBadRequest, "UNSUPPORTED_PLATFORM", fmt.Sprintf("Unsupported platform: %s", strings.TrimSpace(name)), nil)
}

func (s *Service) indexContent(item store.Content) {
	if s.search == nil {
		return
	}
	s.search.IndexContent(search.RecordFromContent(item))
}
