package app

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/rbac"
	"inkwell/api/internal/search"
	"inkwell/api/internal/store"
	"inkwell/api/internal/util"
)

const (
	maxTitleLength     = 200
	maxSlugLength      = 48
	minSharePassword   = 6
	defaultListLimit   = 100
	activityPageLimit  = 200
	contentSearchLimit = 100
)

// transitions lists the review moves a member can make directly. PUBLISHED is
// only reachable through Publish.
var transitions = map[string][]string{
	store.StatusDraft:     {store.StatusInReview, store.StatusArchived},
	store.StatusInReview:  {store.StatusApproved, store.StatusDraft, store.StatusArchived},
	store.StatusApproved:  {store.StatusScheduled, store.StatusArchived},
	store.StatusScheduled: {store.StatusArchived},
}

func canTransition(from, to string) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type CreateTeamInput struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type CreateContentInput struct {
	Title      string               `json:"title"`
	Blocks     []store.ContentBlock `json:"blocks"`
	AssignedTo string               `json:"assignedTo"`
}

type ContentListInput struct {
	Status     string
	AssignedTo string
	Query      string
}

type TransitionInput struct {
	Status string `json:"status"`
}

type ShareSettingsInput struct {
	Enabled       *bool   `json:"enabled"`
	AllowComments *bool   `json:"allowComments"`
	Password      *string `json:"password"`
	RotateToken   bool    `json:"rotateToken"`
}

// requireTeamRole loads the caller's membership and checks it allows action.
// Non-members get 403 so team ids cannot be enumerated.
func (s *Service) requireTeamRole(ctx context.Context, session Session, teamID string, action rbac.Action) (store.TeamMember, error) {
	member, err := s.store.GetMembership(ctx, teamID, session.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.TeamMember{}, forbidden()
		}
		return store.TeamMember{}, err
	}
	if !rbac.Can(rbac.Normalize(member.Role), action) {
		return store.TeamMember{}, forbidden()
	}
	return member, nil
}

// loadContentFor fetches a content row and checks the caller's team role
// against it in one query.
func (s *Service) loadContentFor(ctx context.Context, session Session, contentID string, action rbac.Action) (store.Content, rbac.Role, error) {
	content, err := s.store.GetContent(ctx, contentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Content{}, "", notFound("Content not found")
		}
		return store.Content{}, "", err
	}
	raw, ok := content.MemberRole(session.UserID)
	if !ok {
		return store.Content{}, "", forbidden()
	}
	role := rbac.Normalize(raw)
	if !rbac.Can(role, action) {
		return store.Content{}, "", forbidden()
	}
	return content, role, nil
}

func (s *Service) CreateTeam(ctx context.Context, session Session, input CreateTeamInput) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationError("name is required")
	}
	slug := slugify(input.Slug)
	if slug == "" {
		slug = slugify(name)
	}
	if slug == "" {
		return nil, validationError("slug must contain letters or digits")
	}

	team := store.Team{ID: util.NewID("team"), Name: name, Slug: slug, CreatedAt: s.clock(), Role: string(rbac.RoleOwner)}
	owner := store.TeamMember{TeamID: team.ID, UserID: session.UserID, Email: session.Email, Role: string(rbac.RoleOwner)}
	if err := s.store.CreateTeam(ctx, team, owner); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, domainError(http.StatusConflict, "SLUG_TAKEN", "A team with this slug already exists", map[string]any{"slug": slug})
		}
		return nil, err
	}
	return map[string]any{"team": teamJSON(team)}, nil
}

func (s *Service) ListTeams(ctx context.Context, session Session) (map[string]any, error) {
	teams, err := s.store.ListTeamsForUser(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(teams))
	for _, team := range teams {
		items = append(items, teamJSON(team))
	}
	return map[string]any{"teams": items}, nil
}

func (s *Service) ListMembers(ctx context.Context, session Session, teamID string) (map[string]any, error) {
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionRead); err != nil {
		return nil, err
	}
	members, err := s.store.ListTeamMembers(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(members))
	for _, member := range members {
		items = append(items, map[string]any{
			"userId":   member.UserID,
			"email":    member.Email,
			"role":     member.Role,
			"joinedAt": member.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"members": items}, nil
}

func (s *Service) ListPlatformAccounts(ctx context.Context, session Session, teamID string) (map[string]any, error) {
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionRead); err != nil {
		return nil, err
	}
	accounts, err := s.store.ListPlatformAccounts(ctx, teamID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, accountJSON(account))
	}
	return map[string]any{"accounts": items, "platforms": s.PlatformNames()}, nil
}

func (s *Service) CreateContent(ctx context.Context, session Session, teamID string, input CreateContentInput) (map[string]any, error) {
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionWrite); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationError("title is required")
	}
	if len([]rune(title)) > maxTitleLength {
		return nil, validationError("title is too long")
	}
	blocks, err := normalizeBlocks(input.Blocks)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	item := store.Content{
		ID:         util.NewID("cnt"),
		TeamID:     teamID,
		Title:      title,
		Blocks:     blocks,
		Status:     store.StatusDraft,
		CreatedBy:  session.UserID,
		AssignedTo: strings.TrimSpace(input.AssignedTo),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateContent(ctx, item); err != nil {
		return nil, err
	}
	s.indexContent(item)
	return map[string]any{"content": contentJSON(item)}, nil
}

func normalizeBlocks(blocks []store.ContentBlock) ([]store.ContentBlock, error) {
	out := make([]store.ContentBlock, 0, len(blocks))
	for i, block := range blocks {
		block.Type = strings.TrimSpace(block.Type)
		if block.Type == "" {
			return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", "every block needs a type", map[string]any{"index": i})
		}
		if strings.TrimSpace(block.ID) == "" {
			block.ID = util.NewID("blk")
		}
		if len(block.Content) == 0 || string(block.Content) == "null" {
			block.Content = json.RawMessage(`{}`)
		}
		out = append(out, block)
	}
	return out, nil
}

func (s *Service) ListContent(ctx context.Context, session Session, teamID string, input ContentListInput) (map[string]any, error) {
	if _, err := s.requireTeamRole(ctx, session, teamID, rbac.ActionRead); err != nil {
		return nil, err
	}
	status := strings.ToUpper(strings.TrimSpace(input.Status))
	filter := store.ContentFilter{
		TeamID:     teamID,
		Status:     status,
		AssignedTo: strings.TrimSpace(input.AssignedTo),
		Limit:      defaultListLimit,
	}

	backend := "postgres"
	if q := strings.TrimSpace(input.Query); q != "" {
		if s.search != nil {
			resp := s.search.Search(ctx, search.Query{Text: q, TeamID: teamID, FilterStatus: status, Limit: contentSearchLimit})
			filter.IDs = make([]string, 0, len(resp.Results))
			for _, hit := range resp.Results {
				filter.IDs = append(filter.IDs, hit.ID)
			}
			backend = resp.Backend
		} else {
			filter.Query = q
		}
	}

	items, err := s.store.ListContent(ctx, filter)
	if err != nil {
		return nil, err
	}
	if filter.IDs != nil {
		sortByRank(items, filter.IDs)
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		summary := contentJSON(item)
		delete(summary, "blocks")
		out = append(out, summary)
	}
	return map[string]any{"content": out, "backend": backend}, nil
}

// sortByRank puts items in search hit order.
func sortByRank(items []store.Content, ids []string) {
	rank := make(map[string]int, len(ids))
	for i, id := range ids {
		rank[id] = i
	}
	slices.SortStableFunc(items, func(a, b store.Content) int {
		return cmp.Compare(rank[a.ID], rank[b.ID])
	})
}

func (s *Service) GetContent(ctx context.Context, session Session, contentID string) (map[string]any, error) {
	content, role, err := s.loadContentFor(ctx, session, contentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := contentJSON(content)
	payload["share"] = shareJSON(content.Share, rbac.Can(role, rbac.ActionAdmin) || content.CreatedBy == session.UserID)
	return map[string]any{"content": payload, "role": string(role)}, nil
}

func (s *Service) TransitionStatus(ctx context.Context, session Session, contentID string, input TransitionInput) (map[string]any, error) {
	content, role, err := s.loadContentFor(ctx, session, contentID, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	target := strings.ToUpper(strings.TrimSpace(input.Status))
	if !canTransition(content.Status, target) {
		return nil, domainError(http.StatusUnprocessableEntity, "INVALID_TRANSITION", "Cannot move content from "+content.Status+" to "+target, map[string]any{
			"from": content.Status,
			"to":   target,
		})
	}
	if target == store.StatusApproved && !rbac.Can(role, rbac.ActionApprove) {
		return nil, domainError(http.StatusForbidden, "FORBIDDEN", "Only admins can approve content", nil)
	}

	if err := s.store.TransitionContent(ctx, store.ContentActivity{
		ID:         util.NewID("act"),
		ContentID:  content.ID,
		TeamID:     content.TeamID,
		UserID:     session.UserID,
		Action:     "status_changed",
		FromStatus: content.Status,
		ToStatus:   target,
	}); err != nil {
		if errors.Is(err, store.ErrStaleStatus) {
			return nil, domainError(http.StatusConflict, "STATUS_CHANGED", "Content status changed, reload and try again", nil)
		}
		return nil, err
	}

	content.Status = target
	content.UpdatedAt = s.clock()
	s.indexContent(content)
	return map[string]any{"content": contentJSON(content)}, nil
}

func (s *Service) UpdateShareSettings(ctx context.Context, session Session, contentID string, input ShareSettingsInput) (map[string]any, error) {
	content, role, err := s.loadContentFor(ctx, session, contentID, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if !rbac.Can(role, rbac.ActionAdmin) && content.CreatedBy != session.UserID {
		return nil, forbidden()
	}

	settings := content.Share
	if input.Enabled != nil {
		settings.Enabled = *input.Enabled
	}
	if input.AllowComments != nil {
		settings.AllowComments = *input.AllowComments
	}
	if input.Password != nil {
		password := *input.Password
		switch {
		case password == "":
			settings.PasswordHash = ""
		case len(password) < minSharePassword:
			return nil, validationError("password must be at least 6 characters")
		default:
			hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
			if err != nil {
				return nil, err
			}
			settings.PasswordHash = string(hashed)
		}
	}
	if settings.Enabled && (settings.Token == "" || input.RotateToken) {
		token, err := auth.NewShareToken()
		if err != nil {
			return nil, err
		}
		settings.Token = token
	}

	if err := s.store.UpdateShareSettings(ctx, content.ID, settings); err != nil {
		return nil, err
	}
	return map[string]any{"share": shareJSON(settings, true), "shareUrl": s.shareURL(content.ID, settings)}, nil
}

func (s *Service) shareURL(contentID string, settings store.ShareSettings) any {
	if !settings.Enabled || settings.Token == "" {
		return nil
	}
	return s.cfg.AppURL + "/share/" + url.PathEscape(contentID) + "?token=" + url.QueryEscape(settings.Token)
}

func (s *Service) ListActivity(ctx context.Context, session Session, contentID string) (map[string]any, error) {
	if _, _, err := s.loadContentFor(ctx, session, contentID, rbac.ActionRead); err != nil {
		return nil, err
	}
	activities, err := s.store.ListActivities(ctx, contentID, activityPageLimit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(activities))
	for _, activity := range activities {
		items = append(items, map[string]any{
			"id":         activity.ID,
			"action":     activity.Action,
			"userId":     activity.UserID,
			"fromStatus": nullable(activity.FromStatus),
			"toStatus":   nullable(activity.ToStatus),
			"metadata":   activity.Metadata,
			"createdAt":  activity.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return map[string]any{"activity": items}, nil
}

// slugify lowercases value and joins runs of letters and digits with dashes.
func slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if len(slug) > maxSlugLength {
		slug = strings.TrimRight(slug[:maxSlugLength], "-")
	}
	return slug
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func timeOrNil(value *time.Time) any {
	if value == nil {
		return nil
	}
	return value.UTC().Format(time.RFC3339)
}

func teamJSON(team store.Team) map[string]any {
	return map[string]any{
		"id":        team.ID,
		"name":      team.Name,
		"slug":      team.Slug,
		"role":      nullable(team.Role),
		"createdAt": team.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func contentJSON(item store.Content) map[string]any {
	blocks := item.Blocks
	if blocks == nil {
		blocks = []store.ContentBlock{}
	}
	return map[string]any{
		"id":          item.ID,
		"teamId":      item.TeamID,
		"title":       item.Title,
		"status":      item.Status,
		"blocks":      blocks,
		"createdBy":   item.CreatedBy,
		"assignedTo":  nullable(item.AssignedTo),
		"scheduledAt": timeOrNil(item.ScheduledAt),
		"publishedAt": timeOrNil(item.PublishedAt),
		"createdAt":   item.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   item.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// shareJSON never exposes the password hash; the token only to managers.
func shareJSON(settings store.ShareSettings, withToken bool) map[string]any {
	payload := map[string]any{
		"enabled":           settings.Enabled,
		"allowComments":     settings.AllowComments,
		"passwordProtected": settings.PasswordHash != "",
	}
	if withToken {
		payload["token"] = nullable(settings.Token)
	}
	return payload
}

func accountJSON(account store.PlatformAccount) map[string]any {
	return map[string]any{
		"id":          account.ID,
		"platform":    account.Platform,
		"accountId":   account.AccountID,
		"accountName": account.AccountName,
		"createdAt":   account.CreatedAt.UTC().Format(time.RFC3339),
	}
}
