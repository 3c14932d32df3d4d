package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"inkwell/api/internal/auth"
	"inkwell/api/internal/email"
	"inkwell/api/internal/store"
)

const inviteToken = "raw-invite-token"

type fakeMailer struct {
	configured bool
	err        error
	sent       []email.InviteData
	to         []string
}

func (m *fakeMailer) IsConfigured() bool { return m.configured }

func (m *fakeMailer) SendInvite(to string, data email.InviteData) error {
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.sent = append(m.sent, data)
	return nil
}

func inviteStore(invite store.TeamInvite) *fakeStore {
	return &fakeStore{
		getInviteByHashFn: func(_ context.Context, teamID, hash string) (store.TeamInvite, error) {
			if teamID != invite.TeamID || hash != auth.HashToken(inviteToken) {
				return store.TeamInvite{}, sql.ErrNoRows
			}
			return invite, nil
		},
		getTeamFn: func(_ context.Context, teamID string) (store.Team, error) {
			return store.Team{ID: teamID, Name: "Acme Editorial", Slug: "acme-editorial"}, nil
		},
	}
}

func pendingInvite() store.TeamInvite {
	return store.TeamInvite{
		ID:        "inv_1",
		TeamID:    "team_1",
		TokenHash: auth.HashToken(inviteToken),
		Role:      "EDITOR",
		InvitedBy: "user_owner",
		ExpiresAt: fixedNow.Add(24 * time.Hour),
		CreatedAt: fixedNow.Add(-time.Hour),
	}
}

func acceptInvite(t *testing.T, svc *Service, teamID, token, userID, address string) (int, map[string]any) {
	t.Helper()
	rr := doRequest(t, svc, http.MethodPost, "/api/invite/"+teamID+"/accept", `{"token":"`+token+`"}`, tokenFor(t, userID, address), nil)
	return rr.Code, decodeResponse(t, rr)
}

func TestAcceptInviteSuccess(t *testing.T) {
	fs := inviteStore(pendingInvite())
	var added store.TeamMember
	var redeemedID string
	var usedAt time.Time
	fs.redeemInviteFn = func(_ context.Context, inviteID string, member store.TeamMember, at time.Time) (bool, error) {
		redeemedID, added, usedAt = inviteID, member, at
		return true, nil
	}
	svc := newTestService(fs)

	status, payload := acceptInvite(t, svc, "team_1", inviteToken, "user_new", "new@example.com")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, payload)
	}
	data, ok := payload["data"].(map[string]any)
	if !ok || data["slug"] != "acme-editorial" {
		t.Fatalf("expected data.slug, got %v", payload)
	}
	if added.UserID != "user_new" || added.Role != "EDITOR" || added.TeamID != "team_1" {
		t.Errorf("unexpected membership %+v", added)
	}
	if redeemedID != "inv_1" || !usedAt.Equal(fixedNow) || fs.wrote("RedeemInvite") != 1 {
		t.Errorf("expected invite to be consumed, writes=%v", fs.writes)
	}
}

func TestAcceptInviteFailureModes(t *testing.T) {
	usedAt := fixedNow.Add(-time.Minute)
	cases := []struct {
		name   string
		mutate func(*store.TeamInvite)
		token  string
		email  string
		status int
		code   string
	}{
		{
			name:   "unknown token",
			mutate: func(*store.TeamInvite) {},
			token:  "something-else",
			status: http.StatusBadRequest,
			code:   "INVALID_INVITE",
		},
		{
			name:   "used",
			mutate: func(inv *store.TeamInvite) { inv.UsedAt = &usedAt },
			status: http.StatusBadRequest,
			code:   "INVITE_USED",
		},
		{
			name:   "expired",
			mutate: func(inv *store.TeamInvite) { inv.ExpiresAt = fixedNow.Add(-time.Second) },
			status: http.StatusBadRequest,
			code:   "INVITE_EXPIRED",
		},
		{
			name:   "expires exactly now",
			mutate: func(inv *store.TeamInvite) { inv.ExpiresAt = fixedNow },
			status: http.StatusBadRequest,
			code:   "INVITE_EXPIRED",
		},
		{
			name:   "used and expired reports used",
			mutate: func(inv *store.TeamInvite) { inv.UsedAt = &usedAt; inv.ExpiresAt = fixedNow.Add(-time.Hour) },
			status: http.StatusBadRequest,
			code:   "INVITE_USED",
		},
		{
			name:   "wrong account",
			mutate: func(inv *store.TeamInvite) { inv.Email = "invited@example.com" },
			email:  "someone@example.com",
			status: http.StatusForbidden,
			code:   "INVITE_WRONG_ACCOUNT",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			invite := pendingInvite()
			tc.mutate(&invite)
			fs := inviteStore(invite)
			svc := newTestService(fs)

			token := tc.token
			if token == "" {
				token = inviteToken
			}
			address := tc.email
			if address == "" {
				address = "new@example.com"
			}
			status, payload := acceptInvite(t, svc, "team_1", token, "user_new", address)
			if status != tc.status {
				t.Fatalf("expected %d, got %d: %v", tc.status, status, payload)
			}
			if payload["code"] != tc.code {
				t.Errorf("expected %s, got %v", tc.code, payload["code"])
			}
			if fs.wrote("RedeemInvite") != 0 {
				t.Errorf("rejected invite must not write, writes=%v", fs.writes)
			}
		})
	}
}

func TestAcceptInviteMatchesEmailCaseInsensitively(t *testing.T) {
	invite := pendingInvite()
	invite.Email = "Invited@Example.com"
	svc := newTestService(inviteStore(invite))

	status, payload := acceptInvite(t, svc, "team_1", inviteToken, "user_new", "INVITED@example.com")
	if status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", status, payload)
	}
}

func TestAcceptInviteWrongTeamIsInvalid(t *testing.T) {
	svc := newTestService(inviteStore(pendingInvite()))

	status, payload := acceptInvite(t, svc, "team_2", inviteToken, "user_new", "new@example.com")
	if status != http.StatusBadRequest || payload["code"] != "INVALID_INVITE" {
		t.Fatalf("expected INVALID_INVITE, got %d %v", status, payload)
	}
	if payload["error"] != "Invalid invite link" {
		t.Errorf("unexpected message %v", payload["error"])
	}
}

func TestAcceptInviteLostRace(t *testing.T) {
	fs := inviteStore(pendingInvite())
	fs.redeemInviteFn = func(context.Context, string, store.TeamMember, time.Time) (bool, error) {
		return false, nil
	}
	svc := newTestService(fs)

	status, payload := acceptInvite(t, svc, "team_1", inviteToken, "user_new", "new@example.com")
	if status != http.StatusBadRequest || payload["code"] != "INVITE_USED" {
		t.Fatalf("expected INVITE_USED, got %d %v", status, payload)
	}
}

func TestAcceptInviteRaceLeavesOneMember(t *testing.T) {
	invite := pendingInvite()
	fs := inviteStore(invite)
	var mu sync.Mutex
	members := map[string]bool{}
	fs.redeemInviteFn = func(_ context.Context, _ string, member store.TeamMember, _ time.Time) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if len(members) > 0 {
			return false, nil
		}
		members[member.UserID] = true
		return true, nil
	}
	svc := newTestService(fs)

	handler := NewHTTPServer(svc, "*").Handler()
	tokens := []string{tokenFor(t, "user_a", "a@example.com"), tokenFor(t, "user_b", "b@example.com")}
	var wg sync.WaitGroup
	statuses := make([]int, len(tokens))
	for i, token := range tokens {
		wg.Add(1)
		go func(i int, token string) {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/api/invite/team_1/accept", strings.NewReader(`{"token":"`+inviteToken+`"}`))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+token)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			statuses[i] = rr.Code
		}(i, token)
	}
	wg.Wait()

	ok := 0
	for _, status := range statuses {
		if status == http.StatusOK {
			ok++
		} else if status != http.StatusBadRequest {
			t.Fatalf("unexpected status %d", status)
		}
	}
	if ok != 1 || len(members) != 1 {
		t.Fatalf("expected one winner and one member, got %v and %v", statuses, members)
	}
}

func TestCreateInviteRequiresAdmin(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, teamID, userID string) (store.TeamMember, error) {
			return store.TeamMember{TeamID: teamID, UserID: userID, Role: "EDITOR"}, nil
		},
	}
	svc := newTestService(fs)

	rr := doRequest(t, svc, http.MethodPost, "/api/teams/team_1/invites", `{"role":"VIEWER"}`, tokenFor(t, "user_editor", "e@example.com"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if fs.wrote("CreateInvite") != 0 {
		t.Error("editor must not create invites")
	}
}

func TestCreateInviteReturnsRedeemableLink(t *testing.T) {
	var created store.TeamInvite
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, teamID, userID string) (store.TeamMember, error) {
			return store.TeamMember{TeamID: teamID, UserID: userID, Role: "ADMIN"}, nil
		},
		createInviteFn: func(_ context.Context, invite store.TeamInvite) error {
			created = invite
			return nil
		},
		getTeamFn: func(_ context.Context, teamID string) (store.Team, error) {
			return store.Team{ID: teamID, Name: "Acme Editorial", Slug: "acme"}, nil
		},
	}
	mailer := &fakeMailer{configured: true}
	svc := newTestService(fs)
	svc.mailer = mailer

	rr := doRequest(t, svc, http.MethodPost, "/api/teams/team_1/invites", `{"email":"Writer@Example.com","role":"viewer"}`, tokenFor(t, "user_admin", "admin@example.com"), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["role"] != "VIEWER" || payload["emailSent"] != true {
		t.Errorf("unexpected payload %v", payload)
	}

	link, err := url.Parse(payload["inviteUrl"].(string))
	if err != nil {
		t.Fatalf("parse invite url: %v", err)
	}
	if !strings.HasPrefix(link.String(), "https://app.example.com/invite/team_1?") {
		t.Errorf("unexpected invite url %s", link)
	}
	raw := link.Query().Get("token")
	if raw == "" || auth.HashToken(raw) != created.TokenHash {
		t.Error("stored hash must match the raw token in the link")
	}
	if strings.Contains(created.TokenHash, raw) {
		t.Error("raw token must not be persisted")
	}
	if created.Email != "writer@example.com" || created.InvitedBy != "user_admin" {
		t.Errorf("unexpected invite %+v", created)
	}
	if !created.ExpiresAt.Equal(fixedNow.Add(7 * 24 * time.Hour)) {
		t.Errorf("unexpected expiry %v", created.ExpiresAt)
	}
	if len(mailer.sent) != 1 || mailer.to[0] != "writer@example.com" || mailer.sent[0].TeamName != "Acme Editorial" {
		t.Errorf("unexpected mail %+v to %v", mailer.sent, mailer.to)
	}
}

func TestCreateInviteMailFailureStillReturnsLink(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, teamID, userID string) (store.TeamMember, error) {
			return store.TeamMember{TeamID: teamID, UserID: userID, Role: "OWNER"}, nil
		},
		getTeamFn: func(_ context.Context, teamID string) (store.Team, error) {
			return store.Team{ID: teamID, Name: "Acme"}, nil
		},
	}
	svc := newTestService(fs)
	svc.mailer = &fakeMailer{configured: true, err: errors.New("smtp: 421")}

	rr := doRequest(t, svc, http.MethodPost, "/api/teams/team_1/invites", `{"email":"w@example.com"}`, tokenFor(t, "user_owner", "o@example.com"), nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rr.Code)
	}
	payload := decodeResponse(t, rr)
	if payload["emailSent"] != false || payload["inviteUrl"] == "" {
		t.Errorf("unexpected payload %v", payload)
	}
	if payload["role"] != "EDITOR" {
		t.Errorf("expected default role EDITOR, got %v", payload["role"])
	}
}

func TestCreateInviteRejectsOwnerRole(t *testing.T) {
	fs := &fakeStore{
		getMembershipFn: func(_ context.Context, teamID, userID string) (store.TeamMember, error) {
			return store.TeamMember{TeamID: teamID, UserID: userID, Role: "OWNER"}, nil
		},
	}
	svc := newTestService(fs)

	rr := doRequest(t, svc, http.MethodPost, "/api/teams/team_1/invites", `{"role":"OWNER"}`, tokenFor(t, "user_owner", "o@example.com"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
