package app

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"inkwell/api/internal/publish"
	"inkwell/api/internal/store"
)

func adminStore() *fakeStore {
	return &fakeStore{
		getMembershipFn: func(_ context.Context, teamID, userID string) (store.TeamMember, error) {
			role := "ADMIN"
			if userID == "user_editor" {
				role = "EDITOR"
			}
			return store.TeamMember{TeamID: teamID, UserID: userID, Role: role}, nil
		},
	}
}

func devConnectService(fs *fakeStore) *Service {
	return newTestService(fs, &fakePlatform{name: publish.PlatformTwitter}, &fakePlatform{name: publish.PlatformLinkedIn})
}

func TestDevConnectDisabledOutsideSandbox(t *testing.T) {
	svc := devConnectService(adminStore())
	svc.cfg.SandboxMode = false

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter&teamId=team_1&mode=json", "", tokenFor(t, "user_admin", "a@example.com"), nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestDevConnectJSON(t *testing.T) {
	fs := adminStore()
	var upserted store.PlatformAccount
	fs.upsertPlatformAccountFn = func(_ context.Context, account store.PlatformAccount) (store.PlatformAccount, error) {
		upserted = account
		account.ID = "pa_sandbox"
		account.CreatedAt = fixedNow
		return account, nil
	}
	svc := devConnectService(fs)

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter&teamId=team_1&direct=true", "", tokenFor(t, "user_admin", "a@example.com"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decodeResponse(t, rr)
	if payload["success"] != true || payload["platform"] != "twitter" {
		t.Errorf("unexpected payload %v", payload)
	}
	account := payload["account"].(map[string]any)
	if account["id"] != "pa_sandbox" {
		t.Errorf("unexpected account %v", account)
	}
	if _, leaked := account["accessToken"]; leaked {
		t.Error("account payload must not expose tokens")
	}

	if upserted.AccountID != "sandbox-user_admin" || upserted.AccountName != "Sandbox X account" {
		t.Errorf("unexpected sandbox identity %+v", upserted)
	}
	if !strings.HasPrefix(upserted.AccessToken, "sandbox_") {
		t.Errorf("expected sandbox token, got %q", upserted.AccessToken)
	}
	if upserted.TokenExpiresAt == nil || !upserted.TokenExpiresAt.Equal(fixedNow.Add(60*24*time.Hour)) {
		t.Errorf("unexpected expiry %v", upserted.TokenExpiresAt)
	}
}

func TestDevConnectRequiresTeamAdmin(t *testing.T) {
	fs := adminStore()
	svc := devConnectService(fs)

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter&teamId=team_1&mode=json", "", tokenFor(t, "user_editor", "e@example.com"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if fs.wrote("UpsertPlatformAccount") != 0 {
		t.Error("editor must not connect accounts")
	}
}

func TestDevConnectUnsupportedPlatform(t *testing.T) {
	svc := devConnectService(adminStore())

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=myspace&teamId=team_1&mode=json", "", tokenFor(t, "user_admin", "a@example.com"), nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := decodeResponse(t, rr)["code"]; code != "UNSUPPORTED_PLATFORM" {
		t.Errorf("unexpected code %v", code)
	}
}

func TestDevConnectPopup(t *testing.T) {
	svc := devConnectService(adminStore())
	token := tokenFor(t, "user_admin", "a@example.com")

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=linkedin&teamId=team_1&mode=popup&access_token="+url.QueryEscape(token), "", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected HTML, got %q", ct)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "platform_oauth_result") {
		t.Error("popup must post the oauth result message")
	}
	if !strings.Contains(body, "app.example.com") {
		t.Error("popup must target the app origin")
	}
	if !strings.Contains(body, "window.close()") {
		t.Error("popup must close itself")
	}
}

func TestDevConnectPopupFailure(t *testing.T) {
	svc := devConnectService(adminStore())

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter&teamId=team_1&mode=popup", "", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "platform_oauth_result") || !strings.Contains(body, "Connection failed") {
		t.Errorf("unexpected popup body %s", body)
	}
}

func TestDevConnectRedirect(t *testing.T) {
	svc := devConnectService(adminStore())

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter&teamId=team_1&returnTo=/teams/team_1/settings", "", tokenFor(t, "user_admin", "a@example.com"), nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "https://app.example.com/teams/team_1/settings?connected=twitter" {
		t.Errorf("unexpected redirect %q", got)
	}
}

func TestDevConnectRedirectRejectsForeignReturn(t *testing.T) {
	svc := devConnectService(adminStore())

	for _, returnTo := range []string{"https://evil.example", "//evil.example/x", `/\evil.example`} {
		path := "/api/platforms/dev-connect?platform=twitter&teamId=team_1&returnTo=" + url.QueryEscape(returnTo)
		rr := doRequest(t, svc, http.MethodGet, path, "", tokenFor(t, "user_admin", "a@example.com"), nil)
		if rr.Code != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", returnTo, rr.Code)
		}
		if got := rr.Header().Get("Location"); got != "https://app.example.com/settings/integrations?connected=twitter" {
			t.Errorf("%s: unexpected redirect %q", returnTo, got)
		}
	}
}

func TestDevConnectRedirectFailureCarriesCode(t *testing.T) {
	svc := devConnectService(adminStore())

	rr := doRequest(t, svc, http.MethodGet, "/api/platforms/dev-connect?platform=twitter", "", tokenFor(t, "user_admin", "a@example.com"), nil)
	if rr.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "https://app.example.com/settings/integrations?error=validation_error" {
		t.Errorf("unexpected redirect %q", got)
	}
}

func TestListPlatformAccountsOmitsTokens(t *testing.T) {
	fs := adminStore()
	fs.listPlatformAccountsFn = func(_ context.Context, teamID string) ([]store.PlatformAccount, error) {
		return []store.PlatformAccount{{
			ID:          "pa_1",
			TeamID:      teamID,
			Platform:    publish.PlatformTwitter,
			AccountID:   "x_42",
			AccountName: "Acme",
			AccessToken: "secret-access",
			CreatedAt:   fixedNow,
		}}, nil
	}
	svc := devConnectService(fs)

	rr := doRequest(t, svc, http.MethodGet, "/api/teams/team_1/platform-accounts", "", tokenFor(t, "user_editor", "e@example.com"), nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "secret-access") {
		t.Fatal("access token leaked")
	}
	payload := decodeResponse(t, rr)
	accounts := payload["accounts"].([]any)
	if len(accounts) != 1 || accounts[0].(map[string]any)["accountName"] != "Acme" {
		t.Errorf("unexpected accounts %v", accounts)
	}
	platforms := payload["platforms"].([]any)
	if len(platforms) != 2 || platforms[0] != "linkedin" || platforms[1] != "twitter" {
		t.Errorf("unexpected platforms %v", platforms)
	}

	outsider := newTestService(&fakeStore{})
	rr = doRequest(t, outsider, http.MethodGet, "/api/teams/team_1/platform-accounts", "", tokenFor(t, "user_x", "x@example.com"), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-member, got %d", rr.Code)
	}
}
