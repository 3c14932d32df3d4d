package publish

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkwell/api/internal/store"
)

func TestSandboxAnswersForDevConnectAccounts(t *testing.T) {
	ps, srv := newPlatformServer(t, func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	creds := &fakeCreds{accounts: map[string]store.PlatformAccount{
		"pa_sbx": {ID: "pa_sbx", TeamID: "team_1", Platform: PlatformTwitter, AccessToken: SandboxTokenPrefix + "abc"},
	}}
	adapter := NewSandbox(NewTwitter(creds, srv.URL, testOptions()), creds)

	result := adapter.Post(context.Background(), "team_1", "pa_sbx", Message{Kind: KindThread, Tweets: []string{"one", "two"}})

	require.True(t, result.Success, result.Error)
	assert.True(t, strings.HasPrefix(result.Data.ID, "sandbox_"))
	assert.Len(t, result.Data.ThreadIDs, 2)
	assert.Equal(t, result.Data.ID, result.Data.ThreadIDs[0])
	assert.Empty(t, ps.requests, "sandbox posts must not reach the platform")
}

func TestSandboxPassesRealAccountsThrough(t *testing.T) {
	ps, srv := newPlatformServer(t, func(_ int, w http.ResponseWriter) {
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"tw-1","text":"ok"}}`))
	})
	creds := credsFor(PlatformTwitter)
	adapter := NewSandbox(NewTwitter(creds, srv.URL, testOptions()), creds)

	result := adapter.Post(context.Background(), "team_1", "pa_1", Message{Kind: KindText, Text: "hello"})

	require.True(t, result.Success, result.Error)
	assert.Equal(t, "tw-1", result.Data.ID)
	require.Len(t, ps.requests, 1)
	assert.Equal(t, "Bearer secret-token", ps.requests[0].Auth)
}

func TestSandboxMissingCredentialsReportsAdapterFailure(t *testing.T) {
	creds := &fakeCreds{accounts: map[string]store.PlatformAccount{}}
	adapter := NewSandbox(NewLinkedIn(creds, "http://127.0.0.1:1", testOptions()), creds)

	result := adapter.Post(context.Background(), "team_1", "pa_missing", Message{Kind: KindText, Text: "hello"})

	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Cause, ErrCredentialsNotFound)
	assert.Equal(t, PlatformLinkedIn, adapter.Name())
}

func TestDefaultRegistryWrapsAdaptersInSandboxMode(t *testing.T) {
	opts := testOptions()
	opts.Sandbox = true
	registry := NewDefaultRegistry(credsFor(PlatformTwitter), "http://127.0.0.1:1", "http://127.0.0.1:1", opts)

	for _, name := range []string{PlatformTwitter, PlatformLinkedIn} {
		platform, ok := registry.Lookup(name)
		require.True(t, ok)
		_, sandboxed := platform.(*Sandbox)
		assert.True(t, sandboxed, name)
	}

	plain, _ := NewDefaultRegistry(credsFor(PlatformTwitter), "", "", testOptions()).Lookup(PlatformTwitter)
	_, sandboxed := plain.(*Sandbox)
	assert.False(t, sandboxed)
}
