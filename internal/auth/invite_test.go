package auth

import (
	"encoding/base64"
	"testing"
)

func TestNewInviteToken(t *testing.T) {
	raw, hash, err := NewInviteToken()
	if err != nil {
		t.Fatalf("NewInviteToken() error = %v", err)
	}
	decoded, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("token is not url-safe base64: %v", err)
	}
	if len(decoded) != 24 {
		t.Fatalf("expected 24 random bytes, got %d", len(decoded))
	}
	if hash != HashToken(raw) {
		t.Fatalf("hash mismatch")
	}
	if hash == raw {
		t.Fatalf("hash must differ from raw token")
	}

	other, _, err := NewInviteToken()
	if err != nil {
		t.Fatalf("NewInviteToken() error = %v", err)
	}
	if other == raw {
		t.Fatalf("expected distinct tokens")
	}
}

func TestHashTokenIsSHA256Hex(t *testing.T) {
	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if got := HashToken("hello"); got != want {
		t.Fatalf("HashToken(hello) = %s, want %s", got, want)
	}
}

func TestTokensEqual(t *testing.T) {
	if !TokensEqual("abc", "abc") {
		t.Fatal("expected equal tokens to match")
	}
	if TokensEqual("abc", "abd") {
		t.Fatal("expected different tokens to differ")
	}
	if TokensEqual("", "") {
		t.Fatal("empty tokens never match")
	}
}
