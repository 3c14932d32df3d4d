package email

import (
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestServiceIsConfigured(t *testing.T) {
	tests := []struct {
		name     string
		config   Config
		expected bool
	}{
		{name: "empty config", config: Config{}, expected: false},
		{name: "missing host", config: Config{Port: "587", From: "team@example.com"}, expected: false},
		{name: "missing port", config: Config{Host: "smtp.example.com", From: "team@example.com"}, expected: false},
		{name: "missing from", config: Config{Host: "smtp.example.com", Port: "587"}, expected: false},
		{name: "fully configured", config: Config{Host: "smtp.example.com", Port: "587", From: "team@example.com"}, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.config)
			if svc.IsConfigured() != tt.expected {
				t.Errorf("IsConfigured() = %v, want %v", svc.IsConfigured(), tt.expected)
			}
		})
	}
}

func TestSendInviteBuildsMultipartMessage(t *testing.T) {
	svc := NewService(Config{Host: "smtp.example.com", Port: "587", From: "team@example.com", FromName: "Inkwell"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string
	svc.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	}

	err := svc.SendInvite("ana@example.com", InviteData{
		TeamName:  "Acme Social",
		Role:      "EDITOR",
		InviteURL: "https://app.example.com/invite/team_1?token=abc",
		ExpiresAt: time.Date(2026, 5, 8, 10, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("send invite: %v", err)
	}

	if gotAddr != "smtp.example.com:587" || gotFrom != "team@example.com" {
		t.Fatalf("unexpected envelope: %s %s", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ana@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	for _, want := range []string{
		"Subject: Join Acme Social on Inkwell",
		"From: Inkwell <team@example.com>",
		"multipart/alternative",
		"https://app.example.com/invite/team_1?token=abc",
		"8 May 2026",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q", want)
		}
	}
}

func TestSendInviteRequiresConfiguration(t *testing.T) {
	svc := NewService(Config{})
	if err := svc.SendInvite("ana@example.com", InviteData{TeamName: "Acme"}); err == nil {
		t.Fatal("expected error when SMTP is not configured")
	}
}
