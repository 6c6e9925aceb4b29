package auth

import (
	"testing"

	"github.com/oswin/parley/internal/config"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	hash, err := HashPassword("admin123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	return NewManager([]config.Credential{
		{Username: "admin", PasswordHash: hash},
	}, nil)
}

func TestLogin(t *testing.T) {
	m := newTestManager(t)

	tests := []struct {
		name     string
		username string
		password string
		want     bool
	}{
		{"valid credentials", "admin", "admin123", true},
		{"wrong password", "admin", "nope", false},
		{"unknown user", "ghost", "admin123", false},
		{"empty username", "", "admin123", false},
		{"empty password", "admin", "", false},
		{"both empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Login(tt.username, tt.password); got != tt.want {
				t.Errorf("Login(%q, %q) = %v, want %v", tt.username, tt.password, got, tt.want)
			}
		})
	}
}

func TestValidatePasswordStrength(t *testing.T) {
	if ValidatePasswordStrength("short") {
		t.Error("five characters should fail")
	}
	if !ValidatePasswordStrength("longenough") {
		t.Error("ten characters should pass")
	}
}

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("sesame")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	m := NewManager([]config.Credential{{Username: "u", PasswordHash: hash}}, nil)
	if !m.Login("u", "sesame") {
		t.Error("freshly hashed password rejected")
	}
}
