// Package auth validates logins against the configured credential table.
package auth

import (
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/oswin/parley/internal/config"
)

// MinPasswordLength is the floor enforced by [ValidatePasswordStrength].
const MinPasswordLength = 6

// Manager checks credentials against bcrypt hashes from the config.
type Manager struct {
	users  map[string]string
	logger *slog.Logger
}

// NewManager creates a credential manager from configured users.
func NewManager(creds []config.Credential, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	users := make(map[string]string, len(creds))
	for _, c := range creds {
		users[c.Username] = c.PasswordHash
	}
	return &Manager{users: users, logger: logger}
}

// Login reports whether the username/password pair is valid. Empty
// input or an unknown user is a plain false, never an error.
func (m *Manager) Login(username, password string) bool {
	if username == "" || password == "" {
		return false
	}
	hash, ok := m.users[username]
	if !ok {
		// Burn a comparison anyway so unknown users cost the same as
		// wrong passwords.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return false
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		m.logger.Debug("login rejected", "username", username)
		return false
	}
	return true
}

// ValidatePasswordStrength reports whether a password meets the minimum
// length requirement.
func ValidatePasswordStrength(password string) bool {
	return len(password) >= MinPasswordLength
}

// HashPassword produces a bcrypt hash suitable for the config file.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
