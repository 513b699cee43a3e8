// Package auth checks login credentials against bcrypt hashes from config.
package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/smartdevs17/noc-leaderboard/internal/config"
	"github.com/smartdevs17/noc-leaderboard/pkg/utils"
)

// User is the public view of an authenticated identity
type User struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// Authenticator verifies username-or-email / password pairs
type Authenticator struct {
	users []config.UserConfig
	// dummyHash is compared against when no user matches so that unknown
	// identifiers cost the same as wrong passwords.
	dummyHash []byte
}

// NewAuthenticator creates an authenticator for the configured users
func NewAuthenticator(cfg *config.AuthConfig) *Authenticator {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("leaderboard-dummy"), bcrypt.MinCost)
	return &Authenticator{
		users:     append([]config.UserConfig(nil), cfg.Users...),
		dummyHash: dummy,
	}
}

// Authenticate returns the matching user or an UNAUTHORIZED error
func (a *Authenticator) Authenticate(identifier, password string) (*User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Username or email and password are required")
	}

	for _, u := range a.users {
		if !matches(u, identifier) {
			continue
		}
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
			return nil, invalidCredentials()
		}
		return &User{Username: u.Username, Email: u.Email, Role: u.Role}, nil
	}

	_ = bcrypt.CompareHashAndPassword(a.dummyHash, []byte(password))
	return nil, invalidCredentials()
}

// UserCount returns the number of configured identities
func (a *Authenticator) UserCount() int {
	return len(a.users)
}

// HashPassword produces a bcrypt hash suitable for auth.users[].password_hash
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", utils.NewValidationError("Password must not be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeInternal, "Failed to hash password", err.Error())
	}
	return string(hash), nil
}

func matches(u config.UserConfig, identifier string) bool {
	return (u.Username != "" && u.Username == identifier) ||
		(u.Email != "" && strings.EqualFold(u.Email, identifier))
}

func invalidCredentials() error {
	return utils.NewAppError(utils.ErrCodeUnauthorized, "Invalid credentials")
}
