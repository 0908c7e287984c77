package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is a minimal account record. Identity issuance proper (SSO, OAuth) is
// an external collaborator; this table exists so reports and messages have an
// owner and emails have a destination.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`

	// APIKeyHash is the argon2id hash of the user's access key. Never serialized.
	APIKeyHash string `json:"-"`
}

// ValidateEmail applies the same minimal structural check the signup flow
// uses: one @, non-empty local part, a dot in the domain.
func ValidateEmail(email string) error {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return fmt.Errorf("invalid email format")
	}
	if !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("invalid email domain")
	}
	return nil
}

// SignupRequest is the request body for POST /auth/signup.
type SignupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// SignupResponse returns the created user and their access key. The key is
// shown exactly once; only its hash is stored.
type SignupResponse struct {
	User   User   `json:"user"`
	APIKey string `json:"api_key"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	Email  string `json:"email"`
	APIKey string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
