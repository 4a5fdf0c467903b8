package bridge

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// User is the authenticated principal as exposed to the application,
// derived from the Session Store's principal record. Optional profile
// fields absent from the metadata bag collapse to the empty string.
type User struct {
	ID             string         `json:"id,omitempty"`
	Email          string         `json:"email,omitempty"`
	FirstName      string         `json:"first_name,omitempty"`
	LastName       string         `json:"last_name,omitempty"`
	EmailConfirmed bool           `json:"email_confirmed,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (u *User) UserUUID() (uuid.UUID, error) {
	return uuid.Parse(u.ID)
}

// FullName joins the optional profile names, trimmed.
func (u *User) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
}

// MapUser builds a User from the Session Store principal payload. The
// metadata bag is mapped defensively: missing, nil, or non-string values
// all collapse to "".
func MapUser(id, email string, confirmed bool, metadata map[string]any) *User {
	return &User{
		ID:             id,
		Email:          email,
		EmailConfirmed: confirmed,
		FirstName:      metaString(metadata, "name", "first_name"),
		LastName:       metaString(metadata, "surname", "last_name"),
		Metadata:       metadata,
	}
}

func metaString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if raw, ok := m[key]; ok {
			if s, ok := raw.(string); ok {
				return s
			}
		}
	}
	return ""
}

// TokenPair is the opaque access/refresh token pair issued by the Session
// Store.
type TokenPair struct {
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
}

func (t TokenPair) IsZero() bool {
	return t.AccessToken == "" && t.RefreshToken == ""
}

// Expired reports whether the access token is past its expiry at the given
// instant. A zero expiry is treated as not expired; the Session Store is
// the authority either way.
func (t TokenPair) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Session is one authenticated principal's active login as cached by the
// bridge. The Session Store owns the real thing.
type Session struct {
	TokenPair
	User *User `json:"user,omitempty"`
}

// SignUpInput carries the registration payload handed to the Session
// Store. RedirectTo is the email-confirmation callback URL.
type SignUpInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Phone      string `json:"phone,omitempty"`
	RedirectTo string `json:"redirect_to,omitempty"`
}

// Metadata returns the profile bag attached to the sign-up request, using
// the Session Store's user-metadata key conventions.
func (i SignUpInput) Metadata() map[string]any {
	meta := map[string]any{
		"name":    i.FirstName,
		"surname": i.LastName,
	}
	if i.Phone != "" {
		meta["phone"] = i.Phone
	}
	return meta
}

// SignUpResult is the Session Store's response to a registration. Session
// is nil when the account requires email confirmation before a real
// session exists; User is populated either way.
type SignUpResult struct {
	Session *Session `json:"session,omitempty"`
	User    *User    `json:"user,omitempty"`
}
