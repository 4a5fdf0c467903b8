package bridge

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// EventKind identifies one entry in the Session Store's change-notification
// stream.
type EventKind string

const (
	EventSignedIn         EventKind = "SIGNED_IN"
	EventSignedOut        EventKind = "SIGNED_OUT"
	EventTokenRefreshed   EventKind = "TOKEN_REFRESHED"
	EventUserUpdated      EventKind = "USER_UPDATED"
	EventPasswordRecovery EventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is a session lifecycle notification emitted by the Session
// Store independently of calls made by this bridge instance.
type AuthEvent struct {
	Kind    EventKind
	Session *Session
}

// SessionStore is the external authentication service. It owns every
// session; the bridge only holds a cached, possibly stale copy.
type SessionStore interface {
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, input SignUpInput) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error

	// CurrentSession resolves a persisted token pair into the live session,
	// refreshing through the service when the access token is stale.
	CurrentSession(ctx context.Context, tokens TokenPair) (*Session, error)

	// Refresh rotates the token pair. The bridge uses it as the forced
	// sync step that keeps cookies and client tokens in agreement.
	Refresh(ctx context.Context, refreshToken string) (*Session, error)

	RequestPasswordReset(ctx context.Context, email, redirectTo string) error
	UpdatePassword(ctx context.Context, accessToken, newPassword string) (*User, error)

	// Subscribe returns the change-notification stream and a cancel
	// function that releases it.
	Subscribe() (<-chan AuthEvent, func())
}

// TokenCache persists the client-side token pair between process runs. It
// is the durable analog of browser local storage.
type TokenCache interface {
	Load(ctx context.Context) (TokenPair, error)
	Save(ctx context.Context, tokens TokenPair) error
	Clear(ctx context.Context) error
}

type noopTokenCache struct{}

func (noopTokenCache) Load(context.Context) (TokenPair, error) { return TokenPair{}, nil }
func (noopTokenCache) Save(context.Context, TokenPair) error   { return nil }
func (noopTokenCache) Clear(context.Context) error             { return nil }

// DefaultLogger returns a stdout logger tagged with the given prefix.
func DefaultLogger(prefix string) Logger {
	return defLogger{prefix: prefix}
}

type defLogger struct {
	prefix string
}

func (d defLogger) tag() string {
	if d.prefix == "" {
		return "BRIDGE"
	}
	return d.prefix
}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] "+d.tag()+" "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] "+d.tag()+" "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] "+d.tag()+" "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] "+d.tag()+" "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
