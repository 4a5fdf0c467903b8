package gotrue

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	bridge "github.com/goliatone/go-auth-bridge"
)

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int64        `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at"`
	RefreshToken string       `json:"refresh_token"`
	User         *userPayload `json:"user"`

	// signup without autoconfirm returns the bare user record instead of
	// a token envelope
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (r sessionResponse) toSession() *bridge.Session {
	expiry := time.Time{}
	if r.ExpiresAt > 0 {
		expiry = time.Unix(r.ExpiresAt, 0)
	} else if r.ExpiresIn > 0 {
		expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}

	session := &bridge.Session{
		TokenPair: bridge.TokenPair{
			AccessToken:  r.AccessToken,
			RefreshToken: r.RefreshToken,
			ExpiresAt:    expiry,
		},
	}

	if r.User != nil {
		session.User = r.User.toUser()
	}

	return session
}

func (r sessionResponse) toBareUser() *bridge.User {
	return bridge.MapUser(r.ID, r.Email, r.EmailConfirmedAt != "", r.UserMetadata)
}

type userPayload struct {
	ID               string         `json:"id"`
	Email            string         `json:"email"`
	EmailConfirmedAt string         `json:"email_confirmed_at"`
	ConfirmedAt      string         `json:"confirmed_at"`
	UserMetadata     map[string]any `json:"user_metadata"`
}

func (p userPayload) toUser() *bridge.User {
	confirmed := p.EmailConfirmedAt != "" || p.ConfirmedAt != ""
	return bridge.MapUser(p.ID, p.Email, confirmed, p.UserMetadata)
}

type apiError struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Message   string `json:"message"`
	Error     string `json:"error"`
	ErrorCode string `json:"error_code"`
	ErrorDesc string `json:"error_description"`
}

func (e apiError) text() string {
	for _, candidate := range []string{e.Msg, e.Message, e.ErrorDesc, e.Error} {
		if candidate != "" {
			return candidate
		}
	}
	return ""
}

// mapAPIError translates GoTrue error envelopes into the bridge error
// vocabulary. The service has shipped several envelope shapes over the
// years; match on the stable error_code first, then on known messages.
func mapAPIError(status int, raw []byte) error {
	var payload apiError
	_ = json.Unmarshal(raw, &payload)

	msg := payload.text()
	meta := map[string]any{"status": status}
	if msg != "" {
		meta["service_message"] = msg
	}
	if payload.ErrorCode != "" {
		meta["service_error_code"] = payload.ErrorCode
	}

	if status == http.StatusTooManyRequests || payload.ErrorCode == "over_request_rate_limit" {
		return withMeta(bridge.ErrRateLimited, meta)
	}

	switch payload.ErrorCode {
	case "invalid_credentials":
		return withMeta(bridge.ErrInvalidCredentials, meta)
	case "email_not_confirmed":
		return withMeta(bridge.ErrEmailNotConfirmed, meta)
	case "user_already_exists", "email_exists":
		return withMeta(bridge.ErrDuplicateAccount, meta)
	case "weak_password":
		return withMeta(bridge.ErrWeakPassword, meta)
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "invalid login credentials"):
		return withMeta(bridge.ErrInvalidCredentials, meta)
	case strings.Contains(lower, "email not confirmed"):
		return withMeta(bridge.ErrEmailNotConfirmed, meta)
	case strings.Contains(lower, "already registered"):
		return withMeta(bridge.ErrDuplicateAccount, meta)
	case strings.Contains(lower, "password should be"):
		return withMeta(bridge.ErrWeakPassword, meta)
	}

	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		if msg == "" {
			msg = "request rejected by authentication service"
		}
		return goerrors.New(msg, goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized).
			WithMetadata(meta)
	}

	if msg == "" {
		msg = "authentication service request failed"
	}

	return goerrors.New(msg, goerrors.CategoryOperation).
		WithTextCode(bridge.TextCodeStoreUnavailable).
		WithMetadata(meta)
}

// withMeta decorates a clone of base so shared sentinels stay untouched.
func withMeta(base *goerrors.Error, meta map[string]any) error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(meta)
}
