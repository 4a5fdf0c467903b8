package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	goerrors "github.com/goliatone/go-errors"

	bridge "github.com/goliatone/go-auth-bridge"
)

const (
	signupEndpoint  = "/auth/v1/signup"
	tokenEndpoint   = "/auth/v1/token"
	logoutEndpoint  = "/auth/v1/logout"
	recoverEndpoint = "/auth/v1/recover"
	userEndpoint    = "/auth/v1/user"
)

// Config holds the connection settings for a GoTrue compatible
// authentication service.
type Config struct {
	// BaseURL is the project root, e.g. https://xyz.supabase.co
	BaseURL string
	// APIKey is sent as the apikey header on every request.
	APIKey string

	HTTPClient *http.Client
	Logger     bridge.Logger
}

// Client talks to a GoTrue authentication service over its REST surface
// and implements the bridge session store contract.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     bridge.Logger
	events     *bridge.EventHub
}

var _ bridge.SessionStore = (*Client)(nil)

// New creates a GoTrue client.
func New(cfg Config) *Client {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = bridge.DefaultLogger("GOTRUE")
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: client,
		logger:     logger,
		events:     bridge.NewEventHub(),
	}
}

// SignInWithPassword implements bridge.SessionStore.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*bridge.Session, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, tokenEndpoint+"?grant_type=password", "", body, &resp); err != nil {
		return nil, err
	}

	session := resp.toSession()
	c.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedIn, Session: session})

	return session, nil
}

// SignUp implements bridge.SessionStore. When the service requires email
// confirmation the response carries no tokens and the result session is
// nil.
func (c *Client) SignUp(ctx context.Context, input bridge.SignUpInput) (*bridge.SignUpResult, error) {
	body := map[string]any{
		"email":    input.Email,
		"password": input.Password,
		"data":     input.Metadata(),
	}

	path := signupEndpoint
	if input.RedirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(input.RedirectTo)
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, path, "", body, &resp); err != nil {
		return nil, err
	}

	result := &bridge.SignUpResult{}

	if resp.AccessToken != "" {
		result.Session = resp.toSession()
		result.User = result.Session.User
		c.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedIn, Session: result.Session})
		return result, nil
	}

	// no tokens: either the session rode in a nested user payload or the
	// account is pending confirmation
	if resp.User != nil {
		result.User = resp.User.toUser()
	} else {
		result.User = resp.toBareUser()
	}

	return result, nil
}

// SignOut implements bridge.SessionStore.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, logoutEndpoint, accessToken, nil, nil); err != nil {
		return err
	}

	c.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedOut})

	return nil
}

// CurrentSession implements bridge.SessionStore. A fresh access token is
// resolved with a user lookup; a stale or rejected one falls back to the
// refresh grant.
func (c *Client) CurrentSession(ctx context.Context, tokens bridge.TokenPair) (*bridge.Session, error) {
	if tokens.IsZero() {
		return nil, goerrors.New("no tokens to resolve", goerrors.CategoryAuth).
			WithTextCode(bridge.TextCodeNoActiveSession).
			WithCode(goerrors.CodeUnauthorized)
	}

	if !tokens.Expired(time.Now()) && tokens.AccessToken != "" {
		var payload userPayload
		err := c.do(ctx, http.MethodGet, userEndpoint, tokens.AccessToken, nil, &payload)
		if err == nil {
			return &bridge.Session{TokenPair: tokens, User: payload.toUser()}, nil
		}
		if !isUnauthorized(err) {
			return nil, err
		}
		c.logger.Debug("access token rejected, refreshing")
	}

	return c.Refresh(ctx, tokens.RefreshToken)
}

// Refresh implements bridge.SessionStore.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*bridge.Session, error) {
	body := map[string]any{
		"refresh_token": refreshToken,
	}

	var resp sessionResponse
	if err := c.do(ctx, http.MethodPost, tokenEndpoint+"?grant_type=refresh_token", "", body, &resp); err != nil {
		return nil, err
	}

	session := resp.toSession()
	c.events.Emit(bridge.AuthEvent{Kind: bridge.EventTokenRefreshed, Session: session})

	return session, nil
}

// RequestPasswordReset implements bridge.SessionStore.
func (c *Client) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{
		"email": email,
	}

	path := recoverEndpoint
	if redirectTo != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectTo)
	}

	if err := c.do(ctx, http.MethodPost, path, "", body, nil); err != nil {
		return err
	}

	c.events.Emit(bridge.AuthEvent{Kind: bridge.EventPasswordRecovery})

	return nil
}

// UpdatePassword implements bridge.SessionStore.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, newPassword string) (*bridge.User, error) {
	body := map[string]any{
		"password": newPassword,
	}

	var payload userPayload
	if err := c.do(ctx, http.MethodPut, userEndpoint, accessToken, body, &payload); err != nil {
		return nil, err
	}

	user := payload.toUser()
	c.events.Emit(bridge.AuthEvent{Kind: bridge.EventUserUpdated})

	return user, nil
}

// Subscribe implements bridge.SessionStore.
func (c *Client) Subscribe() (<-chan bridge.AuthEvent, func()) {
	return c.events.Subscribe()
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request body")
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "authentication service unreachable").
			WithTextCode(bridge.TextCodeStoreUnavailable)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read response").
			WithTextCode(bridge.TextCodeStoreUnavailable)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return mapAPIError(resp.StatusCode, raw)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode response").
			WithTextCode(bridge.TextCodeStoreUnavailable).
			WithMetadata(map[string]any{"status": resp.StatusCode})
	}

	return nil
}

func isUnauthorized(err error) bool {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Code == goerrors.CodeUnauthorized
	}
	return false
}
