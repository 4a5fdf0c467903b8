package bridge

import (
	"context"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Snapshot is a read-only view of the bridge's published state.
// IsAuthenticated is derived and always equals User != nil.
type Snapshot struct {
	User            *User
	State           BridgeState
	IsLoading       bool
	IsAuthenticated bool
}

// Bridge is the single source of truth for "who is logged in right now",
// reconciled across three potentially divergent views of session state:
// the persisted token pair, the cookie mirror, and the live Session Store.
// Construct one instance per process, Bootstrap it once, Dispose it on
// shutdown.
type Bridge struct {
	store  SessionStore
	cache  TokenCache
	logger Logger
	sink   ActivitySink

	machine         *LifecycleMachine
	confirmationURL string
	recoveryURL     string

	mu             sync.RWMutex
	user           *User
	session        *Session
	pendingUser    *User
	state          BridgeState
	isLoading      bool
	hasInitialized bool

	// last access tokens seen by syncServerTokens, as source and result.
	// A second sync request for either generation is a no-op.
	lastSyncSource string
	lastSyncResult string

	subscribers map[int]func(Snapshot)
	nextSubID   int

	ready       chan struct{}
	done        chan struct{}
	stopEvents  context.CancelFunc
	disposeOnce sync.Once
}

// Option customizes bridge construction.
type Option func(*Bridge)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(b *Bridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithTokenCache sets the persisted token pair store read during bootstrap
// and kept in sync on every publish.
func WithTokenCache(cache TokenCache) Option {
	return func(b *Bridge) {
		if cache != nil {
			b.cache = cache
		}
	}
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func WithActivitySink(sink ActivitySink) Option {
	return func(b *Bridge) {
		b.sink = normalizeActivitySink(sink)
	}
}

// WithConfirmationRedirectURL sets the email-confirmation callback URL
// attached to registrations.
func WithConfirmationRedirectURL(url string) Option {
	return func(b *Bridge) {
		b.confirmationURL = url
	}
}

// WithRecoveryRedirectURL sets the callback URL attached to password reset
// emails.
func WithRecoveryRedirectURL(url string) Option {
	return func(b *Bridge) {
		b.recoveryURL = url
	}
}

// New returns an unbootstrapped Bridge bound to the given Session Store.
func New(store SessionStore, opts ...Option) *Bridge {
	b := &Bridge{
		store:       store,
		cache:       noopTokenCache{},
		logger:      defLogger{},
		sink:        noopActivitySink{},
		machine:     NewLifecycleMachine(),
		state:       StateUninitialized,
		isLoading:   true,
		subscribers: map[int]func(Snapshot){},
		ready:       make(chan struct{}),
		done:        make(chan struct{}),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

// Bootstrap reconciles persisted tokens with the live Session Store and
// starts consuming its change-notification stream. It runs exactly once
// per bridge lifetime; further calls are no-ops. Store failures terminate
// the loading state and leave the bridge navigable (anonymous); the error
// is returned for the caller's logging but is never pushed to subscribers.
func (b *Bridge) Bootstrap(ctx context.Context) error {
	b.mu.Lock()
	if b.hasInitialized {
		b.mu.Unlock()
		b.logger.Debug("Bootstrap already ran, skipping")
		return nil
	}
	b.hasInitialized = true
	b.isLoading = true
	b.mu.Unlock()

	// Subscribe before the initial fetch so no change event emitted during
	// bootstrap is lost; the consumer buffers until the fetch publishes.
	events, cancel := b.store.Subscribe()
	evCtx, stop := context.WithCancel(context.Background())
	b.mu.Lock()
	b.stopEvents = func() {
		stop()
		cancel()
	}
	b.mu.Unlock()

	go b.consumeEvents(evCtx, events)

	err := b.reconcile(ctx)

	b.mu.Lock()
	b.isLoading = false
	snap := b.snapshotLocked()
	subs := b.subscribersLocked()
	b.mu.Unlock()

	close(b.ready)
	b.notify(subs, snap)

	b.emit(ctx, ActivityEventBootstrapCompleted, snap.userID(), StateUninitialized, snap.State, map[string]any{
		"state": snap.State,
	})

	return err
}

func (b *Bridge) reconcile(ctx context.Context) error {
	tokens, err := b.cache.Load(ctx)
	if err != nil {
		b.logger.Warn("Bootstrap token cache read failed: %v", err)
		tokens = TokenPair{}
	}

	if tokens.IsZero() {
		b.publish(ctx, nil, StateAnonymous)
		return nil
	}

	session, err := b.store.CurrentSession(ctx, tokens)
	if err != nil {
		// A revoked or expired token pair is an ordinary outcome of having
		// been away: land anonymous and move on. Only transport and service
		// failures surface to the caller.
		if IsAuthRejection(err) {
			b.logger.Info("Bootstrap tokens rejected, starting anonymous: %v", err)
			b.publish(ctx, nil, StateAnonymous)
			return nil
		}
		b.logger.Error("Bootstrap session lookup failed: %v", err)
		b.publish(ctx, nil, StateAnonymous)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "bootstrap session lookup failed").
			WithTextCode(TextCodeStoreUnavailable)
	}

	if session == nil {
		b.publish(ctx, nil, StateAnonymous)
		return nil
	}

	// Forced refresh so server-observable cookies and client tokens agree;
	// best effort, the session we already have is good enough on failure.
	if synced, err := b.syncServerTokens(ctx, session); err != nil {
		b.logger.Warn("Bootstrap token sync failed: %v", err)
	} else if synced != nil {
		session = synced
	}

	b.publish(ctx, session, StateAuthenticated)
	return nil
}

func (b *Bridge) consumeEvents(ctx context.Context, events <-chan AuthEvent) {
	defer close(b.done)

	var buffered []AuthEvent
	readyCh := b.ready

	for {
		select {
		case <-ctx.Done():
			return
		case <-readyCh:
			readyCh = nil
			for _, ev := range buffered {
				b.handleEvent(ctx, ev)
			}
			buffered = nil
		case ev, ok := <-events:
			if !ok {
				return
			}
			if readyCh != nil {
				buffered = append(buffered, ev)
				continue
			}
			b.handleEvent(ctx, ev)
		}
	}
}

func (b *Bridge) handleEvent(ctx context.Context, ev AuthEvent) {
	switch ev.Kind {
	case EventSignedOut:
		b.publish(ctx, nil, StateAnonymous)
	case EventSignedIn:
		if ev.Session == nil {
			b.logger.Warn("signed-in event without session payload, ignoring")
			return
		}
		b.publish(ctx, ev.Session, StateAuthenticated)
		// A sign-in observed through the stream may leave cookies one
		// generation behind, same as a direct login.
		if synced, err := b.syncServerTokens(ctx, ev.Session); err != nil {
			b.logger.Warn("post-sign-in token sync failed: %v", err)
		} else if synced != nil {
			b.publish(ctx, synced, StateAuthenticated)
		}
	case EventTokenRefreshed, EventUserUpdated:
		if ev.Session != nil {
			b.publish(ctx, ev.Session, StateAuthenticated)
		}
	case EventPasswordRecovery:
		// recovery entry does not change who is logged in
	default:
		b.logger.Debug("ignoring unknown auth event kind %q", ev.Kind)
	}
}

// syncServerTokens is the single idempotent "ensure server and client
// tokens agree" routine. Both the login path and the signed-in event path
// call it; a second call for a token generation it has already processed
// is a no-op, so ordering between the two triggers does not matter. It
// returns the refreshed session, or nil when the sync was skipped.
func (b *Bridge) syncServerTokens(ctx context.Context, session *Session) (*Session, error) {
	if session == nil || session.RefreshToken == "" {
		return nil, nil
	}

	b.mu.Lock()
	if session.AccessToken != "" &&
		(session.AccessToken == b.lastSyncSource || session.AccessToken == b.lastSyncResult) {
		b.mu.Unlock()
		return nil, nil
	}
	b.lastSyncSource = session.AccessToken
	b.mu.Unlock()

	refreshed, err := b.store.Refresh(ctx, session.RefreshToken)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.lastSyncResult = refreshed.AccessToken
	b.mu.Unlock()

	cur := b.State()
	b.emit(ctx, ActivityEventTokenSynced, sessionUserID(refreshed), cur, cur, nil)

	return refreshed, nil
}

// publish is the only writer of the bridge's published state. Last write
// wins; subscribers are notified outside the lock.
func (b *Bridge) publish(ctx context.Context, session *Session, target BridgeState) {
	b.publishWith(ctx, session, nil, target)
}

// publishPending moves the bridge to StatePendingConfirmation carrying the
// unconfirmed principal. The pending user is recorded only when the
// transition is accepted.
func (b *Bridge) publishPending(ctx context.Context, user *User) {
	b.publishWith(ctx, nil, user, StatePendingConfirmation)
}

func (b *Bridge) publishWith(ctx context.Context, session *Session, pending *User, target BridgeState) {
	b.mu.Lock()

	if target != b.state {
		if _, err := b.machine.Transition(b.state, target); err != nil {
			b.logger.Warn("ignoring state change %s -> %s: %v", b.state, target, err)
			b.mu.Unlock()
			return
		}
	}

	b.state = target
	b.session = session
	if target == StateAuthenticated && session != nil {
		b.user = session.User
	} else {
		// pending confirmation deliberately keeps the published user nil:
		// an unconfirmed registration must not look logged in
		b.user = nil
	}
	if target == StatePendingConfirmation {
		b.pendingUser = pending
	} else {
		b.pendingUser = nil
	}

	snap := b.snapshotLocked()
	subs := b.subscribersLocked()
	b.mu.Unlock()

	b.persistTokens(ctx, session)
	b.notify(subs, snap)
}

func (b *Bridge) persistTokens(ctx context.Context, session *Session) {
	var err error
	if session != nil {
		err = b.cache.Save(ctx, session.TokenPair)
	} else {
		err = b.cache.Clear(ctx)
	}
	if err != nil {
		b.logger.Warn("token cache write failed: %v", err)
	}
}

func (b *Bridge) notify(subs []func(Snapshot), snap Snapshot) {
	for _, fn := range subs {
		fn(snap)
	}
}

func (b *Bridge) snapshotLocked() Snapshot {
	return Snapshot{
		User:            b.user,
		State:           b.state,
		IsLoading:       b.isLoading,
		IsAuthenticated: b.user != nil,
	}
}

func (b *Bridge) subscribersLocked() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(b.subscribers))
	for _, fn := range b.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

// Snapshot returns the current published state.
func (b *Bridge) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snapshotLocked()
}

// User returns the published principal, nil when anonymous.
func (b *Bridge) User() *User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.user
}

// PendingUser returns the principal of an unconfirmed registration while
// the bridge is in StatePendingConfirmation, nil otherwise.
func (b *Bridge) PendingUser() *User {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pendingUser
}

// State returns the published lifecycle state.
func (b *Bridge) State() BridgeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// IsLoading reports whether the first bootstrap is still in flight.
func (b *Bridge) IsLoading() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.isLoading
}

// IsAuthenticated reports whether a principal is published. It equals
// User() != nil in every reachable state.
func (b *Bridge) IsAuthenticated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.user != nil
}

// Subscribe registers fn for every published snapshot and delivers the
// current one immediately. The returned function unregisters it.
func (b *Bridge) Subscribe(fn func(Snapshot)) func() {
	if fn == nil {
		return func() {}
	}

	b.mu.Lock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	snap := b.snapshotLocked()
	b.mu.Unlock()

	fn(snap)

	return func() {
		b.mu.Lock()
		delete(b.subscribers, id)
		b.mu.Unlock()
	}
}

// WaitReady blocks until the first bootstrap resolves or ctx is done.
func (b *Bridge) WaitReady(ctx context.Context) error {
	select {
	case <-b.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dispose cancels the change-notification subscription and waits for the
// consumer goroutine. Safe to call more than once.
func (b *Bridge) Dispose() {
	b.disposeOnce.Do(func() {
		b.mu.Lock()
		stop := b.stopEvents
		initialized := b.hasInitialized
		b.mu.Unlock()

		if stop != nil {
			stop()
		}
		if initialized && stop != nil {
			<-b.done
		}
	})
}

// Login exchanges credentials for a session. Store errors pass through
// unchanged so the caller decides the user-facing message; published state
// is untouched on failure. On success the user is published and the
// idempotent token sync runs (best effort).
func (b *Bridge) Login(ctx context.Context, email, password string) (*Session, error) {
	from := b.State()

	session, err := b.store.SignInWithPassword(ctx, email, password)
	if err != nil {
		b.logger.Error("Login credential exchange failed: %v", err)
		b.emit(ctx, ActivityEventLoginFailure, "", from, from, map[string]any{
			"identifier": email,
			"error":      err.Error(),
		})
		return nil, err
	}

	if synced, err := b.syncServerTokens(ctx, session); err != nil {
		b.logger.Warn("post-login token sync failed: %v", err)
	} else if synced != nil {
		session = synced
	}

	b.publish(ctx, session, StateAuthenticated)
	b.emit(ctx, ActivityEventLoginSuccess, sessionUserID(session), from, b.State(), map[string]any{
		"identifier": email,
	})

	return session, nil
}

// Logout signs the current session out of the Session Store. Only success
// clears the published user: an optimistic clear on failure would
// desynchronize the UI from actual session validity.
func (b *Bridge) Logout(ctx context.Context) error {
	b.mu.RLock()
	session := b.session
	from := b.state
	b.mu.RUnlock()

	var token string
	if session != nil {
		token = session.AccessToken
	}

	if err := b.store.SignOut(ctx, token); err != nil {
		b.logger.Error("Logout failed: %v", err)
		b.emit(ctx, ActivityEventLogoutFailure, sessionUserID(session), from, from, map[string]any{
			"error": err.Error(),
		})
		return err
	}

	b.publish(ctx, nil, StateAnonymous)
	b.emit(ctx, ActivityEventLogoutSuccess, sessionUserID(session), from, b.State(), nil)
	return nil
}

// Register signs up a new account with profile metadata and the
// email-confirmation callback URL. When the store returns an active
// session the principal is published as authenticated; when confirmation
// is still required the bridge moves to StatePendingConfirmation and the
// published user stays nil.
func (b *Bridge) Register(ctx context.Context, input SignUpInput) (*SignUpResult, error) {
	if input.RedirectTo == "" {
		input.RedirectTo = b.confirmationURL
	}

	from := b.State()

	result, err := b.store.SignUp(ctx, input)
	if err != nil {
		b.logger.Error("Register failed: %v", err)
		b.emit(ctx, ActivityEventRegisterFailure, "", from, from, map[string]any{
			"identifier": input.Email,
			"error":      err.Error(),
		})
		return nil, err
	}

	if result.Session != nil {
		if synced, err := b.syncServerTokens(ctx, result.Session); err != nil {
			b.logger.Warn("post-register token sync failed: %v", err)
		} else if synced != nil {
			result.Session = synced
		}
		b.publish(ctx, result.Session, StateAuthenticated)
	} else {
		b.publishPending(ctx, result.User)
	}

	b.emit(ctx, ActivityEventRegisterSuccess, userID(result.User), from, b.State(), map[string]any{
		"identifier": input.Email,
		"pending":    result.Session == nil,
	})

	return result, nil
}

// ResetPassword requests an out-of-band password reset email. It never
// alters published state; the Session Store does not leak whether the
// account exists.
func (b *Bridge) ResetPassword(ctx context.Context, email string) error {
	if err := b.store.RequestPasswordReset(ctx, email, b.recoveryURL); err != nil {
		b.logger.Error("ResetPassword request failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "password reset request failed")
	}

	cur := b.State()
	b.emit(ctx, ActivityEventPasswordResetSent, "", cur, cur, map[string]any{
		"identifier": email,
	})
	return nil
}

// UpdatePassword updates the credential on the currently active session.
// It does not terminate the session; callers wanting a global sign-out
// afterward call Logout as an explicit separate step.
func (b *Bridge) UpdatePassword(ctx context.Context, newPassword string) error {
	b.mu.RLock()
	session := b.session
	from := b.state
	b.mu.RUnlock()

	if session == nil {
		return ErrNoActiveSession
	}

	updated, err := b.store.UpdatePassword(ctx, session.AccessToken, newPassword)
	if err != nil {
		b.logger.Error("UpdatePassword failed: %v", err)
		return err
	}

	if updated != nil {
		refreshed := *session
		refreshed.User = updated
		b.publish(ctx, &refreshed, StateAuthenticated)
	}

	b.emit(ctx, ActivityEventPasswordUpdated, userID(updated), from, b.State(), nil)
	return nil
}

func (b *Bridge) emit(ctx context.Context, eventType ActivityEventType, id string, from, to BridgeState, metadata map[string]any) {
	sink := normalizeActivitySink(b.sink)
	event := ActivityEvent{
		EventType: eventType,
		UserID:    id,
		FromState: from,
		ToState:   to,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		b.logger.Warn("activity sink record error: %v", err)
	}
}

func (s Snapshot) userID() string {
	return userID(s.User)
}

func userID(u *User) string {
	if u == nil {
		return ""
	}
	return u.ID
}

func sessionUserID(s *Session) string {
	if s == nil {
		return ""
	}
	return userID(s.User)
}
