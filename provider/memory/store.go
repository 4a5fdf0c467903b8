package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	bridge "github.com/goliatone/go-auth-bridge"
)

// Store is an in-process session store backed by maps. It exists for
// tests and local development where running a real authentication
// service is overkill; it honors the same contract, including the
// change-notification stream and refresh token rotation.
type Store struct {
	mu       sync.Mutex
	accounts map[string]*account
	refresh  map[string]string

	logger      bridge.Logger
	clock       func() time.Time
	signingKey  []byte
	tokenTTL    time.Duration
	bcryptCost  int
	autoConfirm bool
	minPassword int

	events *bridge.EventHub
}

type account struct {
	id           string
	email        string
	passwordHash string
	confirmed    bool
	metadata     map[string]any
}

var _ bridge.SessionStore = (*Store)(nil)

type Option func(*Store)

// WithAutoConfirm skips the email confirmation step so sign-ups produce
// a live session immediately.
func WithAutoConfirm(confirm bool) Option {
	return func(s *Store) {
		s.autoConfirm = confirm
	}
}

func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func WithSigningKey(key []byte) Option {
	return func(s *Store) {
		if len(key) > 0 {
			s.signingKey = key
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func WithLogger(logger bridge.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBcryptCost lowers the hashing cost, mostly so test suites stay
// fast.
func WithBcryptCost(cost int) Option {
	return func(s *Store) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			s.bcryptCost = cost
		}
	}
}

// New creates an in-memory store.
func New(opts ...Option) *Store {
	store := &Store{
		accounts:    map[string]*account{},
		refresh:     map[string]string{},
		logger:      bridge.DefaultLogger("MEMSTORE"),
		clock:       time.Now,
		signingKey:  []byte(uuid.NewString()),
		tokenTTL:    time.Hour,
		bcryptCost:  bcrypt.DefaultCost,
		minPassword: 10,
		events:      bridge.NewEventHub(),
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

// Seed registers a confirmed account without emitting events. It is the
// fixture path for tests and dev bootstrapping.
func (s *Store) Seed(email, password string, metadata map[string]any) (*bridge.User, error) {
	acct, err := s.createAccount(email, password, metadata)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	acct.confirmed = true
	s.mu.Unlock()

	return acct.toUser(), nil
}

// Confirm marks a pending account as email-confirmed.
func (s *Store) Confirm(email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return goerrors.New("no account for email", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}

	acct.confirmed = true

	return nil
}

// SignInWithPassword implements bridge.SessionStore.
func (s *Store) SignInWithPassword(ctx context.Context, email, password string) (*bridge.Session, error) {
	s.mu.Lock()
	acct, ok := s.accounts[normalizeEmail(email)]
	var hash string
	var confirmed bool
	if ok {
		hash = acct.passwordHash
		confirmed = acct.confirmed
	}
	s.mu.Unlock()

	if !ok {
		return nil, bridge.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, bridge.ErrInvalidCredentials
	}

	if !confirmed {
		return nil, bridge.ErrEmailNotConfirmed
	}

	session, err := s.issueSession(acct)
	if err != nil {
		return nil, err
	}

	s.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedIn, Session: session})

	return session, nil
}

// SignUp implements bridge.SessionStore. Without auto-confirm the result
// carries a user but no session, mirroring a service that gates logins
// on email confirmation.
func (s *Store) SignUp(ctx context.Context, input bridge.SignUpInput) (*bridge.SignUpResult, error) {
	acct, err := s.createAccount(input.Email, input.Password, input.Metadata())
	if err != nil {
		return nil, err
	}

	if !s.autoConfirm {
		return &bridge.SignUpResult{User: acct.toUser()}, nil
	}

	s.mu.Lock()
	acct.confirmed = true
	s.mu.Unlock()

	session, err := s.issueSession(acct)
	if err != nil {
		return nil, err
	}

	s.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedIn, Session: session})

	return &bridge.SignUpResult{Session: session, User: session.User}, nil
}

// SignOut implements bridge.SessionStore.
func (s *Store) SignOut(ctx context.Context, accessToken string) error {
	acct, err := s.accountForToken(accessToken)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for token, id := range s.refresh {
		if id == acct.id {
			delete(s.refresh, token)
		}
	}
	s.mu.Unlock()

	s.events.Emit(bridge.AuthEvent{Kind: bridge.EventSignedOut})

	return nil
}

// CurrentSession implements bridge.SessionStore.
func (s *Store) CurrentSession(ctx context.Context, tokens bridge.TokenPair) (*bridge.Session, error) {
	if tokens.IsZero() {
		return nil, bridge.ErrNoActiveSession
	}

	if !tokens.Expired(s.clock()) {
		if acct, err := s.accountForToken(tokens.AccessToken); err == nil {
			return &bridge.Session{TokenPair: tokens, User: acct.toUser()}, nil
		}
	}

	return s.Refresh(ctx, tokens.RefreshToken)
}

// Refresh implements bridge.SessionStore. Refresh tokens are single use.
func (s *Store) Refresh(ctx context.Context, refreshToken string) (*bridge.Session, error) {
	s.mu.Lock()
	id, ok := s.refresh[refreshToken]
	if ok {
		delete(s.refresh, refreshToken)
	}
	var acct *account
	if ok {
		acct = s.accountByID(id)
	}
	s.mu.Unlock()

	if acct == nil {
		return nil, goerrors.New("refresh token is not recognized", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	session, err := s.issueSession(acct)
	if err != nil {
		return nil, err
	}

	s.events.Emit(bridge.AuthEvent{Kind: bridge.EventTokenRefreshed, Session: session})

	return session, nil
}

// RequestPasswordReset implements bridge.SessionStore. There is no mail
// transport here; the event stream is the only observable effect.
func (s *Store) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	s.mu.Lock()
	_, ok := s.accounts[normalizeEmail(email)]
	s.mu.Unlock()

	if ok {
		s.events.Emit(bridge.AuthEvent{Kind: bridge.EventPasswordRecovery})
	}

	// unknown emails get the same answer, same as a real service
	return nil
}

// UpdatePassword implements bridge.SessionStore.
func (s *Store) UpdatePassword(ctx context.Context, accessToken, newPassword string) (*bridge.User, error) {
	if len(newPassword) < s.minPassword {
		return nil, bridge.ErrWeakPassword
	}

	acct, err := s.accountForToken(accessToken)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	s.mu.Lock()
	acct.passwordHash = string(hash)
	s.mu.Unlock()

	s.events.Emit(bridge.AuthEvent{Kind: bridge.EventUserUpdated})

	return acct.toUser(), nil
}

// Subscribe implements bridge.SessionStore.
func (s *Store) Subscribe() (<-chan bridge.AuthEvent, func()) {
	return s.events.Subscribe()
}

func (s *Store) createAccount(email, password string, metadata map[string]any) (*account, error) {
	key := normalizeEmail(email)
	if key == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	if len(password) < s.minPassword {
		return nil, bridge.ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	id, err := hashid.NewUUID(key)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to derive account id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[key]; exists {
		return nil, bridge.ErrDuplicateAccount
	}

	acct := &account{
		id:           id.String(),
		email:        key,
		passwordHash: string(hash),
		metadata:     metadata,
	}
	s.accounts[key] = acct

	return acct, nil
}

func (s *Store) issueSession(acct *account) (*bridge.Session, error) {
	now := s.clock()
	expiry := now.Add(s.tokenTTL)

	claims := jwt.MapClaims{
		"sub":   acct.id,
		"email": acct.email,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(expiry),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := token.SignedString(s.signingKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign access token")
	}

	refreshToken := uuid.NewString()

	s.mu.Lock()
	s.refresh[refreshToken] = acct.id
	s.mu.Unlock()

	return &bridge.Session{
		TokenPair: bridge.TokenPair{
			AccessToken:  accessToken,
			RefreshToken: refreshToken,
			ExpiresAt:    expiry,
		},
		User: acct.toUser(),
	}, nil
}

func (s *Store) accountForToken(accessToken string) (*account, error) {
	if accessToken == "" {
		return nil, bridge.ErrNoActiveSession
	}

	parsed, err := jwt.Parse(accessToken, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, goerrors.New("unexpected signing method", goerrors.CategoryAuth)
		}
		return s.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(s.clock))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "access token is invalid").
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, goerrors.New("access token claims are malformed", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	id, _ := claims["sub"].(string)

	s.mu.Lock()
	acct := s.accountByID(id)
	s.mu.Unlock()

	if acct == nil {
		return nil, goerrors.New("account no longer exists", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	return acct, nil
}

// accountByID expects s.mu held.
func (s *Store) accountByID(id string) *account {
	for _, acct := range s.accounts {
		if acct.id == id {
			return acct
		}
	}
	return nil
}

func (a *account) toUser() *bridge.User {
	return bridge.MapUser(a.id, a.email, a.confirmed, a.metadata)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
