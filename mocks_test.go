package bridge_test

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	bridge "github.com/goliatone/go-auth-bridge"
)

// MockSessionStore implements bridge.SessionStore
type MockSessionStore struct {
	mock.Mock

	eventsMu sync.Mutex
	events   chan bridge.AuthEvent
}

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{
		events: make(chan bridge.AuthEvent, 16),
	}
}

func (m *MockSessionStore) SignInWithPassword(ctx context.Context, email, password string) (*bridge.Session, error) {
	args := m.Called(ctx, email, password)
	session, _ := args.Get(0).(*bridge.Session)
	return session, args.Error(1)
}

func (m *MockSessionStore) SignUp(ctx context.Context, input bridge.SignUpInput) (*bridge.SignUpResult, error) {
	args := m.Called(ctx, input)
	result, _ := args.Get(0).(*bridge.SignUpResult)
	return result, args.Error(1)
}

func (m *MockSessionStore) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockSessionStore) CurrentSession(ctx context.Context, tokens bridge.TokenPair) (*bridge.Session, error) {
	args := m.Called(ctx, tokens)
	session, _ := args.Get(0).(*bridge.Session)
	return session, args.Error(1)
}

func (m *MockSessionStore) Refresh(ctx context.Context, refreshToken string) (*bridge.Session, error) {
	args := m.Called(ctx, refreshToken)
	session, _ := args.Get(0).(*bridge.Session)
	return session, args.Error(1)
}

func (m *MockSessionStore) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	args := m.Called(ctx, email, redirectTo)
	return args.Error(0)
}

func (m *MockSessionStore) UpdatePassword(ctx context.Context, accessToken, newPassword string) (*bridge.User, error) {
	args := m.Called(ctx, accessToken, newPassword)
	user, _ := args.Get(0).(*bridge.User)
	return user, args.Error(1)
}

func (m *MockSessionStore) Subscribe() (<-chan bridge.AuthEvent, func()) {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	return m.events, func() {}
}

// Emit pushes a change event into the subscription stream, as if the
// store saw activity from another client.
func (m *MockSessionStore) Emit(event bridge.AuthEvent) {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()
	m.events <- event
}

// recordingCache is a token cache that remembers every write.
type recordingCache struct {
	mu      sync.Mutex
	tokens  bridge.TokenPair
	saves   []bridge.TokenPair
	clears  int
	loadErr error
	saveErr error
}

func (c *recordingCache) Load(ctx context.Context) (bridge.TokenPair, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loadErr != nil {
		return bridge.TokenPair{}, c.loadErr
	}
	return c.tokens, nil
}

func (c *recordingCache) Save(ctx context.Context, tokens bridge.TokenPair) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.saveErr != nil {
		return c.saveErr
	}
	c.tokens = tokens
	c.saves = append(c.saves, tokens)
	return nil
}

func (c *recordingCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = bridge.TokenPair{}
	c.clears++
	return nil
}

func (c *recordingCache) saved() []bridge.TokenPair {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]bridge.TokenPair, len(c.saves))
	copy(out, c.saves)
	return out
}

func (c *recordingCache) cleared() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clears
}

// collectSink records activity events for assertions.
type collectSink struct {
	mu     sync.Mutex
	events []bridge.ActivityEvent
}

func (s *collectSink) Record(ctx context.Context, event bridge.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectSink) all() []bridge.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.ActivityEvent, len(s.events))
	copy(out, s.events)
	return out
}

func (s *collectSink) types() []bridge.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]bridge.ActivityEventType, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}

func testSession(id, email, access, refresh string) *bridge.Session {
	return &bridge.Session{
		TokenPair: bridge.TokenPair{
			AccessToken:  access,
			RefreshToken: refresh,
		},
		User: &bridge.User{
			ID:             id,
			Email:          email,
			EmailConfirmed: true,
		},
	}
}
