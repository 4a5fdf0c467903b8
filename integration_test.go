package bridge_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	bridge "github.com/goliatone/go-auth-bridge"
	"github.com/goliatone/go-auth-bridge/provider/memory"
	"github.com/goliatone/go-auth-bridge/tokencache"
)

// Full lifecycle against a seeded in-process store: bootstrap with no
// session, login, guarded access, logout.
func TestBridgeLifecycleAgainstMemoryStore(t *testing.T) {
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	_, err := store.Seed("member@example.com", "pass word 123", map[string]any{
		"name":    "Ada",
		"surname": "Lovelace",
	})
	require.NoError(t, err)

	cache := tokencache.NewMemory()
	b := bridge.New(store, bridge.WithTokenCache(cache))
	defer b.Dispose()

	require.NoError(t, b.Bootstrap(context.Background()))
	assert.Equal(t, bridge.StateAnonymous, b.State())
	assert.False(t, b.IsAuthenticated())

	guard := bridge.NewRouteGuard(b, bridge.GuardConfig{})
	app := fiber.New()
	app.Get("/app/profile", guard.Protected(), func(c *fiber.Ctx) error {
		user, _ := bridge.FromContext(c.UserContext())
		return c.SendString(user.FullName())
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/app/profile", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)

	session, err := b.Login(context.Background(), "member@example.com", "pass word 123")
	require.NoError(t, err)
	require.NotNil(t, session.User)

	assert.True(t, b.IsAuthenticated())
	assert.Equal(t, "member@example.com", b.User().Email)
	assert.Equal(t, "Ada", b.User().FirstName)

	// the idempotent sync persisted the latest generation
	tokens, err := cache.Load(context.Background())
	require.NoError(t, err)
	assert.False(t, tokens.IsZero())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/app/profile", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.NoError(t, b.Logout(context.Background()))

	// the store's sign-out notification and the direct publish agree
	require.Eventually(t, func() bool {
		return !b.IsAuthenticated() && b.State() == bridge.StateAnonymous
	}, time.Second, 10*time.Millisecond)

	tokens, err = cache.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, tokens.IsZero())

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/app/profile", nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

// A second process observing the same store converges through the event
// stream alone.
func TestTwoBridgesConvergeThroughEvents(t *testing.T) {
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	_, err := store.Seed("member@example.com", "pass word 123", nil)
	require.NoError(t, err)

	actor := bridge.New(store)
	defer actor.Dispose()
	observer := bridge.New(store)
	defer observer.Dispose()

	require.NoError(t, actor.Bootstrap(context.Background()))
	require.NoError(t, observer.Bootstrap(context.Background()))

	_, err = actor.Login(context.Background(), "member@example.com", "pass word 123")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		u := observer.User()
		return u != nil && u.Email == "member@example.com"
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, actor.Logout(context.Background()))

	require.Eventually(t, func() bool {
		return !observer.IsAuthenticated()
	}, time.Second, 10*time.Millisecond)
}

func TestBootstrapRestoresFromPersistedTokens(t *testing.T) {
	store := memory.New(memory.WithBcryptCost(bcrypt.MinCost))
	_, err := store.Seed("member@example.com", "pass word 123", nil)
	require.NoError(t, err)

	cache := tokencache.NewMemory()

	first := bridge.New(store, bridge.WithTokenCache(cache))
	require.NoError(t, first.Bootstrap(context.Background()))
	_, err = first.Login(context.Background(), "member@example.com", "pass word 123")
	require.NoError(t, err)
	first.Dispose()

	// a fresh bridge over the same cache resumes the session
	second := bridge.New(store, bridge.WithTokenCache(cache))
	defer second.Dispose()
	require.NoError(t, second.Bootstrap(context.Background()))

	assert.True(t, second.IsAuthenticated())
	require.NotNil(t, second.User())
	assert.Equal(t, "member@example.com", second.User().Email)
}
