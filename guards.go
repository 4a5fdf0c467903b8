package bridge

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// GuardConfig holds route guard options. Zero values fall back to the
// defaults the guarded application expects.
type GuardConfig struct {
	// LandingRoute is where public-only guards send authenticated users.
	LandingRoute string
	// LoginRoute is where protected guards send anonymous users.
	LoginRoute string
	// RejectedRouteKey names the cookie remembering the rejected path.
	RejectedRouteKey string
	// AccessCookieName / RefreshCookieName name the cookie mirror of the
	// token pair consumed by server-rendered handlers.
	AccessCookieName  string
	RefreshCookieName string
	// CookieDuration bounds the mirror cookies' lifetime.
	CookieDuration time.Duration
	// ReadyTimeout bounds how long a guard waits for bootstrap before
	// answering without content or redirect.
	ReadyTimeout time.Duration
}

func (c *GuardConfig) setDefaults() {
	if c.LandingRoute == "" {
		c.LandingRoute = "/"
	}
	if c.LoginRoute == "" {
		c.LoginRoute = "/login"
	}
	if c.RejectedRouteKey == "" {
		c.RejectedRouteKey = "rejected_route"
	}
	if c.AccessCookieName == "" {
		c.AccessCookieName = "sb_access_token"
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = "sb_refresh_token"
	}
	if c.CookieDuration <= 0 {
		c.CookieDuration = 24 * time.Hour
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 10 * time.Second
	}
}

// RouteGuard derives redirect decisions purely from the bridge's published
// snapshot; it holds no session state of its own. Decisions are
// re-evaluated on every request, so a sign-out that happens while a
// guarded view is already displayed takes effect on the next hit.
type RouteGuard struct {
	bridge *Bridge
	cfg    GuardConfig
	Logger Logger
}

// NewRouteGuard returns a guard bound to the bridge.
func NewRouteGuard(b *Bridge, cfg GuardConfig) *RouteGuard {
	cfg.setDefaults()
	return &RouteGuard{
		bridge: b,
		cfg:    cfg,
		Logger: defLogger{},
	}
}

// Protected gates a subtree on an authenticated principal. While bootstrap
// is unresolved it answers 503 without redirecting, so an anonymous flash
// never precedes the real decision. Anonymous principals are redirected to
// the login route with the rejected path remembered; authenticated ones
// continue with the user stashed in the request context.
func (g *RouteGuard) Protected() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := g.waitReady(c); err != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		snap := g.bridge.Snapshot()
		if snap.User == nil {
			g.SetRedirect(c)
			return c.Redirect(g.cfg.LoginRoute, g.redirectStatus(c))
		}

		c.Locals("user", snap.User)
		c.SetUserContext(WithContext(c.UserContext(), snap.User))
		return c.Next()
	}
}

// PublicOnly gates a subtree on an anonymous principal, redirecting
// authenticated users back to the landing route (or the path they were
// originally rejected from).
func (g *RouteGuard) PublicOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := g.waitReady(c); err != nil {
			return c.SendStatus(fiber.StatusServiceUnavailable)
		}

		snap := g.bridge.Snapshot()
		if snap.User != nil {
			return c.Redirect(g.GetRedirect(c, g.cfg.LandingRoute), g.redirectStatus(c))
		}

		return c.Next()
	}
}

func (g *RouteGuard) waitReady(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), g.cfg.ReadyTimeout)
	defer cancel()

	if err := g.bridge.WaitReady(ctx); err != nil {
		g.Logger.Warn("guard gave up waiting for bootstrap", "path", c.OriginalURL(), "error", err)
		return err
	}
	return nil
}

func (g *RouteGuard) redirectStatus(c *fiber.Ctx) int {
	if c.Method() == fiber.MethodGet {
		return fiber.StatusFound
	}
	return fiber.StatusSeeOther
}

// SetRedirect remembers the rejected path so a later login can land back
// on it.
func (g *RouteGuard) SetRedirect(c *fiber.Ctx) {
	g.Logger.Info("Setting redirect cookie", "key", g.cfg.RejectedRouteKey, "path", c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     g.cfg.RejectedRouteKey,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect returns and clears the remembered rejected path, falling
// back to def.
func (g *RouteGuard) GetRedirect(c *fiber.Ctx, def string) string {
	r := c.Cookies(g.cfg.RejectedRouteKey)
	if r == "" {
		return def
	}
	g.cookieDel(c, g.cfg.RejectedRouteKey)
	return r
}

// SetSessionCookies writes the cookie mirror of the token pair, consumed
// by server-rendered handlers to authorize requests independently of the
// bridge.
func (g *RouteGuard) SetSessionCookies(c *fiber.Ctx, session *Session) {
	if session == nil {
		return
	}

	expires := time.Now().Add(g.cfg.CookieDuration)
	if !session.ExpiresAt.IsZero() && session.ExpiresAt.Before(expires) {
		expires = session.ExpiresAt
	}

	g.setCookieToken(c, g.cfg.AccessCookieName, session.AccessToken, expires)
	g.setCookieToken(c, g.cfg.RefreshCookieName, session.RefreshToken, time.Now().Add(g.cfg.CookieDuration))
}

// ClearSessionCookies removes the cookie mirror.
func (g *RouteGuard) ClearSessionCookies(c *fiber.Ctx) {
	g.cookieDel(c, g.cfg.AccessCookieName)
	g.cookieDel(c, g.cfg.RefreshCookieName)
}

func (g *RouteGuard) setCookieToken(c *fiber.Ctx, name, val string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    val,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (g *RouteGuard) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}
