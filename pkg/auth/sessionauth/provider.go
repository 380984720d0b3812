// Package sessionauth resolves a session cookie to an auth.Session.
package sessionauth

import (
	"context"
	"net/http"
	"time"

	"github.com/fundsavy/fundsavy/pkg/auth"
)

// DefaultCookieName is the cookie carrying the session ID.
const DefaultCookieName = "fundsavy_session"

// Resolver looks up and ends sessions by ID. session.Manager implements it.
type Resolver interface {
	Resolve(ctx context.Context, sessionID string) (*auth.Session, error)
	End(ctx context.Context, sessionID string) error
}

// CookiePolicy applies security defaults to cookies set by the provider.
type CookiePolicy interface {
	ApplyCookiePolicy(r *http.Request, cookie *http.Cookie) (*http.Cookie, error)
}

// Provider reads the session cookie on each request.
type Provider struct {
	resolver     Resolver
	cookieName   string
	cookiePolicy CookiePolicy
}

// Option configures a Provider.
type Option func(*Provider)

// WithCookieName sets the cookie name used to load session IDs.
func WithCookieName(name string) Option {
	return func(p *Provider) {
		if name != "" {
			p.cookieName = name
		}
	}
}

// WithCookiePolicy applies a cookie policy for provider-managed cookies.
func WithCookiePolicy(policy CookiePolicy) Option {
	return func(p *Provider) {
		p.cookiePolicy = policy
	}
}

// New creates a cookie session provider.
func New(resolver Resolver, opts ...Option) *Provider {
	p := &Provider{
		resolver:   resolver,
		cookieName: DefaultCookieName,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// CookieName returns the session cookie name.
func (p *Provider) CookieName() string {
	return p.cookieName
}

// Middleware resolves the session cookie and injects the session into the
// request context. Requests without a valid session pass through
// unauthenticated and have a stale cookie cleared.
func (p *Provider) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(p.cookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			sess, err := p.resolver.Resolve(r.Context(), cookie.Value)
			if err != nil {
				p.ClearCookie(w, r)
				next.ServeHTTP(w, r)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

// SetCookie writes the session cookie for sess.
func (p *Provider) SetCookie(w http.ResponseWriter, r *http.Request, sess *auth.Session) error {
	principal, err := sess.Principal()
	if err != nil {
		return err
	}
	cookie := &http.Cookie{
		Name:     p.cookieName,
		Value:    principal.SessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   r != nil && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	if !principal.ExpiresAt.IsZero() {
		cookie.Expires = principal.ExpiresAt
		cookie.MaxAge = int(time.Until(principal.ExpiresAt).Seconds())
	}
	p.write(w, r, cookie)
	return nil
}

// SignOut ends the session carried by the request, if any, and clears the
// cookie.
func (p *Provider) SignOut(w http.ResponseWriter, r *http.Request) error {
	defer p.ClearCookie(w, r)
	cookie, err := r.Cookie(p.cookieName)
	if err != nil || cookie.Value == "" {
		return auth.ErrUnauthorized
	}
	return p.resolver.End(r.Context(), cookie.Value)
}

// ClearCookie expires the session cookie.
func (p *Provider) ClearCookie(w http.ResponseWriter, r *http.Request) {
	p.write(w, r, &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r != nil && r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func (p *Provider) write(w http.ResponseWriter, r *http.Request, cookie *http.Cookie) {
	if p.cookiePolicy != nil {
		updated, err := p.cookiePolicy.ApplyCookiePolicy(r, cookie)
		if err != nil {
			return
		}
		cookie = updated
	}
	http.SetCookie(w, cookie)
}
