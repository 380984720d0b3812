package auth

import (
	"context"
	"sync"
	"time"
)

// Session is a signed-in user. It is created at sign-in with Start, passed
// to handlers through a context.Context, and ended with SignOut or when the
// principal expires.
type Session struct {
	mu        sync.Mutex
	principal Principal
	err       error
	hooks     []func()
	done      chan struct{}
	timer     *time.Timer
}

// Start begins a session for p. If p has an expiry the session ends by
// itself at that time with ErrSessionExpired.
func Start(p Principal) *Session {
	s := &Session{
		principal: p,
		done:      make(chan struct{}),
	}
	if !p.ExpiresAt.IsZero() {
		d := time.Until(p.ExpiresAt)
		if d <= 0 {
			s.end(ErrSessionExpired)
			return s
		}
		s.mu.Lock()
		s.timer = time.AfterFunc(d, func() { s.end(ErrSessionExpired) })
		s.mu.Unlock()
	}
	return s
}

// Principal returns the signed-in principal, or the reason the session
// ended.
func (s *Session) Principal() (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return Principal{}, s.err
	}
	return s.principal, nil
}

// OnSignOut registers fn to run when the session ends. Hooks run in reverse
// registration order. If the session has already ended fn runs immediately.
func (s *Session) OnSignOut(fn func()) {
	s.mu.Lock()
	if s.err == nil {
		s.hooks = append(s.hooks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	fn()
}

// SignOut ends the session. It is idempotent.
func (s *Session) SignOut() {
	s.end(ErrSessionEnded)
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns nil while the session is active, then ErrSessionEnded or
// ErrSessionExpired.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Context returns a context derived from parent that is canceled when the
// session ends. The session is attached to it.
func (s *Session) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(WithSession(parent, s))
	go func() {
		select {
		case <-s.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (s *Session) end(reason error) {
	s.mu.Lock()
	if s.err != nil {
		s.mu.Unlock()
		return
	}
	s.err = reason
	hooks := s.hooks
	s.hooks = nil
	if s.timer != nil {
		s.timer.Stop()
	}
	close(s.done)
	s.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

type sessionContextKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext returns the session carried by ctx.
func FromContext(ctx context.Context) (*Session, bool) {
	if ctx == nil {
		return nil, false
	}
	s, ok := ctx.Value(sessionContextKey{}).(*Session)
	return s, ok && s != nil
}

// PrincipalFromContext returns the principal of the active session carried
// by ctx.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	s, ok := FromContext(ctx)
	if !ok {
		return Principal{}, false
	}
	p, err := s.Principal()
	return p, err == nil
}
