// Package localauth is an in-memory identity provider.
//
// Passwords are hashed with bcrypt. Google sign-in is delegated to an
// Exchanger (see googleauth), and phone codes are delivered by a
// CodeSender, which logs them unless another sender is configured.
package localauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/fundsavy/fundsavy/pkg/auth"
)

// Defaults for phone verification.
const (
	DefaultCodeTTL        = 5 * time.Minute
	DefaultResendInterval = 30 * time.Second
)

// ErrOAuthUnavailable is returned by the OAuth methods when no Exchanger
// is configured.
var ErrOAuthUnavailable = errors.New("oauth sign-in is not configured")

// Exchanger performs an OAuth authorization-code round trip.
type Exchanger interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (auth.Claims, error)
}

// User is a registered account.
type User struct {
	ID            string
	Email         string
	Name          string
	Phone         string
	GoogleSubject string

	passwordHash []byte
}

// Provider implements auth.Provider in memory.
type Provider struct {
	mu            sync.Mutex
	users         map[string]*User
	byEmail       map[string]string
	byPhone       map[string]string
	byGoogle      map[string]string
	verifications map[string]*verification
	lastSent      map[string]time.Time

	exchanger      Exchanger
	sender         CodeSender
	captcha        CaptchaVerifier
	codeTTL        time.Duration
	resendInterval time.Duration
	bcryptCost     int
	logger         *slog.Logger
	now            func() time.Time
}

var _ auth.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithExchanger enables Google sign-in.
func WithExchanger(e Exchanger) Option {
	return func(p *Provider) { p.exchanger = e }
}

// WithCodeSender sets how verification codes are delivered.
func WithCodeSender(s CodeSender) Option {
	return func(p *Provider) {
		if s != nil {
			p.sender = s
		}
	}
}

// WithCaptcha requires a captcha check before a code is sent.
func WithCaptcha(c CaptchaVerifier) Option {
	return func(p *Provider) { p.captcha = c }
}

// WithCodeTTL sets how long a verification code stays valid.
func WithCodeTTL(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.codeTTL = d
		}
	}
}

// WithResendInterval sets the minimum time between code sends.
func WithResendInterval(d time.Duration) Option {
	return func(p *Provider) {
		if d >= 0 {
			p.resendInterval = d
		}
	}
}

// WithBcryptCost sets the password hashing cost.
func WithBcryptCost(cost int) Option {
	return func(p *Provider) { p.bcryptCost = cost }
}

// WithLogger sets the provider logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates an empty provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		users:          make(map[string]*User),
		byEmail:        make(map[string]string),
		byPhone:        make(map[string]string),
		byGoogle:       make(map[string]string),
		verifications:  make(map[string]*verification),
		lastSent:       make(map[string]time.Time),
		codeTTL:        DefaultCodeTTL,
		resendInterval: DefaultResendInterval,
		bcryptCost:     bcrypt.DefaultCost,
		logger:         slog.Default(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.sender == nil {
		p.sender = LogSender{Logger: p.logger}
	}
	return p
}

// SignUp registers an email account.
func (p *Provider) SignUp(ctx context.Context, email, password, name string) (auth.Principal, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return auth.Principal{}, auth.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.bcryptCost)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("localauth: hashing password: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.byEmail[email]; ok {
		return auth.Principal{}, auth.ErrUserExists
	}
	u := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         strings.TrimSpace(name),
		passwordHash: hash,
	}
	p.addLocked(u)
	p.logger.Info("user registered", "user", u.ID, "provider", auth.MethodPassword)
	return principal(u, auth.MethodPassword), nil
}

// SignInWithCredentials signs in with an email and password.
func (p *Provider) SignInWithCredentials(ctx context.Context, identifier, secret string) (auth.Principal, error) {
	p.mu.Lock()
	var u *User
	if id, ok := p.byEmail[normalizeEmail(identifier)]; ok {
		u = p.users[id]
	}
	p.mu.Unlock()

	if u == nil || u.passwordHash == nil {
		return auth.Principal{}, auth.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(secret)); err != nil {
		return auth.Principal{}, auth.ErrInvalidCredentials
	}
	return principal(u, auth.MethodPassword), nil
}

// BeginOAuth returns the consent page URL for state.
func (p *Provider) BeginOAuth(ctx context.Context, state string) (string, error) {
	if p.exchanger == nil {
		return "", ErrOAuthUnavailable
	}
	return p.exchanger.AuthCodeURL(state), nil
}

// CompleteOAuth exchanges code and signs the user in, linking the account
// to an existing user with the same verified email or creating one.
func (p *Provider) CompleteOAuth(ctx context.Context, code string) (auth.Principal, error) {
	if p.exchanger == nil {
		return auth.Principal{}, ErrOAuthUnavailable
	}
	claims, err := p.exchanger.Exchange(ctx, code)
	if err != nil {
		return auth.Principal{}, fmt.Errorf("%w: %w", auth.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return auth.Principal{}, fmt.Errorf("%w: missing subject", auth.ErrUnauthorized)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if id, ok := p.byGoogle[claims.Subject]; ok {
		return principal(p.users[id], auth.MethodGoogle), nil
	}

	email := normalizeEmail(claims.Email)
	if id, ok := p.byEmail[email]; ok && email != "" {
		if !claims.EmailVerified {
			return auth.Principal{}, auth.ErrUserExists
		}
		u := p.users[id]
		u.GoogleSubject = claims.Subject
		p.byGoogle[claims.Subject] = u.ID
		return principal(u, auth.MethodGoogle), nil
	}

	u := &User{
		ID:            uuid.NewString(),
		Email:         email,
		Name:          claims.Name,
		GoogleSubject: claims.Subject,
	}
	p.addLocked(u)
	p.logger.Info("user registered", "user", u.ID, "provider", auth.MethodGoogle)
	return principal(u, auth.MethodGoogle), nil
}

// Lookup returns the user with the given ID.
func (p *Provider) Lookup(id string) (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return User{}, false
	}
	return *u, true
}

func (p *Provider) addLocked(u *User) {
	p.users[u.ID] = u
	if u.Email != "" {
		p.byEmail[u.Email] = u.ID
	}
	if u.Phone != "" {
		p.byPhone[u.Phone] = u.ID
	}
	if u.GoogleSubject != "" {
		p.byGoogle[u.GoogleSubject] = u.ID
	}
}

func principal(u *User, method string) auth.Principal {
	return auth.Principal{
		ID:       u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Phone:    u.Phone,
		Provider: method,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
