package localauth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fundsavy/fundsavy/pkg/auth"
)

// CodeSender delivers a verification code to a phone number.
type CodeSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

// CodeSenderFunc adapts a function to CodeSender.
type CodeSenderFunc func(ctx context.Context, phone, code string) error

func (f CodeSenderFunc) SendCode(ctx context.Context, phone, code string) error {
	return f(ctx, phone, code)
}

// LogSender writes codes to the log instead of sending an SMS.
type LogSender struct {
	Logger *slog.Logger
}

func (s LogSender) SendCode(ctx context.Context, phone, code string) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "verification code", "phone", phone, "code", code)
	return nil
}

// CaptchaVerifier gates code sends behind a human check.
type CaptchaVerifier interface {
	VerifyCaptcha(ctx context.Context, phone string) error
}

type verification struct {
	phone       string
	code        string
	expiresAt   time.Time
	resendAfter time.Time
	consumed    bool
	confirmed   bool
}

func (v *verification) public(id string) auth.Verification {
	return auth.Verification{
		ID:          id,
		Phone:       v.phone,
		ExpiresAt:   v.expiresAt,
		ResendAfter: v.resendAfter,
	}
}

// BeginPhoneVerification sends a code to number and returns its handle.
func (p *Provider) BeginPhoneVerification(ctx context.Context, number string) (auth.Verification, error) {
	phone := normalizePhone(number)
	if phone == "" {
		return auth.Verification{}, fmt.Errorf("localauth: empty phone number")
	}
	if p.captcha != nil {
		if err := p.captcha.VerifyCaptcha(ctx, phone); err != nil {
			return auth.Verification{}, fmt.Errorf("localauth: captcha: %w", err)
		}
	}

	p.mu.Lock()
	p.pruneLocked()
	p.mu.Unlock()

	return p.issue(ctx, phone)
}

// ConfirmPhoneVerification checks code against the verification. Any
// attempt consumes the handle.
func (p *Provider) ConfirmPhoneVerification(ctx context.Context, verificationID, code string) (auth.Principal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.verifications[verificationID]
	if !ok {
		return auth.Principal{}, auth.ErrVerificationNotFound
	}
	if v.consumed {
		return auth.Principal{}, auth.ErrVerificationConsumed
	}
	v.consumed = true

	if !p.now().Before(v.expiresAt) {
		return auth.Principal{}, auth.ErrVerificationExpired
	}
	if subtle.ConstantTimeCompare([]byte(v.code), []byte(code)) != 1 {
		return auth.Principal{}, auth.ErrInvalidCode
	}
	v.confirmed = true
	delete(p.lastSent, v.phone)

	if id, ok := p.byPhone[v.phone]; ok {
		return principal(p.users[id], auth.MethodPhone), nil
	}
	u := &User{ID: uuid.NewString(), Phone: v.phone}
	p.addLocked(u)
	p.logger.Info("user registered", "user", u.ID, "provider", auth.MethodPhone)
	return principal(u, auth.MethodPhone), nil
}

// ResendPhoneVerification sends a new code for the same number. The old
// handle stops working. A handle that was confirmed cannot be resent.
func (p *Provider) ResendPhoneVerification(ctx context.Context, verificationID string) (auth.Verification, error) {
	p.mu.Lock()
	v, ok := p.verifications[verificationID]
	if !ok {
		p.mu.Unlock()
		return auth.Verification{}, auth.ErrVerificationNotFound
	}
	if v.confirmed {
		p.mu.Unlock()
		return auth.Verification{}, auth.ErrVerificationConsumed
	}
	if p.now().Before(v.resendAfter) {
		p.mu.Unlock()
		return auth.Verification{}, auth.ErrResendTooSoon
	}
	phone := v.phone
	p.mu.Unlock()

	return p.issue(ctx, phone)
}

// issue sends a new code to phone. At most one code per number is sent
// within the resend interval. Once the send succeeds, earlier pending
// handles for the number stop working.
func (p *Provider) issue(ctx context.Context, phone string) (auth.Verification, error) {
	code, err := newCode()
	if err != nil {
		return auth.Verification{}, err
	}

	p.mu.Lock()
	now := p.now()
	prev, sent := p.lastSent[phone]
	if sent && now.Before(prev.Add(p.resendInterval)) {
		p.mu.Unlock()
		return auth.Verification{}, auth.ErrResendTooSoon
	}
	p.lastSent[phone] = now
	p.mu.Unlock()

	id := uuid.NewString()
	v := &verification{
		phone:       phone,
		code:        code,
		expiresAt:   now.Add(p.codeTTL),
		resendAfter: now.Add(p.resendInterval),
	}

	if err := p.sender.SendCode(ctx, phone, code); err != nil {
		p.mu.Lock()
		if sent {
			p.lastSent[phone] = prev
		} else {
			delete(p.lastSent, phone)
		}
		p.mu.Unlock()
		return auth.Verification{}, fmt.Errorf("localauth: sending code: %w", err)
	}

	p.mu.Lock()
	for oldID, old := range p.verifications {
		if old.phone == phone && !old.confirmed {
			delete(p.verifications, oldID)
		}
	}
	p.verifications[id] = v
	p.mu.Unlock()
	return v.public(id), nil
}

// pruneLocked drops verifications that can no longer be confirmed or
// resent.
func (p *Provider) pruneLocked() {
	now := p.now()
	for id, v := range p.verifications {
		if v.confirmed || now.After(v.expiresAt.Add(p.resendInterval)) {
			delete(p.verifications, id)
		}
	}
	for phone, at := range p.lastSent {
		if !now.Before(at.Add(p.resendInterval)) {
			delete(p.lastSent, phone)
		}
	}
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("localauth: generating code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func normalizePhone(number string) string {
	var b strings.Builder
	for i, r := range strings.TrimSpace(number) {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && i == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}
