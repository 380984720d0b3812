package auth

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnauthorized is returned when a request has no signed-in session.
	ErrUnauthorized = errors.New("unauthorized: authentication required")

	// ErrForbidden is returned when the principal may not perform an action.
	ErrForbidden = errors.New("forbidden: insufficient permissions")

	// ErrInvalidCredentials is returned for an unknown identifier or a wrong secret.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUserExists is returned when signing up with a taken identifier.
	ErrUserExists = errors.New("user already exists")

	// ErrVerificationNotFound is returned for an unknown verification handle.
	ErrVerificationNotFound = errors.New("verification not found")

	// ErrVerificationExpired is returned when a code is confirmed after its TTL.
	ErrVerificationExpired = errors.New("verification code expired")

	// ErrVerificationConsumed is returned when a handle was already used,
	// successfully or not, or was replaced by a resend.
	ErrVerificationConsumed = errors.New("verification already used")

	// ErrInvalidCode is returned when the confirmed code does not match.
	// The handle is consumed; request a new code with resend.
	ErrInvalidCode = errors.New("invalid verification code")

	// ErrResendTooSoon is returned when a resend is requested before the
	// resend interval has elapsed.
	ErrResendTooSoon = errors.New("verification code resent too soon")

	// ErrSessionEnded is returned by a session after SignOut.
	ErrSessionEnded = errors.New("session ended")

	// ErrSessionExpired is returned by a session past its expiry.
	ErrSessionExpired = errors.New("session expired")
)

// Principal represents the authenticated identity.
// Intentionally minimal: no catch-all claims map.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`

	// Provider names the sign-in method: "password", "google" or "phone".
	Provider string `json:"provider"`

	SessionID string    `json:"session_id,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the principal has expired at now.
// A zero ExpiresAt never expires.
func (p Principal) Expired(now time.Time) bool {
	return !p.ExpiresAt.IsZero() && !now.Before(p.ExpiresAt)
}

// Sign-in methods recorded in Principal.Provider.
const (
	MethodPassword = "password"
	MethodGoogle   = "google"
	MethodPhone    = "phone"
)

// Claims is the identity returned by an OAuth code exchange.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// CredentialProvider signs users up and in with an identifier and secret.
type CredentialProvider interface {
	SignUp(ctx context.Context, email, password, name string) (Principal, error)
	SignInWithCredentials(ctx context.Context, identifier, secret string) (Principal, error)
}

// OAuthProvider signs users in through a third-party authorization
// round trip: BeginOAuth returns the URL to redirect to, and the code the
// user comes back with is passed to CompleteOAuth.
type OAuthProvider interface {
	BeginOAuth(ctx context.Context, state string) (redirectURL string, err error)
	CompleteOAuth(ctx context.Context, code string) (Principal, error)
}

// Verification is a pending phone verification.
type Verification struct {
	ID          string    `json:"verificationId"`
	Phone       string    `json:"phone"`
	ExpiresAt   time.Time `json:"expiresAt"`
	ResendAfter time.Time `json:"resendAfter"`
}

// PhoneVerifier signs users in with a code sent to their phone.
//
// Confirmation is single attempt: a wrong code consumes the verification.
// Resend issues a new verification and invalidates the previous one.
type PhoneVerifier interface {
	BeginPhoneVerification(ctx context.Context, number string) (Verification, error)
	ConfirmPhoneVerification(ctx context.Context, verificationID, code string) (Principal, error)
	ResendPhoneVerification(ctx context.Context, verificationID string) (Verification, error)
}

// Provider is an identity provider supporting every sign-in method.
type Provider interface {
	CredentialProvider
	OAuthProvider
	PhoneVerifier
}
