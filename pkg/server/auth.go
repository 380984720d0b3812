package server

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/auth/localauth"
	"github.com/fundsavy/fundsavy/pkg/form"
)

// OAuthStateCookie holds the state of a Google sign-in in progress.
const OAuthStateCookie = "fundsavy_oauth_state"

const maxBodyBytes = 1 << 20

// formResponse is the body of a 422 response.
type formResponse struct {
	Error  string      `json:"error"`
	Fields form.Errors `json:"fields"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var f form.Signup
	if !s.decodeForm(w, r, &f) {
		return
	}
	p, err := s.provider.SignUp(r.Context(), f.Email, f.Password, f.Name)
	if err != nil {
		s.logger.Info("sign up rejected", "error", err)
		auth.WriteError(w, err)
		return
	}
	s.signIn(w, r, p, http.StatusCreated)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var f form.Login
	if !s.decodeForm(w, r, &f) {
		return
	}
	p, err := s.provider.SignInWithCredentials(r.Context(), f.Email, f.Password)
	if err != nil {
		s.logger.Info("sign in rejected", "error", err)
		writeJSON(w, auth.StatusCode(err), map[string]string{"error": form.MsgSignInFailed})
		return
	}
	s.signIn(w, r, p, http.StatusOK)
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	target, err := s.provider.BeginOAuth(r.Context(), state)
	if err != nil {
		s.writeOAuthError(w, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Value:    state,
		Path:     "/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, target, http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     OAuthStateCookie,
		Path:     "/auth/google",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		s.logger.Info("google sign in declined", "reason", reason)
		auth.WriteError(w, auth.ErrUnauthorized)
		return
	}

	cookie, err := r.Cookie(OAuthStateCookie)
	state := q.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid oauth state"})
		return
	}

	p, err := s.provider.CompleteOAuth(r.Context(), q.Get("code"))
	if err != nil {
		s.logger.Info("google sign in failed", "error", err)
		s.writeOAuthError(w, err)
		return
	}
	s.signIn(w, r, p, http.StatusOK)
}

func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, localauth.ErrOAuthUnavailable) {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": err.Error()})
		return
	}
	auth.WriteError(w, err)
}

func (s *Server) handlePhone(w http.ResponseWriter, r *http.Request) {
	var f form.PhoneNumber
	if !s.decodeForm(w, r, &f) {
		return
	}
	v, err := s.provider.BeginPhoneVerification(r.Context(), f.Full())
	if err != nil {
		s.logger.Warn("phone verification failed", "error", err)
		auth.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

func (s *Server) handlePhoneVerify(w http.ResponseWriter, r *http.Request) {
	var f form.VerifyCode
	if !s.decodeForm(w, r, &f) {
		return
	}
	p, err := s.provider.ConfirmPhoneVerification(r.Context(), f.VerificationID, f.Code)
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	s.signIn(w, r, p, http.StatusOK)
}

func (s *Server) handlePhoneResend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		VerificationID string `json:"verificationId"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.VerificationID == "" {
		auth.WriteError(w, auth.ErrVerificationNotFound)
		return
	}
	v, err := s.provider.ResendPhoneVerification(r.Context(), body.VerificationID)
	if err != nil {
		auth.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	err := s.cookies.SignOut(w, r)
	if err != nil && !errors.Is(err, auth.ErrUnauthorized) {
		s.logger.Warn("sign out failed", "error", err)
		auth.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFromContext(r.Context())
	p.SessionID = ""
	writeJSON(w, http.StatusOK, p)
}

// signIn starts a session for p, sets the session cookie and writes the
// principal.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request, p auth.Principal, status int) {
	sess, err := s.sessions.Create(r.Context(), p)
	if err != nil {
		s.logger.Error("session create failed", "error", err)
		auth.WriteError(w, err)
		return
	}
	if err := s.cookies.SetCookie(w, r, sess); err != nil {
		auth.WriteError(w, err)
		return
	}
	principal, _ := sess.Principal()
	principal.SessionID = ""
	writeJSON(w, status, principal)
}

// validator is implemented by the forms in package form.
type validator interface {
	Validate() error
}

// decodeForm decodes the request body into f and validates it, writing a
// 400 or 422 response on failure.
func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request, f validator) bool {
	if !decodeJSON(w, r, f) {
		return false
	}
	if err := f.Validate(); err != nil {
		fields, _ := form.FieldErrors(err)
		writeJSON(w, http.StatusUnprocessableEntity, formResponse{Error: "invalid form", Fields: fields})
		return false
	}
	return true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
