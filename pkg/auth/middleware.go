package auth

import (
	"encoding/json"
	"errors"
	"net/http"
)

// RequireAuth is HTTP middleware that rejects requests without an active
// session with 401. Install it after the middleware that resolves sessions
// (see sessionauth).
//
// Usage with chi:
//
//	r.Group(func(r chi.Router) {
//	    r.Use(auth.RequireAuth)
//	    r.Get("/auth/me", me)
//	})
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := PrincipalFromContext(r.Context()); !ok {
			WriteError(w, ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StatusCode maps auth errors to HTTP status codes.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrSessionEnded),
		errors.Is(err, ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, ErrVerificationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrVerificationExpired),
		errors.Is(err, ErrVerificationConsumed):
		return http.StatusGone
	case errors.Is(err, ErrInvalidCode):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrResendTooSoon):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON body {"error": "..."} with the status from
// StatusCode. Unknown errors are not echoed to the client.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
