package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/auth/localauth"
	"github.com/fundsavy/fundsavy/pkg/groups"
	"github.com/fundsavy/fundsavy/pkg/session"
)

type testEnv struct {
	server   *Server
	provider *localauth.Provider
	sessions *session.Manager

	mu    sync.Mutex
	codes map[string]string
}

func (e *testEnv) code(phone string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.codes[phone]
}

type fakeExchanger struct{}

func (fakeExchanger) AuthCodeURL(state string) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + url.QueryEscape(state)
}

func (fakeExchanger) Exchange(ctx context.Context, code string) (auth.Claims, error) {
	if code != "good" {
		return auth.Claims{}, auth.ErrUnauthorized
	}
	return auth.Claims{Subject: "g-1", Email: "ada@example.com", EmailVerified: true, Name: "Ada"}, nil
}

func newTestEnv(t *testing.T, opts ...localauth.Option) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	env := &testEnv{codes: make(map[string]string)}

	sender := localauth.CodeSenderFunc(func(ctx context.Context, phone, code string) error {
		env.mu.Lock()
		env.codes[phone] = code
		env.mu.Unlock()
		return nil
	})
	opts = append([]localauth.Option{
		localauth.WithBcryptCost(bcrypt.MinCost),
		localauth.WithCodeSender(sender),
		localauth.WithLogger(logger),
	}, opts...)
	env.provider = localauth.New(opts...)

	store := session.NewMemoryStore()
	t.Cleanup(func() { store.Close() })
	env.sessions = session.NewManager(store, session.WithLogger(logger))
	t.Cleanup(env.sessions.Close)

	srv, err := New(Config{
		Provider: env.provider,
		Sessions: env.sessions,
		Groups: groups.NewStore(
			groups.Group{ID: "1", Name: "Savers", NumberOfMembers: 3, Body: "Welcome"},
			groups.Group{ID: "2", Name: "Solo", NumberOfMembers: 1},
		),
		Metrics: http.NotFoundHandler(),
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	env.server = srv
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == "fundsavy_session" && c.Value != "" {
			return c
		}
	}
	t.Fatalf("no session cookie in response (status %d)", rec.Code)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error without provider")
	}
	if _, err := New(Config{Provider: localauth.New()}); err == nil {
		t.Error("expected error without sessions")
	}
	m := session.NewManager(session.NewMemoryStore())
	if _, err := New(Config{Provider: localauth.New(), Sessions: m}); err == nil {
		t.Error("expected error without group source")
	}
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "GET", "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestGroupsRoutes(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "GET", "/groups/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if g := decode[groups.Group](t, rec); g.Name != "Savers" {
		t.Errorf("unexpected group %+v", g)
	}

	if rec := env.do(t, "GET", "/groups/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestSignupAndMe(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/auth/signup", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	p := decode[auth.Principal](t, rec)
	if p.Email != "ada@example.com" || p.SessionID != "" {
		t.Errorf("unexpected principal %+v", p)
	}
	cookie := sessionCookie(t, rec)
	if !cookie.HttpOnly {
		t.Error("expected HttpOnly session cookie")
	}

	rec = env.do(t, "GET", "/auth/me", "", cookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if me := decode[auth.Principal](t, rec); me.Name != "Ada" || me.Provider != auth.MethodPassword {
		t.Errorf("unexpected me %+v", me)
	}

	if rec := env.do(t, "GET", "/auth/me", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without cookie, got %d", rec.Code)
	}

	rec = env.do(t, "POST", "/auth/signup", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("expected 409 for duplicate, got %d", rec.Code)
	}
}

func TestFormValidation(t *testing.T) {
	tests := []struct {
		name  string
		path  string
		body  string
		field string
		msg   string
	}{
		{"login without email", "/auth/login", `{"password":"x"}`, "email", "Please enter email"},
		{"login bad email", "/auth/login", `{"email":"nope","password":"x"}`, "email", "Please enter valid email"},
		{"login without password", "/auth/login", `{"email":"a@b.co"}`, "password", "Please enter password"},
		{"signup short password", "/auth/signup", `{"email":"a@b.co","password":"123","name":"A"}`, "password", "Password must be at least 6 characters"},
		{"phone empty", "/auth/phone", `{"number":""}`, "number", "Please enter Phone Number"},
		{"code too short", "/auth/phone/verify", `{"verificationId":"v","code":"12"}`, "code", "Verification code must be 6 digits"},
	}

	env := newTestEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", tt.path, tt.body)
			if rec.Code != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
			}
			resp := decode[formResponse](t, rec)
			if resp.Fields[tt.field] != tt.msg {
				t.Errorf("fields[%q] = %q, want %q", tt.field, resp.Fields[tt.field], tt.msg)
			}
		})
	}

	if rec := env.do(t, "POST", "/auth/login", `{"email":`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestLoginFailureMessage(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, "POST", "/auth/signup", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)

	rec := env.do(t, "POST", "/auth/login", `{"email":"ada@example.com","password":"wrong!!"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] != "An error occurred" {
		t.Errorf("unexpected body %v", body)
	}

	rec = env.do(t, "POST", "/auth/login", `{"email":"ADA@example.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	sessionCookie(t, rec)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, "POST", "/auth/signup", `{"email":"ada@example.com","password":"secret1","name":"Ada"}`)
	cookie := sessionCookie(t, rec)

	rec = env.do(t, "POST", "/auth/logout", "", cookie)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec := env.do(t, "GET", "/auth/me", "", cookie); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after logout, got %d", rec.Code)
	}
	if env.sessions.Count() != 0 {
		t.Errorf("expected no live sessions, got %d", env.sessions.Count())
	}

	if rec := env.do(t, "POST", "/auth/logout", ""); rec.Code != http.StatusNoContent {
		t.Errorf("expected 204 without session, got %d", rec.Code)
	}
}

func TestPhoneFlow(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, "POST", "/auth/phone", `{"countryCode":"+1","number":"5551234567"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	v := decode[auth.Verification](t, rec)
	if v.ID == "" {
		t.Fatal("expected verification id")
	}
	code := env.code("+15551234567")
	if len(code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", code)
	}

	rec = env.do(t, "POST", "/auth/phone/resend", `{"verificationId":"`+v.ID+`"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for early resend, got %d", rec.Code)
	}

	body, _ := json.Marshal(map[string]string{"verificationId": v.ID, "code": code})
	rec = env.do(t, "POST", "/auth/phone/verify", string(body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if p := decode[auth.Principal](t, rec); p.Phone != "+15551234567" || p.Provider != auth.MethodPhone {
		t.Errorf("unexpected principal %+v", p)
	}
	sessionCookie(t, rec)

	rec = env.do(t, "POST", "/auth/phone/verify", string(body))
	if rec.Code != http.StatusGone {
		t.Errorf("expected 410 for reused code, got %d", rec.Code)
	}

	rec = env.do(t, "POST", "/auth/phone/resend", `{"verificationId":"unknown"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestGoogleUnavailable(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, "GET", "/auth/google", ""); rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}

func TestGoogleRoundTrip(t *testing.T) {
	env := newTestEnv(t, localauth.WithExchanger(fakeExchanger{}))

	rec := env.do(t, "GET", "/auth/google", "")
	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	loc, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatal(err)
	}
	state := loc.Query().Get("state")

	var stateCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == OAuthStateCookie {
			stateCookie = c
		}
	}
	if stateCookie == nil || stateCookie.Value != state {
		t.Fatalf("state cookie %v does not match %q", stateCookie, state)
	}

	rec = env.do(t, "GET", "/auth/google/callback?code=good&state=forged", "", stateCookie)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for forged state, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/auth/google/callback?error=access_denied", "", stateCookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for declined consent, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/auth/google/callback?code=bad&state="+url.QueryEscape(state), "", stateCookie)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for bad code, got %d", rec.Code)
	}

	rec = env.do(t, "GET", "/auth/google/callback?code=good&state="+url.QueryEscape(state), "", stateCookie)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if p := decode[auth.Principal](t, rec); p.Email != "ada@example.com" || p.Provider != auth.MethodGoogle {
		t.Errorf("unexpected principal %+v", p)
	}
	sessionCookie(t, rec)
}

func TestShutdownWithoutServe(t *testing.T) {
	env := newTestEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := env.server.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// A second shutdown is harmless.
	if err := env.server.Shutdown(ctx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	srv, err := New(Config{
		Provider: env.provider,
		Sessions: env.sessions,
		Groups:   groups.NewStore(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("go_goroutines")) {
		t.Error("expected default Go collector metrics")
	}
}
