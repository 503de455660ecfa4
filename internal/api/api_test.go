package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"plantstation/internal/config"
	"plantstation/internal/db"
	"plantstation/internal/ws"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// fakeMailer records the tokens the handlers hand it, so tests can walk the
// activation and reset links without a mail server.
type fakeMailer struct {
	mu               sync.Mutex
	activationTokens map[string]string
	resetTokens      map[string]string
	fail             bool
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{
		activationTokens: make(map[string]string),
		resetTokens:      make(map[string]string),
	}
}

func (m *fakeMailer) SendActivationEmail(to, username, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("smtp: connection refused")
	}
	m.activationTokens[to] = token
	return nil
}

func (m *fakeMailer) SendPasswordResetEmail(to, username, token string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("smtp: connection refused")
	}
	m.resetTokens[to] = token
	return nil
}

func (m *fakeMailer) setFail(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fail
}

func (m *fakeMailer) activationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activationTokens[email]
}

func (m *fakeMailer) resetToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resetTokens[email]
}

type testServer struct {
	*httptest.Server
	mailer *fakeMailer
	db     *db.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	cfg := &config.Config{}
	cfg.Server.Name = "plantstation-test"
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	cfg.Auth.ActivationTokenTTL = time.Hour
	cfg.Auth.ResetTokenTTL = 30 * time.Minute

	mailer := newFakeMailer()
	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Shutdown)

	server, err := NewServer(cfg, database, mailer, hub)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)

	return &testServer{Server: ts, mailer: mailer, db: database}
}

// do issues a request and returns the status code and decoded JSON body. A
// non-JSON body comes back under the "_raw" key.
func (ts *testServer) do(t *testing.T, method, path string, body any, accessToken string) (int, map[string]any) {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reqBody)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading response body: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		decoded = map[string]any{"_raw": string(raw)}
	}
	return resp.StatusCode, decoded
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshaling %v: %v", v, err)
	}
	return string(data)
}

func (ts *testServer) listReadings(t *testing.T, accessToken, path string) []map[string]any {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, ts.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status = %d, want 200", path, resp.StatusCode)
	}

	var readings []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&readings); err != nil {
		t.Fatalf("decoding readings: %v", err)
	}
	return readings
}

func errorCode(t *testing.T, body map[string]any) string {
	t.Helper()

	detail, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("response has no error object: %v", body)
	}
	code, _ := detail["code"].(string)
	return code
}

// register creates a user and returns the captured activation token.
func (ts *testServer) register(t *testing.T, email, username, password string) string {
	t.Helper()

	status, body := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{
		"email":           email,
		"username":        username,
		"password":        password,
		"confirmPassword": password,
	}, "")
	if status != http.StatusCreated {
		t.Fatalf("register status = %d, body = %v", status, body)
	}

	token := ts.mailer.activationToken(email)
	if token == "" {
		t.Fatalf("no activation token captured for %s", email)
	}
	return token
}

func (ts *testServer) activate(t *testing.T, token string) {
	t.Helper()

	status, body := ts.do(t, http.MethodGet, "/api/v1/auth/activate?token="+token, nil, "")
	if status != http.StatusOK {
		t.Fatalf("activate status = %d, body = %v", status, body)
	}
}

// login returns the access and refresh tokens for an activated user.
func (ts *testServer) login(t *testing.T, email, password string) (string, string) {
	t.Helper()

	status, body := ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	if status != http.StatusOK {
		t.Fatalf("login status = %d, body = %v", status, body)
	}

	accessToken, _ := body["accessToken"].(string)
	refreshToken, _ := body["refreshToken"].(string)
	if accessToken == "" || refreshToken == "" {
		t.Fatalf("login response missing tokens: %v", body)
	}
	return accessToken, refreshToken
}

// signup runs the full register-activate-login flow and returns an access token.
func (ts *testServer) signup(t *testing.T, email, username, password string) string {
	t.Helper()

	ts.activate(t, ts.register(t, email, username, password))
	accessToken, _ := ts.login(t, email, password)
	return accessToken
}
