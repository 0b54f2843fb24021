package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/event-auth/internal/api/http/handlers"
	"github.com/spec-kit/event-auth/internal/auth"
	"github.com/spec-kit/event-auth/internal/config"
	"github.com/spec-kit/event-auth/internal/domain"
	"github.com/spec-kit/event-auth/internal/observability"
	"github.com/spec-kit/event-auth/internal/repository"
	"github.com/spec-kit/event-auth/internal/service"
)

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func (m *memoryUsers) Create(_ context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memoryUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memoryUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *memoryUsers) UpdateRole(_ context.Context, id string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	u.Role = role
	return nil
}

type okPinger struct{ err error }

func (p okPinger) Ping(context.Context) error { return p.err }

type testServer struct {
	app    *fiber.App
	users  *memoryUsers
	tokens *auth.TokenManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zap.NewNop()
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)

	tokens, err := auth.NewTokenManager("router-secret", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	users := &memoryUsers{users: map[string]*domain.User{}}
	svc := service.NewAuthService(config.AuthConfig{BcryptCost: bcrypt.MinCost}, service.AuthDependencies{
		UserRepo: users,
		Tokens:   tokens,
		Metrics:  metrics,
		Logger:   logger,
	})

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 5*time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("event-auth", "test", map[string]handlers.Pinger{"postgres": okPinger{}}, logger),
		Users:          handlers.NewUsersHandler(svc),
		Admin:          handlers.NewAdminHandler(svc),
		Dashboard:      handlers.NewDashboardHandler(svc),
		AuthMiddleware: auth.NewMiddleware(auth.NewGuard(tokens), logger, metrics),
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})

	return &testServer{app: app, users: users, tokens: tokens}
}

type response struct {
	status int
	body   map[string]any
	raw    string
}

func (s *testServer) do(t *testing.T, method, path, token string, payload any) response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}

	out := response{status: resp.StatusCode, raw: string(raw)}
	_ = json.Unmarshal(raw, &out.body)
	return out
}

func errorMessage(r response) string {
	e, _ := r.body["error"].(map[string]any)
	msg, _ := e["message"].(string)
	return msg
}

func tokenFrom(t *testing.T, r response) string {
	t.Helper()
	data, _ := r.body["data"].(map[string]any)
	authBlock, _ := data["auth"].(map[string]any)
	token, _ := authBlock["token"].(string)
	if token == "" {
		t.Fatalf("no token in response: %s", r.raw)
	}
	return token
}

func (s *testServer) seedAdmin(t *testing.T) string {
	t.Helper()
	hash, err := auth.HashPassword("admin-pass", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	admin := &domain.User{Name: "Admin", Email: "admin@uni.edu", PasswordHash: hash, Role: domain.RoleAdmin}
	if err := s.users.Create(context.Background(), admin); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	return admin.ID
}

func TestRoutes_RegisterLoginMe(t *testing.T) {
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Stu Dent", "email": "stu@uni.edu", "password": "123456",
	})
	if reg.status != http.StatusCreated {
		t.Fatalf("register status = %d body = %s", reg.status, reg.raw)
	}
	if strings.Contains(reg.raw, "password") || strings.Contains(reg.raw, "$2a$") {
		t.Fatalf("register response leaks password data: %s", reg.raw)
	}

	login := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "stu@uni.edu", "password": "123456"})
	if login.status != http.StatusOK {
		t.Fatalf("login status = %d body = %s", login.status, login.raw)
	}
	token := tokenFrom(t, login)

	me := s.do(t, http.MethodGet, "/api/auth/me", token, nil)
	if me.status != http.StatusOK {
		t.Fatalf("me status = %d body = %s", me.status, me.raw)
	}
	user := me.body["data"].(map[string]any)["user"].(map[string]any)
	if user["email"] != "stu@uni.edu" || user["role"] != "student" {
		t.Errorf("me user = %v", user)
	}

	bad := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "stu@uni.edu", "password": "nope!!"})
	if bad.status != http.StatusUnauthorized || errorMessage(bad) != "Invalid email or password" {
		t.Errorf("bad login = %d %s", bad.status, bad.raw)
	}
}

func TestRoutes_AuthFailures(t *testing.T) {
	s := newTestServer(t)

	forged, err := auth.NewTokenManager("someone-else", time.Hour)
	if err != nil {
		t.Fatalf("NewTokenManager() error = %v", err)
	}
	foreign, _, err := forged.Issue("user-1", domain.RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing", "", http.StatusUnauthorized, "No token provided. Authorization denied."},
		{"wrong scheme", "Token abc", http.StatusUnauthorized, "Invalid token format. Authorization denied."},
		{"garbage", "Bearer abc", http.StatusUnauthorized, "Invalid token. Authorization denied."},
		{"wrong secret", "Bearer " + foreign, http.StatusUnauthorized, "Invalid token. Authorization denied."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := s.app.Test(req, -1)
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			var body map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			if got := errorMessage(response{body: body}); got != tt.message {
				t.Errorf("message = %q, want %q", got, tt.message)
			}
		})
	}
}

func TestRoutes_RoleGuards(t *testing.T) {
	s := newTestServer(t)
	adminID := s.seedAdmin(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Stu Dent", "email": "stu@uni.edu", "password": "123456",
	})
	studentToken := tokenFrom(t, reg)
	studentID := reg.body["data"].(map[string]any)["user"].(map[string]any)["id"].(string)

	dash := s.do(t, http.MethodGet, "/api/dashboard", studentToken, nil)
	if dash.status != http.StatusOK {
		t.Fatalf("dashboard status = %d body = %s", dash.status, dash.raw)
	}

	org := s.do(t, http.MethodGet, "/api/organizer/dashboard", studentToken, nil)
	if org.status != http.StatusForbidden || errorMessage(org) != "Access denied. Required role: organizer or admin." {
		t.Fatalf("organizer dashboard as student = %d %s", org.status, org.raw)
	}

	promote := s.do(t, http.MethodPatch, "/api/admin/users/"+studentID+"/role", studentToken, map[string]string{"role": "organizer"})
	if promote.status != http.StatusForbidden || errorMessage(promote) != "Access denied. Required role: admin." {
		t.Fatalf("promote as student = %d %s", promote.status, promote.raw)
	}

	adminLogin := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@uni.edu", "password": "admin-pass"})
	adminToken := tokenFrom(t, adminLogin)

	promote = s.do(t, http.MethodPatch, "/api/admin/users/"+studentID+"/role", adminToken, map[string]string{"role": "organizer"})
	if promote.status != http.StatusOK {
		t.Fatalf("promote as admin = %d %s", promote.status, promote.raw)
	}

	bogus := s.do(t, http.MethodPatch, "/api/admin/users/not-a-uuid/role", adminToken, map[string]string{"role": "organizer"})
	if bogus.status != http.StatusNotFound {
		t.Errorf("non-uuid id = %d %s", bogus.status, bogus.raw)
	}

	self := s.do(t, http.MethodPatch, "/api/admin/users/"+adminID+"/role", adminToken, map[string]string{"role": "student"})
	if self.status != http.StatusBadRequest {
		t.Errorf("self demotion = %d %s", self.status, self.raw)
	}

	// The old token still carries the student role until it expires.
	org = s.do(t, http.MethodGet, "/api/organizer/dashboard", studentToken, nil)
	if org.status != http.StatusForbidden {
		t.Errorf("old token on organizer dashboard = %d", org.status)
	}

	relogin := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "stu@uni.edu", "password": "123456"})
	org = s.do(t, http.MethodGet, "/api/organizer/dashboard", tokenFrom(t, relogin), nil)
	if org.status != http.StatusOK {
		t.Fatalf("organizer dashboard after promotion = %d %s", org.status, org.raw)
	}
	perms, _ := org.body["data"].(map[string]any)["permissions"].([]any)
	if len(perms) != 4 {
		t.Errorf("organizer permissions = %v", perms)
	}
}

func TestRoutes_ValidationAndNotFound(t *testing.T) {
	s := newTestServer(t)

	reg := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "A", "email": "nope", "password": "1",
	})
	if reg.status != http.StatusBadRequest {
		t.Fatalf("register status = %d", reg.status)
	}
	details, _ := reg.body["error"].(map[string]any)["details"].(map[string]any)
	for _, field := range []string{"name", "email", "password"} {
		if _, ok := details[field]; !ok {
			t.Errorf("details missing %q: %v", field, details)
		}
	}

	missing := s.do(t, http.MethodGet, "/api/nowhere", "", nil)
	if missing.status != http.StatusNotFound {
		t.Errorf("unknown route status = %d", missing.status)
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	if r := s.do(t, http.MethodGet, "/health/live", "", nil); r.status != http.StatusOK || r.body["status"] != "alive" {
		t.Errorf("live = %d %s", r.status, r.raw)
	}
	if r := s.do(t, http.MethodGet, "/health/ready", "", nil); r.status != http.StatusOK {
		t.Errorf("ready = %d %s", r.status, r.raw)
	}

	_ = s.do(t, http.MethodGet, "/api/auth/me", "", nil)
	m := s.do(t, http.MethodGet, "/metrics", "", nil)
	if m.status != http.StatusOK {
		t.Fatalf("metrics status = %d", m.status)
	}
	if !strings.Contains(m.raw, `eventauth_auth_rejections_total{kind="missing_credential"} 1`) {
		t.Errorf("metrics missing rejection counter:\n%s", m.raw)
	}
}

func TestHealth_NotReady(t *testing.T) {
	app := fiber.New()
	h := handlers.NewHealthHandler("event-auth", "test", map[string]handlers.Pinger{
		"postgres": okPinger{},
		"redis":    okPinger{err: errors.New("dial tcp 10.0.0.7:6379: connection refused")},
	}, zap.NewNop())
	app.Get("/ready", h.Ready)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ready", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if strings.Contains(string(raw), "10.0.0.7") || strings.Contains(string(raw), "refused") {
		t.Errorf("readiness body leaks dependency error: %s", raw)
	}
	if !strings.Contains(string(raw), `"redis":"unavailable"`) {
		t.Errorf("readiness body = %s", raw)
	}
}

func TestRoutes_MetricsSurviveVariedTraffic(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 50; i++ {
		s.do(t, http.MethodPatch, fmt.Sprintf("/api/admin/users/x-%d/role", i), "", map[string]string{"role": "admin"})
		s.do(t, http.MethodGet, fmt.Sprintf("/nope-%d", i), "", nil)
		s.do(t, http.MethodGet, fmt.Sprintf("/api/auth/me?i=%d", i), "", nil)
	}

	m := s.do(t, http.MethodGet, "/metrics", "", nil)
	if m.status != http.StatusOK {
		t.Fatalf("metrics status = %d body = %s", m.status, m.raw)
	}

	var errorSeries, requestSeries int
	for _, line := range strings.Split(m.raw, "\n") {
		switch {
		case strings.HasPrefix(line, "eventauth_http_errors_total{"):
			errorSeries++
		case strings.HasPrefix(line, "eventauth_http_requests_total{"):
			requestSeries++
		}
		if strings.HasPrefix(line, "eventauth_") && (strings.Contains(line, "x-4") || strings.Contains(line, "nope-")) {
			t.Errorf("raw path leaked into labels: %s", line)
		}
	}
	if errorSeries == 0 || errorSeries > 5 {
		t.Errorf("error series = %d, want a small bounded number", errorSeries)
	}
	if requestSeries == 0 || requestSeries > 5 {
		t.Errorf("request series = %d, want a small bounded number", requestSeries)
	}
	if !strings.Contains(m.raw, `path="unmatched"`) {
		t.Errorf("unmatched routes not labelled:\n%s", m.raw)
	}
}

func TestErrorMiddleware_RecoversPanics(t *testing.T) {
	app := fiber.New()
	RegisterMiddlewares(app, zap.NewNop(), nil, 0)
	app.Get("/boom", func(*fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}
