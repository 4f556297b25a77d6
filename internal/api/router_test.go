package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/appforge/appforge/internal/auth"
	"github.com/appforge/appforge/internal/config"
	"github.com/appforge/appforge/internal/engine"
	"github.com/appforge/appforge/internal/models"
	"github.com/appforge/appforge/internal/orchestrator"
	"github.com/appforge/appforge/internal/queue"
	"github.com/appforge/appforge/internal/scm"
	"github.com/appforge/appforge/internal/worker"
	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) EnqueueProcessJob(ctx context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

type testEnv struct {
	router   *gin.Engine
	db       *gorm.DB
	enqueuer *fakeEnqueuer
	tm       *auth.TokenManager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.GenerationJob{}); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	tm, err := auth.NewTokenManager("test-secret", "HS256", 30*time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager: %v", err)
	}

	enq := &fakeEnqueuer{}
	cfg := &config.Config{}
	cfg.Server.Mode = gin.TestMode

	return &testEnv{
		router:   NewRouter(cfg, db, enq, tm, nil),
		db:       db,
		enqueuer: enq,
		tm:       tm,
	}
}

func (e *testEnv) doJSON(t *testing.T, method, path, token string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) register(t *testing.T, email, password string) *httptest.ResponseRecorder {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return e.doJSON(t, http.MethodPost, "/api/v1/users/", "", string(body))
}

func (e *testEnv) login(t *testing.T, username, password string) *httptest.ResponseRecorder {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func TestRegisterEndpoint(t *testing.T) {
	env := newTestEnv(t)

	w := env.register(t, "alice@example.com", "password123")
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["email"] != "alice@example.com" {
		t.Errorf("email = %v", resp["email"])
	}
	if resp["id"] == nil || resp["created_at"] == nil {
		t.Errorf("missing id/created_at: %v", resp)
	}
	body := w.Body.String()
	if strings.Contains(body, "password") || strings.Contains(body, "hash") {
		t.Errorf("response leaks credentials: %s", body)
	}

	// Duplicate email is a conflict, not a validation error.
	if w := env.register(t, "alice@example.com", "password123"); w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name string
		body string
	}{
		{"short password", `{"email":"bob@example.com","password":"short"}`},
		{"malformed email", `{"email":"not-an-email","password":"password123"}`},
		{"missing fields", `{}`},
	}
	for _, tc := range cases {
		w := env.doJSON(t, http.MethodPost, "/api/v1/users/", "", tc.body)
		if w.Code != http.StatusUnprocessableEntity {
			t.Errorf("%s: status = %d, want 422", tc.name, w.Code)
		}
	}

	var count int64
	env.db.Model(&models.User{}).Count(&count)
	if count != 0 {
		t.Errorf("user rows after rejected input = %d, want 0", count)
	}
}

func TestLoginEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")

	w := env.login(t, "alice@example.com", "password123")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp["token_type"] != "bearer" || resp["access_token"] == "" {
		t.Errorf("token response = %v", resp)
	}

	// Wrong password and unknown user must be indistinguishable.
	wrongPass := env.login(t, "alice@example.com", "wrong-password")
	unknown := env.login(t, "nobody@example.com", "password123")
	for _, w := range []*httptest.ResponseRecorder{wrongPass, unknown} {
		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", w.Code)
		}
		if w.Header().Get("WWW-Authenticate") != "Bearer" {
			t.Error("missing WWW-Authenticate: Bearer header")
		}
	}
	if wrongPass.Body.String() != unknown.Body.String() {
		t.Error("failure responses differ between wrong password and unknown user")
	}
}

func TestMeEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")

	token, err := env.tm.Issue("alice@example.com")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", token, "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "alice@example.com") {
		t.Errorf("body = %s", w.Body.String())
	}

	// Missing, malformed and expired tokens are all plain 401s.
	if w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", "garbage", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("malformed token: status = %d, want 401", w.Code)
	}
	expiredTM, _ := auth.NewTokenManager("test-secret", "HS256", -time.Minute)
	expired, _ := expiredTM.Issue("alice@example.com")
	if w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", expired, ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d, want 401", w.Code)
	}

	// A valid token for a vanished user is a distinct failure class: 404.
	ghost, _ := env.tm.Issue("ghost@example.com")
	if w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", ghost, ""); w.Code != http.StatusNotFound {
		t.Errorf("vanished user: status = %d, want 404", w.Code)
	}
}

func TestCreateJobEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	token, _ := env.tm.Issue("alice@example.com")

	w := env.doJSON(t, http.MethodPost, "/api/v1/jobs/", token, `{"prompt":"Build a blog platform"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}

	var job models.GenerationJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Errorf("status = %s, want pending", job.Status)
	}
	if job.PRURL != nil {
		t.Errorf("pr_url = %v, want null", *job.PRURL)
	}
	if len(env.enqueuer.enqueued) != 1 || env.enqueuer.enqueued[0] != job.ID.String() {
		t.Errorf("enqueued = %v", env.enqueuer.enqueued)
	}

	// Short prompts are rejected before any row is inserted.
	if w := env.doJSON(t, http.MethodPost, "/api/v1/jobs/", token, `{"prompt":"too short"}`); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("short prompt: status = %d, want 422", w.Code)
	}
	var count int64
	env.db.Model(&models.GenerationJob{}).Count(&count)
	if count != 1 {
		t.Errorf("job rows = %d, want 1", count)
	}

	// No token: 401.
	if w := env.doJSON(t, http.MethodPost, "/api/v1/jobs/", "", `{"prompt":"Build a blog platform"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
}

func TestCreateJobQueueUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	token, _ := env.tm.Issue("alice@example.com")

	env.enqueuer.err = queue.ErrUnavailable

	w := env.doJSON(t, http.MethodPost, "/api/v1/jobs/", token, `{"prompt":"Build a blog platform"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503: %s", w.Code, w.Body.String())
	}

	// The store must be back in its pre-call state.
	var count int64
	env.db.Model(&models.GenerationJob{}).Count(&count)
	if count != 0 {
		t.Errorf("job rows after failed dispatch = %d, want 0", count)
	}
}

func TestGetAndListJobs(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice@example.com", "password123")
	env.register(t, "bob@example.com", "password123")
	aliceToken, _ := env.tm.Issue("alice@example.com")
	bobToken, _ := env.tm.Issue("bob@example.com")

	w := env.doJSON(t, http.MethodPost, "/api/v1/jobs/", aliceToken, `{"prompt":"Build a blog platform"}`)
	var job models.GenerationJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}

	if w := env.doJSON(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), aliceToken, ""); w.Code != http.StatusOK {
		t.Errorf("owner get: status = %d, want 200", w.Code)
	}
	// Other users cannot see the job.
	if w := env.doJSON(t, http.MethodGet, "/api/v1/jobs/"+job.ID.String(), bobToken, ""); w.Code != http.StatusNotFound {
		t.Errorf("cross-owner get: status = %d, want 404", w.Code)
	}

	var listed []models.GenerationJob
	w = env.doJSON(t, http.MethodGet, "/api/v1/jobs/", aliceToken, "")
	if w.Code != http.StatusOK {
		t.Fatalf("list: status = %d, want 200", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listed); err != nil {
		t.Fatalf("unmarshal list: %v", err)
	}
	if len(listed) != 1 {
		t.Errorf("len(list) = %d, want 1", len(listed))
	}
}

// TestEndToEndScenario walks the full flow: register, login, profile, job
// dispatch, then worker processing with stubbed collaborators.
func TestEndToEndScenario(t *testing.T) {
	env := newTestEnv(t)

	if w := env.register(t, "alice@example.com", "password123"); w.Code != http.StatusCreated {
		t.Fatalf("register: %d", w.Code)
	}

	w := env.login(t, "alice@example.com", "password123")
	if w.Code != http.StatusOK {
		t.Fatalf("login: %d", w.Code)
	}
	var tokenResp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &tokenResp); err != nil {
		t.Fatalf("unmarshal token: %v", err)
	}
	token := tokenResp["access_token"]

	if w := env.doJSON(t, http.MethodGet, "/api/v1/users/me", token, ""); w.Code != http.StatusOK {
		t.Fatalf("me: %d", w.Code)
	}

	w = env.doJSON(t, http.MethodPost, "/api/v1/jobs/", token, `{"prompt":"Build a blog platform"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("create job: %d", w.Code)
	}
	var job models.GenerationJob
	if err := json.Unmarshal(w.Body.Bytes(), &job); err != nil {
		t.Fatalf("unmarshal job: %v", err)
	}
	if job.Status != models.JobStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}

	// Trigger the worker for the dispatched job with stub collaborators.
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := orchestrator.New(
		discard,
		scm.NewClient("", "", true),
		engine.NewClient("", true),
	)
	payload, _ := json.Marshal(queue.ProcessJobPayload{JobID: job.ID.String()})
	handler := worker.ProcessJobHandler(discard, env.db, orch)
	if err := handler(context.Background(), asynq.NewTask(queue.TaskProcessJob, payload)); err != nil {
		t.Fatalf("worker handler: %v", err)
	}

	var stored models.GenerationJob
	if err := env.db.First(&stored, "id = ?", job.ID).Error; err != nil {
		t.Fatalf("reload job: %v", err)
	}
	if stored.Status != models.JobStatusCompleted {
		t.Errorf("final status = %s, want completed", stored.Status)
	}
	if stored.PRURL == nil || !strings.HasSuffix(*stored.PRURL, "/pull/1") {
		t.Errorf("pr_url = %v, want a pull request URL", stored.PRURL)
	}
	if stored.ThreadID == nil || stored.RunID == nil {
		t.Error("run correlation ids not persisted")
	}
}
