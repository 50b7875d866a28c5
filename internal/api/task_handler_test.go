package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/dgarciamx/Tramita/internal/auth"
	"github.com/dgarciamx/Tramita/internal/domain"
	"github.com/dgarciamx/Tramita/internal/gateway"
	"github.com/dgarciamx/Tramita/internal/store"
)

// fakeOrchestrator — диспетчер без воркеров: Submit создаёт задачу,
// команды выполняют прямые переходы в хранилище.
type fakeOrchestrator struct {
	store store.Store
}

func (f *fakeOrchestrator) Submit(ctx context.Context, task *domain.Task) (uuid.UUID, error) {
	if err := f.store.Create(ctx, task); err != nil {
		return uuid.Nil, err
	}
	return task.ID, nil
}

func (f *fakeOrchestrator) Cancel(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	task, err := f.store.Get(ctx, "", id)
	if err != nil {
		return nil, err
	}
	if task.Status == domain.StatusCancelled {
		return task, nil
	}
	return f.store.Transition(ctx, id, task.Status, domain.StatusCancelled, "cancelled_by_user", nil)
}

func (f *fakeOrchestrator) Pause(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return f.store.Transition(ctx, id, domain.StatusRunning, domain.StatusPaused, "user_pause", nil)
}

func (f *fakeOrchestrator) Resume(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return f.store.Transition(ctx, id, domain.StatusPaused, domain.StatusRunning, "user_resume", nil)
}

func (f *fakeOrchestrator) TakeControl(ctx context.Context, id uuid.UUID) (*domain.Task, error) {
	return f.store.Transition(ctx, id, domain.StatusRunning, domain.StatusInterventionNeeded, "user_takeover", nil)
}

func (f *fakeOrchestrator) RunningCount() int { return 1 }
func (f *fakeOrchestrator) PoolSize() int     { return 3 }
func (f *fakeOrchestrator) QueueDepth() int   { return 0 }
func (f *fakeOrchestrator) IsStopped() bool   { return false }

func newTestServer(t *testing.T) (*httptest.Server, store.Store) {
	t.Helper()

	st := store.NewMemStore()
	logger := slog.New(slog.NewTextHandler(bytes.NewBuffer(nil), nil))

	h := NewHandler(Config{
		Store:      st,
		Dispatcher: &fakeOrchestrator{store: st},
		Gateway:    gateway.New(nil, logger),
		Logger:     logger,
	})

	mux := http.NewServeMux()
	h.RegisterRoutes(mux, &auth.StaticVerifier{AdminTokens: map[string]bool{"admin-token": true}})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, st
}

func doRequest(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func createTask(t *testing.T, srv *httptest.Server, token string) uuid.UUID {
	t.Helper()

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks", token, CreateTaskRequest{
		TargetURL: "https://portal.example.mx/facturacion",
		Payload:   map[string]any{"rfc": "XAXX010101000"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d", resp.StatusCode)
	}

	var body struct {
		Data TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return body.Data.ID
}

func TestAPI_CreateAndGet(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+id.String(), "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status %d", resp.StatusCode)
	}

	var body struct {
		Data TaskResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Status != domain.StatusPending {
		t.Errorf("status %s", body.Data.Status)
	}
	if body.Data.UserID != "user-1" {
		t.Errorf("user %s", body.Data.UserID)
	}
}

func TestAPI_CreateInvalidPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks", "user-1", CreateTaskRequest{
		TargetURL: "https://portal.example.mx",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", resp.StatusCode)
	}

	var body ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Code != ErrCodeInvalidPayload {
		t.Errorf("code %s", body.Error.Code)
	}
}

// Чтение чужой задачи — NOT_FOUND, существование не раскрывается.
func TestAPI_ForeignTaskReadIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+id.String(), "user-2", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status %d, want 404", resp.StatusCode)
	}
}

// Команда на чужую задачу — FORBIDDEN.
func TestAPI_ForeignTaskCommandIsForbidden(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks/"+id.String()+"/cancel", "user-2", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}
}

// Admin видит и командует чужими задачами.
func TestAPI_AdminScope(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tasks/"+id.String(), "admin-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin get status %d", resp.StatusCode)
	}

	resp = doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks/"+id.String()+"/cancel", "admin-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin cancel status %d", resp.StatusCode)
	}
}

func TestAPI_Unauthorized(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tasks", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
}

func TestAPI_ListScopedByOwner(t *testing.T) {
	srv, _ := newTestServer(t)
	createTask(t, srv, "user-1")
	createTask(t, srv, "user-1")
	createTask(t, srv, "user-2")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/tasks", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var body struct {
		Data  []TaskResponse `json:"data"`
		Total int            `json:"total"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Total != 2 || len(body.Data) != 2 {
		t.Errorf("total %d, page %d", body.Total, len(body.Data))
	}
}

// Повторная отмена уже отменённой задачи — 200 с тем же снимком.
func TestAPI_CancelIdempotent(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	for i := 0; i < 2; i++ {
		resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks/"+id.String()+"/cancel", "user-1", nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("cancel %d status %d", i+1, resp.StatusCode)
		}
	}
}

// Pause для PENDING-задачи — конфликт перехода.
func TestAPI_PausePendingConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodPost, srv.URL+"/api/v1/tasks/"+id.String()+"/pause", "user-1", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("status %d, want 409", resp.StatusCode)
	}
}

func TestAPI_StatsAndHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	createTask(t, srv, "user-1")

	resp := doRequest(t, http.MethodGet, srv.URL+"/api/v1/stats", "user-1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats status %d", resp.StatusCode)
	}
	var stats struct {
		Data StatsResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Data.Total != 1 {
		t.Errorf("total %d", stats.Data.Total)
	}

	resp = doRequest(t, http.MethodGet, srv.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.PoolSize != 3 {
		t.Errorf("pool size %d", health.PoolSize)
	}
}
