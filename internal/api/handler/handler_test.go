package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Rrens/chat-gateway/internal/api/handler"
	"github.com/Rrens/chat-gateway/internal/llm"
	"github.com/Rrens/chat-gateway/internal/security"
	"github.com/Rrens/chat-gateway/internal/service"
)

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var response map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return response
}

func TestHealthCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()

	handler.HealthCheck(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	response := decodeBody(t, rec)
	if response["success"] != true {
		t.Error("expected success to be true")
	}

	data, ok := response["data"].(map[string]any)
	if !ok {
		t.Fatal("expected data to be a map")
	}

	if data["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", data["status"])
	}
}

func TestReadyCheck(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ready", nil)

	rec := httptest.NewRecorder()
	handler.ReadyCheck(stubPinger{})(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ReadyCheck(stubPinger{err: errors.New("database is locked")})(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if response := decodeBody(t, rec); response["success"] != false {
		t.Error("expected success to be false")
	}
}

type namedProvider struct{ llm.Provider }

func (namedProvider) DefaultModel() string { return "model-x" }

func TestListLLMProviders(t *testing.T) {
	registry := llm.NewRegistry()
	factory := func(llm.ProviderOptions) (llm.Provider, error) { return namedProvider{}, nil }
	registry.Register("openai", factory, true)
	registry.Register("ollama", factory, false)

	providers := service.NewProviderService(registry, nil, "openai")
	if err := providers.Configure(service.ProviderConfigRequest{Provider: "ollama"}); err != nil {
		t.Fatalf("configure: %v", err)
	}

	rec := httptest.NewRecorder()
	handler.ListLLMProviders(providers)(rec, httptest.NewRequest(http.MethodGet, "/api/v1/llm-providers", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}

	data := decodeBody(t, rec)["data"].(map[string]any)
	if data["active_provider"] != "ollama" {
		t.Errorf("expected active provider ollama, got %v", data["active_provider"])
	}

	list, ok := data["providers"].([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2 providers, got %v", data["providers"])
	}
	first := list[0].(map[string]any)
	if first["name"] != "ollama" || first["model"] != "model-x" || first["active"] != true {
		t.Errorf("unexpected first provider: %v", first)
	}
}

func TestTokenHandler_Issue(t *testing.T) {
	manager := security.NewJWTManager("test-secret-key-32-characters!!", time.Hour)
	h := handler.NewTokenHandler(manager)

	rec := httptest.NewRecorder()
	h.Issue(rec, makeJSONRequest(http.MethodPost, "/api/v1/token", map[string]string{"client_id": "laptop"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status %d, got %d", http.StatusCreated, rec.Code)
	}

	data := decodeBody(t, rec)["data"].(map[string]any)
	claims, err := manager.ValidateConnectionToken(data["token"].(string))
	if err != nil {
		t.Fatalf("issued token does not validate: %v", err)
	}
	if claims.ClientID != "laptop" {
		t.Errorf("expected client id laptop, got %s", claims.ClientID)
	}
}

func TestTokenHandler_InvalidBody(t *testing.T) {
	h := handler.NewTokenHandler(security.NewJWTManager("secret", time.Hour))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/token", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	h.Issue(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

// BenchmarkJWTGeneration benchmarks token generation
func BenchmarkJWTGeneration(b *testing.B) {
	manager := security.NewJWTManager("benchmark-secret-key-32-chars!!", 15*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = manager.GenerateConnectionToken("benchmark-client")
	}
}

// Helper to make JSON request
func makeJSONRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}
