package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eblahq/ragchat/internal/chat"
	"github.com/eblahq/ragchat/internal/store"
)

// ---------------------------------------------------------------------------
// Fake chat service for handler tests
// ---------------------------------------------------------------------------

// fakeChatService implements the chatService interface for tests.
type fakeChatService struct {
	// resp is returned by ProcessChat on success.
	resp *chat.Response
	// err is returned by ProcessChat when non-nil.
	err error
	// history is returned by SessionHistory on success.
	history []store.Message
	// historyErr is returned by SessionHistory when non-nil.
	historyErr error
	// gotReq records the last request passed to ProcessChat.
	gotReq chat.Request
}

func (f *fakeChatService) ProcessChat(_ context.Context, req chat.Request) (*chat.Response, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeChatService) SessionHistory(context.Context, string) ([]store.Message, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.history, nil
}

// newTestServer builds a *Server wired with the given fake, backed by a fresh
// isolated registry so tests do not pollute prometheus.DefaultRegisterer.
func newTestServer(t *testing.T, svc chatService) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s := &Server{
		chat:    svc,
		cfg:     &Config{Port: 8000},
		log:     slog.Default(),
		metrics: newServerMetrics(reg),
	}
	return s, reg
}

// ---------------------------------------------------------------------------
// POST /api/v1/chat — validation error paths (no pipeline needed)
// ---------------------------------------------------------------------------

func TestHandleChat_InvalidJSON(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeChatService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`not-json`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleChat_MissingQuery(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeChatService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"session_id":"abc"}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail != detailQueryRequired {
		t.Errorf("detail: got %q, want %q", body.Detail, detailQueryRequired)
	}
}

func TestHandleChat_BlankQuery(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeChatService{})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"   "}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for whitespace-only query, got %d", w.Code)
	}
}

// TestHandleChat_TopKOutOfRange verifies that top_k outside [1,10] is
// rejected before reaching the pipeline, while an omitted top_k passes
// through as zero for the service default.
func TestHandleChat_TopKOutOfRange(t *testing.T) {
	t.Parallel()

	svc := &fakeChatService{resp: &chat.Response{Status: "success"}}
	s, _ := newTestServer(t, svc)

	for _, bad := range []int{-1, 11, 50} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
			strings.NewReader(fmt.Sprintf(`{"query":"q","top_k":%d}`, bad)))
		w := httptest.NewRecorder()

		s.handleChat(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("top_k=%d: expected 400, got %d", bad, w.Code)
		}
	}
	if svc.gotReq.Query != "" {
		t.Error("out-of-range top_k must not reach the pipeline")
	}

	// Omitted top_k is fine — the service applies its default.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"q"}`))
	w := httptest.NewRecorder()
	s.handleChat(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("omitted top_k: expected 200, got %d", w.Code)
	}
	if svc.gotReq.TopK != 0 {
		t.Errorf("omitted top_k must forward zero, got %d", svc.gotReq.TopK)
	}
}

// ---------------------------------------------------------------------------
// POST /api/v1/chat — happy path
// ---------------------------------------------------------------------------

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	created := time.Now().UTC().Truncate(time.Second)
	svc := &fakeChatService{resp: &chat.Response{
		Status:    "success",
		SessionID: "sess-1",
		Query:     "what is EBLA?",
		Answer:    "a knowledge assistant",
		Sources: []chat.Source{
			{Content: "EBLA docs", Metadata: map[string]string{"source": "intro.txt"}, Score: 0.92},
		},
		Validation: chat.Validation{UsedContext: true, ContextSources: 1, PromptPreview: "You are EBLA"},
		CreatedAt:  created,
	}}
	s, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"what is EBLA?","collection_name":"manuals","top_k":7}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d — body: %s", w.Code, w.Body.String())
	}

	// Request fields must be passed through to the pipeline untouched.
	if svc.gotReq.Collection != "manuals" || svc.gotReq.TopK != 7 {
		t.Errorf("request not forwarded: %+v", svc.gotReq)
	}

	raw := w.Body.String()
	if !strings.Contains(raw, `"created_at"`) {
		t.Error("created_at missing from response body")
	}

	var body chatResponse
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "success" {
		t.Errorf("status: got %q", body.Status)
	}
	if body.SessionID != "sess-1" {
		t.Errorf("session_id: got %q", body.SessionID)
	}
	if body.Answer != "a knowledge assistant" {
		t.Errorf("answer: got %q", body.Answer)
	}
	if len(body.Sources) != 1 || body.Sources[0].Score != 0.92 {
		t.Errorf("sources: got %+v", body.Sources)
	}
	if !body.Validation.UsedContext || body.Validation.ContextSources != 1 {
		t.Errorf("validation: got %+v", body.Validation)
	}
	if !body.CreatedAt.Equal(created) {
		t.Errorf("created_at: got %v, want %v", body.CreatedAt, created)
	}
}

// ---------------------------------------------------------------------------
// POST /api/v1/chat — pipeline error mapping
// ---------------------------------------------------------------------------

func TestHandleChat_RetrievalError(t *testing.T) {
	t.Parallel()

	svc := &fakeChatService{err: chat.ErrRetrievalUnavailable}
	s, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail != detailRetrievalFailed {
		t.Errorf("detail: got %q, want %q", body.Detail, detailRetrievalFailed)
	}
}

func TestHandleChat_GenerationError(t *testing.T) {
	t.Parallel()

	svc := &fakeChatService{err: chat.ErrGenerationUnavailable}
	s, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
	var body errorResponse
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail != detailGenerationFailed {
		t.Errorf("detail: got %q, want %q", body.Detail, detailGenerationFailed)
	}
}

// TestHandleChat_WrappedErrorsStillMap verifies that error mapping uses
// errors.Is, so wrapped pipeline errors map to the same statuses.
func TestHandleChat_WrappedErrorsStillMap(t *testing.T) {
	t.Parallel()

	wrapped := errors.Join(chat.ErrGenerationUnavailable, errors.New("dial tcp: refused"))
	svc := &fakeChatService{err: wrapped}
	s, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for wrapped generation error, got %d", w.Code)
	}
}

func TestHandleChat_UnexpectedError(t *testing.T) {
	t.Parallel()

	svc := &fakeChatService{err: errors.New("disk on fire")}
	s, _ := newTestServer(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat",
		strings.NewReader(`{"query":"hi"}`))
	w := httptest.NewRecorder()

	s.handleChat(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
	raw := w.Body.String()
	var body errorResponse
	if err := json.Unmarshal([]byte(raw), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Detail != detailUnexpectedFailure {
		t.Errorf("detail: got %q, want %q", body.Detail, detailUnexpectedFailure)
	}
	// Internal error text must never leak to the client.
	if strings.Contains(raw, "disk on fire") {
		t.Error("internal error detail leaked into the response body")
	}
}
