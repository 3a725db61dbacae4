package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/antigravity-proxy/antigravity-proxy/internal/fetch"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
	"github.com/antigravity-proxy/antigravity-proxy/internal/shaper"
	"github.com/antigravity-proxy/antigravity-proxy/internal/usage"
)

type fakeAccountPool struct {
	account            models.Account
	markedUnauthorized []string
	markedRateLimited  []string
	markedServerError  []string
}

func (f *fakeAccountPool) Select(modelID string) (*models.Account, error) {
	acc := f.account
	return &acc, nil
}

func (f *fakeAccountPool) GetAccessToken(ctx context.Context, email string) (string, error) {
	return "mock-token", nil
}

func (f *fakeAccountPool) MarkRateLimited(email, modelID string) {
	f.markedRateLimited = append(f.markedRateLimited, email)
}

func (f *fakeAccountPool) MarkServerError(email string) {
	f.markedServerError = append(f.markedServerError, email)
}

func (f *fakeAccountPool) MarkUnauthorized(email string) {
	f.markedUnauthorized = append(f.markedUnauthorized, email)
}

func newTestGateway(t *testing.T, upstream string, pool *fakeAccountPool) *Gateway {
	t.Helper()
	client := fetch.New(fetch.WithThrottle(false, 0))
	client.SetHTTPClientForTest(http.DefaultClient)

	sh := shaper.New(0, 0)
	tracker, err := usage.New(filepath.Join(t.TempDir(), "usage-history.json"))
	if err != nil {
		t.Fatalf("usage.New: %v", err)
	}

	return New(pool, sh, client, tracker, WithUpstream(upstream))
}

func TestGateway_ForwardConvertsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}]}`))
	}))
	defer srv.Close()

	pool := &fakeAccountPool{account: models.Account{Email: "a@example.com", Enabled: true}}
	gw := newTestGateway(t, srv.URL, pool)

	out, err := gw.Forward(context.Background(), "claude-3-5-sonnet-20241022", "/v1internal:generateContent", []byte(`{}`))
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if result["role"] != "assistant" {
		t.Errorf("role = %v, want assistant", result["role"])
	}
}

func TestGateway_MarksUnauthorizedOn401(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	pool := &fakeAccountPool{account: models.Account{Email: "a@example.com", Enabled: true}}
	gw := newTestGateway(t, srv.URL, pool)

	_, err := gw.Forward(context.Background(), "claude-3-5-sonnet-20241022", "/v1internal:generateContent", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error on 401")
	}
	if len(pool.markedUnauthorized) != 1 {
		t.Errorf("markedUnauthorized = %v, want one entry", pool.markedUnauthorized)
	}
}

func TestGateway_MarksRateLimitedOn429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	pool := &fakeAccountPool{account: models.Account{Email: "a@example.com", Enabled: true}}
	gw := newTestGateway(t, srv.URL, pool)

	_, err := gw.Forward(context.Background(), "claude-3-5-sonnet-20241022", "/v1internal:generateContent", []byte(`{}`))
	if err == nil {
		t.Fatal("expected error on 429")
	}
	if len(pool.markedRateLimited) != 1 {
		t.Errorf("markedRateLimited = %v, want one entry", pool.markedRateLimited)
	}
}

func TestGateway_RouterHandlesMessages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates": [{"content": {"parts": [{"text": "hi"}]}, "finishReason": "STOP"}]}`))
	}))
	defer srv.Close()

	pool := &fakeAccountPool{account: models.Account{Email: "a@example.com", Enabled: true}}
	gw := newTestGateway(t, srv.URL, pool)

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"model": "claude-3-5-sonnet-20241022"}`))
	rec := httptest.NewRecorder()
	gw.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
}
