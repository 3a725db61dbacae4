// Package gateway wires the Core components (pool, shaper, fetch, convert,
// usage) behind two thin passthrough HTTP endpoints. Full request routing,
// validation, and auth are out of scope (spec §1); this is a wiring
// demonstration, grounded on the teacher's internal/httpserver package.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/antigravity-proxy/antigravity-proxy/internal/apierr"
	"github.com/antigravity-proxy/antigravity-proxy/internal/convert"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fetch"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fingerprint"
	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
	"github.com/antigravity-proxy/antigravity-proxy/internal/shaper"
	"github.com/antigravity-proxy/antigravity-proxy/internal/usage"
)

// AccountPool is the subset of pool.Pool the gateway needs.
type AccountPool interface {
	Select(modelID string) (*models.Account, error)
	GetAccessToken(ctx context.Context, email string) (string, error)
	MarkRateLimited(email, modelID string)
	MarkServerError(email string)
	MarkUnauthorized(email string)
}

// CallRecorder optionally persists one row per forwarded request (wired to
// internal/db's api_calls table).
type CallRecorder interface {
	RecordAPICall(call *models.APICall)
}

// Gateway forwards chat-completion bodies to CodeAssist via the shaper and
// throttled fetch, then converts the response.
type Gateway struct {
	pool     AccountPool
	shaper   *shaper.Shaper
	fetcher  *fetch.Client
	sigCache *convert.SignatureCache
	tracker  *usage.Tracker
	recorder CallRecorder
	upstream string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithUpstream overrides the default CodeAssist host (tests only).
func WithUpstream(url string) Option {
	return func(g *Gateway) { g.upstream = url }
}

// WithCallRecorder wires per-request audit logging.
func WithCallRecorder(r CallRecorder) Option {
	return func(g *Gateway) { g.recorder = r }
}

const defaultUpstream = "https://daily-cloudcode-pa.googleapis.com"

// New builds a Gateway over the given Core components.
func New(pool AccountPool, sh *shaper.Shaper, fetcher *fetch.Client, tracker *usage.Tracker, opts ...Option) *Gateway {
	g := &Gateway{
		pool:     pool,
		shaper:   sh,
		fetcher:  fetcher,
		sigCache: convert.NewSignatureCache(convert.DefaultSignatureCacheCapacity),
		tracker:  tracker,
		upstream: defaultUpstream,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Router builds the chi.Router exposing the two passthrough endpoints.
func (g *Gateway) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/v1/messages", g.handleMessages)
	r.Post("/v1beta/{model}:generateContent", g.handleGenerateContent)
	return r
}

func (g *Gateway) handleMessages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Model string `json:"model"`
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		writeError(w, http.StatusBadRequest, "invalid-request")
		return
	}

	g.forwardAndRespond(w, r, req.Model, "/v1internal:generateContent", body)
}

func (g *Gateway) handleGenerateContent(w http.ResponseWriter, r *http.Request) {
	model := chi.URLParam(r, "model")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid-request")
		return
	}

	g.forwardAndRespond(w, r, model, "/v1internal:generateContent", body)
}

func (g *Gateway) forwardAndRespond(w http.ResponseWriter, r *http.Request, modelID, upstreamPath string, body []byte) {
	raw, err := g.Forward(r.Context(), modelID, upstreamPath, body)
	if err != nil {
		var statusErr *apierr.StatusError
		if errors.As(err, &statusErr) {
			writeError(w, statusErr.StatusCode, statusErr.Error())
			return
		}
		if errors.Is(err, apierr.ErrNoAccountAvailable) {
			writeError(w, http.StatusServiceUnavailable, "no-account-available")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal-error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

// Forward is the gateway's core operation (spec SPEC_FULL §12): select an
// account, enqueue on the shaper, fetch, convert, and record the outcome.
func (g *Gateway) Forward(ctx context.Context, modelID, upstreamPath string, body []byte) ([]byte, error) {
	acc, err := g.pool.Select(modelID)
	if err != nil {
		return nil, err
	}

	token, err := g.pool.GetAccessToken(ctx, acc.Email)
	if err != nil {
		return nil, err
	}

	headers := fingerprint.BuildHeaders(acc.Fingerprint)
	headers["Authorization"] = "Bearer " + token
	headers["Content-Type"] = "application/json"

	start := time.Now()

	result, err := g.shaper.Enqueue(ctx, func(ctx context.Context) (any, error) {
		return g.fetcher.Do(ctx, fetch.Request{
			Method:  "POST",
			URL:     g.upstream + upstreamPath,
			Headers: headers,
			Body:    body,
		})
	})
	duration := time.Since(start)

	if err != nil {
		g.pool.MarkServerError(acc.Email)
		g.recordCall(acc.Email, modelID, duration, 0, err)
		return nil, err
	}

	resp := result.(*fetch.Response)
	g.recordCall(acc.Email, modelID, duration, resp.StatusCode, nil)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		g.pool.MarkUnauthorized(acc.Email)
		return nil, &apierr.StatusError{StatusCode: resp.StatusCode, Err: apierr.ErrUnauthorized}
	case resp.StatusCode == http.StatusTooManyRequests:
		g.pool.MarkRateLimited(acc.Email, modelID)
		return nil, &apierr.StatusError{StatusCode: resp.StatusCode, Err: apierr.ErrRateLimited}
	case resp.StatusCode >= 500:
		g.pool.MarkServerError(acc.Email)
		return nil, &apierr.StatusError{StatusCode: resp.StatusCode, Err: apierr.ErrRetriableServerError}
	case resp.StatusCode >= 400:
		return nil, &apierr.StatusError{StatusCode: resp.StatusCode, Err: apierr.ErrUpstreamError}
	}

	if g.tracker != nil {
		if err := g.tracker.Track(modelID); err != nil {
			logger.Warn("usage tracking failed", "error", err)
		}
	}

	converted := convert.Convert(json.RawMessage(resp.Body), modelID, g.sigCache)
	out, err := json.Marshal(converted)
	if err != nil {
		return nil, apierr.ErrInternalError
	}
	return out, nil
}

func (g *Gateway) recordCall(email, modelID string, duration time.Duration, statusCode int, err error) {
	if g.recorder == nil {
		return
	}
	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	g.recorder.RecordAPICall(&models.APICall{
		Email:      email,
		Model:      modelID,
		DurationMs: int(duration.Milliseconds()),
		StatusCode: statusCode,
		Error:      errMsg,
		Timestamp:  time.Now(),
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
