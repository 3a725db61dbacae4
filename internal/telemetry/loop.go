// Package telemetry implements the Telemetry Heartbeat Loop: a background
// scheduler that, for each active account, emits a randomized subset of
// upstream analytics calls so the account looks used even between real
// requests (spec §4.5). It is the spec-driven generalization of the
// teacher's quota.Service.pollQuota ticker goroutine: the same periodic
// background goroutine, retargeted at CodeAssist's analytics endpoints
// instead of quota polling, sleeping a jittered interval between iterations,
// and cancellable through its context per spec §5/§9.
package telemetry

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/antigravity-proxy/antigravity-proxy/internal/fetch"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fingerprint"
	"github.com/antigravity-proxy/antigravity-proxy/internal/jitter"
	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// AccountSource is the subset of pool.Pool the telemetry loop needs: the
// active-account list and a way to mint access tokens.
type AccountSource interface {
	ActiveAccounts() []models.Account
	GetAccessToken(ctx context.Context, email string) (string, error)
}

// EventRecorder optionally persists one audit row per heartbeat emission
// (wired to internal/db's session_events table). Nil-safe: telemetry
// failures never block on this.
type EventRecorder interface {
	RecordSessionEvent(event *models.SessionEvent)
}

const (
	// fallbackUpstreamURL is the secondary CodeAssist host named in spec §6.
	fallbackUpstreamURL = "https://cloudcode-pa.googleapis.com"

	liveWindow       = 15 * time.Second
	schedulerFloorMs = 5000

	// defaultActiveWindow, defaultIntervalMs, defaultJitterMs are the
	// Loop's built-in defaults (spec §4.5), overridable via
	// WithActiveWindow/WithInterval (spec §6's telemetryIntervalMs/
	// telemetryJitterMs/activeSessionWindowMs config knobs).
	defaultActiveWindow = 10 * time.Minute
	defaultIntervalMs   = 45000
	defaultJitterMs     = 15000

	// hardCodedHeartbeatModel is preserved verbatim from the source for
	// fidelity (spec §9): a stale but still-accepted model id.
	hardCodedHeartbeatModel = "gemini-1.5-pro-002"
)

type endpointSpec struct {
	path        string
	probability float64
}

// baseUpstreamURL is the primary CodeAssist host named in spec §6. It is a
// var, not a const, so tests can point the loop at an httptest.Server.
var baseUpstreamURL = "https://daily-cloudcode-pa.googleapis.com"

var endpoints = []endpointSpec{
	{path: "/v1internal:fetchUserInfo", probability: 0.9},
	{path: "/v1internal:listExperiments", probability: 0.5},
	{path: "/v1internal:recordTrajectoryAnalytics", probability: 0.3},
	{path: "/v1internal:recordCodeAssistMetrics", probability: 0.2},
}

// Loop is the heartbeat scheduler. Exactly one runs at a time per process.
type Loop struct {
	pool     AccountSource
	fetcher  *fetch.Client
	recorder EventRecorder

	activeWindow time.Duration
	intervalMs   float64
	jitterMs     float64

	mu           sync.Mutex
	lastActivity time.Time
	sessionIDs   map[string]string
}

// Option configures a Loop at construction time.
type Option func(*Loop)

// WithInterval overrides the scheduler's base interval and jitter spread
// (spec §6's telemetryIntervalMs/telemetryJitterMs).
func WithInterval(intervalMs, jitterMs int) Option {
	return func(l *Loop) {
		l.intervalMs = float64(intervalMs)
		l.jitterMs = float64(jitterMs)
	}
}

// WithActiveWindow overrides the activity cutoff below which the loop stays
// quiet (spec §6's activeSessionWindowMs).
func WithActiveWindow(window time.Duration) Option {
	return func(l *Loop) { l.activeWindow = window }
}

// New builds a Loop. Call Initialize to start it.
func New(pool AccountSource, fetcher *fetch.Client, recorder EventRecorder, opts ...Option) *Loop {
	l := &Loop{
		pool:         pool,
		fetcher:      fetcher,
		recorder:     recorder,
		sessionIDs:   make(map[string]string),
		activeWindow: defaultActiveWindow,
		intervalMs:   defaultIntervalMs,
		jitterMs:     defaultJitterMs,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NotifyActivity records the current time as the last observed real
// activity (spec §4.5, §4.4 step 5).
func (l *Loop) NotifyActivity() {
	l.mu.Lock()
	l.lastActivity = time.Now()
	l.mu.Unlock()
}

func (l *Loop) sinceActivity() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lastActivity.IsZero() {
		return time.Duration(1<<63 - 1)
	}
	return time.Since(l.lastActivity)
}

// Initialize starts the loop after an initial 5s delay and runs until ctx
// is canceled (spec §4.5, §9's shutdown-signal requirement).
func (l *Loop) Initialize(ctx context.Context) {
	go func() {
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return
		}
		l.run(ctx)
	}()
}

func (l *Loop) run(ctx context.Context) {
	for {
		if err := l.iterate(ctx); err != nil {
			logger.Error("telemetry loop iteration failed", "error", err)
			select {
			case <-time.After(60 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		wait := time.Duration(schedulerFloorMs) * time.Millisecond
		if band := l.intervalMs + jitter.Uniform(-l.jitterMs, l.jitterMs); band > schedulerFloorMs {
			wait = time.Duration(band) * time.Millisecond
		}

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return
		}
	}
}

func (l *Loop) iterate(ctx context.Context) error {
	if l.sinceActivity() >= l.activeWindow {
		return nil
	}

	accounts := l.pool.ActiveAccounts()
	for i, acc := range accounts {
		if i > 0 {
			gap := time.Duration(jitter.Uniform(2000, 5000)) * time.Millisecond
			select {
			case <-time.After(gap):
			case <-ctx.Done():
				return nil
			}
		}
		l.emitForAccount(ctx, acc)
	}
	return nil
}

func (l *Loop) emitForAccount(ctx context.Context, acc models.Account) {
	projectID := acc.Subscription.ProjectID
	if projectID == "" {
		projectID = acc.ProjectID
	}
	if projectID == "" {
		return
	}

	sessionID := l.sessionID(acc.Email)

	token, err := l.pool.GetAccessToken(ctx, acc.Email)
	if err != nil {
		logger.Debug("telemetry token fetch failed", "email", acc.Email, "error", err)
		return
	}

	headers := fingerprint.BuildHeaders(acc.Fingerprint)
	headers["Authorization"] = "Bearer " + token

	for i, ep := range endpoints {
		if i > 0 {
			gap := time.Duration(jitter.Uniform(500, 2000)) * time.Millisecond
			select {
			case <-time.After(gap):
			case <-ctx.Done():
				return
			}
		}
		if rand.Float64() >= ep.probability {
			continue
		}
		l.callEndpoint(ctx, ep.path, headers, projectID, sessionID, acc.Email)
	}
}

func (l *Loop) sessionID(email string) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id, ok := l.sessionIDs[email]; ok {
		return id
	}
	id := uuid.New().String()
	l.sessionIDs[email] = id
	return id
}

func (l *Loop) callEndpoint(ctx context.Context, path string, headers map[string]string, projectID, sessionID, email string) {
	body := l.buildBody(path, projectID, sessionID)

	req := fetch.Request{
		Method:  "POST",
		URL:     baseUpstreamURL + path,
		Headers: headers,
		Body:    body,
	}

	resp, err := l.fetcher.Do(ctx, req)
	if err != nil {
		logger.Debug("telemetry call failed", "endpoint", path, "email", email, "error", err)
		return
	}
	if resp.StatusCode == 429 {
		// Spec §9: a 429 on telemetry never counts against quota, debug-log only.
		logger.Debug("telemetry endpoint rate limited", "endpoint", path, "email", email)
		return
	}

	if l.recorder != nil {
		l.recorder.RecordSessionEvent(&models.SessionEvent{
			SessionID: sessionID,
			EventType: path,
			Email:     email,
			Timestamp: time.Now(),
		})
	}
}

func (l *Loop) buildBody(path, projectID, sessionID string) []byte {
	switch path {
	case "/v1internal:fetchUserInfo":
		return jsonBody(map[string]any{"project": projectID})
	case "/v1internal:listExperiments":
		return jsonBody(map[string]any{"project": projectID, "parent": "projects/" + projectID})
	case "/v1internal:recordTrajectoryAnalytics":
		return jsonBody(map[string]any{
			"project":    projectID,
			"session_id": sessionID,
			"trajectory_metrics": map[string]any{
				"interaction_events": l.interactionEvents(),
				"latency_ms":         100 + jitter.Uniform(0, 600),
				"model_id":           hardCodedHeartbeatModel,
			},
		})
	case "/v1internal:recordCodeAssistMetrics":
		return jsonBody(map[string]any{
			"project":    projectID,
			"session_id": sessionID,
			"code_assist_metrics": codeAssistMetrics(),
		})
	default:
		return []byte("{}")
	}
}

func jsonBody(v map[string]any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
