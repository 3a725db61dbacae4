// Package pool implements the Account Pool & Token Manager: the registry of
// upstream CodeAssist credentials, selection policy, OAuth token refresh,
// and quota/error bookkeeping described in spec §4.4. It is the direct
// evolution of the teacher's internal/services/accounts and
// internal/services/quota packages, generalized to the richer account shape
// and merged into one component, since the spec treats selection and token
// refresh as one responsibility.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/singleflight"

	"github.com/antigravity-proxy/antigravity-proxy/internal/apierr"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fingerprint"
	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// coreModelPattern is the case-insensitive "core model" regex from spec §4.4
// and the glossary.
var coreModelPattern = regexp.MustCompile(`(?i)sonnet|opus|pro|flash`)

// QuotaThreshold is the remaining-fraction cutoff below which an account is
// no longer preferred (spec §4.4).
const QuotaThreshold = 0.05

// AccountsFile is the on-disk shape of accounts.json (spec §6).
type AccountsFile struct {
	Accounts []models.Account `json:"accounts"`
	Settings map[string]any   `json:"settings,omitempty"`
}

// TokenRefresher exchanges an OAuth refresh token for an access token. The
// default implementation lives in pool/oauth.go; tests substitute a fake.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (accessToken string, expiresIn time.Duration, err error)
}

// EventType enumerates pool change notifications.
type EventType int

const (
	EventAccountsLoaded EventType = iota
	EventAccountsChanged
	EventFingerprintRotated
	EventStatusChanged
	EventActivity
	EventError
)

// Event is a pool change notification.
type Event struct {
	Type    EventType
	Email   string
	Error   error
}

// ActivityNotifier is notified whenever the pool selects an account, so the
// Telemetry Loop knows the account is still alive (spec §4.4 step 5).
type ActivityNotifier interface {
	NotifyActivity()
}

// Pool is the account registry: persisted, hot-reloaded, and safe for
// concurrent access.
type Pool struct {
	mu       sync.RWMutex
	accounts []models.Account
	filePath string

	refresher  TokenRefresher
	inflight   singleflight.Group
	tokenCache map[string]*cachedToken

	watcher  *fsnotify.Watcher
	stopChan chan struct{}

	eventChan chan Event
	activity  ActivityNotifier
}

// Option configures a Pool at construction time.
type Option func(*Pool)

// WithActivityNotifier wires the telemetry loop's NotifyActivity into the
// pool's selection path.
func WithActivityNotifier(n ActivityNotifier) Option {
	return func(p *Pool) { p.activity = n }
}

// SetActivityNotifier wires the telemetry loop's NotifyActivity into the
// pool's selection path after construction. The loop needs the pool to read
// accounts from, and the pool needs the loop to notify on selection, so one
// side must be wired post-construction; callers build the pool first, then
// the loop, then call this.
func (p *Pool) SetActivityNotifier(n ActivityNotifier) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.activity = n
}

// WithTokenRefresher overrides the default OAuth refresher (used by tests).
func WithTokenRefresher(r TokenRefresher) Option {
	return func(p *Pool) { p.refresher = r }
}

// New loads filePath, synthesizes fingerprints for any account missing one,
// starts the hot-reload watcher, and returns a ready Pool. A missing file
// yields an empty pool; New does not create the file.
func New(filePath string, opts ...Option) (*Pool, error) {
	p := &Pool{
		filePath:  filePath,
		eventChan: make(chan Event, 100),
		stopChan:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.refresher == nil {
		p.refresher = NewOAuthRefresher("", "")
	}

	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create accounts directory: %w", err)
		}
	}

	if err := p.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load accounts: %w", err)
		}
		p.accounts = []models.Account{}
	}

	if p.ensureFingerprints() {
		if err := p.save(); err != nil {
			return nil, fmt.Errorf("persist synthesized fingerprints: %w", err)
		}
	}

	if err := p.startWatcher(); err != nil {
		logger.Warn("accounts hot-reload watcher unavailable", "error", err)
	}

	p.sendEvent(Event{Type: EventAccountsLoaded})
	return p, nil
}

// Events returns the pool's change-notification channel.
func (p *Pool) Events() <-chan Event {
	return p.eventChan
}

// Close stops the hot-reload watcher.
func (p *Pool) Close() error {
	close(p.stopChan)
	if p.watcher != nil {
		return p.watcher.Close()
	}
	return nil
}

// load reads accounts.json atomically. Idempotent: re-running it always
// lands on the same in-memory state the file describes.
func (p *Pool) load() error {
	data, err := os.ReadFile(p.filePath)
	if err != nil {
		return err
	}

	var file AccountsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse accounts file: %w", err)
	}

	p.mu.Lock()
	p.accounts = file.Accounts
	p.mu.Unlock()
	return nil
}

// ensureFingerprints synthesizes a fingerprint for any account that lacks
// one. Returns true if it mutated anything.
func (p *Pool) ensureFingerprints() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	changed := false
	for i := range p.accounts {
		if p.accounts[i].Fingerprint == nil {
			p.accounts[i].Fingerprint = fingerprint.Generate()
			changed = true
		}
	}
	return changed
}

// save persists the account list with temp-file + rename, matching the
// teacher's saveAccountsLocked discipline (spec §4.4: "no partial JSON").
func (p *Pool) save() error {
	p.mu.RLock()
	file := AccountsFile{Accounts: p.accounts}
	p.mu.RUnlock()

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal accounts: %w", err)
	}

	tmp := p.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp accounts file: %w", err)
	}
	if err := os.Rename(tmp, p.filePath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Error("failed to remove temp accounts file", "error", rmErr)
		}
		return fmt.Errorf("rename temp accounts file: %w", err)
	}
	return nil
}

func (p *Pool) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	p.watcher = watcher

	dir := filepath.Dir(p.filePath)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	go p.watchLoop()
	return nil
}

func (p *Pool) watchLoop() {
	const debounce = 100 * time.Millisecond
	var timer *time.Timer

	for {
		select {
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(p.filePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounce, func() {
				if err := p.load(); err != nil {
					p.sendEvent(Event{Type: EventError, Error: err})
					return
				}
				p.sendEvent(Event{Type: EventAccountsChanged})
			})
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			p.sendEvent(Event{Type: EventError, Error: err})
		case <-p.stopChan:
			return
		}
	}
}

func (p *Pool) sendEvent(event Event) {
	select {
	case p.eventChan <- event:
	default:
		select {
		case <-p.eventChan:
		default:
		}
		select {
		case p.eventChan <- event:
		default:
		}
	}
}

// GetByEmail returns a copy of the account with the given email, or nil.
func (p *Pool) GetByEmail(email string) *models.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for i := range p.accounts {
		if p.accounts[i].Email == email {
			acc := p.accounts[i]
			return &acc
		}
	}
	return nil
}

// GetStatus returns the secret-free view of every account (spec §4.4).
func (p *Pool) GetStatus() []models.SafeAccountStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]models.SafeAccountStatus, len(p.accounts))
	for i := range p.accounts {
		out[i] = p.accounts[i].ToSafeStatus()
	}
	return out
}

// mutate finds the account by email and applies fn under the write lock,
// then persists. Returns apierr.ErrNoAccountAvailable-shaped not-found if
// email is unknown — callers that need a different error wrap this.
func (p *Pool) mutate(email string, fn func(acc *models.Account)) error {
	p.mu.Lock()
	idx := -1
	for i := range p.accounts {
		if p.accounts[i].Email == email {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", apierr.ErrNoAccountAvailable, email)
	}
	fn(&p.accounts[idx])
	p.mu.Unlock()

	return p.save()
}

// isCoreModel reports whether modelID matches the "core model" pattern.
func isCoreModel(modelID string) bool {
	return coreModelPattern.MatchString(modelID)
}
