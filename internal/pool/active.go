package pool

import (
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// activeAccountWindow is the "active account" glossary definition: enabled,
// not invalid, used within the last 10 minutes.
const activeAccountWindow = 10 * time.Minute

// ActiveAccounts returns accounts eligible for telemetry heartbeats (spec
// §4.5's active-account filter): enabled && !isInvalid && lastUsed &&
// (now-lastUsed) < 10 min.
func (p *Pool) ActiveAccounts() []models.Account {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var active []models.Account
	now := time.Now()
	for _, acc := range p.accounts {
		if !acc.Enabled || acc.IsInvalid {
			continue
		}
		if acc.LastUsed.IsZero() {
			continue
		}
		if now.Sub(acc.LastUsed) >= activeAccountWindow {
			continue
		}
		active = append(active, acc)
	}
	return active
}
