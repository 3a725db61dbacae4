package pool

import (
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// MarkUnauthorized sets isInvalid on a 401 or persistent refresh failure
// (spec §4.4: terminal).
func (p *Pool) MarkUnauthorized(email string) {
	if err := p.mutate(email, func(acc *models.Account) {
		acc.IsInvalid = true
		acc.Status = models.StatusError
	}); err != nil {
		logger.Error("failed to mark account unauthorized", "email", email, "error", err)
		return
	}
	p.sendEvent(Event{Type: EventStatusChanged, Email: email})
}

// MarkRateLimited sets status=limited and records the model that limited
// the account (spec §4.4: does not invalidate).
func (p *Pool) MarkRateLimited(email, modelID string) {
	if err := p.mutate(email, func(acc *models.Account) {
		acc.Status = models.StatusLimited
		if acc.Subscription.Quota == nil {
			acc.Subscription.Quota = map[string]models.ModelQuota{}
		}
		acc.Subscription.Quota[modelID] = models.ModelQuota{RemainingFraction: 0}
	}); err != nil {
		logger.Error("failed to mark account rate limited", "email", email, "error", err)
		return
	}
	p.sendEvent(Event{Type: EventStatusChanged, Email: email})
}

// MarkServerError sets status=error transiently after a 5xx exhausts retries
// (spec §4.4).
func (p *Pool) MarkServerError(email string) {
	if err := p.mutate(email, func(acc *models.Account) {
		if !acc.IsInvalid {
			acc.Status = models.StatusError
		}
	}); err != nil {
		logger.Error("failed to mark account error", "email", email, "error", err)
	}
}

// UpdateQuota records fresh per-model quota observed from a successful
// response and clears a transient error status back to ok (spec §4.4).
func (p *Pool) UpdateQuota(email string, quota map[string]models.ModelQuota, tier models.SubscriptionTier) {
	if err := p.mutate(email, func(acc *models.Account) {
		if acc.Subscription.Quota == nil {
			acc.Subscription.Quota = map[string]models.ModelQuota{}
		}
		for model, q := range quota {
			acc.Subscription.Quota[model] = q
		}
		if tier != "" {
			acc.Subscription.Tier = tier
		}
		if acc.Status == models.StatusError {
			acc.Status = models.StatusOK
		}
	}); err != nil {
		logger.Error("failed to update account quota", "email", email, "error", err)
	}
}

// touchLastUsed bumps lastUsed to now, used by selection (spec §4.4 step 5).
func (p *Pool) touchLastUsed(email string) {
	_ = p.mutate(email, func(acc *models.Account) {
		acc.LastUsed = time.Now()
	})
}
