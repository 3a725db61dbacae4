package pool

import (
	"sort"

	"github.com/antigravity-proxy/antigravity-proxy/internal/apierr"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// Select implements the selection policy of spec §4.4:
//  1. Filter out disabled/invalid accounts.
//  2. Prefer status==ok accounts whose remaining quota fraction for modelID
//     (or any core model if modelID is unknown) exceeds QuotaThreshold.
//  3. Among eligible candidates, pick the least-recently-used.
//  4. Fall back to unknown, then limited, if no ok candidate exists.
//  5. Bump lastUsed and notify the telemetry loop of activity.
func (p *Pool) Select(modelID string) (*models.Account, error) {
	p.mu.RLock()
	candidates := make([]models.Account, 0, len(p.accounts))
	for _, acc := range p.accounts {
		if !acc.Enabled || acc.IsInvalid {
			continue
		}
		candidates = append(candidates, acc)
	}
	p.mu.RUnlock()

	if len(candidates) == 0 {
		return nil, apierr.ErrNoAccountAvailable
	}

	for _, status := range []models.AccountStatus{models.StatusOK, models.StatusUnknown, models.StatusLimited} {
		if acc := pickLeastRecentlyUsed(candidates, status, modelID); acc != nil {
			p.touchLastUsed(acc.Email)
			p.mu.RLock()
			activity := p.activity
			p.mu.RUnlock()
			if activity != nil {
				activity.NotifyActivity()
			}
			p.sendEvent(Event{Type: EventActivity, Email: acc.Email})
			return acc, nil
		}
	}

	return nil, apierr.ErrNoAccountAvailable
}

// pickLeastRecentlyUsed returns the least-recently-used candidate with the
// given status that clears the quota threshold for modelID (status==ok
// candidates are further filtered by quota; unknown/limited fallbacks are
// not, per spec §4.4 step 4).
func pickLeastRecentlyUsed(candidates []models.Account, status models.AccountStatus, modelID string) *models.Account {
	var eligible []models.Account
	for _, acc := range candidates {
		if acc.Status != status {
			continue
		}
		if status == models.StatusOK && !hasSufficientQuota(acc, modelID) {
			continue
		}
		eligible = append(eligible, acc)
	}
	if len(eligible) == 0 {
		return nil
	}

	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].LastUsed.Before(eligible[j].LastUsed)
	})
	chosen := eligible[0]
	return &chosen
}

// hasSufficientQuota reports whether acc's remaining quota fraction for
// modelID (or, if unknown, any core model) exceeds QuotaThreshold.
func hasSufficientQuota(acc models.Account, modelID string) bool {
	if acc.Subscription.Quota == nil {
		return true // no quota data yet: optimistically eligible
	}

	if q, ok := acc.Subscription.Quota[modelID]; ok {
		return q.RemainingFraction > QuotaThreshold
	}

	for name, q := range acc.Subscription.Quota {
		if isCoreModel(name) && q.RemainingFraction > QuotaThreshold {
			return true
		}
	}
	// No entry for modelID and no core-model data at all: treat as eligible.
	return !hasAnyCoreModel(acc.Subscription.Quota)
}

func hasAnyCoreModel(quota map[string]models.ModelQuota) bool {
	for name := range quota {
		if isCoreModel(name) {
			return true
		}
	}
	return false
}

// IsActive reports whether acc counts as "active" for stats rollup purposes
// (spec §4.4): enabled, status==ok, and at least one core-model quota above
// threshold — or, if no core quota is present at all, any model's fraction.
func IsActive(acc models.Account) bool {
	if !acc.Enabled || acc.Status != models.StatusOK {
		return false
	}

	hasCore := hasAnyCoreModel(acc.Subscription.Quota)
	for name, q := range acc.Subscription.Quota {
		if hasCore && !isCoreModel(name) {
			continue
		}
		if q.RemainingFraction > QuotaThreshold {
			return true
		}
	}
	return false
}
