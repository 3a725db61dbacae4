package pool

import (
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// tierThresholds extend the teacher's reset-time heuristic
// (quota.detectSubscriptionTier) with the ultra tier the spec adds: quota
// windows resetting inside 1h suggest the heaviest plan, inside 6h suggest
// pro, anything slower is free. A zero reset time, or one more than 1h in
// the past, is classified as unknown.
const (
	ultraResetThreshold = time.Hour
	proResetThreshold   = 6 * time.Hour
)

// DetectTierFromResetWindow classifies a subscription tier from how soon
// its quota resets, following the teacher's hourly-vs-daily heuristic
// (tier.go) generalized to the spec's three-tier model.
func DetectTierFromResetWindow(resetTime time.Time) models.SubscriptionTier {
	if resetTime.IsZero() {
		return models.TierUnknown
	}

	duration := time.Until(resetTime)
	if duration < 0 {
		if duration > -ultraResetThreshold {
			return models.TierUltra
		}
		return models.TierUnknown
	}

	switch {
	case duration <= ultraResetThreshold:
		return models.TierUltra
	case duration <= proResetThreshold:
		return models.TierPro
	default:
		return models.TierFree
	}
}
