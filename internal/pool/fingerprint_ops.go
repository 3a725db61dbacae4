package pool

import (
	"fmt"
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/apierr"
	"github.com/antigravity-proxy/antigravity-proxy/internal/fingerprint"
	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// RegenerateFingerprint pushes the current fingerprint to the history head
// with reason "regenerated", truncates history to the cap, and installs a
// freshly generated fingerprint as current (spec §4.1).
func (p *Pool) RegenerateFingerprint(email string) (*models.Fingerprint, error) {
	var result *models.Fingerprint
	err := p.mutate(email, func(acc *models.Account) {
		if acc.Fingerprint != nil {
			acc.FingerprintHistory = prependHistory(acc.FingerprintHistory, models.FingerprintHistoryEntry{
				Fingerprint: *acc.Fingerprint,
				Reason:      models.ReasonRegenerated,
				Timestamp:   time.Now(),
			})
		}
		fresh := fingerprint.Generate()
		acc.Fingerprint = fresh
		result = fresh
	})
	return result, err
}

// RestoreFingerprint installs the fingerprint that was at historyIndex as
// current, pushing the current one to history with reason "restored" and
// removing the restored entry from history so it never appears twice (spec
// §4.1, §8 scenario 8).
func (p *Pool) RestoreFingerprint(email string, historyIndex int) (*models.Fingerprint, error) {
	var result *models.Fingerprint
	err := p.mutate(email, func(acc *models.Account) {
		if historyIndex < 0 || historyIndex >= len(acc.FingerprintHistory) {
			return
		}

		restored := acc.FingerprintHistory[historyIndex].Fingerprint

		newHistory := make([]models.FingerprintHistoryEntry, 0, len(acc.FingerprintHistory))
		if acc.Fingerprint != nil {
			newHistory = append(newHistory, models.FingerprintHistoryEntry{
				Fingerprint: *acc.Fingerprint,
				Reason:      models.ReasonRestored,
				Timestamp:   time.Now(),
			})
		}
		for i, entry := range acc.FingerprintHistory {
			if i == historyIndex {
				continue
			}
			newHistory = append(newHistory, entry)
		}

		acc.FingerprintHistory = truncateHistory(newHistory)
		acc.Fingerprint = &restored
		result = &restored
	})

	if result == nil && err == nil {
		return nil, fmt.Errorf("%w: history index %d out of range", apierr.ErrInvalidArgument, historyIndex)
	}
	return result, err
}

func prependHistory(history []models.FingerprintHistoryEntry, entry models.FingerprintHistoryEntry) []models.FingerprintHistoryEntry {
	history = append([]models.FingerprintHistoryEntry{entry}, history...)
	return truncateHistory(history)
}

func truncateHistory(history []models.FingerprintHistoryEntry) []models.FingerprintHistoryEntry {
	if len(history) > models.MaxFingerprintHistory {
		history = history[:models.MaxFingerprintHistory]
	}
	return history
}
