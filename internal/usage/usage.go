// Package usage implements the peripheral Usage Stats counter: an
// hour-bucketed request tally keyed by model family and short name (spec
// §3, §4's table, §8 scenarios 1-2). Persistence follows the same
// temp-file-plus-rename discipline as internal/pool.
package usage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/logger"
)

// Bucket is one hour's tally: family -> shortName -> count, plus a
// bucket-wide "_total" (spec §3). It marshals as a flat JSON object with
// family keys alongside "_total", matching the on-disk shape literally.
type Bucket struct {
	Families map[string]map[string]int
	Total    int
}

const totalKey = "_total"

// MarshalJSON flattens Families and Total into one object.
func (b Bucket) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(b.Families)+1)
	for family, counts := range b.Families {
		flat[family] = counts
	}
	flat[totalKey] = b.Total
	return json.Marshal(flat)
}

// UnmarshalJSON rebuilds Families/Total from the flat on-disk shape.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}

	b.Families = map[string]map[string]int{}
	for key, raw := range flat {
		if key == totalKey {
			_ = json.Unmarshal(raw, &b.Total)
			continue
		}
		var counts map[string]int
		if err := json.Unmarshal(raw, &counts); err != nil {
			continue
		}
		b.Families[key] = counts
	}
	return nil
}

func newBucket() Bucket {
	return Bucket{Families: map[string]map[string]int{}}
}

// History is the on-disk shape of usage-history.json: hour-start timestamp
// (RFC3339) -> Bucket.
type History map[string]Bucket

// Tracker counts chat-completion requests per model, bucketed by hour.
type Tracker struct {
	mu       sync.Mutex
	history  History
	filePath string
}

// New loads filePath if present, starting from an empty history otherwise.
func New(filePath string) (*Tracker, error) {
	t := &Tracker{history: History{}, filePath: filePath}

	if filePath == "" {
		return t, nil
	}

	dir := filepath.Dir(filePath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create usage history directory: %w", err)
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return t, nil
		}
		return nil, fmt.Errorf("read usage history: %w", err)
	}

	var history History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("parse usage history: %w", err)
	}
	t.history = history
	return t, nil
}

// Track records one request against modelID's current-hour bucket and
// persists the updated history (spec §8 scenario 1).
func (t *Tracker) Track(modelID string) error {
	family := GetFamily(modelID)
	shortName := GetShortName(modelID, family)

	t.mu.Lock()
	hourKey := currentHourKey()
	bucket, ok := t.history[hourKey]
	if !ok {
		bucket = newBucket()
	}
	if bucket.Families[family] == nil {
		bucket.Families[family] = map[string]int{}
	}
	bucket.Families[family][shortName]++
	bucket.Total++
	t.history[hourKey] = bucket
	t.mu.Unlock()

	return t.save()
}

// Snapshot returns a deep copy of the current-hour bucket.
func (t *Tracker) Snapshot() Bucket {
	t.mu.Lock()
	defer t.mu.Unlock()

	src, ok := t.history[currentHourKey()]
	if !ok {
		return newBucket()
	}
	out := newBucket()
	out.Total = src.Total
	for family, counts := range src.Families {
		copied := make(map[string]int, len(counts))
		for k, v := range counts {
			copied[k] = v
		}
		out.Families[family] = copied
	}
	return out
}

func currentHourKey() string {
	return time.Now().UTC().Truncate(time.Hour).Format(time.RFC3339)
}

func (t *Tracker) save() error {
	if t.filePath == "" {
		return nil
	}

	t.mu.Lock()
	data, err := json.MarshalIndent(t.history, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal usage history: %w", err)
	}

	tmp := t.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp usage history: %w", err)
	}
	if err := os.Rename(tmp, t.filePath); err != nil {
		if rmErr := os.Remove(tmp); rmErr != nil {
			logger.Error("failed to remove temp usage history file", "error", rmErr)
		}
		return fmt.Errorf("rename temp usage history: %w", err)
	}
	return nil
}

// GetFamily classifies a model id into claude/gemini/other (spec §3, §8
// scenario 2).
func GetFamily(modelID string) string {
	switch {
	case strings.HasPrefix(modelID, "claude"):
		return "claude"
	case strings.HasPrefix(modelID, "gemini"):
		return "gemini"
	default:
		return "other"
	}
}

// GetShortName strips the family prefix from modelID, leaving the full
// name for the "other" family (spec §3, §8 scenario 2).
func GetShortName(modelID, family string) string {
	if family == "other" {
		return modelID
	}
	trimmed := strings.TrimPrefix(modelID, family)
	trimmed = strings.TrimPrefix(trimmed, "-")
	if trimmed == "" {
		return modelID
	}
	return trimmed
}
