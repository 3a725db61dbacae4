// Package models defines data structures and domain types.
package models

import "time"

// SessionEvent is one telemetry heartbeat emission logged for audit (spec §4.5).
type SessionEvent struct {
	ID        int64
	SessionID string
	EventType string
	Email     string
	Metadata  string
	Timestamp time.Time
}
