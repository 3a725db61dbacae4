package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/antigravity-proxy/antigravity-proxy/internal/models"
)

// InsertAPICall logs an API call to the database.
func (db *DB) InsertAPICall(call *models.APICall) error {
	query := `
		INSERT INTO api_calls (
			timestamp, email, model, provider, input_tokens, output_tokens,
			cache_read_tokens, cache_write_tokens, duration_ms, status_code,
			error, request_id, session_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	timestamp := call.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := db.ExecContext(context.Background(), query,
		timestamp.Format("2006-01-02 15:04:05"),
		call.Email,
		call.Model,
		call.Provider,
		call.InputTokens,
		call.OutputTokens,
		call.CacheReadTokens,
		call.CacheWriteTokens,
		call.DurationMs,
		call.StatusCode,
		nullString(call.Error),
		nullString(call.RequestID),
		nullString(call.SessionID),
	)
	if err != nil {
		return fmt.Errorf("failed to insert API call: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		call.ID = id
	}

	return nil
}

// InsertSessionEvent logs a telemetry heartbeat emission to the database.
func (db *DB) InsertSessionEvent(event *models.SessionEvent) error {
	query := `
		INSERT INTO session_events (session_id, event_type, email, metadata, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`

	timestamp := event.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	result, err := db.ExecContext(context.Background(), query,
		event.SessionID,
		event.EventType,
		nullString(event.Email),
		nullString(event.Metadata),
		timestamp.Format("2006-01-02 15:04:05"),
	)
	if err != nil {
		return fmt.Errorf("failed to insert session event: %w", err)
	}

	id, err := result.LastInsertId()
	if err == nil {
		event.ID = id
	}

	return nil
}

// nullString returns a sql.NullString from a string.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
