package db

import (
	"context"
	"fmt"
)

// FixLegacyTimeFormats fixes timestamp formats in the database.
// This is required because modernc.org/sqlite does not store time.Time in a format
// compatible with SQLite's date/time functions by default.
func (db *DB) FixLegacyTimeFormats() error {
	queries := []string{
		// Fix api_calls timestamp (truncate " +0000 UTC")
		`UPDATE api_calls
		 SET timestamp = SUBSTR(timestamp, 1, 19)
		 WHERE length(timestamp) > 19 AND timestamp LIKE '% UTC'`,

		// Fix session_events timestamp
		`UPDATE session_events
		 SET timestamp = SUBSTR(timestamp, 1, 19)
		 WHERE length(timestamp) > 19 AND timestamp LIKE '% UTC'`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(context.Background(), query); err != nil {
			return fmt.Errorf("failed to fix legacy time formats: %w", err)
		}
	}

	return nil
}
