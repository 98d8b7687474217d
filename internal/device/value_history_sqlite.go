package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// SQLiteValueHistoryRepository implements ValueHistoryRepository using SQLite.
type SQLiteValueHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteValueHistoryRepository creates a new SQLite value history repository.
//
// Parameters:
//   - db: Open SQLite connection used for queries
//
// Returns:
//   - *SQLiteValueHistoryRepository: Repository instance ready for use
func NewSQLiteValueHistoryRepository(db *sql.DB) *SQLiteValueHistoryRepository {
	return &SQLiteValueHistoryRepository{db: db}
}

// RecordValue inserts a channel value.
func (r *SQLiteValueHistoryRepository) RecordValue(ctx context.Context, ch rule.Channel, value float64, source string) error {
	if ch.DeviceID == "" || ch.ChannelID == "" {
		return fmt.Errorf("channel is required")
	}
	if source == "" {
		source = ValueSourceMQTT
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO channel_values (device_id, channel_id, value, source) VALUES (?, ?, ?, ?)",
		ch.DeviceID,
		ch.ChannelID,
		value,
		source,
	)
	if err != nil {
		return fmt.Errorf("inserting channel value: %w", err)
	}
	return nil
}

// GetHistory returns recent values for a channel, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - ch: Channel to query
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []ValueHistoryEntry: Entries ordered by created_at DESC, id DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteValueHistoryRepository) GetHistory(ctx context.Context, ch rule.Channel, limit int) ([]ValueHistoryEntry, error) {
	if ch.DeviceID == "" || ch.ChannelID == "" {
		return nil, fmt.Errorf("channel is required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, channel_id, value, source, created_at
		 FROM channel_values
		 WHERE device_id = ? AND channel_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		ch.DeviceID,
		ch.ChannelID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying channel values: %w", err)
	}
	defer rows.Close()

	entries := make([]ValueHistoryEntry, 0, limit)
	for rows.Next() {
		var entry ValueHistoryEntry
		var createdAt string

		if err := rows.Scan(&entry.ID, &entry.DeviceID, &entry.ChannelID, &entry.Value, &entry.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning channel value: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}
		entry.CreatedAt = timestamp

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating channel values: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes entries older than the given duration.
//
// Returns the number of rows deleted.
func (r *SQLiteValueHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339)
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM channel_values WHERE created_at < ?",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting channel values: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return timestamp, nil
}
