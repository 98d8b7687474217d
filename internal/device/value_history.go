package device

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Value history source values.
const (
	ValueSourceMQTT    = "mqtt"
	ValueSourceHTTP    = "http"
	ValueSourceSession = "session"
)

// ValueHistoryEntry is one accepted channel value.
type ValueHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	// DeviceID and ChannelID address the channel.
	DeviceID  string `json:"device_id"`
	ChannelID string `json:"channel_id"`

	// Value is the accepted value.
	Value float64 `json:"value"`

	// Source identifies how the value arrived (mqtt, http, session).
	Source string `json:"source"`

	// CreatedAt is the time the value was accepted (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// ValueHistoryRepository stores and retrieves accepted channel values.
//
// Implementations must be thread-safe and use UTC timestamps.
type ValueHistoryRepository interface {
	// RecordValue records an accepted channel value.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - ch: Channel the value belongs to
	//   - value: Accepted value
	//   - source: Origin of the value (mqtt, http, session)
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordValue(ctx context.Context, ch rule.Channel, value float64, source string) error

	// GetHistory returns recent values for the channel, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - ch: Channel to query
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	//
	// Returns:
	//   - []ValueHistoryEntry: Ordered newest-first entries (may be empty)
	//   - error: nil on success, otherwise the underlying query error
	GetHistory(ctx context.Context, ch rule.Channel, limit int) ([]ValueHistoryEntry, error)
}
