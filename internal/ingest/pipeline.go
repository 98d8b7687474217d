package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// EventChannelValue is broadcast for every accepted value.
const EventChannelValue = "channel.value"

// Store accepts channel values. Satisfied by *automation.Store.
type Store interface {
	UpdateValue(ch rule.Channel, value float64) bool
}

// HistoryRecorder persists accepted values.
// Satisfied by *device.SQLiteValueHistoryRepository.
type HistoryRecorder interface {
	RecordValue(ctx context.Context, ch rule.Channel, value float64, source string) error
}

// TelemetryWriter writes accepted values as time-series points.
// Satisfied by *influxdb.Client.
type TelemetryWriter interface {
	WriteChannelValue(ch rule.Channel, value float64, source string, ts time.Time)
}

// Broadcaster publishes hub events. Satisfied by the API event hub.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Recorder counts ingested messages. Satisfied by *metrics.Metrics.
type Recorder interface {
	IngestMessage(source string, accepted bool)
	IngestError(source string)
}

// Logger defines the logging interface used by the ingest package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

type noopRecorder struct{}

func (noopRecorder) IngestMessage(string, bool) {}
func (noopRecorder) IngestError(string)         {}

// Pipeline routes reported values into the store and, on acceptance, into
// history, telemetry and the event hub. History, telemetry and hub are
// optional.
type Pipeline struct {
	store     Store
	history   HistoryRecorder
	telemetry TelemetryWriter
	hub       Broadcaster
	metrics   Recorder
	logger    Logger
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithHistory records accepted values in h.
func WithHistory(h HistoryRecorder) Option {
	return func(p *Pipeline) { p.history = h }
}

// WithTelemetry writes accepted values to w.
func WithTelemetry(w TelemetryWriter) Option {
	return func(p *Pipeline) { p.telemetry = w }
}

// WithHub broadcasts accepted values to b.
func WithHub(b Broadcaster) Option {
	return func(p *Pipeline) { p.hub = b }
}

// WithRecorder counts messages in r.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) { p.metrics = r }
}

// WithLogger sets the pipeline logger.
func WithLogger(l Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a pipeline feeding store.
//
// Parameters:
//   - store: Automation store that decides whether a value is needed
//   - opts: Optional history, telemetry, hub, recorder and logger
//
// Returns:
//   - *Pipeline: Pipeline shared by the HTTP, MQTT and session inputs
func NewPipeline(store Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		metrics: noopRecorder{},
		logger:  noopLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnChannelValue offers a value reported for deviceID:channelID.
//
// Returns true when the store accepted the value, false when no automation
// currently needs the channel or the identifiers are malformed.
func (p *Pipeline) OnChannelValue(ctx context.Context, deviceID, channelID string, value float64, source string) bool {
	ch := rule.NewChannel(deviceID, channelID)
	if !ch.Valid() {
		p.metrics.IngestError(source)
		p.logger.Debug("dropping value for malformed channel",
			"device_id", deviceID, "channel_id", channelID, "source", source)
		return false
	}

	accepted := p.store.UpdateValue(ch, value)
	p.metrics.IngestMessage(source, accepted)
	if !accepted {
		p.logger.Debug("value not required", "channel", ch.String(), "source", source)
		return false
	}

	now := p.now()

	if p.history != nil {
		if err := p.history.RecordValue(ctx, ch, value, source); err != nil {
			p.logger.Debug("value history write failed", "channel", ch.String(), "error", err)
		}
	}
	if p.telemetry != nil {
		p.telemetry.WriteChannelValue(ch, value, source, now)
	}
	if p.hub != nil {
		p.hub.Broadcast(EventChannelValue, map[string]any{
			"device_id":  ch.DeviceID,
			"channel_id": ch.ChannelID,
			"value":      value,
			"source":     source,
			"timestamp":  now.UTC(),
		})
	}
	return true
}

// ParseValue decodes a value payload: a bare JSON number or {"value": n}.
// Non-finite values are rejected.
func ParseValue(payload []byte) (float64, error) {
	var v float64
	if err := json.Unmarshal(payload, &v); err != nil {
		var msg struct {
			Value *float64 `json:"value"`
		}
		if objErr := json.Unmarshal(payload, &msg); objErr != nil || msg.Value == nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidPayload, truncate(payload))
		}
		v = *msg.Value
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: non-finite value", ErrInvalidPayload)
	}
	return v, nil
}

const maxLoggedPayload = 64

func truncate(b []byte) string {
	if len(b) > maxLoggedPayload {
		return string(b[:maxLoggedPayload]) + "..."
	}
	return string(b)
}
