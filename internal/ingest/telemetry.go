package ingest

import (
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/automation"
	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// FiredWriter writes automation firings as time-series points.
// Satisfied by *influxdb.Client.
type FiredWriter interface {
	WriteAutomationFired(automationID string, target rule.Channel, value float64, ts time.Time)
}

// Telemetry listens to store events and writes every automation firing to
// the time-series database. It is registered with the store as one of its
// hubs.
type Telemetry struct {
	writer FiredWriter
	logger Logger
	now    func() time.Time
}

// NewTelemetry creates a Telemetry writing to w.
func NewTelemetry(w FiredWriter, logger Logger) *Telemetry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Telemetry{writer: w, logger: logger, now: time.Now}
}

// Broadcast implements automation.WSHub. Events other than
// automation.fired are ignored.
func (t *Telemetry) Broadcast(event string, payload any) {
	if event != automation.EventAutomationFired {
		return
	}

	fields, ok := payload.(map[string]any)
	if !ok {
		return
	}
	id, _ := fields["id"].(string)         //nolint:errcheck // checked below
	text, _ := fields["channel"].(string)  //nolint:errcheck // parsed below
	value, ok := fields["value"].(float64) //nolint:errcheck // checked below
	if id == "" || !ok {
		return
	}

	target, err := rule.ParseChannel(text)
	if err != nil {
		t.logger.Debug("ignoring fired event with bad channel", "channel", text, "error", err)
		return
	}
	t.writer.WriteAutomationFired(id, target, value, t.now())
}
