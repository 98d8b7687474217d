package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-hub/internal/rule"
)

// Measurement names.
const (
	MeasurementChannelValues   = "channel_values"
	MeasurementAutomationFired = "automation_fired"
)

// ChannelValuePoint builds the point recorded for an accepted channel value.
func ChannelValuePoint(ch rule.Channel, value float64, source string, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementChannelValues,
		map[string]string{
			"device_id":  ch.DeviceID,
			"channel_id": ch.ChannelID,
			"source":     source,
		},
		map[string]any{"value": value},
		ts,
	)
}

// AutomationFiredPoint builds the point recorded when an automation fires.
func AutomationFiredPoint(automationID string, target rule.Channel, value float64, ts time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAutomationFired,
		map[string]string{
			"automation_id": automationID,
			"device_id":     target.DeviceID,
			"channel_id":    target.ChannelID,
		},
		map[string]any{"value": value},
		ts,
	)
}

// WriteChannelValue records an accepted channel value. Non-blocking.
func (c *Client) WriteChannelValue(ch rule.Channel, value float64, source string, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(ChannelValuePoint(ch, value, source, ts))
}

// WriteAutomationFired records a fired automation. Non-blocking.
func (c *Client) WriteAutomationFired(automationID string, target rule.Channel, value float64, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(AutomationFiredPoint(automationID, target, value, ts))
}
