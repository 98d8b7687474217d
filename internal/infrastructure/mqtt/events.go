package mqtt

// JSONPublisher is the subset of Client used by EventMirror.
type JSONPublisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// EventMirror republishes hub events on graylogic/hub/event/{type}.
// It satisfies automation.WSHub, so it can sit next to the WebSocket hub.
type EventMirror struct {
	pub    JSONPublisher
	logger Logger
}

// NewEventMirror creates a mirror publishing through pub.
func NewEventMirror(pub JSONPublisher, logger Logger) *EventMirror {
	return &EventMirror{pub: pub, logger: logger}
}

// Broadcast publishes payload on the event topic. Failures are logged
// and dropped.
func (m *EventMirror) Broadcast(eventType string, payload any) {
	if err := m.pub.PublishJSON(Topics{}.Event(eventType), payload, false); err != nil && m.logger != nil {
		m.logger.Warn("failed to mirror event to MQTT", "event", eventType, "error", err)
	}
}
