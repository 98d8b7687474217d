package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-hub/internal/device"
)

// Publisher is the subset of the MQTT client used to send requests.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// mqttPayload is the JSON body published for a request.
type mqttPayload struct {
	Kind      device.RequestKind `json:"kind"`
	DeviceID  string             `json:"device_id"`
	ChannelID string             `json:"channel_id"`
	Value     *float64           `json:"value,omitempty"`
}

// MQTTRequester publishes requests for "mqtt://<topic>" templates.
type MQTTRequester struct {
	pub Publisher
	qos byte
}

// NewMQTTRequester creates a requester publishing with the given QoS.
func NewMQTTRequester(pub Publisher, qos byte) *MQTTRequester {
	return &MQTTRequester{pub: pub, qos: qos}
}

// Do publishes the request. Requests are commands, so they are never retained.
func (m *MQTTRequester) Do(ctx context.Context, req device.Request) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrRequestFailed, err)
	}

	topic, err := TopicFromURL(req.URL)
	if err != nil {
		return err
	}

	p := mqttPayload{
		Kind:      req.Kind,
		DeviceID:  req.Channel.DeviceID,
		ChannelID: req.Channel.ChannelID,
	}
	if req.Kind == device.RequestUpdate {
		v := req.Value
		p.Value = &v
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("%w: marshalling payload: %w", ErrRequestFailed, err)
	}

	if err := m.pub.Publish(topic, payload, m.qos, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrRequestFailed, req.Kind, err)
	}
	return nil
}

// TopicFromURL extracts the topic from "mqtt://<topic>".
func TopicFromURL(raw string) (string, error) {
	topic, ok := strings.CutPrefix(raw, "mqtt://")
	if !ok || topic == "" {
		return "", fmt.Errorf("%w: %q is not an mqtt topic url", ErrInvalidURL, raw)
	}
	if i := strings.IndexAny(topic, "?#"); i >= 0 {
		topic = topic[:i]
	}
	if topic == "" || strings.ContainsAny(topic, "+#") {
		return "", fmt.Errorf("%w: invalid topic in %q", ErrInvalidURL, raw)
	}
	return topic, nil
}
