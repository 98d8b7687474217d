package ingest

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-hub/internal/device"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/mqtt"
)

// MQTTClient is the subset of *mqtt.Client the subscriber needs.
type MQTTClient interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Subscriber feeds MQTT value topics into a Pipeline.
type Subscriber struct {
	client   MQTTClient
	pipeline *Pipeline
	qos      byte
	topic    string
}

// NewSubscriber creates a subscriber for graylogic/hub/value/+/+.
func NewSubscriber(client MQTTClient, pipeline *Pipeline, qos byte) *Subscriber {
	return &Subscriber{
		client:   client,
		pipeline: pipeline,
		qos:      qos,
		topic:    mqtt.Topics{}.AllChannelValues(),
	}
}

// Start subscribes to the value topics.
func (s *Subscriber) Start() error {
	s.pipeline.logger.Info("subscribing to channel values", "topic", s.topic)
	if err := s.client.Subscribe(s.topic, s.qos, s.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	return nil
}

// Stop unsubscribes from the value topics.
func (s *Subscriber) Stop() error {
	return s.client.Unsubscribe(s.topic)
}

// HandleMessage processes one value message. Malformed messages are
// counted and logged; the error is returned for the MQTT client to log.
func (s *Subscriber) HandleMessage(topic string, payload []byte) error {
	p := s.pipeline

	deviceID, channelID, ok := mqtt.ParseChannelValueTopic(topic)
	if !ok {
		p.metrics.IngestError(device.ValueSourceMQTT)
		return fmt.Errorf("%w: %s", ErrInvalidTopic, topic)
	}

	value, err := ParseValue(payload)
	if err != nil {
		p.metrics.IngestError(device.ValueSourceMQTT)
		p.logger.Warn("failed to parse channel value",
			"topic", topic, "error", err)
		return err
	}

	p.OnChannelValue(context.Background(), deviceID, channelID, value, device.ValueSourceMQTT)
	return nil
}
