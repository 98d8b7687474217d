// Package mqtt provides MQTT connectivity for the Gray Logic Hub.
//
// The broker is the hub's value bus: devices without a WebSocket session
// publish channel values to graylogic/hub/value/{device}/{channel}, and
// devices addressed with mqtt:// templates receive connect/update requests
// on the topic named in their template. Automation events are mirrored to
// graylogic/hub/event/{type}.
//
//	Devices ─▶ graylogic/hub/value/+/+ ─▶ ingest.Subscriber ─▶ Store
//	Store ─▶ outbound.MQTTRequester ─▶ mqtt://<device topic>
//	Store ─▶ EventMirror ─▶ graylogic/hub/event/{type}
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Subscription tracking so subscriptions survive reconnects
//   - Last Will and Testament on graylogic/hub/system/status
//   - Panic recovery around message handlers
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllChannelValues(), 1,
//	    func(topic string, payload []byte) error {
//	        deviceID, channelID, ok := mqtt.ParseChannelValueTopic(topic)
//	        ...
//	    })
//
// Unit tests run without a broker. Tests tagged "integration" expect
// Mosquitto at 127.0.0.1:1883.
package mqtt
