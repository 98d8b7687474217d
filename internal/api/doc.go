// Package api implements the HTTP REST API and WebSocket server of the hub.
//
// This package provides:
//   - REST endpoints for device registration, automation management,
//     channel requirements, value reception and value history
//   - Channel sessions: one WebSocket per open device channel, driven by
//     the session state machine
//   - An event stream hub broadcasting automation and channel events
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support
//
// # Architecture
//
// Devices register through POST /api/v1/devices and then open a channel
// session on /api/v1/channel/{deviceId}/{channelId} whenever the hub asks
// them to connect. Values flow in over sessions, the reception endpoint or
// MQTT and go through the ingest pipeline into the automation store;
// values set by automations flow back out over the sessions or as outbound
// requests.
//
// # Graceful Degradation
//
// MQTT, InfluxDB and the value history database are optional. Without a
// history repository the history endpoint answers 503.
package api
