// Package outbound sends connect and update requests to devices.
//
// Requests are produced by channel bindings (see internal/device) while the
// automation store holds its lock, and are sent by a Requester after the
// lock is released. The Dispatcher routes each request by the scheme of its
// URL:
//
//   - http, https: HTTP GET to the expanded address template
//   - mqtt: publish a JSON request to the topic after "mqtt://"
//
// An optional per-host token bucket paces requests so that a burst of
// automation activity cannot flood a single device.
//
// Failures are returned to the caller, which logs them. Nothing is retried.
package outbound
