// Package session implements the per-channel session state machine.
//
// A session exists for every open bidirectional exchange with a device for
// one of its channels. The transport layer (internal/api WebSocket handler)
// feeds it events and writes the responses it returns; this package never
// touches the wire.
//
// # Transition table
//
// Next evaluates, in order, and only the first matching row fires:
//
//	closing and channel still connected-required   → reconnect   (terminal)
//	channel not connected-required                 → notRequired (terminal)
//	first turn, registration fails                 → ErrUnknownChannel
//	first turn, channel subscribed                 → updateMe
//	first turn, not subscribed                     → none
//	liveness flipped to subscribed                 → updateMe
//	automation pushed a value                      → update(value)
//	inbound value                                  → store it, none
//
// # Observer
//
// Session implements device.Observer. Pushed values and liveness changes
// are coalesced (latest value wins) and signalled on the channel returned by
// Notify, so the store never blocks on a slow client. The transport answers
// each signal with Next(Event{Kind: EventNotified}).
package session
