// Package rule implements the automation rule language of the hub.
//
// A rule is a single statement of the form
//
//	<condition> --> <action>
//
// where the condition compares two expressions and the action assigns an
// expression to a target channel:
//
//	outlet:power > 100 --> lamp:on = 0
//
// Expressions parsed from text are either a channel reference
// (device:channel) or a numeric literal. Composed arithmetic expressions
// (+ - * /) are representable in memory and print as "(lhs) op (rhs)", but
// the parser never produces them.
//
// # Key Types
//
//   - Channel: comparable (device, channel) address, used as a map key
//   - Expression: Literal, ChannelRef or Binary
//   - Statement: condition plus action, parsed with Parse
//   - Values: a snapshot of known channel values
//
// # Evaluation
//
// Evaluation is pure. A channel reference with no entry in the value table
// fails with *MissingChannelError; the caller is expected to establish the
// channel before the rule can fire. Division by zero never fails: it yields
// an infinity carrying the sign of the numerator, with 0/0 = +Inf.
//
// # Requirement sets
//
// Each statement contributes three channel sets: Registered (every channel
// it mentions), Subscribed (the condition's channels) and Connected
// (Subscribed plus the action target).
package rule
