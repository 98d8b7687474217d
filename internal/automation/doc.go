// Package automation provides the automation store of the Gray Logic Hub.
//
// The Store owns the set of active automations (parsed rules) and the table
// of known channel values, and keeps them consistent under concurrent
// ingestion, registration and channel sessions.
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                      Store (store.go)                      │
//	│  one mutex over: active automations, value table,          │
//	│                  subscribed/connected reference counts     │
//	│                                                            │
//	│  AddAutomation ─┐                                          │
//	│  UpdateValue ───┼─▶ evaluate-and-react (under the lock)    │
//	│                 │     fired   → Binding.Update             │
//	│                 │     missing → Binding.Connect            │
//	│                 ▼                                          │
//	│        pending requests + liveness changes collected       │
//	└────────────────────────│───────────────────────────────────┘
//	                         ▼ after unlock
//	          Requester.Do (async, logged)   Binding.NotifyLiveness
//
// # Requirement sets
//
// For every channel the store tracks how many active automations subscribe
// to it (read it in a condition) and how many need it connected (subscribed
// or action target). MustBeSubscribed and MustBeConnected answer from these
// counts. Channels read only by an action's value expression are registered
// but never subscribed; such automations fire once the value becomes known
// some other way.
//
// # Thread Safety
//
// All Store methods are safe for concurrent use. Lock order is always store
// then binding; nothing called under a binding lock re-enters the store.
// Outbound I/O never happens while the store lock is held.
package automation
