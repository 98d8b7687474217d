// Package device provides the Device Registry for the Gray Logic Hub.
//
// A device declares a fixed set of named channels and the address templates
// the hub uses to reach it. Each declared channel gets a Binding that caches
// the last value the hub wants the device to hold and, while the device has
// a session open for that channel, a non-owning reference to the session's
// Observer.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                       Device Registry                        │
//	│                                                              │
//	│  ┌──────────────┐    ┌──────────────┐    ┌──────────────┐   │
//	│  │   Registry   │───▶│    Device    │───▶│   Binding    │   │
//	│  │ (registry.go)│    │  (types.go)  │    │ (binding.go) │   │
//	│  │ • RWMutex    │    │ • channels   │    │ • cache      │   │
//	│  │ • lookup     │    │ • templates  │    │ • observer   │   │
//	│  └──────────────┘    └──────────────┘    └──────────────┘   │
//	│                                                 │            │
//	└─────────────────────────────────────────────────│────────────┘
//	                                                  ▼
//	                                   Request (connect / update)
//	                                   dispatched by internal/outbound
//
// # Address templates
//
// Templates are URLs containing the literal placeholders <CHANNEL> and
// <VALUE>. <CHANNEL> is replaced verbatim with the channel ID; <VALUE> with
// the value formatted as a fixed-point decimal ("%f").
//
//	http://10.0.0.12/connect?channel=<CHANNEL>
//	http://10.0.0.12/set?channel=<CHANNEL>&value=<VALUE>
//
// # Thread Safety
//
// The Registry map is protected by a read-write mutex. Every Binding has its
// own mutex, so activity on unrelated channels never contends. Observer
// callbacks run with the binding's mutex held and must not block.
//
// # Value history
//
// SQLiteValueHistoryRepository keeps a local record of accepted channel
// values in the channel_values table (see migrations/).
package device
