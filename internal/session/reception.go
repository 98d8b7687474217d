package session

// Reception is the answer to a one-shot value delivery (POST /channel).
type Reception string

const (
	// ReceptionOK means the value was accepted.
	ReceptionOK Reception = "ok"
	// ReceptionNotRequired means no automation needs the channel.
	ReceptionNotRequired Reception = "notRequired"
	// ReceptionReconnect means the value is not read by any automation but
	// the channel is still a target: the device should open a session so
	// results can be pushed to it.
	ReceptionReconnect Reception = "reconnect"
)

// ReceptionFor maps the store's acceptance result and the channel's
// connected requirement onto a Reception.
func ReceptionFor(accepted, connected bool) Reception {
	switch {
	case accepted:
		return ReceptionOK
	case connected:
		return ReceptionReconnect
	default:
		return ReceptionNotRequired
	}
}
