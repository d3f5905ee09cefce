package game

// Conn is the opaque handle the engine uses to reach one participant.
// Implementations must make Send non-blocking; events are handed over in the
// order the session applied them.
type Conn interface {
	// ID identifies the connection for the lifetime of the session.
	ID() string
	Send(ev GameEvent)
	// Close terminates the underlying transport, e.g. after a ban.
	Close(reason string)
}

func sameConn(a, b Conn) bool {
	if a == nil || b == nil {
		return false
	}
	return a.ID() == b.ID()
}
