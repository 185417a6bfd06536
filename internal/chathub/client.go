package chathub

import "pinchat/backend/internal/protocol"

// Client is the interface for one live connection. It abstracts the underlying
// transport so the hub can be driven by WebSocket connections in production
// and by in-memory doubles in tests.
type Client interface {
	// GetUserID returns the identity verified at handshake time.
	GetUserID() string
	// GetConnID returns the identifier of this particular connection. A user
	// that reconnects gets a new connection ID.
	GetConnID() string

	// GetSendChannel returns the channel the hub delivers outbound events on.
	// The hub never blocks on it: a full buffer drops the event.
	GetSendChannel() chan<- protocol.Outbound

	// Run starts the read and write pumps.
	Run()
	// Close shuts down the send channel. The hub calls it exactly once, while
	// holding the group lock.
	Close()
}

// Incoming pairs an inbound event with the connection it arrived on.
type Incoming struct {
	Client Client
	Event  protocol.Inbound
}
