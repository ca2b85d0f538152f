package registry

// Socket is a non-owning handle to a live connection. The transport layer
// supplies the real implementation; tests use stubs. Send and Ping must be
// safe for concurrent use.
type Socket interface {
	// Send writes one JSON frame to the peer.
	Send(v any) error
	// Ping sends a keepalive frame.
	Ping() error
	// Alive reports whether the connection is still usable for sending.
	Alive() bool
	// Close tears down the underlying connection.
	Close() error
}
