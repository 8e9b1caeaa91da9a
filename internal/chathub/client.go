package chathub

// Client is one transport attached to the hub. It abstracts the underlying
// connection so the hub can route frames without knowing how they are written.
type Client interface {
	// GetID returns a unique id for this transport, assigned at upgrade time.
	GetID() string
	// GetAuthorizedUserID returns the user id proven at connection time, or ""
	// when the hub runs without token verification. A non-empty value restricts
	// which Login the transport may send.
	GetAuthorizedUserID() string

	// GetSendChannel returns the bounded queue the hub writes outbound frames to.
	GetSendChannel() chan<- []byte

	// Run starts the client's read and write pumps.
	Run()
	// Close shuts the transport down. It must be safe to call more than once.
	Close()
}

// Inbound is a decoded frame read from a client, kept together with its raw bytes
// so the hub can forward it verbatim.
type Inbound struct {
	Client Client
	Raw    []byte
}
