// Package uplink defines the radio-side collaborator contract: a transport
// accepts one encoded payload at a time and reports completion through a
// callback that may run on any goroutine. Concrete transports live in the
// subpackages (atmodem, wsbridge); Sim is the in-memory transport for hosts
// and tests.
package uplink

import "errors"

// Message is one uplink.
type Message struct {
	Port    uint8
	Payload []byte
}

// CompletionFunc reports the outcome of an accepted Send: nil on a confirmed
// (or fire-and-forget accepted) transmission, an error otherwise. It is
// called exactly once per accepted message, possibly from another goroutine,
// and must not block.
type CompletionFunc func(err error)

// Transport is the loop-facing uplink contract.
type Transport interface {
	// Send hands a message to the transport. It must not block for the air
	// time; completion arrives via done. A non-nil return means the message
	// was never accepted and done will not be called.
	Send(msg Message, done CompletionFunc) error
}

// Sentinel errors shared by transports.
var (
	ErrBusy   = errors.New("uplink: transmission already in flight")
	ErrClosed = errors.New("uplink: transport closed")
	ErrDenied = errors.New("uplink: transmission rejected")
)
