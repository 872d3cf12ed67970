package core

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// ConnID identifies one transport-level connection.
type ConnID string

// SignalConnection abstracts the messaging transport of one connection.
// Owned by the adapter; the adapter must Close() it.
// TrySend must never block: a full outbound buffer is an error, not a stall.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
