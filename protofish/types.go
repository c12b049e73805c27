package protofish

// ContextId namespaces a request/response conversation within a connection.
// Client-initiated ids are even, server-initiated ids are odd (§3, §4.4).
type ContextId = uint64

// StreamId identifies a sub-stream, unique within a connection (§3).
type StreamId = uint64

// IntegrityType selects the delivery guarantee for a sub-stream.
type IntegrityType uint8

const (
	// IntegrityReliable sub-streams map to a lossless, ordered byte pipe.
	IntegrityReliable IntegrityType = iota
	// IntegrityUnreliable sub-streams are best-effort and may lose data.
	IntegrityUnreliable
)

func (it IntegrityType) String() string {
	switch it {
	case IntegrityUnreliable:
		return "Unreliable"
	default:
		return "Reliable"
	}
}

// Normalized maps any decoded wire value other than IntegrityUnreliable to
// IntegrityReliable, per §6.1: "unknown enum values for IntegrityType
// default to Reliable".
func (it IntegrityType) Normalized() IntegrityType {
	if it == IntegrityUnreliable {
		return IntegrityUnreliable
	}
	return IntegrityReliable
}

// ErrorKind classifies an Error payload (§6.1).
type ErrorKind uint8

const (
	ErrorUnspecified ErrorKind = iota
	ErrorTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorTimeout:
		return "Timeout"
	default:
		return "Unspecified"
	}
}
