package protofish

import "fmt"

// UTPErrorKind classifies a transport-level error (§4.1, §7).
type UTPErrorKind int

const (
	// UTPWarn is non-fatal; the reader loop that observed it continues.
	UTPWarn UTPErrorKind = iota
	// UTPFatal terminates the reader loop that observed it.
	UTPFatal
	// UTPIo wraps an underlying I/O error; treated as end-of-stream.
	UTPIo
)

func (k UTPErrorKind) String() string {
	switch k {
	case UTPWarn:
		return "Warn"
	case UTPFatal:
		return "Fatal"
	case UTPIo:
		return "Io"
	default:
		return "Unknown"
	}
}

// UTPError is raised by a UTP implementation (§4.1).
type UTPError struct {
	Kind    UTPErrorKind
	Message string
	Cause   error
}

func (e *UTPError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("utp %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("utp %s: %s", e.Kind, e.Message)
}

func (e *UTPError) Unwrap() error { return e.Cause }

// ClosedStreamError is returned by context/mailbox reads once the PMC
// reader loop has exited (§4.3, §7).
type ClosedStreamError struct{}

func (*ClosedStreamError) Error() string { return "protofish: stream closed" }

// HandshakeRejectError is returned to a connecting client whose ClientHello
// was rejected by the server (§4.5, §7).
type HandshakeRejectError struct {
	Message string
}

func (e *HandshakeRejectError) Error() string {
	return fmt.Sprintf("protofish: handshake rejected: %s", e.Message)
}

// MalformedDataError signals a structurally invalid handshake exchange,
// e.g. a ServerHello{ok:true} missing its connection token (§4.5, §7).
type MalformedDataError struct {
	Message string
}

func (e *MalformedDataError) Error() string {
	return fmt.Sprintf("protofish: malformed data: %s", e.Message)
}

// MalformedPayloadError signals that a payload of the wrong variant arrived
// where the protocol requires a specific one, e.g. during the handshake
// (§4.5, §7).
type MalformedPayloadError struct {
	Message string
	Payload Payload
}

func (e *MalformedPayloadError) Error() string {
	got := "<nil>"
	if e.Payload != nil {
		got = e.Payload.Type().String()
	}
	return fmt.Sprintf("protofish: malformed payload: %s (got %s)", e.Message, got)
}

// UnexpectedDataError is raised by a typed view (ArbContext) when a read
// observes a payload variant it doesn't accept (§4.6, §7). It does not
// poison the underlying context.
type UnexpectedDataError struct {
	Message string
	Payload Payload
}

func (e *UnexpectedDataError) Error() string {
	got := "<nil>"
	if e.Payload != nil {
		got = e.Payload.Type().String()
	}
	return fmt.Sprintf("protofish: unexpected data: %s (got %s)", e.Message, got)
}
