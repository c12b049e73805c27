package protofish

import (
	"context"
	"io"
)

// StreamWriter is the asynchronous byte-sink half of a split Stream
// (§4.1, §9 "duck-typed sub-stream split").
type StreamWriter interface {
	io.Writer
	// Close half-closes the send side of the stream.
	Close() error
}

// StreamReader is the asynchronous byte-source half of a split Stream. It
// obeys "read exactly N" semantics via io.ReadFull against it (§4.1, §9).
type StreamReader interface {
	io.Reader
}

// Stream is a UTP sub-stream, reliable or unreliable, before it is split
// into independent halves (§3, §4.1).
type Stream interface {
	Id() StreamId
	IntegrityType() IntegrityType
	// Split consumes the Stream and returns its write/read halves. It is
	// one-shot: calling it twice is a programming error.
	Split() (StreamWriter, StreamReader)
}

// EventKind distinguishes the two UTP transport events (§4.1).
type EventKind int

const (
	EventNewStream EventKind = iota
	EventUnexpectedClose
)

// Event is a UTP transport event, delivered via UTP.NextEvent.
type Event struct {
	Kind     EventKind
	StreamId StreamId // valid only when Kind == EventNewStream
}

// UTP is the Underlying Transport Protocol abstraction (§4.1). A concrete
// binding (e.g. quicfish.QuicUTP) implements this over a real transport;
// protofish's core library depends only on this interface.
type UTP interface {
	// Connect performs any handshake the transport itself requires. It may
	// be a no-op for transports that are already connected when handed to
	// protofish.
	Connect(ctx context.Context) error
	// NextEvent returns the next transport event, blocking until one is
	// available or ctx is cancelled.
	NextEvent(ctx context.Context) (Event, error)
	// NewStream creates a new locally-initiated sub-stream of the given
	// integrity class and assigns it a StreamId drawn from a single
	// monotonically increasing counter shared across both integrity
	// classes on this endpoint.
	NewStream(ctx context.Context, integrity IntegrityType) (Stream, error)
	// WaitStream awaits the arrival of a peer-initiated stream with the
	// given id and integrity class.
	WaitStream(ctx context.Context, id StreamId, integrity IntegrityType) (Stream, error)
}
