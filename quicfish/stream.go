package quicfish

import (
	"github.com/quic-go/quic-go"

	"github.com/termermc/protofish/protofish"
)

// reliableStream wraps a QUIC bidirectional stream (§4.2 "Reliable
// stream"). Its StreamId is carried as an 8-byte little-endian prefix
// written once by the opener and consumed once by the accept loop — see
// quicfish.go's acceptLoop for why, instead of relying on the original
// implementation's fragile ordinal-position matching between independent
// open/accept counters.
type reliableStream struct {
	id protofish.StreamId
	qs *quic.Stream
}

func (s *reliableStream) Id() protofish.StreamId                { return s.id }
func (s *reliableStream) IntegrityType() protofish.IntegrityType { return protofish.IntegrityReliable }

func (s *reliableStream) Split() (protofish.StreamWriter, protofish.StreamReader) {
	return reliableWriter{s.qs}, s.qs
}

// reliableWriter half-closes the QUIC stream's send side on Close (§4.2
// "close() is half-close of the send side").
type reliableWriter struct{ qs *quic.Stream }

func (w reliableWriter) Write(p []byte) (int, error) { return w.qs.Write(p) }
func (w reliableWriter) Close() error                { return w.qs.Close() }

// unreliableStream is the synthetic byte stream backing an unreliable
// sub-stream, fed by the DatagramRouter (§4.2 "Unreliable stream").
type unreliableStream struct {
	id     protofish.StreamId
	writer *unreliableWriter
	reader *unreliablePipe
}

func (s *unreliableStream) Id() protofish.StreamId { return s.id }
func (s *unreliableStream) IntegrityType() protofish.IntegrityType {
	return protofish.IntegrityUnreliable
}

func (s *unreliableStream) Split() (protofish.StreamWriter, protofish.StreamReader) {
	return s.writer, s.reader
}

var (
	_ protofish.Stream = (*reliableStream)(nil)
	_ protofish.Stream = (*unreliableStream)(nil)
)
