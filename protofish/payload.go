package protofish

// MsgType tags the wire variant of a Payload (§6.1). The value is encoded
// on the wire as part of the frame and used by DecodeMessage to pick which concrete
// struct to decode the body into.
type MsgType uint8

const (
	MsgClientHello MsgType = iota
	MsgServerHello
	MsgOk
	MsgError
	MsgStreamOpen
	MsgStreamClose
	MsgArbitaryData
	MsgKeepalive
	MsgClose
	MsgBenchmarkStart
	MsgBenchmarkEnd
)

func (t MsgType) String() string {
	switch t {
	case MsgClientHello:
		return "ClientHello"
	case MsgServerHello:
		return "ServerHello"
	case MsgOk:
		return "Ok"
	case MsgError:
		return "Error"
	case MsgStreamOpen:
		return "StreamOpen"
	case MsgStreamClose:
		return "StreamClose"
	case MsgArbitaryData:
		return "ArbitaryData"
	case MsgKeepalive:
		return "Keepalive"
	case MsgClose:
		return "Close"
	case MsgBenchmarkStart:
		return "BenchmarkStart"
	case MsgBenchmarkEnd:
		return "BenchmarkEnd"
	default:
		return "Unknown"
	}
}

// Payload is the tagged union of messages that can travel inside a Message
// (§3, §6.1). Concrete types below implement it.
type Payload interface {
	// Type returns the wire tag for this payload variant.
	Type() MsgType
}

// ClientHello opens the handshake (§4.5, §6.1).
type ClientHello struct {
	Version               Version `cbor:"1,keyasint"`
	ResumeConnectionToken []byte  `cbor:"2,keyasint"`
}

func (ClientHello) Type() MsgType { return MsgClientHello }

// HasResumeToken reports whether the client asked to resume a prior
// connection. Per §4.5 / §8 property 5, any non-nil token (even empty)
// counts as a resume attempt.
func (c ClientHello) HasResumeToken() bool { return c.ResumeConnectionToken != nil }

// ServerHello answers a ClientHello (§4.5, §6.1).
type ServerHello struct {
	Version         Version `cbor:"1,keyasint"`
	Ok              bool    `cbor:"2,keyasint"`
	ConnectionToken []byte  `cbor:"3,keyasint,omitempty"`
	Message         string  `cbor:"4,keyasint,omitempty"`
}

func (ServerHello) Type() MsgType { return MsgServerHello }

// Ok is an empty acknowledgement payload.
type Ok struct{}

func (Ok) Type() MsgType { return MsgOk }

// ErrorPayload carries an out-of-band protocol error (§6.1). Named
// ErrorPayload, not Error, so it doesn't shadow the builtin error interface.
type ErrorPayload struct {
	ErrorType ErrorKind `cbor:"1,keyasint"`
	Message   string    `cbor:"2,keyasint,omitempty"`
}

func (ErrorPayload) Type() MsgType { return MsgError }

// StreamCreateMeta describes a sub-stream being opened (§6.1).
type StreamCreateMeta struct {
	IntegrityType IntegrityType `cbor:"1,keyasint"`
}

// StreamOpen announces a new sub-stream to the peer (§4.6, §6.1).
type StreamOpen struct {
	StreamId StreamId         `cbor:"1,keyasint"`
	Meta     StreamCreateMeta `cbor:"2,keyasint"`
}

func (StreamOpen) Type() MsgType { return MsgStreamOpen }

// StreamClose announces a sub-stream's end (§6.1).
type StreamClose struct {
	StreamId StreamId `cbor:"1,keyasint"`
}

func (StreamClose) Type() MsgType { return MsgStreamClose }

// ArbitaryData carries opaque application bytes within a context (§4.6,
// §6.1). Name matches the spec's spelling.
type ArbitaryData struct {
	Content []byte `cbor:"1,keyasint"`
}

func (ArbitaryData) Type() MsgType { return MsgArbitaryData }

// Keepalive is an empty liveness payload.
type Keepalive struct{}

func (Keepalive) Type() MsgType { return MsgKeepalive }

// Close is an empty payload signalling graceful context shutdown.
type Close struct{}

func (Close) Type() MsgType { return MsgClose }

// BenchmarkStart marks the beginning of a throughput measurement (§6.1).
type BenchmarkStart struct {
	IntegrityType IntegrityType `cbor:"1,keyasint"`
	ByteCount     uint64        `cbor:"2,keyasint"`
}

func (BenchmarkStart) Type() MsgType { return MsgBenchmarkStart }

// BenchmarkEnd is an empty payload marking the end of a throughput
// measurement.
type BenchmarkEnd struct{}

func (BenchmarkEnd) Type() MsgType { return MsgBenchmarkEnd }

// emptyPayloadFor returns a pointer to a fresh zero value of the concrete
// payload type for typ, ready to be passed to the codec's unmarshaller. An
// unknown type returns nil.
func emptyPayloadFor(typ MsgType) Payload {
	switch typ {
	case MsgClientHello:
		return &ClientHello{}
	case MsgServerHello:
		return &ServerHello{}
	case MsgOk:
		return &Ok{}
	case MsgError:
		return &ErrorPayload{}
	case MsgStreamOpen:
		return &StreamOpen{}
	case MsgStreamClose:
		return &StreamClose{}
	case MsgArbitaryData:
		return &ArbitaryData{}
	case MsgKeepalive:
		return &Keepalive{}
	case MsgClose:
		return &Close{}
	case MsgBenchmarkStart:
		return &BenchmarkStart{}
	case MsgBenchmarkEnd:
		return &BenchmarkEnd{}
	default:
		return nil
	}
}
