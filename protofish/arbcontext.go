package protofish

import "context"

// ProtofishStream wraps the raw asynchronous byte halves of a UTP
// sub-stream opened through an ArbContext (§3, §6.3).
type ProtofishStream struct {
	stream Stream
}

// Id returns the sub-stream's StreamId.
func (s *ProtofishStream) Id() StreamId { return s.stream.Id() }

// IntegrityType returns the sub-stream's fixed integrity class.
func (s *ProtofishStream) IntegrityType() IntegrityType { return s.stream.IntegrityType() }

// Split consumes the stream and returns its write/read halves (§4.1, §6.3).
func (s *ProtofishStream) Split() (StreamWriter, StreamReader) {
	return s.stream.Split()
}

// ArbContext is a typed view over a Context that only accepts
// ArbitaryData/StreamOpen payloads (§3, §4.6).
type ArbContext struct {
	conn *Connection
	ctxt *Context
}

func newArbContext(conn *Connection, ctxt *Context) *ArbContext {
	return &ArbContext{conn: conn, ctxt: ctxt}
}

// ContextId returns the id backing this view.
func (a *ArbContext) ContextId() ContextId { return a.ctxt.Reader.ContextId() }

// Write frames data as ArbitaryData{content: data} and sends it (§4.6).
func (a *ArbContext) Write(data []byte) error {
	return a.ctxt.Writer.Write(&ArbitaryData{Content: data})
}

// WritePayload sends an arbitrary Payload on this context's id, bypassing
// the ArbitaryData-only contract Write/Read enforce. It exists for
// variants §6.1 defines but that ArbContext's typed surface doesn't
// narrow to, namely BenchmarkStart/BenchmarkEnd (SPEC_FULL.md
// "Supplemented behaviour"); ordinary application code should use Write.
func (a *ArbContext) WritePayload(payload Payload) error {
	return a.ctxt.Writer.Write(payload)
}

// ReadPayload reads the next payload on this context without narrowing it
// to ArbitaryData. See WritePayload.
func (a *ArbContext) ReadPayload() (Payload, error) {
	return a.ctxt.Reader.Read()
}

// Read blocks for the next payload; if it is ArbitaryData its content is
// returned, otherwise (*UnexpectedDataError) is returned without closing
// the context (§4.6, §4.7, §9 "Typed views over a single mailbox").
func (a *ArbContext) Read() ([]byte, error) {
	payload, err := a.ctxt.Reader.Read()
	if err != nil {
		return nil, err
	}
	data, ok := payload.(*ArbitaryData)
	if !ok {
		return nil, &UnexpectedDataError{Message: "expected ArbitaryData", Payload: payload}
	}
	return data.Content, nil
}

// NewStream opens a new UTP sub-stream of the given integrity, announces
// it to the peer with a StreamOpen payload, and returns it (§4.6).
func (a *ArbContext) NewStream(ctx context.Context, integrity IntegrityType) (*ProtofishStream, error) {
	stream, err := a.conn.utp.NewStream(ctx, integrity)
	if err != nil {
		return nil, err
	}
	open := StreamOpen{
		StreamId: stream.Id(),
		Meta:     StreamCreateMeta{IntegrityType: integrity},
	}
	if err := a.ctxt.Writer.Write(&open); err != nil {
		return nil, err
	}
	return &ProtofishStream{stream: stream}, nil
}

// WaitStream reads the next payload, requires it to be StreamOpen, and
// resolves the referenced peer-initiated sub-stream (§4.6).
func (a *ArbContext) WaitStream(ctx context.Context) (*ProtofishStream, error) {
	payload, err := a.ctxt.Reader.Read()
	if err != nil {
		return nil, err
	}
	open, ok := payload.(*StreamOpen)
	if !ok {
		return nil, &UnexpectedDataError{Message: "expected StreamOpen", Payload: payload}
	}
	integrity := open.Meta.IntegrityType.Normalized()
	stream, err := a.conn.utp.WaitStream(ctx, open.StreamId, integrity)
	if err != nil {
		return nil, err
	}
	return &ProtofishStream{stream: stream}, nil
}

// Close removes this view's subscription (§5 "Cancellation").
func (a *ArbContext) Close() {
	a.ctxt.Reader.Close()
}
