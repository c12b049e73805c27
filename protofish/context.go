package protofish

// ContextWriter sends payloads into one ContextId. Many ContextWriters may
// share the same underlying PMCFrame; writes are serialised by the
// frame's write mutex (§3 "Ownership", §5 "Shared resources").
type ContextWriter struct {
	frame *PMCFrame
	id    ContextId
}

// ContextId returns the id this writer sends into.
func (w *ContextWriter) ContextId() ContextId { return w.id }

// Write frames payload under this writer's ContextId and sends it.
func (w *ContextWriter) Write(payload Payload) error {
	return w.frame.SendFrame(Message{ContextId: w.id, Payload: payload})
}

// ContextReader owns the inbound mailbox for one ContextId (§3 "Context").
type ContextReader struct {
	frame *PMCFrame
	id    ContextId
	box   *mailbox[Payload]
}

// ContextId returns the id this reader is subscribed to.
func (r *ContextReader) ContextId() ContextId { return r.id }

// Read blocks for the next payload addressed to this context.
func (r *ContextReader) Read() (Payload, error) {
	return r.box.pop()
}

// Close removes this reader's subscription (§5 "Cancellation"): later
// frames for this id fall through to the frame layer's new-context queue.
func (r *ContextReader) Close() {
	r.frame.Unsubscribe(r.id)
}

// Context is a ContextId-scoped conversation: a shared writer plus a
// uniquely-owned reader (§3).
type Context struct {
	Writer *ContextWriter
	Reader *ContextReader
}

// PMC is the context layer on top of a PMCFrame (§2 item 4, §4.4): it
// assigns ids under the parity rule and turns frames into Context values.
type PMC struct {
	frame   *PMCFrame
	counter *ContextCounter
}

// NewPMC builds a context layer over frame for one side of a connection.
func NewPMC(frame *PMCFrame, isServer bool) *PMC {
	return &PMC{frame: frame, counter: NewContextCounter(isServer)}
}

// CreateContext allocates a fresh locally-initiated ContextId and
// subscribes its mailbox (§4.4, §4.6 "Connection::new_arb").
func (p *PMC) CreateContext() *Context {
	id := p.counter.Next()
	box := p.frame.SubscribeContext(id, nil)
	return &Context{
		Writer: &ContextWriter{frame: p.frame, id: id},
		Reader: &ContextReader{frame: p.frame, id: id, box: box},
	}
}

// NextContext blocks until a frame for a not-yet-subscribed ContextId
// arrives, subscribes that id (pre-loading its mailbox with the frame
// that revealed it), and returns the resulting Context (§4.3
// "Subscriber table", §4.6 "Connection::next_arb").
func (p *PMC) NextContext() (*Context, error) {
	msg, err := p.frame.NextContext()
	if err != nil {
		return nil, err
	}
	box := p.frame.SubscribeContext(msg.ContextId, msg.Payload)
	return &Context{
		Writer: &ContextWriter{frame: p.frame, id: msg.ContextId},
		Reader: &ContextReader{frame: p.frame, id: msg.ContextId, box: box},
	}, nil
}
