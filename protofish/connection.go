package protofish

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
)

// connectionTokenSize is the length of the CSPRNG connection token a
// server issues on a successful handshake (§6.4).
const connectionTokenSize = 32

// Connection is a pair of peer endpoints joined by a PMC over one reliable
// sub-stream (§3). Its only public operations create or accept
// arbitrary-data contexts.
type Connection struct {
	utp   UTP
	frame *PMCFrame
	pmc   *PMC
	log   *slog.Logger
	id    string
}

// Connect performs the client side of the handshake (§4.5): it opens the
// connection's primary reliable sub-stream, exchanges ClientHello /
// ServerHello, and returns a ready-to-use Connection.
func Connect(ctx context.Context, utp UTP, log *slog.Logger) (*Connection, error) {
	return connect(ctx, utp, log, ClientHello{Version: CurrentVersion})
}

// connect is the handshake body factored out so tests can drive the
// resume-rejection scenario (§8 scenario 2) by passing a ClientHello that
// carries a resume token, which Connect's public surface never exposes.
func connect(ctx context.Context, utp UTP, log *slog.Logger, hello ClientHello) (*Connection, error) {
	if err := utp.Connect(ctx); err != nil {
		return nil, fmt.Errorf("protofish: connect: %w", err)
	}
	stream, err := utp.NewStream(ctx, IntegrityReliable)
	if err != nil {
		return nil, fmt.Errorf("protofish: connect: open primary stream: %w", err)
	}
	writer, reader := stream.Split()

	id := newCorrelationId()
	log = loggerOrDefault(log).With("conn", id)
	frame := NewPMCFrame(writer, reader, log, id)
	pmc := NewPMC(frame, false)

	first := pmc.CreateContext()
	if err := first.Writer.Write(&hello); err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: connect: send ClientHello: %w", err)
	}

	payload, err := first.Reader.Read()
	if err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: connect: await ServerHello: %w", err)
	}
	sh, ok := payload.(*ServerHello)
	if !ok {
		frame.Close()
		return nil, &MalformedPayloadError{Message: "expected ServerHello", Payload: payload}
	}
	if !sh.Ok {
		frame.Close()
		return nil, &HandshakeRejectError{Message: sh.Message}
	}
	if len(sh.ConnectionToken) == 0 {
		frame.Close()
		return nil, &MalformedDataError{Message: "ServerHello.ok=true without a connection_token"}
	}

	log.Debug("protofish connection established", "role", "client")
	return &Connection{utp: utp, frame: frame, pmc: pmc, log: log, id: id}, nil
}

// Accept performs the server side of the handshake (§4.5).
func Accept(ctx context.Context, utp UTP, log *slog.Logger) (*Connection, error) {
	event, err := utp.NextEvent(ctx)
	if err != nil {
		return nil, fmt.Errorf("protofish: accept: await event: %w", err)
	}
	if event.Kind != EventNewStream {
		return nil, fmt.Errorf("protofish: accept: expected NewStream event, got unexpected close")
	}
	stream, err := utp.WaitStream(ctx, event.StreamId, IntegrityReliable)
	if err != nil {
		return nil, fmt.Errorf("protofish: accept: await primary stream: %w", err)
	}
	writer, reader := stream.Split()

	id := newCorrelationId()
	log = loggerOrDefault(log).With("conn", id)
	frame := NewPMCFrame(writer, reader, log, id)
	pmc := NewPMC(frame, true)

	first, err := pmc.NextContext()
	if err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: accept: await ClientHello: %w", err)
	}
	payload, err := first.Reader.Read()
	if err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: accept: await ClientHello: %w", err)
	}
	ch, ok := payload.(*ClientHello)
	if !ok {
		frame.Close()
		return nil, &MalformedPayloadError{Message: "expected ClientHello", Payload: payload}
	}

	if ch.HasResumeToken() {
		reject := ServerHello{Version: CurrentVersion, Ok: false, Message: "Resume connection is not supported."}
		_ = first.Writer.Write(&reject)
		frame.Close()
		return nil, &HandshakeRejectError{Message: reject.Message}
	}

	token := make([]byte, connectionTokenSize)
	if _, err := rand.Read(token); err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: accept: generate connection token: %w", err)
	}
	accept := ServerHello{Version: CurrentVersion, Ok: true, ConnectionToken: token}
	if err := first.Writer.Write(&accept); err != nil {
		frame.Close()
		return nil, fmt.Errorf("protofish: accept: send ServerHello: %w", err)
	}

	log.Debug("protofish connection established", "role", "server")
	return &Connection{utp: utp, frame: frame, pmc: pmc, log: log, id: id}, nil
}

// NewArb allocates a fresh ContextId and returns a typed ArbContext view
// over it (§4.6).
func (c *Connection) NewArb() *ArbContext {
	return newArbContext(c, c.pmc.CreateContext())
}

// NextArb awaits a peer-initiated ContextId and returns a typed ArbContext
// view over it. It returns (*ClosedStreamError) once the PMC reader has
// exited (§4.6, §9 open question on distinguishing clean close from a
// fatal error — both surface here as ClosedStreamError today).
func (c *Connection) NextArb() (*ArbContext, error) {
	ctxt, err := c.pmc.NextContext()
	if err != nil {
		return nil, err
	}
	return newArbContext(c, ctxt), nil
}

// Close tears down the connection: its PMC frame layer and all live
// context mailboxes (§5 "Cancellation").
func (c *Connection) Close() {
	c.frame.Close()
}
