package protofish

import (
	"context"
	"net"
	"sync"
)

// fakeStream is an in-memory Stream backed by net.Pipe, grounded on
// original_source/protofish/src/utp/tests/stream.rs's MockUTPStream (which
// wraps a tokio::io::duplex the same way).
type fakeStream struct {
	id        StreamId
	integrity IntegrityType
	conn      net.Conn
}

func (s *fakeStream) Id() StreamId                { return s.id }
func (s *fakeStream) IntegrityType() IntegrityType { return s.integrity }

func (s *fakeStream) Split() (StreamWriter, StreamReader) {
	return fakeStreamWriter{s.conn}, s.conn
}

type fakeStreamWriter struct{ net.Conn }

func (w fakeStreamWriter) Close() error { return w.Conn.Close() }

// fakeUTPHub is the shared state between a pair of fakeUTP peers: a single
// StreamId counter (§4.1 "shared counter across both integrity classes")
// and, per peer, an event channel and a table of streams the peer has not
// yet claimed via WaitStream. Grounded on
// original_source/protofish/src/utp/tests/utp.rs's MockUTP/PeerStreamStore.
type fakeUTPHub struct {
	mu      sync.Mutex
	nextID  StreamId
	a, b    *fakeUTPSide
}

type fakeUTPSide struct {
	events  chan Event
	mu      sync.Mutex
	cond    *sync.Cond
	pending map[StreamId]*fakeStream
}

func newFakeUTPSide() *fakeUTPSide {
	s := &fakeUTPSide{
		events:  make(chan Event, 64),
		pending: make(map[StreamId]*fakeStream),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// fakeUTP is a protofish.UTP implementation over two in-memory peers,
// for fast unit tests that don't need a real QUIC socket (SPEC_FULL.md
// "Test tooling").
type fakeUTP struct {
	hub  *fakeUTPHub
	self *fakeUTPSide
	peer *fakeUTPSide
}

// newFakeUTPPair returns two linked fakeUTP endpoints: a stream opened on
// one is observable (after an event) on the other.
func newFakeUTPPair() (client *fakeUTP, server *fakeUTP) {
	hub := &fakeUTPHub{a: newFakeUTPSide(), b: newFakeUTPSide()}
	client = &fakeUTP{hub: hub, self: hub.a, peer: hub.b}
	server = &fakeUTP{hub: hub, self: hub.b, peer: hub.a}
	return client, server
}

func (u *fakeUTP) Connect(ctx context.Context) error { return nil }

func (u *fakeUTP) NextEvent(ctx context.Context) (Event, error) {
	select {
	case ev, ok := <-u.self.events:
		if !ok {
			return Event{Kind: EventUnexpectedClose}, nil
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (u *fakeUTP) NewStream(ctx context.Context, integrity IntegrityType) (Stream, error) {
	u.hub.mu.Lock()
	id := u.hub.nextID
	u.hub.nextID++
	u.hub.mu.Unlock()

	a, b := net.Pipe()
	mine := &fakeStream{id: id, integrity: integrity, conn: a}
	theirs := &fakeStream{id: id, integrity: integrity, conn: b}

	u.peer.mu.Lock()
	u.peer.pending[id] = theirs
	u.peer.cond.Broadcast()
	u.peer.mu.Unlock()

	select {
	case u.peer.events <- Event{Kind: EventNewStream, StreamId: id}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return mine, nil
}

func (u *fakeUTP) WaitStream(ctx context.Context, id StreamId, integrity IntegrityType) (Stream, error) {
	u.self.mu.Lock()
	defer u.self.mu.Unlock()
	for {
		if s, ok := u.self.pending[id]; ok {
			delete(u.self.pending, id)
			return s, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		u.self.cond.Wait()
	}
}

var _ UTP = (*fakeUTP)(nil)
