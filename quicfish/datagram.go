package quicfish

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/quic-go/quic-go"

	"github.com/termermc/protofish/protofish"
)

// datagramRouterCacheSize bounds the number of live unreliable-stream pipes
// the router keeps. Justified in SPEC_FULL.md's domain stack table: only
// unreliable sub-streams flow through here, and their contract already
// accepts loss, so evicting the least recently used pipe once this many are
// live is a legitimate trade rather than a correctness violation.
const datagramRouterCacheSize = 4096

// pipeQueueDepth bounds the number of not-yet-read datagram payloads
// buffered per unreliable stream before newer ones are dropped — the same
// "best effort" contract a real lossy network gives a reader that isn't
// keeping up.
const pipeQueueDepth = 256

// unreliablePipe reassembles one unreliable sub-stream's inbound
// datagrams into a byte stream (§4.2, §9 "Datagram fan-in").
type unreliablePipe struct {
	id       protofish.StreamId
	ch       chan []byte
	mu       sync.Mutex
	leftover []byte
	closed   chan struct{}
	closeOne sync.Once
}

func newUnreliablePipe(id protofish.StreamId) *unreliablePipe {
	return &unreliablePipe{
		id:     id,
		ch:     make(chan []byte, pipeQueueDepth),
		closed: make(chan struct{}),
	}
}

// deliver best-effort enqueues payload; if the reader isn't keeping up the
// datagram is silently dropped rather than blocking the router's single
// read loop (§4.2, §1 Non-goals "reliability guarantees for unreliable
// sub-streams").
func (p *unreliablePipe) deliver(payload []byte) {
	select {
	case p.ch <- payload:
	default:
	}
}

func (p *unreliablePipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.leftover) == 0 {
		select {
		case chunk, ok := <-p.ch:
			if !ok {
				return 0, io.EOF
			}
			p.leftover = chunk
		case <-p.closed:
			return 0, io.EOF
		}
	}
	n := copy(buf, p.leftover)
	p.leftover = p.leftover[n:]
	return n, nil
}

func (p *unreliablePipe) close() {
	p.closeOne.Do(func() { close(p.closed) })
}

// datagramChunkSize is the largest datagram payload (including the 8-byte
// stream-id prefix) a write will pack into a single QUIC datagram. RFC 9221
// datagrams are bounded by the path MTU; 1200 bytes is the smallest
// datagram size QUIC implementations are required to support without
// additional path discovery, so it's a safe fixed budget rather than
// querying a live path estimate (§4.2 "datagram_chunk_size").
const datagramChunkSize = 1200

// unreliableWriter encodes outbound bytes as datagrams prefixed with the
// sub-stream's StreamId (§4.2, §6.2): `le64(stream_id) ∥ payload`, split
// into chunks when the caller writes more than datagramChunkSize−8 bytes.
type unreliableWriter struct {
	id   protofish.StreamId
	conn *quic.Conn
}

func (w *unreliableWriter) Write(p []byte) (int, error) {
	const budget = datagramChunkSize - 8
	total := 0
	for len(p) > 0 {
		n := len(p)
		if n > budget {
			n = budget
		}
		datagram := make([]byte, 8+n)
		binary.LittleEndian.PutUint64(datagram[:8], w.id)
		copy(datagram[8:], p[:n])
		if err := w.conn.SendDatagram(datagram); err != nil {
			return total, err
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

func (w *unreliableWriter) Close() error { return nil }

// DatagramRouter owns a QUIC connection's datagram read loop and the
// per-stream-id pipes it lazily creates (§3 "Ownership", §4.2).
type DatagramRouter struct {
	conn  *quic.Conn
	log   *slog.Logger
	mu    sync.Mutex
	pipes *lru.Cache[protofish.StreamId, *unreliablePipe]
}

func newDatagramRouter(conn *quic.Conn, log *slog.Logger) *DatagramRouter {
	cache, _ := lru.NewWithEvict[protofish.StreamId, *unreliablePipe](
		datagramRouterCacheSize,
		func(_ protofish.StreamId, p *unreliablePipe) { p.close() },
	)
	return &DatagramRouter{conn: conn, log: log, pipes: cache}
}

// register returns the pipe's read half for id, lazily creating it — the
// pipe may already hold buffered payload if datagrams arrived before the
// caller asked for it (§4.2 "register(stream_id)").
func (r *DatagramRouter) register(id protofish.StreamId) *unreliablePipe {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pipes.Get(id); ok {
		return p
	}
	p := newUnreliablePipe(id)
	r.pipes.Add(id, p)
	return p
}

// writerFor returns a writer that sends datagrams tagged with id.
func (r *DatagramRouter) writerFor(id protofish.StreamId) *unreliableWriter {
	return &unreliableWriter{id: id, conn: r.conn}
}

// run is the router's background read loop (§5 "Background tasks").
func (r *DatagramRouter) run(ctx context.Context) error {
	for {
		data, err := r.conn.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		if len(data) < 8 {
			// §6.2: datagrams with fewer than 8 bytes are dropped.
			continue
		}
		id := binary.LittleEndian.Uint64(data[:8])
		payload := append([]byte(nil), data[8:]...)
		r.register(id).deliver(payload)
	}
}

func (r *DatagramRouter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.pipes.Keys() {
		if p, ok := r.pipes.Peek(id); ok {
			p.close()
		}
	}
	r.pipes.Purge()
}
