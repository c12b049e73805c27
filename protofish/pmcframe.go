package protofish

import (
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"sync"
)

const frameLengthPrefixSize = 8 // le64(length), §4.3 / §6.4

// PMCFrame is the Primary Messaging Channel frame layer (§4.3): it owns the
// write half of the primary reliable sub-stream under a mutex and runs a
// background task over the read half that demultiplexes inbound frames to
// per-context mailboxes or to the "new context" queue.
type PMCFrame struct {
	log  *slog.Logger
	conn string // correlation id, for log lines

	writer   StreamWriter
	writeMu  sync.Mutex
	writeErr error

	subscribers sync.Map // ContextId -> *mailbox[Payload]
	newContexts *mailbox[Message]

	closeOnce sync.Once
	done      chan struct{}
}

// NewPMCFrame wraps the primary reliable sub-stream's halves and starts
// its background reader task (§4.3, §5 "Background tasks").
func NewPMCFrame(writer StreamWriter, reader StreamReader, log *slog.Logger, conn string) *PMCFrame {
	f := &PMCFrame{
		log:         loggerOrDefault(log),
		conn:        conn,
		writer:      writer,
		newContexts: newMailbox[Message](),
		done:        make(chan struct{}),
	}
	go f.readLoop(reader)
	return f
}

// SendFrame serialises and writes a Message, holding the write mutex for
// the duration of both the length-prefix and body writes (§4.3
// "send_frame").
func (f *PMCFrame) SendFrame(m Message) error {
	body, err := EncodeMessage(m)
	if err != nil {
		return err
	}
	var lenBuf [frameLengthPrefixSize]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(body)))

	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	if _, err := f.writer.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := f.writer.Write(body); err != nil {
		return err
	}
	return nil
}

// SubscribeContext registers a mailbox for id, optionally pre-loading it
// with an initial payload (§4.3 "Subscriber table"). This is how
// next_context turns the seed frame that revealed a new context into the
// first value a reader observes.
//
// If the frame has already closed, the returned mailbox is itself
// already closed, so a subscriber created after the reader loop has
// exited observes ClosedStreamError instead of blocking forever: on its
// first read, or on the read after the initial payload when one was given
// (§4.3, §7: "subsequent reads on any mailbox yield ClosedStream").
func (f *PMCFrame) SubscribeContext(id ContextId, initial Payload) *mailbox[Payload] {
	box := newMailbox[Payload]()
	if initial != nil {
		box.push(initial)
	}
	select {
	case <-f.done:
		box.close()
		return box
	default:
	}
	f.subscribers.Store(id, box)
	select {
	case <-f.done:
		// Close() may have finished its subscribers.Range between our
		// done-check above and this Store; catch that race here too.
		box.close()
		f.subscribers.Delete(id)
	default:
	}
	return box
}

// Unsubscribe removes id's subscription (§5 "Cancellation"): subsequent
// frames for id fall through to the new-context queue.
func (f *PMCFrame) Unsubscribe(id ContextId) {
	if v, ok := f.subscribers.LoadAndDelete(id); ok {
		v.(*mailbox[Payload]).close()
	}
}

// NextContext blocks until a frame for an unsubscribed context id arrives.
func (f *PMCFrame) NextContext() (Message, error) {
	return f.newContexts.pop()
}

// Close tears down the frame layer: once its already-queued values are
// read, every mailbox (present or future) observes ClosedStreamError.
func (f *PMCFrame) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
		_ = f.writer.Close()
		f.subscribers.Range(func(_, v any) bool {
			v.(*mailbox[Payload]).close()
			return true
		})
		f.newContexts.close()
	})
}

func (f *PMCFrame) readLoop(reader StreamReader) {
	defer f.Close()
	for {
		msg, err := f.readOneFrame(reader)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.log.Debug("pmc reader loop exiting", "conn", f.conn, "err", err)
			}
			return
		}
		if msg == nil {
			// Decode failure: logged already, drop the frame and continue
			// (§4.3 step 3, §7 "Codec").
			continue
		}
		if v, ok := f.subscribers.Load(msg.ContextId); ok {
			v.(*mailbox[Payload]).push(msg.Payload)
		} else {
			f.newContexts.push(*msg)
		}
	}
}

// readOneFrame reads and decodes a single frame. A nil, nil return means
// "decode failed, drop and continue"; any non-nil error is fatal/EOF.
func (f *PMCFrame) readOneFrame(reader StreamReader) (*Message, error) {
	var lenBuf [frameLengthPrefixSize]byte
	if _, err := io.ReadFull(reader, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint64(lenBuf[:])
	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return nil, err
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		f.log.Debug("dropping undecodable frame", "conn", f.conn, "err", err)
		return nil, nil
	}
	return &msg, nil
}
