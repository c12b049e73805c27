package protofish

import (
	"net"
	"testing"
	"time"
)

func pmcPair(t *testing.T) (a, b *PMCFrame) {
	t.Helper()
	connA, connB := net.Pipe()
	a = NewPMCFrame(fakeStreamWriter{connA}, connA, nil, "a")
	b = NewPMCFrame(fakeStreamWriter{connB}, connB, nil, "b")
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

// TestPMCFrameSubscriberDispatch is §8 invariant 4: a frame for a
// subscribed id grows that mailbox; a frame for an unsubscribed id grows
// the new-context queue, exactly once each.
func TestPMCFrameSubscriberDispatch(t *testing.T) {
	a, b := pmcPair(t)

	box := a.SubscribeContext(4, nil)
	if err := b.SendFrame(Message{ContextId: 4, Payload: &ArbitaryData{Content: []byte("known")}}); err != nil {
		t.Fatalf("send known: %v", err)
	}
	if err := b.SendFrame(Message{ContextId: 9, Payload: &ArbitaryData{Content: []byte("unknown")}}); err != nil {
		t.Fatalf("send unknown: %v", err)
	}

	got, err := box.pop()
	if err != nil {
		t.Fatalf("subscribed mailbox pop: %v", err)
	}
	if string(got.(*ArbitaryData).Content) != "known" {
		t.Fatalf("want %q, got %q", "known", got.(*ArbitaryData).Content)
	}

	msg, err := a.NextContext()
	if err != nil {
		t.Fatalf("new-context pop: %v", err)
	}
	if msg.ContextId != 9 {
		t.Fatalf("want context id 9, got %d", msg.ContextId)
	}
	if string(msg.Payload.(*ArbitaryData).Content) != "unknown" {
		t.Fatalf("want %q, got %q", "unknown", msg.Payload.(*ArbitaryData).Content)
	}
}

func TestPMCFrameWriteIsSerialised(t *testing.T) {
	a, b := pmcPair(t)
	box := b.SubscribeContext(0, nil)

	const n = 50
	done := make(chan struct{})
	go func() {
		for i := 0; i < n; i++ {
			_ = a.SendFrame(Message{ContextId: 0, Payload: &ArbitaryData{Content: []byte{byte(i)}}})
		}
		close(done)
	}()

	for i := 0; i < n; i++ {
		got, err := box.pop()
		if err != nil {
			t.Fatalf("pop %d: %v", i, err)
		}
		if got.(*ArbitaryData).Content[0] != byte(i) {
			t.Fatalf("ordering violated at %d: got %v", i, got.(*ArbitaryData).Content)
		}
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sender did not finish")
	}
}
