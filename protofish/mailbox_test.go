package protofish

import (
	"errors"
	"testing"
	"time"
)

func TestMailboxFIFO(t *testing.T) {
	box := newMailbox[Payload]()
	box.push(&ArbitaryData{Content: []byte("a")})
	box.push(&ArbitaryData{Content: []byte("b")})

	first, err := box.pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(first.(*ArbitaryData).Content) != "a" {
		t.Fatalf("fifo order violated: got %q first", first.(*ArbitaryData).Content)
	}
	second, err := box.pop()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if string(second.(*ArbitaryData).Content) != "b" {
		t.Fatalf("fifo order violated: got %q second", second.(*ArbitaryData).Content)
	}
}

func TestMailboxBlocksThenClosed(t *testing.T) {
	box := newMailbox[Payload]()
	done := make(chan error, 1)
	go func() {
		_, err := box.pop()
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("pop returned before close/push")
	case <-time.After(20 * time.Millisecond):
	}

	box.close()
	select {
	case err := <-done:
		var closedErr *ClosedStreamError
		if !errors.As(err, &closedErr) {
			t.Fatalf("want *ClosedStreamError, got %T: %v", err, err)
		}
	case <-time.After(time.Second):
		t.Fatal("pop did not wake up after close")
	}
}
