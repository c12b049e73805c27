package protofish

import (
	"context"
	"errors"
	"testing"
	"time"
)

func connectCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestHappyHandshake is §8 end-to-end scenario 1.
func TestHappyHandshake(t *testing.T) {
	clientUTP, serverUTP := newFakeUTPPair()
	ctx := connectCtx(t)

	type result struct {
		conn *Connection
		err  error
	}
	serverCh := make(chan result, 1)
	go func() {
		conn, err := Accept(ctx, serverUTP, nil)
		serverCh <- result{conn, err}
	}()

	clientConn, err := Connect(ctx, clientUTP, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	defer clientConn.Close()

	srvRes := <-serverCh
	if srvRes.err != nil {
		t.Fatalf("server accept: %v", srvRes.err)
	}
	defer srvRes.conn.Close()
}

// TestResumeRejection is §8 end-to-end scenario 2 / invariant 5.
func TestResumeRejection(t *testing.T) {
	clientUTP, serverUTP := newFakeUTPPair()
	ctx := connectCtx(t)

	serverErrCh := make(chan error, 1)
	go func() {
		_, err := Accept(ctx, serverUTP, nil)
		serverErrCh <- err
	}()

	_, err := connect(ctx, clientUTP, nil, ClientHello{
		Version:               CurrentVersion,
		ResumeConnectionToken: []byte{},
	})
	if err == nil {
		t.Fatal("expected HandshakeRejectError, got nil")
	}
	var rejectErr *HandshakeRejectError
	if !errors.As(err, &rejectErr) {
		t.Fatalf("expected *HandshakeRejectError, got %T: %v", err, err)
	}
	if rejectErr.Message != "Resume connection is not supported." {
		t.Fatalf("unexpected rejection message: %q", rejectErr.Message)
	}

	srvErr := <-serverErrCh
	var srvReject *HandshakeRejectError
	if !errors.As(srvErr, &srvReject) {
		t.Fatalf("server side: expected *HandshakeRejectError, got %T: %v", srvErr, srvErr)
	}
}

func handshake(t *testing.T) (client, server *Connection) {
	t.Helper()
	clientUTP, serverUTP := newFakeUTPPair()
	ctx := connectCtx(t)

	serverCh := make(chan *Connection, 1)
	go func() {
		conn, err := Accept(ctx, serverUTP, nil)
		if err != nil {
			t.Errorf("server accept: %v", err)
		}
		serverCh <- conn
	}()

	clientConn, err := Connect(ctx, clientUTP, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	serverConn := <-serverCh
	t.Cleanup(func() {
		clientConn.Close()
		serverConn.Close()
	})
	return clientConn, serverConn
}
