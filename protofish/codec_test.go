package protofish

import (
	"bytes"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
	}{
		{"ClientHello", &ClientHello{Version: CurrentVersion}},
		{"ClientHelloWithResume", &ClientHello{Version: CurrentVersion, ResumeConnectionToken: []byte{}}},
		{"ServerHelloOk", &ServerHello{Version: CurrentVersion, Ok: true, ConnectionToken: bytes.Repeat([]byte{7}, 32)}},
		{"ServerHelloRejected", &ServerHello{Version: CurrentVersion, Ok: false, Message: "Resume connection is not supported."}},
		{"Ok", &Ok{}},
		{"Error", &ErrorPayload{ErrorType: ErrorTimeout, Message: "timed out"}},
		{"StreamOpen", &StreamOpen{StreamId: 42, Meta: StreamCreateMeta{IntegrityType: IntegrityUnreliable}}},
		{"StreamClose", &StreamClose{StreamId: 42}},
		{"ArbitaryData", &ArbitaryData{Content: []byte("muffin")}},
		{"Keepalive", &Keepalive{}},
		{"Close", &Close{}},
		{"BenchmarkStart", &BenchmarkStart{IntegrityType: IntegrityReliable, ByteCount: 1024}},
		{"BenchmarkEnd", &BenchmarkEnd{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := EncodeMessage(Message{ContextId: 7, Payload: tc.payload})
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			decoded, err := DecodeMessage(encoded)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if decoded.ContextId != 7 {
				t.Fatalf("context id: want 7, got %d", decoded.ContextId)
			}
			if decoded.Payload.Type() != tc.payload.Type() {
				t.Fatalf("type: want %s, got %s", tc.payload.Type(), decoded.Payload.Type())
			}
		})
	}
}

func TestIntegrityTypeNormalized(t *testing.T) {
	if IntegrityReliable.Normalized() != IntegrityReliable {
		t.Fatal("reliable should normalize to reliable")
	}
	if IntegrityUnreliable.Normalized() != IntegrityUnreliable {
		t.Fatal("unreliable should normalize to unreliable")
	}
	if IntegrityType(99).Normalized() != IntegrityReliable {
		t.Fatal("unknown enum values must default to Reliable per §6.1")
	}
}

func TestEncodeMessageFrameFraming(t *testing.T) {
	msgs := []Message{
		{ContextId: 0, Payload: &ArbitaryData{Content: []byte("a")}},
		{ContextId: 1, Payload: &ArbitaryData{Content: []byte("bb")}},
	}
	var stream bytes.Buffer
	for _, m := range msgs {
		body, err := EncodeMessage(m)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		var lenBuf [8]byte
		putLE64(&lenBuf, uint64(len(body)))
		stream.Write(lenBuf[:])
		stream.Write(body)
	}

	// Replay the concatenated frames through the same reading logic
	// PMCFrame.readOneFrame uses, and confirm we get m1, m2, ... back out.
	r := &stream
	for _, want := range msgs {
		var lenBuf [8]byte
		if _, err := r.Read(lenBuf[:]); err != nil {
			t.Fatalf("read length: %v", err)
		}
		n := le64(lenBuf)
		body := make([]byte, n)
		if _, err := r.Read(body); err != nil {
			t.Fatalf("read body: %v", err)
		}
		got, err := DecodeMessage(body)
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.ContextId != want.ContextId {
			t.Fatalf("context id: want %d got %d", want.ContextId, got.ContextId)
		}
	}
}

func putLE64(b *[8]byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func le64(b [8]byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(b[i]) << (8 * i)
	}
	return v
}
