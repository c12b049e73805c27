package protofish

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message is the PMC frame body: a context id plus its payload (§3, §6.1).
type Message struct {
	ContextId ContextId
	Payload   Payload
}

// wireMessage is the on-the-wire shape of Message. The payload is carried
// as a raw CBOR value alongside its MsgType tag so decoding can pick the
// right concrete Go type before unmarshalling the body (§6.1: "any
// canonical tagged-union byte encoding ... as long as decode is the
// inverse of encode").
type wireMessage struct {
	ContextId ContextId       `cbor:"1,keyasint"`
	Type      MsgType         `cbor:"2,keyasint"`
	Body      cbor.RawMessage `cbor:"3,keyasint"`
}

var encMode, _ = cbor.CanonicalEncOptions().EncMode()

// EncodeMessage serialises a Message to its codec byte form (the
// "serialised_message" half of a frame, §6.1). This is the opaque
// schema-codec boundary spec.md §1 calls out; see SPEC_FULL.md's domain
// stack table for why CBOR stands in for the original protobuf schema.
func EncodeMessage(m Message) ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("protofish: encode message: nil payload")
	}
	body, err := encMode.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("protofish: encode payload %s: %w", m.Payload.Type(), err)
	}
	wire := wireMessage{ContextId: m.ContextId, Type: m.Payload.Type(), Body: body}
	out, err := encMode.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("protofish: encode message: %w", err)
	}
	return out, nil
}

// DecodeMessage is the inverse of EncodeMessage.
func DecodeMessage(data []byte) (Message, error) {
	var wire wireMessage
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return Message{}, fmt.Errorf("protofish: decode message: %w", err)
	}
	payload := emptyPayloadFor(wire.Type)
	if payload == nil {
		return Message{}, fmt.Errorf("protofish: decode message: unknown payload type %d", wire.Type)
	}
	if err := cbor.Unmarshal(wire.Body, payload); err != nil {
		return Message{}, fmt.Errorf("protofish: decode payload %s: %w", wire.Type, err)
	}
	return Message{ContextId: wire.ContextId, Payload: payload}, nil
}
