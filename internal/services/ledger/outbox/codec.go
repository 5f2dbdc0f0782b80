package outbox

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes messages for a broker.
type Codec interface {
	Name() string
	ContentType() string
	Encode(Message) ([]byte, error)
	Decode([]byte) (Message, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// NewCodec returns the codec registered under name.
func NewCodec(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown message codec %q", name)
	}
}

// JSONCodec encodes messages as JSON documents.
type JSONCodec struct{}

func (JSONCodec) Name() string        { return CodecJSON }
func (JSONCodec) ContentType() string { return "application/json" }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode json message: %w", err)
	}
	return msg, nil
}

// MsgpackCodec encodes messages with MessagePack. The payload stays the
// event's JSON document, carried as binary.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string        { return CodecMsgpack }
func (MsgpackCodec) ContentType() string { return "application/msgpack" }

func (MsgpackCodec) Encode(msg Message) ([]byte, error) {
	return msgpack.Marshal(&msg)
}

func (MsgpackCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode msgpack message: %w", err)
	}
	return msg, nil
}
