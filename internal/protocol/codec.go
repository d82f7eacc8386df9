package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes frames for one websocket subprotocol.
type Codec interface {
	// Name is the websocket subprotocol token.
	Name() string
	// Binary reports whether frames travel as binary websocket messages.
	Binary() bool
	Marshal(f *Frame) ([]byte, error)
	Unmarshal(data []byte, f *Frame) error
}

const (
	SubprotocolJSON    = "duo.json"
	SubprotocolMsgPack = "duo.msgpack"
)

var (
	JSON    Codec = jsonCodec{}
	MsgPack Codec = msgpackCodec{}
)

// Subprotocols lists the supported subprotocols in server preference order.
func Subprotocols() []string {
	return []string{SubprotocolJSON, SubprotocolMsgPack}
}

// ByName resolves a subprotocol token or a short codec name. An empty name
// selects JSON, which is also what browsers get when they ask for nothing.
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json", SubprotocolJSON:
		return JSON, nil
	case "msgpack", SubprotocolMsgPack:
		return MsgPack, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return SubprotocolJSON }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(f *Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (jsonCodec) Unmarshal(data []byte, f *Frame) error {
	return json.Unmarshal(data, f)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return SubprotocolMsgPack }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Marshal(f *Frame) ([]byte, error) {
	return msgpack.Marshal(f)
}

func (msgpackCodec) Unmarshal(data []byte, f *Frame) error {
	return msgpack.Unmarshal(data, f)
}
