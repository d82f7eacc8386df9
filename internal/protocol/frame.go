// Package protocol defines the websocket wire format shared by the server and
// the terminal peer: one Frame per websocket message, encoded with JSON or
// MessagePack depending on the negotiated subprotocol.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is the flat union of every client and server message. Type selects
// which of the optional fields are meaningful.
type Frame struct {
	Type    string       `json:"type" msgpack:"type"`
	RoomID  string       `json:"roomId,omitempty" msgpack:"roomId,omitempty"`
	Message string       `json:"message,omitempty" msgpack:"message,omitempty"`
	TempID  TempID       `json:"tempId,omitempty" msgpack:"tempId,omitempty"`
	Signal  *SignalFrame `json:"signal,omitempty" msgpack:"signal,omitempty"`
	Reason  string       `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// SignalFrame carries an SDP description or ICE candidate as raw JSON.
type SignalFrame struct {
	Type    string          `json:"type" msgpack:"type"`
	Payload json.RawMessage `json:"payload,omitempty" msgpack:"payload,omitempty"`
}

// TempID holds the literal JSON token of a client correlation id (number or
// string) so it can be echoed back byte for byte.
type TempID string

func (t TempID) MarshalJSON() ([]byte, error) {
	if json.Valid([]byte(t)) {
		return []byte(t), nil
	}
	return json.Marshal(string(t))
}

func (t *TempID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*t = ""
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
	default:
		return fmt.Errorf("tempId must be a number or a string, got %s", data)
	}
	*t = TempID(data)
	return nil
}
