package domain

import "strings"

// TempID is the client-generated correlation token of a chat message. It is
// kept as the literal token text the client sent (a JSON number or a quoted
// string) so the delivery echo carries it back unchanged.
type TempID string

type Message struct {
	RoomID   RoomID
	SenderID ConnID
	Content  string
	TempID   TempID
}

func NewMessage(senderID ConnID, roomID RoomID, content string, tempID TempID) (*Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	return &Message{
		RoomID:   roomID,
		SenderID: senderID,
		Content:  content,
		TempID:   tempID,
	}, nil
}
