// Package domain contains entities without logic, just meta-data.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// ChatMessage is an immutable chat event. SentAt is assigned by the
// server and is the sort key for history retrieval (ties allowed).
type ChatMessage struct {
	ID         uuid.UUID `json:"id"`
	RoomID     RoomID    `json:"roomId"`
	SenderID   UserID    `json:"senderId"`
	SenderName string    `json:"senderDisplayName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

func NewChatMessage(roomID RoomID, senderID UserID, senderName, text string) ChatMessage {
	return ChatMessage{
		ID:         uuid.New(),
		RoomID:     roomID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
		SentAt:     time.Now().UTC(),
	}
}
