package app

import "github.com/ametov/huddle/internal/domain"

// Outbound event names. Every frame on the wire is a flat JSON object
// whose "type" field carries one of these.
const (
	EventChatHistory       = "chat-history"
	EventParticipantJoined = "participant-joined"
	EventRoster            = "roster"
	EventNewMessage        = "new-message"
	EventMediaStateChanged = "media-state-changed"
	EventParticipantLeft   = "participant-left"
	EventError             = "error"
	EventPong              = "pong"
)

// ChatHistoryEvent is delivered to the joining connection only.
type ChatHistoryEvent struct {
	Type     string               `json:"type"`
	RoomID   domain.RoomID        `json:"roomId"`
	Messages []domain.ChatMessage `json:"messages"`
}

// ParticipantJoinedEvent is broadcast to the room, excluding the joiner.
type ParticipantJoinedEvent struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
	PhotoURL    string        `json:"photoURL,omitempty"`
}

// RosterEvent is broadcast to the entire room, joiner included.
type RosterEvent struct {
	Type         string               `json:"type"`
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type NewMessageEvent struct {
	Type string `json:"type"`
	domain.ChatMessage
}

type MediaStateChangedEvent struct {
	Type   string        `json:"type"`
	RoomID domain.RoomID `json:"roomId"`
	UserID domain.UserID `json:"userId"`
	domain.MediaState
}

type ParticipantLeftEvent struct {
	Type        string        `json:"type"`
	RoomID      domain.RoomID `json:"roomId"`
	UserID      domain.UserID `json:"userId"`
	DisplayName string        `json:"displayName"`
}

type ErrorEvent struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type PongEvent struct {
	Type string `json:"type"`
}
