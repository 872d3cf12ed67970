package core

import (
	"context"

	"github.com/ametov/huddle/internal/domain"
)

// ProfileResolver maps a user to display metadata. Callers treat any
// error as "use defaults"; a failing resolver never blocks a join.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, userID domain.UserID) (domain.Profile, error)
}

// HistoryStore is the durable message log. AppendMessage failures are
// logged by the caller, never surfaced to the broadcast path. FetchHistory
// returns messages ordered by SentAt ascending.
type HistoryStore interface {
	AppendMessage(ctx context.Context, msg domain.ChatMessage) error
	FetchHistory(ctx context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error)
}

// Authenticator turns a handshake credential into a stable user identity.
// It runs before any room state exists for the connection; a rejected
// credential means the connection never enters the session lifecycle.
type Authenticator interface {
	AuthenticateConnection(credential string) (domain.UserID, error)
}
