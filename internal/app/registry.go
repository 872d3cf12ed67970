package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/domain"
)

// roomState is the membership set of one room. Its mutex serializes all
// mutations for that room; rooms never block each other.
type roomState struct {
	mu           sync.Mutex
	participants []domain.Participant
}

// Registry is the single source of truth for who is in which room.
// Rooms are created lazily on first join and kept for the life of the
// process; an empty participant list is a valid state.
type Registry struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
}

func NewRegistry() *Registry {
	return &Registry{rooms: make(map[domain.RoomID]*roomState)}
}

// room returns the state for id, creating it if needed.
func (r *Registry) room(id domain.RoomID) *roomState {
	r.mu.RLock()
	rs, ok := r.rooms[id]
	r.mu.RUnlock()
	if ok {
		return rs
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if rs, ok = r.rooms[id]; ok {
		return rs
	}
	rs = &roomState{}
	r.rooms[id] = rs
	log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
	return rs
}

func (r *Registry) peek(id domain.RoomID) (*roomState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.rooms[id]
	return rs, ok
}

// Join admits a participant with dedup-replace semantics: any prior entry
// for the same user is removed and a fresh one appended, so the latest
// join always wins. It returns a snapshot of the resulting roster.
func (r *Registry) Join(roomID domain.RoomID, userID domain.UserID, profile domain.Profile, media domain.MediaState) []domain.Participant {
	rs := r.room(roomID)
	rs.mu.Lock()
	defer rs.mu.Unlock()

	rs.remove(userID)
	rs.participants = append(rs.participants, domain.Participant{
		UserID:      userID,
		DisplayName: profile.DisplayName,
		PhotoURL:    profile.PhotoURL,
		MediaState:  media,
	})
	log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(userID)).Msg("participant joined")
	return rs.snapshot()
}

// Leave removes the entry for userID if present. The removed flag tells
// the caller whether a departure actually happened; a no-op leave must
// stay silent on the wire.
func (r *Registry) Leave(roomID domain.RoomID, userID domain.UserID) (bool, []domain.Participant) {
	rs, ok := r.peek(roomID)
	if !ok {
		return false, nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	removed := rs.remove(userID)
	if removed {
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Str("user", string(userID)).Msg("participant left")
	}
	return removed, rs.snapshot()
}

// Departure is the result of one room's removal during LeaveAll.
type Departure struct {
	Roster []domain.Participant
}

// LeaveAll removes userID from every room the registry tracks and
// reports only the rooms where a removal actually happened.
func (r *Registry) LeaveAll(userID domain.UserID) map[domain.RoomID]Departure {
	out := make(map[domain.RoomID]Departure)
	for _, roomID := range r.RoomIDs() {
		if removed, roster := r.Leave(roomID, userID); removed {
			out[roomID] = Departure{Roster: roster}
		}
	}
	return out
}

// UpdateMedia mutates a participant's media flags in place. A missing
// participant is a no-op, reported via ok=false, never an error.
func (r *Registry) UpdateMedia(roomID domain.RoomID, userID domain.UserID, media domain.MediaState) (domain.Participant, bool) {
	rs, ok := r.peek(roomID)
	if !ok {
		return domain.Participant{}, false
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()

	for i := range rs.participants {
		if rs.participants[i].UserID == userID {
			rs.participants[i].MediaState = media
			return rs.participants[i], true
		}
	}
	return domain.Participant{}, false
}

// Roster returns a snapshot of the room's participants in join order.
func (r *Registry) Roster(roomID domain.RoomID) []domain.Participant {
	rs, ok := r.peek(roomID)
	if !ok {
		return nil
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.snapshot()
}

// RoomIDs lists every room the registry currently tracks.
func (r *Registry) RoomIDs() []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.RoomID, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}

// RoomInfo is a read-only view for the rooms listing API.
type RoomInfo struct {
	RoomID domain.RoomID `json:"roomId"`
	Count  int           `json:"participantCount"`
}

func (r *Registry) Rooms() []RoomInfo {
	ids := r.RoomIDs()
	out := make([]RoomInfo, 0, len(ids))
	for _, id := range ids {
		rs, ok := r.peek(id)
		if !ok {
			continue
		}
		rs.mu.Lock()
		out = append(out, RoomInfo{RoomID: id, Count: len(rs.participants)})
		rs.mu.Unlock()
	}
	return out
}

// remove expects rs.mu held.
func (rs *roomState) remove(userID domain.UserID) bool {
	for i := range rs.participants {
		if rs.participants[i].UserID == userID {
			rs.participants = append(rs.participants[:i], rs.participants[i+1:]...)
			return true
		}
	}
	return false
}

// snapshot expects rs.mu held; the copy is safe to serialize after unlock.
func (rs *roomState) snapshot() []domain.Participant {
	out := make([]domain.Participant, len(rs.participants))
	copy(out, rs.participants)
	return out
}
