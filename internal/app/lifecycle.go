package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/core"
	"github.com/ametov/huddle/internal/domain"
)

// Session is the per-connection state: transport identity, the user
// identity resolved at authentication (immutable afterwards), and the
// set of rooms the connection has joined. All events for a connection
// arrive from its single read loop, so the mutable fields need no lock.
type Session struct {
	ConnID core.ConnID
	UserID domain.UserID

	profile domain.Profile
	joined  map[domain.RoomID]struct{}
}

// JoinRequest is the normalized join payload: the transport boundary has
// already collapsed the string/object payload variants and applied the
// media defaults, so core logic never sees a half-filled request.
type JoinRequest struct {
	RoomID   domain.RoomID
	PhotoURL string
	Media    domain.MediaState
}

// Lifecycle drives each connection through
// Connected -> Joined(room...) -> Disconnected, translating transitions
// into registry mutations and broadcasts.
//
// Ordering: every roster-affecting mutation and its broadcasts happen
// under the same per-room lock, so clients observe roster events in the
// order the registry linearized them. Collaborator calls (profile,
// history) run outside that lock; sends are non-blocking, so the lock is
// never held across IO.
type Lifecycle struct {
	registry *Registry
	co       *Coordinator
	profiles core.ProfileResolver
	history  core.HistoryStore

	roomMu roomLocks

	mu       sync.RWMutex
	sessions map[core.ConnID]*Session
}

func NewLifecycle(registry *Registry, co *Coordinator, profiles core.ProfileResolver, history core.HistoryStore) *Lifecycle {
	return &Lifecycle{
		registry: registry,
		co:       co,
		profiles: profiles,
		history:  history,
		sessions: make(map[core.ConnID]*Session),
	}
}

// Connect enters the Connected state for an already-authenticated
// connection and binds its transport for delivery.
func (l *Lifecycle) Connect(connID core.ConnID, userID domain.UserID, conn core.SignalConnection) *Session {
	sess := &Session{
		ConnID:  connID,
		UserID:  userID,
		profile: domain.DefaultProfile(),
		joined:  make(map[domain.RoomID]struct{}),
	}
	l.co.Bind(connID, conn)

	l.mu.Lock()
	l.sessions[connID] = sess
	l.mu.Unlock()

	log.Info().Str("module", "app.lifecycle").Str("conn", string(connID)).Str("user", string(userID)).Msg("session connected")
	return sess
}

// Join admits the session into a room. Re-joining a room the session is
// already in is a fresh join, not an error (dedup-replace). Collaborator
// failures degrade: a dead profile service yields the default name, a
// dead history store yields an empty history. The join itself never
// fails once the room id is valid.
func (l *Lifecycle) Join(ctx context.Context, sess *Session, req JoinRequest) error {
	if err := domain.ValidateRoomID(req.RoomID); err != nil {
		return err
	}

	profile, err := l.profiles.ResolveProfile(ctx, sess.UserID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("user", string(sess.UserID)).Msg("profile lookup failed, using defaults")
		profile = domain.DefaultProfile()
	}
	if req.PhotoURL != "" {
		profile.PhotoURL = req.PhotoURL
	}

	messages, err := l.history.FetchHistory(ctx, req.RoomID)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.lifecycle").Str("room", string(req.RoomID)).Msg("history fetch failed, sending empty history")
		messages = nil
	}
	if messages == nil {
		messages = []domain.ChatMessage{}
	}

	// History goes to the joiner only, before any roster event it will
	// observe for this room.
	l.co.EmitToConn(sess.ConnID, ChatHistoryEvent{
		Type:     EventChatHistory,
		RoomID:   req.RoomID,
		Messages: messages,
	})

	unlock := l.roomMu.lock(req.RoomID)
	roster := l.registry.Join(req.RoomID, sess.UserID, profile, req.Media)
	l.co.Subscribe(req.RoomID, sess.ConnID)
	l.co.EmitToRoomExcept(req.RoomID, sess.ConnID, ParticipantJoinedEvent{
		Type:        EventParticipantJoined,
		RoomID:      req.RoomID,
		UserID:      sess.UserID,
		DisplayName: profile.DisplayName,
		PhotoURL:    profile.PhotoURL,
	})
	l.co.EmitToRoom(req.RoomID, RosterEvent{
		Type:         EventRoster,
		RoomID:       req.RoomID,
		Participants: roster,
	})
	unlock()

	sess.profile = profile
	sess.joined[req.RoomID] = struct{}{}
	return nil
}

// Leave is the graceful single-room departure. A leave for a room the
// user is not in produces no broadcast.
func (l *Lifecycle) Leave(sess *Session, roomID domain.RoomID) {
	unlock := l.roomMu.lock(roomID)
	removed, roster := l.registry.Leave(roomID, sess.UserID)
	l.co.Unsubscribe(roomID, sess.ConnID)
	if removed {
		l.broadcastDeparture(sess, roomID, roster)
	}
	unlock()

	delete(sess.joined, roomID)
}

// SendMessage broadcasts to the full room, sender included, and only
// then hands the message to the history store: live delivery never waits
// on durable storage, and an append failure is logged, not surfaced.
func (l *Lifecycle) SendMessage(ctx context.Context, sess *Session, roomID domain.RoomID, text string) {
	if _, ok := sess.joined[roomID]; !ok {
		log.Debug().Str("module", "app.lifecycle").Str("conn", string(sess.ConnID)).Str("room", string(roomID)).Msg("message for room not joined, ignored")
		return
	}
	if text == "" {
		return
	}

	msg := domain.NewChatMessage(roomID, sess.UserID, sess.profile.DisplayName, text)
	l.co.EmitToRoom(roomID, NewMessageEvent{Type: EventNewMessage, ChatMessage: msg})

	if err := l.history.AppendMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "app.lifecycle").Str("room", string(roomID)).Msg("message append failed")
	}
}

// UpdateMedia reports a mute/camera toggle to the room as a targeted
// event rather than a roster resend. An update from a user not in the
// roster is a silent no-op.
func (l *Lifecycle) UpdateMedia(sess *Session, roomID domain.RoomID, media domain.MediaState) {
	unlock := l.roomMu.lock(roomID)
	defer unlock()

	p, ok := l.registry.UpdateMedia(roomID, sess.UserID, media)
	if !ok {
		log.Debug().Str("module", "app.lifecycle").Str("user", string(sess.UserID)).Str("room", string(roomID)).Msg("media update for absent participant, ignored")
		return
	}
	l.co.EmitToRoom(roomID, MediaStateChangedEvent{
		Type:       EventMediaStateChanged,
		RoomID:     roomID,
		UserID:     p.UserID,
		MediaState: p.MediaState,
	})
}

// Disconnect is the terminal transition. Abrupt network drops and
// graceful closes both land here; there is no other cleanup path. The
// user is removed from every room the registry tracks, and departure is
// broadcast only where a removal actually happened.
func (l *Lifecycle) Disconnect(sess *Session) {
	l.mu.Lock()
	if _, ok := l.sessions[sess.ConnID]; !ok {
		// Already cleaned up; a second disconnect must not emit
		// another departure.
		l.mu.Unlock()
		return
	}
	delete(l.sessions, sess.ConnID)
	l.mu.Unlock()

	for _, roomID := range l.registry.RoomIDs() {
		unlock := l.roomMu.lock(roomID)
		removed, roster := l.registry.Leave(roomID, sess.UserID)
		if removed {
			l.broadcastDeparture(sess, roomID, roster)
		}
		unlock()
	}
	l.co.Unbind(sess.ConnID)

	log.Info().Str("module", "app.lifecycle").Str("conn", string(sess.ConnID)).Str("user", string(sess.UserID)).Msg("session disconnected")
}

// EmitToSession delivers a targeted event to one session's connection.
func (l *Lifecycle) EmitToSession(sess *Session, v any) {
	l.co.EmitToConn(sess.ConnID, v)
}

// broadcastDeparture expects the room lock held.
func (l *Lifecycle) broadcastDeparture(sess *Session, roomID domain.RoomID, roster []domain.Participant) {
	l.co.EmitToRoom(roomID, ParticipantLeftEvent{
		Type:        EventParticipantLeft,
		RoomID:      roomID,
		UserID:      sess.UserID,
		DisplayName: sess.profile.DisplayName,
	})
	l.co.EmitToRoom(roomID, RosterEvent{
		Type:         EventRoster,
		RoomID:       roomID,
		Participants: roster,
	})
}

// roomLocks serializes mutation+broadcast per room. Entries are never
// evicted; rooms live for the process lifetime anyway.
type roomLocks struct {
	mu    sync.Mutex
	locks map[domain.RoomID]*sync.Mutex
}

func (r *roomLocks) lock(id domain.RoomID) (unlock func()) {
	r.mu.Lock()
	if r.locks == nil {
		r.locks = make(map[domain.RoomID]*sync.Mutex)
	}
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	r.mu.Unlock()

	l.Lock()
	return l.Unlock
}
