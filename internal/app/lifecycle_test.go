package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ametov/huddle/internal/core"
	"github.com/ametov/huddle/internal/domain"
)

// fakeConn records every frame delivered to it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	fail   bool
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("peer stalled")
	}
	cp := make(core.Frame, len(fr))
	copy(cp, fr)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) types(t *testing.T) []string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.frames))
	for _, fr := range f.frames {
		var env struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(fr, &env))
		out = append(out, env.Type)
	}
	return out
}

// decodeAt unmarshals the i-th recorded frame into v.
func (f *fakeConn) decodeAt(t *testing.T, i int, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Less(t, i, len(f.frames))
	require.NoError(t, json.Unmarshal(f.frames[i], v))
}

func (f *fakeConn) count(t *testing.T, eventType string) int {
	n := 0
	for _, typ := range f.types(t) {
		if typ == eventType {
			n++
		}
	}
	return n
}

type fakeProfiles struct {
	profiles map[domain.UserID]domain.Profile
	err      error
}

func (f *fakeProfiles) ResolveProfile(_ context.Context, userID domain.UserID) (domain.Profile, error) {
	if f.err != nil {
		return domain.Profile{}, f.err
	}
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return domain.DefaultProfile(), nil
}

type fakeHistory struct {
	mu         sync.Mutex
	appended   []domain.ChatMessage
	fetchErr   error
	appendErr  error
	appendHook func(domain.ChatMessage)
}

func (f *fakeHistory) AppendMessage(_ context.Context, msg domain.ChatMessage) error {
	f.mu.Lock()
	hook := f.appendHook
	f.mu.Unlock()
	if hook != nil {
		hook(msg)
	}
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appended = append(f.appended, msg)
	return nil
}

func (f *fakeHistory) FetchHistory(_ context.Context, roomID domain.RoomID) ([]domain.ChatMessage, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ChatMessage
	for _, m := range f.appended {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fixture struct {
	registry *Registry
	lc       *Lifecycle
	profiles *fakeProfiles
	history  *fakeHistory
}

func newFixture() *fixture {
	profiles := &fakeProfiles{profiles: map[domain.UserID]domain.Profile{
		"u-alice": {DisplayName: "Alice", PhotoURL: "https://cdn.example/a.png"},
		"u-bob":   {DisplayName: "Bob"},
	}}
	history := &fakeHistory{}
	registry := NewRegistry()
	lc := NewLifecycle(registry, NewCoordinator(), profiles, history)
	return &fixture{registry: registry, lc: lc, profiles: profiles, history: history}
}

func (fx *fixture) connect(connID core.ConnID, userID domain.UserID) (*Session, *fakeConn) {
	conn := &fakeConn{}
	return fx.lc.Connect(connID, userID, conn), conn
}

func join(t *testing.T, fx *fixture, sess *Session, roomID domain.RoomID) {
	t.Helper()
	err := fx.lc.Join(context.Background(), sess, JoinRequest{
		RoomID: roomID,
		Media:  domain.DefaultMediaState(),
	})
	require.NoError(t, err)
}

func Test_Join_Delivers_History_Then_Roster_To_Joiner(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	req.Equal([]string{EventChatHistory, EventRoster}, connA.types(t))

	var history ChatHistoryEvent
	connA.decodeAt(t, 0, &history)
	req.Equal(domain.RoomID("r1"), history.RoomID)
	req.Empty(history.Messages)

	var roster RosterEvent
	connA.decodeAt(t, 1, &roster)
	req.Len(roster.Participants, 1)
	req.Equal(domain.UserID("u-alice"), roster.Participants[0].UserID)
	req.Equal("Alice", roster.Participants[0].DisplayName)
}

func Test_Second_Join_Notifies_Existing_Members(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, connB := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	// A sees B arrive, then the refreshed roster; A never re-receives
	// its own history.
	req.Equal([]string{EventChatHistory, EventRoster, EventParticipantJoined, EventRoster}, connA.types(t))

	var joined ParticipantJoinedEvent
	connA.decodeAt(t, 2, &joined)
	req.Equal(domain.UserID("u-bob"), joined.UserID)
	req.Equal("Bob", joined.DisplayName)

	var roster RosterEvent
	connA.decodeAt(t, 3, &roster)
	req.Len(roster.Participants, 2)
	req.Equal(domain.UserID("u-alice"), roster.Participants[0].UserID)
	req.Equal(domain.UserID("u-bob"), roster.Participants[1].UserID)

	// The joiner gets the roster but not the participant-joined aimed
	// at everyone else.
	req.Equal([]string{EventChatHistory, EventRoster}, connB.types(t))
}

func Test_Disconnect_Broadcasts_Departure_Once(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	preJoin := fx.registry.Roster("r1")

	sessB, _ := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")
	fx.lc.Disconnect(sessB)

	req.Equal(1, connA.count(t, EventParticipantLeft))

	var left ParticipantLeftEvent
	connA.decodeAt(t, len(connA.types(t))-2, &left)
	req.Equal(domain.UserID("u-bob"), left.UserID)
	req.Equal("Bob", left.DisplayName)

	var roster RosterEvent
	connA.decodeAt(t, len(connA.types(t))-1, &roster)
	req.Equal(preJoin, roster.Participants)
}

func Test_Disconnect_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, _ := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	fx.lc.Disconnect(sessB)
	fx.lc.Disconnect(sessB)

	req.Equal(1, connA.count(t, EventParticipantLeft))
}

func Test_Disconnect_Without_Membership_Is_Silent(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	// B connects but never joins; its disconnect must not produce a
	// departure broadcast anywhere.
	sessB, _ := fx.connect("c-b", "u-bob")
	fx.lc.Disconnect(sessB)

	req.Zero(connA.count(t, EventParticipantLeft))
}

func Test_Duplicate_Tabs_Keep_One_Roster_Entry(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sess1, conn1 := fx.connect("c-tab1", "u-alice")
	join(t, fx, sess1, "r1")
	sess2, conn2 := fx.connect("c-tab2", "u-alice")
	join(t, fx, sess2, "r1")

	req.Len(fx.registry.Roster("r1"), 1)

	// Both tabs stay subscribed to room broadcasts.
	fx.lc.SendMessage(context.Background(), sess2, "r1", "hello")
	req.Equal(1, conn1.count(t, EventNewMessage))
	req.Equal(1, conn2.count(t, EventNewMessage))
}

func Test_SendMessage_Broadcasts_Before_Persisting(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, connB := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	delivered := false
	fx.history.appendHook = func(domain.ChatMessage) {
		// By the time the store sees the message, every live member
		// (sender included) must already hold the broadcast.
		delivered = connA.count(t, EventNewMessage) == 1 && connB.count(t, EventNewMessage) == 1
	}

	fx.lc.SendMessage(context.Background(), sessA, "r1", "hello room")

	req.True(delivered)
	req.Len(fx.history.appended, 1)

	var msg NewMessageEvent
	connB.decodeAt(t, len(connB.types(t))-1, &msg)
	req.Equal("hello room", msg.Text)
	req.Equal("Alice", msg.SenderName)
	req.Equal(domain.UserID("u-alice"), msg.SenderID)
	req.False(msg.SentAt.IsZero())
}

func Test_SendMessage_To_Unjoined_Room_Is_Ignored(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, _ := fx.connect("c-b", "u-bob")

	fx.lc.SendMessage(context.Background(), sessB, "r1", "drive-by")

	req.Zero(connA.count(t, EventNewMessage))
	req.Empty(fx.history.appended)
}

func Test_SendMessage_Survives_Persistence_Failure(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	fx.history.appendErr = errors.New("store down")

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	fx.lc.SendMessage(context.Background(), sessA, "r1", "still delivered")

	req.Equal(1, connA.count(t, EventNewMessage))
}

func Test_UpdateMedia_Emits_Targeted_Event_Not_Roster(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, _ := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, connB := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	rostersBefore := connB.count(t, EventRoster)
	fx.lc.UpdateMedia(sessA, "r1", domain.MediaState{Muted: false, VideoOff: true})

	req.Equal(1, connB.count(t, EventMediaStateChanged))
	req.Equal(rostersBefore, connB.count(t, EventRoster))

	var ev MediaStateChangedEvent
	connB.decodeAt(t, len(connB.types(t))-1, &ev)
	req.Equal(domain.UserID("u-alice"), ev.UserID)
	req.False(ev.Muted)
	req.True(ev.VideoOff)
}

func Test_UpdateMedia_Without_Join_Is_Silent(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	sessB, connB := fx.connect("c-b", "u-bob")
	fx.lc.UpdateMedia(sessB, "r1", domain.MediaState{})
	fx.lc.UpdateMedia(sessB, "never-joined", domain.MediaState{})

	req.Zero(connA.count(t, EventMediaStateChanged))
	req.Zero(connB.count(t, EventMediaStateChanged))
	req.Zero(connB.count(t, EventError))
}

func Test_Join_Falls_Back_To_Default_Profile(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	fx.profiles.err = errors.New("profile service down")

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	var roster RosterEvent
	connA.decodeAt(t, 1, &roster)
	req.Equal(domain.DefaultDisplayName, roster.Participants[0].DisplayName)
}

func Test_Join_Falls_Back_To_Empty_History(t *testing.T) {
	req := require.New(t)
	fx := newFixture()
	fx.history.fetchErr = errors.New("history down")

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")

	var history ChatHistoryEvent
	connA.decodeAt(t, 0, &history)
	req.NotNil(history.Messages)
	req.Empty(history.Messages)
}

func Test_Join_Rejects_Invalid_Room_ID(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, _ := fx.connect("c-a", "u-alice")
	err := fx.lc.Join(context.Background(), sessA, JoinRequest{RoomID: ""})
	req.ErrorIs(err, domain.ErrRoomIDEmpty)
}

func Test_Leave_For_Unjoined_Room_Is_Silent(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, connA := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	sessB, _ := fx.connect("c-b", "u-bob")

	fx.lc.Leave(sessB, "r1")

	req.Zero(connA.count(t, EventParticipantLeft))
}

func Test_Slow_Peer_Does_Not_Block_Room_Delivery(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	stalled := &fakeConn{fail: true}
	sessA := fx.lc.Connect("c-a", "u-alice", stalled)
	join(t, fx, sessA, "r1")

	sessB, connB := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	fx.lc.SendMessage(context.Background(), sessB, "r1", "hello")

	req.Equal(1, connB.count(t, EventNewMessage))
	req.Len(fx.history.appended, 1)
}

func Test_ReJoin_Replays_Persisted_History(t *testing.T) {
	req := require.New(t)
	fx := newFixture()

	sessA, _ := fx.connect("c-a", "u-alice")
	join(t, fx, sessA, "r1")
	fx.lc.SendMessage(context.Background(), sessA, "r1", "first")
	fx.lc.SendMessage(context.Background(), sessA, "r1", "second")
	fx.lc.Disconnect(sessA)

	sessB, connB := fx.connect("c-b", "u-bob")
	join(t, fx, sessB, "r1")

	var history ChatHistoryEvent
	connB.decodeAt(t, 0, &history)
	req.Len(history.Messages, 2)
	req.Equal("first", history.Messages[0].Text)
	req.Equal("second", history.Messages[1].Text)
}
