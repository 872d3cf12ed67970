package app

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/core"
	"github.com/ametov/huddle/internal/domain"
)

// Coordinator owns the connection table and the per-room subscription
// index, and fans events out to them. Delivery is best-effort per
// connection: a slow or dead peer is skipped and logged, never allowed
// to block the rest of the room or fail the sender's flow.
type Coordinator struct {
	mu    sync.RWMutex
	conns map[core.ConnID]core.SignalConnection
	rooms map[domain.RoomID]map[core.ConnID]struct{}
}

func NewCoordinator() *Coordinator {
	return &Coordinator{
		conns: make(map[core.ConnID]core.SignalConnection),
		rooms: make(map[domain.RoomID]map[core.ConnID]struct{}),
	}
}

// Bind registers a connection for targeted and room delivery.
func (c *Coordinator) Bind(id core.ConnID, conn core.SignalConnection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[id] = conn
}

// Unbind drops the connection and every room subscription it holds.
func (c *Coordinator) Unbind(id core.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.conns, id)
	for _, subs := range c.rooms {
		delete(subs, id)
	}
}

// Subscribe adds the connection to a room's delivery set.
func (c *Coordinator) Subscribe(roomID domain.RoomID, id core.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	subs, ok := c.rooms[roomID]
	if !ok {
		subs = make(map[core.ConnID]struct{})
		c.rooms[roomID] = subs
	}
	subs[id] = struct{}{}
}

func (c *Coordinator) Unsubscribe(roomID domain.RoomID, id core.ConnID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if subs, ok := c.rooms[roomID]; ok {
		delete(subs, id)
	}
}

// EmitToRoom delivers v to every connection subscribed to the room.
func (c *Coordinator) EmitToRoom(roomID domain.RoomID, v any) {
	c.emit(roomID, "", v)
}

// EmitToRoomExcept delivers v to the room, skipping one connection.
// Used for join notifications, which the joiner must not receive.
func (c *Coordinator) EmitToRoomExcept(roomID domain.RoomID, except core.ConnID, v any) {
	c.emit(roomID, except, v)
}

// EmitToConn delivers v to a single connection.
func (c *Coordinator) EmitToConn(id core.ConnID, v any) {
	frame, err := encode(v)
	if err != nil {
		return
	}
	c.mu.RLock()
	conn, ok := c.conns[id]
	c.mu.RUnlock()
	if !ok {
		return
	}
	if err := conn.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "app.broadcast").Str("conn", string(id)).Msg("targeted send dropped")
	}
}

func (c *Coordinator) emit(roomID domain.RoomID, except core.ConnID, v any) {
	frame, err := encode(v)
	if err != nil {
		return
	}

	c.mu.RLock()
	subs := c.rooms[roomID]
	targets := make([]core.SignalConnection, 0, len(subs))
	ids := make([]core.ConnID, 0, len(subs))
	for id := range subs {
		if id == except {
			continue
		}
		if conn, ok := c.conns[id]; ok {
			targets = append(targets, conn)
			ids = append(ids, id)
		}
	}
	c.mu.RUnlock()

	dropped := 0
	for i, conn := range targets {
		if err := conn.TrySend(frame); err != nil {
			dropped++
			log.Warn().Err(err).Str("module", "app.broadcast").Str("room", string(roomID)).Str("conn", string(ids[i])).Msg("broadcast send dropped")
		}
	}
	log.Debug().Str("module", "app.broadcast").Str("room", string(roomID)).Int("sent_to", len(targets)-dropped).Int("dropped", dropped).Msg("broadcast result")
}

func encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.broadcast").Msg("event marshal")
		return nil, err
	}
	return core.Frame(b), nil
}
