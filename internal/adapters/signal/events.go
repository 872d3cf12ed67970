package signal

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/app"
	"github.com/ametov/huddle/internal/domain"
)

var errBadJoinPayload = errors.New("join payload is neither a room id nor an object")

// Inbound event names.
const (
	eventJoinRoom    = "join-room"
	eventLeaveRoom   = "leave-room"
	eventSendMessage = "send-message"
	eventUpdateMedia = "update-media"
	eventPing        = "ping"
)

func (ctl *Controller) handleEvent(ctx context.Context, sess *app.Session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(sess, "bad_payload")
		return
	}

	switch env.Type {
	case eventJoinRoom:
		ctl.handleJoin(ctx, sess, data)
	case eventLeaveRoom:
		ctl.handleLeave(sess, data)
	case eventSendMessage:
		ctl.handleSendMessage(ctx, sess, data)
	case eventUpdateMedia:
		ctl.handleUpdateMedia(sess, data)
	case eventPing:
		ctl.Lifecycle.EmitToSession(sess, app.PongEvent{Type: app.EventPong})
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

// joinObject is the structured variant of the join payload.
type joinObject struct {
	RoomID     string `json:"roomId"`
	PhotoURL   string `json:"photoURL"`
	IsMuted    *bool  `json:"isMuted"`
	IsVideoOff *bool  `json:"isVideoOff"`
}

// normalizeJoin collapses the two accepted join payload shapes, a bare
// room id string or a {roomId, photoURL?, isMuted?, isVideoOff?} object,
// into one request, applying the conservative media defaults exactly once
// before any core logic runs.
func normalizeJoin(raw json.RawMessage) (app.JoinRequest, error) {
	req := app.JoinRequest{Media: domain.DefaultMediaState()}

	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		req.RoomID = domain.RoomID(bare)
		return req, nil
	}

	var obj joinObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return app.JoinRequest{}, errBadJoinPayload
	}
	req.RoomID = domain.RoomID(obj.RoomID)
	req.PhotoURL = obj.PhotoURL
	if obj.IsMuted != nil {
		req.Media.Muted = *obj.IsMuted
	}
	if obj.IsVideoOff != nil {
		req.Media.VideoOff = *obj.IsVideoOff
	}
	return req, nil
}

func (ctl *Controller) handleJoin(ctx context.Context, sess *app.Session, data []byte) {
	var p struct {
		Room json.RawMessage `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || len(p.Room) == 0 {
		ctl.sendError(sess, "bad_payload")
		return
	}

	req, err := normalizeJoin(p.Room)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(sess, "bad_payload")
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Str("room", string(req.RoomID)).Msg("join")
	if err := ctl.Lifecycle.Join(ctx, sess, req); err != nil {
		ctl.sendError(sess, "invalid_room")
	}
}

func (ctl *Controller) handleLeave(sess *app.Session, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(sess, "bad_payload")
		return
	}
	log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Str("room", p.RoomID).Msg("leave")
	ctl.Lifecycle.Leave(sess, domain.RoomID(p.RoomID))
}

func (ctl *Controller) handleSendMessage(ctx context.Context, sess *app.Session, data []byte) {
	var p struct {
		RoomID string `json:"roomId"`
		Text   string `json:"text"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(sess, "bad_payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.UserID) {
		log.Warn().Str("module", "signal").Str("user", string(sess.UserID)).Msg("message rate limit exceeded")
		ctl.sendError(sess, "rate_limited")
		return
	}
	ctl.Lifecycle.SendMessage(ctx, sess, domain.RoomID(p.RoomID), p.Text)
}

func (ctl *Controller) handleUpdateMedia(sess *app.Session, data []byte) {
	var p struct {
		RoomID     string `json:"roomId"`
		IsMuted    *bool  `json:"isMuted"`
		IsVideoOff *bool  `json:"isVideoOff"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		ctl.sendError(sess, "bad_payload")
		return
	}
	media := domain.DefaultMediaState()
	if p.IsMuted != nil {
		media.Muted = *p.IsMuted
	}
	if p.IsVideoOff != nil {
		media.VideoOff = *p.IsVideoOff
	}
	ctl.Lifecycle.UpdateMedia(sess, domain.RoomID(p.RoomID), media)
}

func (ctl *Controller) sendError(sess *app.Session, msg string) {
	ctl.Lifecycle.EmitToSession(sess, app.ErrorEvent{Type: app.EventError, Error: msg})
}
