package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/ametov/huddle/internal/app"
)

const writeWait = 5 * time.Second

func (ctl *Controller) writePump(ctx context.Context, c *WsConn) {
	ticker := time.NewTicker(ctl.Cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping error")
				return
			}
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump is the single event source for its connection: every inbound
// event, and the final disconnect, runs on this goroutine. A read error
// of any kind (network drop or graceful close) funnels through the same
// Disconnect transition.
func (ctl *Controller) readPump(ctx context.Context, cancel context.CancelFunc, sess *app.Session, c *WsConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(sess.ConnID)).Msg("readPump closing")
		ctl.Lifecycle.Disconnect(sess)
		cancel()
		c.Close()
	}()

	c.conn.SetReadLimit(ctl.Cfg.ReadLimit)

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(sess.ConnID)).Msg("readPump read error")
				return
			}
			ctl.handleEvent(ctx, sess, data)
		}
	}
}
