package api

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"ClimaPulse/internal/domain/models"
	xhttp "ClimaPulse/pkg/http"
	applogger "ClimaPulse/pkg/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// streamBuffer is the number of DataPoints a connection may fall behind by
// before it is dropped.
const streamBuffer = 8

var errSlowConsumer = errors.New("stream client too slow")

// outbox decouples topic delivery from the socket. push never blocks: when
// the buffer is full the connection is marked dropped and canceled.
type outbox struct {
	ch      chan models.DataPoint
	cancel  context.CancelFunc
	dropped atomic.Bool
}

func newOutbox(size int, cancel context.CancelFunc) *outbox {
	return &outbox{ch: make(chan models.DataPoint, size), cancel: cancel}
}

func (o *outbox) push(_ context.Context, dp models.DataPoint) error {
	if o.dropped.Load() {
		return errSlowConsumer
	}
	select {
	case o.ch <- dp:
		return nil
	default:
		o.dropped.Store(true)
		o.cancel()
		return errSlowConsumer
	}
}

type streamConn struct {
	conn    *websocket.Conn
	timeout time.Duration
}

func (s *streamConn) writeJSON(v interface{}) error {
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	return s.conn.WriteJSON(v)
}

func (s *streamConn) control(messageType int, data []byte) error {
	return s.conn.WriteControl(messageType, data, time.Now().Add(s.timeout))
}

// streamTopic upgrades the request and pushes every DataPoint of the topic
// until the client goes away, a write fails or the client falls too far
// behind. All socket writes happen on this goroutine.
func (h *InsightsEchoHandler) streamTopic(c echo.Context) error {
	req := &models.TopicRequest{}
	if verr := xhttp.ReadRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.gate.Check(c.Request().Context(), "stream", req); err != nil {
		return h.failure(c, err)
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", applogger.Error(err))
		return nil
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn := &streamConn{conn: ws, timeout: h.ws.WriteTimeout}
	box := newOutbox(streamBuffer, cancel)
	sub, unsubscribe, err := h.subs.Subscribe(ctx, req.Indicator, req.Region, box.push)
	if err != nil {
		h.logger.Warn("stream subscribe failed", applogger.Error(err))
		_ = conn.control(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "subscribe failed"))
		return nil
	}
	defer unsubscribe()

	log := h.logger.With(applogger.String("subscription", sub.ID), applogger.String("topic", sub.Topic.String()))
	log.Info("stream opened")
	defer log.Info("stream closed")

	// the read loop only drains control frames and notices the close
	go func() {
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.ws.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if box.dropped.Load() {
				log.Warn("stream client too slow, closing", applogger.Int("buffer", streamBuffer))
				_ = conn.control(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, errSlowConsumer.Error()))
			}
			return nil
		case dp := <-box.ch:
			if err := conn.writeJSON(dp); err != nil {
				return nil
			}
		case <-ticker.C:
			if err := conn.control(websocket.PingMessage, nil); err != nil {
				return nil
			}
		}
	}
}
