// Package wsrelay implements the Subscriber Session (C4): one WebSocket
// client bridged to one stream's broadcast channel. A session owns two
// goroutines, a read pump that drains inbound control frames and a write
// pump that forwards DataFrames, mirroring the idiomatic gorilla/websocket
// split.
package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"rtsp2ws/internal/loglevel"
	"rtsp2ws/internal/metrics"
	"rtsp2ws/pkg/models"
)

// pongWait bounds how long a session tolerates a silent client before its
// read pump gives up, which in turn ends the session.
const pongWait = 60 * time.Second

// Session bridges one *websocket.Conn to one StreamDefinition's broadcast
// channel for the lifetime of the connection.
type Session struct {
	conn    *websocket.Conn
	stream  *models.StreamDefinition
	metrics *metrics.Metrics
}

// New constructs a Session for an already-upgraded connection.
func New(conn *websocket.Conn, stream *models.StreamDefinition, m *metrics.Metrics) *Session {
	return &Session{conn: conn, stream: stream, metrics: m}
}

// Serve runs the session until the connection closes, ctx is cancelled, or
// the stream's channel closes. It always releases the subscription,
// decrements the stream's live count, and closes the underlying connection
// before returning — every exit path, not just a peer-initiated close, tears
// the socket down instead of leaving it open until the next read deadline.
func (s *Session) Serve(ctx context.Context) {
	s.stream.Bump(1)
	s.metrics.RecordSubscriberStart()
	defer func() {
		s.stream.Bump(-1)
		s.metrics.RecordSubscriberStop()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.conn.Close()

	go s.readPump(ctx, cancel)
	s.writePump(ctx)
}

// readPump drains inbound frames so control frames (Ping) are processed by
// gorilla/websocket's default handlers, which reply Pong with the same
// payload; any other inbound message is ignored. It exits, and cancels the
// session, the moment the connection errors or closes — or promptly once ctx
// is done, rather than waiting out the read deadline: the AfterFunc forces
// the blocked ReadMessage to return immediately by expiring the deadline.
func (s *Session) readPump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	stop := context.AfterFunc(ctx, func() {
		s.conn.SetReadDeadline(time.Now())
	})
	defer stop()

	// Ping the client every half pongWait so a responsive client keeps
	// extending the deadline through the pong handler above.
	go func() {
		ticker := time.NewTicker(pongWait / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pongWait/2)); err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump subscribes to the stream and forwards each DataFrame as a text
// metadata frame followed by its binary payload. A lag signal does not end
// the session; it is only recorded.
func (s *Session) writePump(ctx context.Context) {
	sub := s.stream.Subscribe()

	for {
		frame, lagged, ok := sub.Recv(ctx)
		if !ok {
			return
		}
		if lagged {
			s.metrics.RecordSubscriberLag(s.stream.Path)
		}

		if err := s.send(frame); err != nil {
			if isTerminalSendError(err) {
				return
			}
			loglevel.Logf(loglevel.Warn, "wsrelay %s: send error: %v", s.stream.Path, err)
		}
	}
}

// send writes the text metadata frame and binary payload frame as a pair,
// in that order.
func (s *Session) send(frame models.DataFrame) error {
	meta, err := json.Marshal(frame.Metadata)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, meta); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.BinaryMessage, frame.Payload)
}

// isTerminalSendError classifies a send error as connection-closed,
// already-closed, or broken-pipe; any other error is logged but does not
// end the session.
func isTerminalSendError(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseNoStatusReceived,
	) {
		return true
	}
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EPIPE)
}
