package collab

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	outboundQueueSize = 64

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 1 << 20
)

// Session is one authenticated duplex connection. The bound identity
// never changes for the session's lifetime. Outbound messages flow
// through a single buffered queue drained by the write pump, which
// preserves the order in which they were enqueued.
type Session struct {
	id       string
	identity Identity
	conn     *websocket.Conn
	outbound chan Message
	done     chan struct{}
	once     sync.Once
	logger   *zap.Logger
}

func newSession(id string, identity Identity, conn *websocket.Conn, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:       id,
		identity: identity,
		conn:     conn,
		outbound: make(chan Message, outboundQueueSize),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Identity returns the identity bound at admission.
func (s *Session) Identity() Identity {
	return s.identity
}

// enqueue hands a message to the write pump. A session whose queue is
// full is closed rather than allowed to silently fall behind; the
// client reconnects and rejoins to resynchronize.
func (s *Session) enqueue(msg Message) {
	select {
	case <-s.done:
	case s.outbound <- msg:
	default:
		s.logger.Warn("outbound queue full, closing session",
			zap.String("session_id", s.id),
			zap.String("user_id", s.identity.UserID))
		s.close()
	}
}

func (s *Session) close() {
	s.once.Do(func() {
		close(s.done)
		if s.conn != nil {
			s.conn.Close()
		}
	})
}

// writePump drains the outbound queue onto the websocket and keeps the
// connection alive with periodic pings. It exits when the session is
// closed or a write fails.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			return
		case msg := <-s.outbound:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
