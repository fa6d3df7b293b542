package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errMissingCredential = errors.New("collab: missing credential")

// IdentityVerifier turns a presented credential into a trusted identity
// or rejects the connection.
type IdentityVerifier interface {
	VerifyCredential(ctx context.Context, credential string) (Identity, error)
}

// DocumentStore is the durable-store surface the realtime layer
// consumes: a point read for the join protocol and the save operation
// of the persistence coordinator.
type DocumentStore interface {
	Content(ctx context.Context, documentID string) (string, error)
	Save(ctx context.Context, documentID, content, savedBy string) error
}

// GatewayConfig describes the dependencies of the session gateway.
type GatewayConfig struct {
	Verifier IdentityVerifier
	Store    DocumentStore
	Registry *Registry
	Logger   *zap.Logger

	// CheckOrigin overrides the websocket upgrader's origin check.
	CheckOrigin func(r *http.Request) bool
}

// Gateway admits authenticated websocket connections and dispatches
// their realtime events. A connection whose credential does not verify
// is rejected before the upgrade, so an unauthenticated client can
// never reach a room.
type Gateway struct {
	verifier IdentityVerifier
	store    DocumentStore
	registry *Registry
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[*Session]struct{}
	closed   bool
}

// NewGateway constructs the gateway.
func NewGateway(cfg GatewayConfig) (*Gateway, error) {
	if cfg.Verifier == nil {
		return nil, errors.New("collab: identity verifier is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("collab: document store is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("collab: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Gateway{
		verifier: cfg.Verifier,
		store:    cfg.Store,
		registry: cfg.Registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		sessions: make(map[*Session]struct{}),
	}, nil
}

// ServeHTTP authenticates the handshake, upgrades the connection and
// runs the session until it disconnects.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, err := g.authenticate(r)
	if err != nil {
		g.logger.Warn("websocket authentication failed", zap.Error(err))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	session := newSession(uuid.NewString(), identity, conn, g.logger)
	if !g.track(session) {
		conn.Close()
		return
	}

	g.logger.Info("session connected",
		zap.String("session_id", session.id),
		zap.String("user_id", identity.UserID))

	go session.writePump()
	g.readLoop(r.Context(), session)

	g.registry.Leave(session)
	session.close()
	g.untrack(session)

	g.logger.Info("session disconnected",
		zap.String("session_id", session.id),
		zap.String("user_id", identity.UserID))
}

// Shutdown closes every active session. New connections are refused
// once a shutdown has begun.
func (g *Gateway) Shutdown() {
	g.mu.Lock()
	g.closed = true
	active := make([]*Session, 0, len(g.sessions))
	for session := range g.sessions {
		active = append(active, session)
	}
	g.mu.Unlock()

	for _, session := range active {
		session.close()
	}
}

func (g *Gateway) authenticate(r *http.Request) (Identity, error) {
	credential := r.URL.Query().Get("token")
	if credential == "" {
		header := r.Header.Get("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			credential = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	if credential == "" {
		return Identity{}, errMissingCredential
	}
	return g.verifier.VerifyCredential(r.Context(), credential)
}

func (g *Gateway) track(session *Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.sessions[session] = struct{}{}
	return true
}

func (g *Gateway) untrack(session *Session) {
	g.mu.Lock()
	delete(g.sessions, session)
	g.mu.Unlock()
}

func (g *Gateway) readLoop(ctx context.Context, session *Session) {
	conn := session.conn
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("websocket read failed",
					zap.Error(err), zap.String("session_id", session.id))
			}
			return
		}
		g.dispatch(ctx, session, msg)
	}
}

func (g *Gateway) dispatch(ctx context.Context, session *Session, msg Message) {
	switch msg.Event {
	case EventJoinDocument:
		var documentID string
		if err := json.Unmarshal(msg.Data, &documentID); err != nil || documentID == "" {
			g.logger.Warn("malformed join payload",
				zap.Error(err), zap.String("session_id", session.id))
			return
		}
		g.handleJoin(ctx, session, documentID)

	case EventSendChanges:
		g.registry.Relay(session, EventReceiveChanges, json.RawMessage(msg.Data))

	case EventSaveDocument:
		var payload SavePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil || payload.DocumentID == "" {
			g.logger.Warn("malformed save payload",
				zap.Error(err), zap.String("session_id", session.id))
			return
		}
		g.handleSave(ctx, session, payload)

	case EventCursorMove:
		update := CursorUpdatePayload{
			UserID:   session.identity.UserID,
			UserName: session.identity.DisplayName,
			Cursor:   json.RawMessage(msg.Data),
		}
		g.registry.Relay(session, EventCursorUpdate, update)

	default:
		g.logger.Debug("unknown event",
			zap.String("event", msg.Event), zap.String("session_id", session.id))
	}
}

// handleJoin runs the join protocol: membership first, then the point
// read of current content pushed only to the joiner, then a presence
// broadcast to the whole room. A failed content read degrades to a join
// without a content push; the join itself stands.
func (g *Gateway) handleJoin(ctx context.Context, session *Session, documentID string) {
	g.registry.Join(session, documentID)

	content, err := g.store.Content(ctx, documentID)
	if err != nil {
		g.logger.Warn("document load failed on join",
			zap.Error(err),
			zap.String("document_id", documentID),
			zap.String("user_id", session.identity.UserID))
	} else {
		msg, err := NewMessage(EventLoadDocument, content)
		if err != nil {
			g.logger.Error("load encoding failed", zap.Error(err))
		} else {
			session.enqueue(msg)
		}
	}

	g.registry.BroadcastPresence(documentID)
}

// handleSave executes one save trigger: one call, one new version. A
// store failure is logged and the save abandoned; the client receives
// no acknowledgement either way.
func (g *Gateway) handleSave(ctx context.Context, session *Session, payload SavePayload) {
	if err := g.store.Save(ctx, payload.DocumentID, payload.Content, session.identity.UserID); err != nil {
		g.logger.Error("document save failed",
			zap.Error(err),
			zap.String("document_id", payload.DocumentID),
			zap.String("user_id", session.identity.UserID))
		return
	}
	g.logger.Info("document saved",
		zap.String("document_id", payload.DocumentID),
		zap.String("user_id", session.identity.UserID))
}
