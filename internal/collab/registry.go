package collab

import (
	"sync"

	"go.uber.org/zap"
)

// Registry is the process-wide mapping from document id to the set of
// sessions currently editing it. All room state lives behind one mutex:
// membership changes and fan-out enqueues happen under the lock, so a
// presence snapshot can never observe a half-applied join and every
// session receives broadcasts in the order they were generated. Store
// I/O never runs under this lock.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string]*room
	byConn map[*Session]string
	logger *zap.Logger
}

type room struct {
	members map[*Session]struct{}
}

// NewRegistry constructs an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		rooms:  make(map[string]*room),
		byConn: make(map[*Session]string),
		logger: logger,
	}
}

// Join adds the session to the document's room, creating the room if
// absent. A session belongs to at most one room: joining while a member
// of another room first leaves that room, and the old room's remaining
// members receive an updated presence list.
func (r *Registry) Join(s *Session, documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if previous, ok := r.byConn[s]; ok {
		if previous == documentID {
			return
		}
		r.removeLocked(s, previous)
	}

	current, ok := r.rooms[documentID]
	if !ok {
		current = &room{members: make(map[*Session]struct{})}
		r.rooms[documentID] = current
	}
	current.members[s] = struct{}{}
	r.byConn[s] = documentID

	r.logger.Debug("session joined room",
		zap.String("document_id", documentID),
		zap.String("user_id", s.identity.UserID),
		zap.Int("members", len(current.members)))
}

// Leave removes the session from its current room, if any. The last
// member leaving deletes the room's tracking entry entirely.
func (r *Registry) Leave(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	documentID, ok := r.byConn[s]
	if !ok {
		return
	}
	r.removeLocked(s, documentID)
}

// removeLocked detaches the session from the room and notifies the
// remaining members. Caller holds r.mu.
func (r *Registry) removeLocked(s *Session, documentID string) {
	delete(r.byConn, s)
	current, ok := r.rooms[documentID]
	if !ok {
		return
	}
	delete(current.members, s)
	if len(current.members) == 0 {
		delete(r.rooms, documentID)
		return
	}
	r.broadcastPresenceLocked(documentID, current)
}

// BroadcastPresence delivers the full current member list to every
// member of the document's room, the session that triggered the change
// included. Consumers replace their prior view with each delivery.
func (r *Registry) BroadcastPresence(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[documentID]
	if !ok {
		return
	}
	r.broadcastPresenceLocked(documentID, current)
}

func (r *Registry) broadcastPresenceLocked(documentID string, current *room) {
	members := make([]Identity, 0, len(current.members))
	for member := range current.members {
		members = append(members, member.identity)
	}

	msg, err := NewMessage(EventActiveUsers, members)
	if err != nil {
		r.logger.Error("presence encoding failed",
			zap.Error(err), zap.String("document_id", documentID))
		return
	}
	for member := range current.members {
		member.enqueue(msg)
	}
}

// Relay delivers the event to every member of the sender's room except
// the sender itself. A session in no room relays to nobody.
func (r *Registry) Relay(sender *Session, event string, payload interface{}) {
	msg, err := NewMessage(event, payload)
	if err != nil {
		r.logger.Error("relay encoding failed",
			zap.Error(err), zap.String("event", event))
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	documentID, ok := r.byConn[sender]
	if !ok {
		return
	}
	current, ok := r.rooms[documentID]
	if !ok {
		return
	}
	for member := range current.members {
		if member == sender {
			continue
		}
		member.enqueue(msg)
	}
}

// Presence returns the identities currently in the document's room, or
// nil when no room is tracked for the document.
func (r *Registry) Presence(documentID string) []Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.rooms[documentID]
	if !ok {
		return nil
	}
	members := make([]Identity, 0, len(current.members))
	for member := range current.members {
		members = append(members, member.identity)
	}
	return members
}

// RoomOf reports the document the session is currently joined to.
func (r *Registry) RoomOf(s *Session) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	documentID, ok := r.byConn[s]
	return documentID, ok
}
