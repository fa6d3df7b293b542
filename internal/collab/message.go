package collab

import "encoding/json"

// Realtime event vocabulary. Client-to-server events are dispatched by
// the gateway's read loop; server-to-client events are fanned out by the
// registry or pushed directly to a single session.
const (
	EventJoinDocument   = "join-document"
	EventLoadDocument   = "load-document"
	EventSendChanges    = "send-changes"
	EventReceiveChanges = "receive-changes"
	EventActiveUsers    = "active-users"
	EventSaveDocument   = "save-document"
	EventCursorMove     = "cursor-move"
	EventCursorUpdate   = "cursor-update"
)

// Message is the wire envelope for every realtime event, in both
// directions.
type Message struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewMessage marshals the payload into a Message envelope.
func NewMessage(event string, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Event: event}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Event: event, Data: data}, nil
}

// Identity is the stable identity bound to a session for its lifetime.
type Identity struct {
	UserID      string `json:"id"`
	DisplayName string `json:"name"`
}

// SavePayload carries an explicit save trigger from a client.
type SavePayload struct {
	DocumentID string `json:"documentId"`
	Content    string `json:"content"`
}

// CursorUpdatePayload attributes a relayed cursor position to its sender.
// The cursor field is opaque to the server.
type CursorUpdatePayload struct {
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
	Cursor   json.RawMessage `json:"cursor,omitempty"`
}
