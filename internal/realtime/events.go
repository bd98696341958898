package realtime

import "encoding/json"

// Server-to-client event types.
const (
	EventAck            = "ack"
	EventHistory        = "history"
	EventUsersUpdate    = "users_update"
	EventReceiveMessage = "receive_message"
	EventSessionInvite  = "session_invite"
	EventMeetSignal     = "meet_signal"
)

// Client-to-server event types.
const (
	EventIdentify  = "identify"
	EventJoin      = "join"
	EventMessage   = "message"
	EventMeetStart = "meet_start"
	EventLeave     = "leave"
)

// Envelope is the wire frame for every websocket event in both directions.
// ID correlates a client request with its ack and is otherwise absent.
type Envelope struct {
	Type string          `json:"type"`
	ID   string          `json:"id,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PresencePayload is broadcast to a room whenever its membership changes.
type PresencePayload struct {
	Room  string `json:"room"`
	Count int    `json:"count"`
}

// Encode builds a wire frame. Marshal failures cannot happen for the event
// payload structs used here, so the error is folded into a nil frame that
// Send treats as a no-op.
func Encode(eventType string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(Envelope{Type: eventType, Data: raw})
	if err != nil {
		return nil
	}
	return frame
}

// EncodeAck builds an ack frame correlated to a client request id.
func EncodeAck(id string, data any) []byte {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil
	}
	frame, err := json.Marshal(Envelope{Type: EventAck, ID: id, Data: raw})
	if err != nil {
		return nil
	}
	return frame
}
