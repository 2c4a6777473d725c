package realtime

import (
	"encoding/json"
	"time"
)

// Phoenix channel protocol events. The realtime service is a Phoenix server;
// every frame is a Message tagged with one of these events or with a change
// action.
const (
	eventJoin        = "phx_join"
	eventLeave       = "phx_leave"
	eventReply       = "phx_reply"
	eventError       = "phx_error"
	eventClose       = "phx_close"
	eventHeartbeat   = "heartbeat"
	eventAccessToken = "access_token"

	topicHeartbeat = "phoenix"

	protocolVersion = "1.0.0"
)

// Message is a single frame exchanged with the realtime service.
type Message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// reply is the payload of a phx_reply frame.
type reply struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

func (r reply) ok() bool { return r.Status == "ok" }

// Action is the kind of database change a notification reports.
type Action string

const (
	ActionInsert Action = "INSERT"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

func isChangeEvent(event string) bool {
	switch Action(event) {
	case ActionInsert, ActionUpdate, ActionDelete:
		return true
	}
	return false
}

// Notification is a database change delivered on a joined channel.
type Notification struct {
	// Topic is the channel topic the change arrived on.
	Topic  string `json:"-"`
	Action Action `json:"type"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	// Record is the row after the change. It is empty for deletes.
	Record map[string]any `json:"record"`
	// OldRecord holds the replica-identity columns of the row before the
	// change. It is empty for inserts.
	OldRecord       map[string]any `json:"old_record"`
	CommitTimestamp time.Time      `json:"commit_timestamp"`
}
