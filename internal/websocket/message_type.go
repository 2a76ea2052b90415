package websocket

import (
	"bytes"
	"encoding/json"
	"strings"

	"task-notify/internal/models"
)

// MessageType is the "type" discriminator of every frame on the wire.
type MessageType string

const (
	// client -> server
	MessageTypeSubscribe MessageType = "subscribe"
	MessageTypePing      MessageType = "ping"

	// server -> client
	MessageTypeSubscribed MessageType = "subscribed"
	MessageTypePong       MessageType = "pong"
	MessageTypeTaskUpdate MessageType = "task_update"
)

func (mt MessageType) String() string {
	return string(mt)
}

// InboundMessage is a client frame. UserID keeps its original JSON form so it
// can be echoed back unchanged.
type InboundMessage struct {
	Type   MessageType     `json:"type"`
	UserID json.RawMessage `json:"userId,omitempty"`
}

type SubscribedMessage struct {
	Type   MessageType     `json:"type"`
	UserID json.RawMessage `json:"userId"`
}

type PongMessage struct {
	Type MessageType `json:"type"`
}

type TaskUpdateMessage struct {
	Type   MessageType       `json:"type"`
	Action models.TaskAction `json:"action"`
	Task   models.Task       `json:"task"`
}

func NewTaskUpdateMessage(task models.Task, action models.TaskAction) *TaskUpdateMessage {
	return &TaskUpdateMessage{Type: MessageTypeTaskUpdate, Action: action, Task: task}
}

// canonicalUserID maps a JSON number or string to the subscription key, so 42
// and "42" address the same user. null, empty strings and other JSON kinds are rejected.
func canonicalUserID(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return "", false
		}
		return n.String(), true
	default:
		return "", false
	}
}
