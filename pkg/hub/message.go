// Package hub is a channel-based websocket broadcast hub. The web server
// uses it to stream every completed assistant turn to dashboard clients.
package hub

import "time"

// MessageType selects the websocket frame type.
type MessageType int

const (
	JSONMessage MessageType = iota
	BinaryMessage
)

// Message is one frame queued for broadcast.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps raw bytes.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// Turn is the feed entry for one completed request.
type Turn struct {
	RequestID     string    `json:"requestId"`
	SessionID     string    `json:"sessionId,omitempty"`
	Transcript    string    `json:"transcript"`
	Intent        string    `json:"intent"`
	ToolName      string    `json:"toolName,omitempty"`
	ResponseText  string    `json:"responseText"`
	OffTopicCount int       `json:"offTopicCount"`
	Cutoff        bool      `json:"cutoff"`
	Failure       string    `json:"failure,omitempty"`
	Time          time.Time `json:"time"`
}
