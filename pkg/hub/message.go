// Package hub provides a thread-safe websocket broadcast hub using the
// channel-based fan-out pattern. Slow clients are dropped, never
// awaited, so one stalled viewer cannot hold up the gaze stream.
package hub

// MessageType indicates the websocket message format.
type MessageType int

const (
	// JSONMessage is a JSON-encoded message.
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data, e.g. JPEG preview frames.
	BinaryMessage
)

// Message is one unit of broadcast to connected clients.
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage wraps pre-encoded JSON bytes.
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage wraps binary data.
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}
