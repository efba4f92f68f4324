// Package protocol defines the wire protocol spoken between the bridge and
// the agent gateway over WebSocket. Frames are single JSON objects; the
// gateway pushes zero or more reply events for each dispatched prompt, and
// the dispatch acknowledgement does not imply the run has finished.
package protocol

// ProtocolVersion is bumped on incompatible frame changes.
const ProtocolVersion = 1

// Client → gateway method names.
const (
	MethodConnect  = "connect"
	MethodDispatch = "chat.send"
	MethodAbort    = "chat.abort"
	MethodPing     = "ping"
)

// Gateway → client event names.
const (
	EventConnected = "connected"
	EventReply     = "chat.reply"
	EventRunFailed = "run.failed"
	EventPong      = "pong"
)

// Frame is the envelope for every message in either direction.
type Frame struct {
	// Method is set on client → gateway frames.
	Method string `json:"method,omitempty"`
	// Event is set on gateway → client frames.
	Event string `json:"event,omitempty"`
	// ID correlates a request with its acknowledgement.
	ID string `json:"id,omitempty"`

	SessionKey string `json:"session_key,omitempty"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}
