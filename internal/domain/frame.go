package domain

// Frame ops exchanged over the event channel.
const (
	OpListen    = "listen"
	OpUnlisten  = "unlisten"
	OpListening = "listening"
	OpEmit      = "emit"
	OpError     = "error"
)

// Frame is a single JSON text message on the websocket event channel.
type Frame struct {
	Op      string `json:"op"`
	Event   string `json:"event,omitempty"`
	Payload string `json:"payload"`
	Error   string `json:"error,omitempty"`
}

// EmitFrame wraps an event for delivery to a listener.
func EmitFrame(e Event) Frame {
	return Frame{Op: OpEmit, Event: e.Name, Payload: e.Payload}
}
