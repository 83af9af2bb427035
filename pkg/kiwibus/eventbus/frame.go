package eventbus

import "encoding/json"

// Frame types of the bridge protocol spoken over the WebSocket.
const (
	// Client to server
	FrameSend       = "send"
	FramePublish    = "publish"
	FrameRegister   = "register"
	FrameUnregister = "unregister"
	FramePing       = "ping"

	// Server to client
	FrameReceive = "rec"
	FrameError   = "err"
	FramePong    = "pong"
)

// Frame is one JSON message on the wire. Body holds the encoded Message for
// outbound frames and the reply or event for inbound ones.
type Frame struct {
	Type         string          `json:"type"`
	Address      string          `json:"address,omitempty"`
	Body         json.RawMessage `json:"body,omitempty"`
	ReplyAddress string          `json:"replyAddress,omitempty"`
	Message      string          `json:"message,omitempty"` // error text for "err" frames
}
