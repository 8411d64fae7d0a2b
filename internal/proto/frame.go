package proto

import "encoding/json"

// Frame is the envelope for every message on the wire, in both directions.
type Frame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	ReplyTo string          `json:"reply_to,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

const (
	// Control frame types. Any other type is an application message and is
	// handed to the session layer untouched.
	FrameHello     = "hello"
	FrameWelcome   = "welcome"
	FrameError     = "error"
	FrameSyncBegin = "sync-begin"
	FrameSyncState = "sync-state"
	FrameSyncEnd   = "sync-end"
	FrameAuthority = "authority"
)

// HelloData is sent by the client as the first frame on a connection.
type HelloData struct {
	Session  string `json:"session"`
	Token    string `json:"token,omitempty"`
	Protocol string `json:"protocol"`
}

// WelcomeData acknowledges a successful handshake.
type WelcomeData struct {
	ClientID  string `json:"client_id"`
	JoinOrder int64  `json:"join_order"`
	Protocol  string `json:"protocol"`
}

// SyncStateData carries one retained state entry during synchronization.
type SyncStateData struct {
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`
}

// AuthorityData informs a client of its authoritative status.
type AuthorityData struct {
	Authoritative bool `json:"authoritative"`
}

// ErrorData describes a protocol-level error response.
type ErrorData struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

const (
	ErrCodeBadHello             = "bad_hello"
	ErrCodeIncompatibleProtocol = "incompatible_protocol"
	ErrCodeUnauthorized         = "unauthorized"
	ErrCodeInternal             = "internal_error"
)
