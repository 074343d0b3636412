package models

import (
	"encoding/json"
)

// Relay protocol event names.
const (
	EventCreateRoom      = "createRoom"
	EventRoomCreated     = "roomCreated"
	EventGetSalt         = "getSalt"
	EventRoomSalt        = "roomSalt"
	EventJoinRoom        = "joinRoom"
	EventSystemMessage   = "systemMessage"
	EventUserCountUpdate = "userCountUpdate"
	EventChatMessage     = "chatMessage"
	EventMessageSent     = "messageSent"
	EventAddReaction     = "addReactionEncrypted"
	EventReactionUpdate  = "reactionUpdate"
	EventTyping          = "typing"
	EventStopTyping      = "stopTyping"
	EventLeaveRoom       = "leaveRoom"
	EventErrorMessage    = "errorMessage"
)

// Frame is a single websocket text frame: an event name and its JSON payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes an event and payload into a wire frame.
// A nil payload produces a frame with no data.
func NewFrame(event string, data interface{}) ([]byte, error) {
	f := Frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		f.Data = raw
	}
	return json.Marshal(f)
}

// Decode unmarshals the frame payload into v.
func (f *Frame) Decode(v interface{}) error {
	if len(f.Data) == 0 {
		return json.Unmarshal([]byte("null"), v)
	}
	return json.Unmarshal(f.Data, v)
}

// Ciphertext is an AES-GCM payload as produced by clients: base64 nonce and
// base64 ciphertext with the authentication tag appended. The relay never
// inspects it.
type Ciphertext struct {
	IV     string `json:"iv"`
	Cipher string `json:"cipher"`
}

// Present reports whether both parts of the ciphertext were supplied.
func (c *Ciphertext) Present() bool {
	return c != nil && c.IV != "" && c.Cipher != ""
}

// GetSaltRequest is the getSalt payload.
type GetSaltRequest struct {
	Room string `json:"room"`
}

// JoinRoomRequest is the joinRoom payload.
type JoinRoomRequest struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

// RoomSalt is the roomSalt payload.
type RoomSalt struct {
	Room string `json:"room"`
	Salt string `json:"salt"`
}

// ChatEnvelope is the chatMessage payload broadcast to a room.
type ChatEnvelope struct {
	Username  string          `json:"username"`
	Encrypted json.RawMessage `json:"encrypted"` // relayed exactly as the sender supplied it
	Time      string          `json:"time"`
	MessageID string          `json:"messageId"`
}

// MessageSent acknowledges a relayed message to its sender.
type MessageSent struct {
	MessageID string `json:"messageId"`
}

// AddReactionRequest is the addReactionEncrypted payload.
type AddReactionRequest struct {
	MessageID       string      `json:"messageId"`
	EncryptedCipher *Ciphertext `json:"encryptedCipher"`
}

// ReactionUpdate carries the full reaction history of a message.
type ReactionUpdate struct {
	MessageID string          `json:"messageId"`
	History   []ReactionEntry `json:"history"`
}
