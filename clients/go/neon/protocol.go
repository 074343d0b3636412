package neon

import "encoding/json"

// Relay event names.
const (
	evCreateRoom     = "createRoom"
	evGetSalt        = "getSalt"
	evJoinRoom       = "joinRoom"
	evChatMessage    = "chatMessage"
	evAddReaction    = "addReactionEncrypted"
	evTyping         = "typing"
	evStopTyping     = "stopTyping"
	evLeaveRoom      = "leaveRoom"
	evRoomCreated    = "roomCreated"
	evRoomSalt       = "roomSalt"
	evSystemMessage  = "systemMessage"
	evErrorMessage   = "errorMessage"
	evUserCount      = "userCountUpdate"
	evMessageSent    = "messageSent"
	evReactionUpdate = "reactionUpdate"
)

// Reaction actions.
const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
)

// Ciphertext is an AES-GCM sealed payload as carried by the relay.
type Ciphertext struct {
	IV     string `json:"iv"`
	Cipher string `json:"cipher"`
}

// ReactionEntry is one opaque entry of a message's reaction history.
type ReactionEntry struct {
	Ciphertext Ciphertext `json:"ciphertext"`
	Time       int64      `json:"time"`
}

// Reaction is the plaintext inside a reaction ciphertext.
type Reaction struct {
	Action   string `json:"action"`
	Emoji    string `json:"emoji"`
	Username string `json:"username"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type saltPayload struct {
	Room string `json:"room"`
	Salt string `json:"salt"`
}

type joinPayload struct {
	Username string `json:"username"`
	Room     string `json:"room"`
}

type chatPayload struct {
	Username  string     `json:"username"`
	Encrypted Ciphertext `json:"encrypted"`
	Time      string     `json:"time"`
	MessageID string     `json:"messageId"`
}

type reactionRequest struct {
	MessageID       string     `json:"messageId"`
	EncryptedCipher Ciphertext `json:"encryptedCipher"`
}

type reactionUpdate struct {
	MessageID string          `json:"messageId"`
	History   []ReactionEntry `json:"history"`
}

type messageSent struct {
	MessageID string `json:"messageId"`
}
