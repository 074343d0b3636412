package models

// Reaction actions carried inside encrypted reaction payloads.
const (
	ReactionAdd    = "add"
	ReactionRemove = "remove"
)

// ReactionEntry is one stored element of a message's reaction history.
type ReactionEntry struct {
	Ciphertext Ciphertext `json:"ciphertext"`
	Time       int64      `json:"time"` // Unix ms, server clock
}

// Reaction is the plaintext a ReactionEntry decrypts to. Only clients ever see it.
type Reaction struct {
	Action   string `json:"action"`
	Emoji    string `json:"emoji"`
	Username string `json:"username"`
}
