// Package neon is a Go client for the NeonChat relay. Messages are sealed with
// a key derived from the room password before they leave the process; the
// relay only ever sees ciphertext.
package neon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/gorilla/websocket"
)

// Placeholders shown in place of text that cannot be read.
const (
	UndecryptablePlaceholder = "🔒 Unable to decrypt"
	AwaitingKeyPlaceholder   = "🔒 Encrypted — enter password"
)

// DefaultTypingDebounce is how long after the last Typing call stopTyping is sent.
const DefaultTypingDebounce = 1200 * time.Millisecond

const writeWait = 10 * time.Second

var (
	ErrWrongState     = errors.New("operation not allowed in current session state")
	ErrEmptyPassword  = errors.New("room password required")
	ErrSessionClosed  = errors.New("session closed")
	ErrEmptyMessage   = errors.New("message is empty")
	ErrEmptyRoomCode  = errors.New("room code required")
	ErrEmptyUsername  = errors.New("username required")
	errUnexpectedSalt = errors.New("salt for a room we did not ask for")
)

// State is the client-side position in the room lifecycle.
type State int

const (
	StateLobby State = iota
	StateAwaitingSalt
	StateJoining // key derived, waiting for the relay to admit us
	StateInRoom
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLobby:
		return "lobby"
	case StateAwaitingSalt:
		return "awaiting_salt"
	case StateJoining:
		return "joining"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// EventType names what a session Event carries.
type EventType string

const (
	EventRoomCreated EventType = "room_created"
	EventJoined      EventType = "joined"
	EventSystem      EventType = "system"
	EventError       EventType = "error"
	EventUserCount   EventType = "user_count"
	EventMessage     EventType = "message"
	EventDecrypted   EventType = "decrypted" // a pending message became readable
	EventSent        EventType = "sent"
	EventReactions   EventType = "reactions"
	EventTyping      EventType = "typing"
	EventStopTyping  EventType = "stop_typing"
)

// Message is a chat message as seen by this client.
type Message struct {
	ID        string
	Username  string
	Time      string
	Text      string
	Decrypted bool
}

// Event is delivered on Session.Events.
type Event struct {
	Type      EventType
	Room      string
	Text      string
	Username  string
	Count     int
	MessageID string
	Message   *Message
	Reactions []ReactionGroup
}

// Option configures a Session.
type Option func(*Session)

// WithTypingDebounce overrides DefaultTypingDebounce.
func WithTypingDebounce(d time.Duration) Option {
	return func(s *Session) { s.typingDebounce = d }
}

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(s *Session) { s.eventBuffer = n }
}

// Session is one websocket connection to the relay, bound to at most one room.
type Session struct {
	conn     *websocket.Conn
	username string
	events   chan Event
	done     chan struct{}
	closed   sync.Once

	writeMu sync.Mutex

	mu             sync.Mutex
	state          State
	room           string
	creator        bool
	password       *memguard.Enclave
	key            *RoomKey
	pending        *PendingQueue
	typingTimer    *time.Timer
	typingDebounce time.Duration
	eventBuffer    int
}

// Dial connects to the relay's websocket endpoint, e.g. "ws://localhost:8080/ws".
func Dial(ctx context.Context, url, username string, opts ...Option) (*Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrEmptyUsername
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial relay: %w", err)
	}

	s := &Session{
		conn:           conn,
		username:       username,
		done:           make(chan struct{}),
		pending:        NewPendingQueue(DefaultPendingLimit),
		typingDebounce: DefaultTypingDebounce,
		eventBuffer:    64,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.events = make(chan Event, s.eventBuffer)

	go s.readLoop()
	return s, nil
}

// Events delivers relay activity. It is closed when the connection ends.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the room code, once known.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Username returns the display name this session joins with.
func (s *Session) Username() string {
	return s.username
}

// PendingCount is the number of messages waiting for the room key.
func (s *Session) PendingCount() int {
	return s.pending.Len()
}

// CreateRoom asks the relay for a new room. The password never leaves the
// process; it is combined with the salt the relay issues.
func (s *Session) CreateRoom(password string) error {
	if err := s.beginKeyExchange("", password); err != nil {
		return err
	}
	return s.emit(evCreateRoom, s.username)
}

// Join requests the salt of an existing room and joins once the key is derived.
func (s *Session) Join(room, password string) error {
	room = strings.ToUpper(strings.TrimSpace(room))
	if room == "" {
		return ErrEmptyRoomCode
	}
	if err := s.beginKeyExchange(room, password); err != nil {
		return err
	}
	return s.RequestSalt(room)
}

// RequestSalt asks for a room's salt without changing state.
func (s *Session) RequestSalt(room string) error {
	return s.emit(evGetSalt, saltPayload{Room: room})
}

func (s *Session) beginKeyExchange(room, password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrEmptyPassword
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLobby {
		return ErrWrongState
	}
	s.state = StateAwaitingSalt
	s.room = room
	s.creator = room == ""
	s.password = memguard.NewEnclave([]byte(password))
	return nil
}

// Send encrypts text and relays it to the room.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	key, err := s.roomKey()
	if err != nil {
		return err
	}

	ct, err := key.Encrypt(text)
	if err != nil {
		return err
	}
	if err := s.emit(evChatMessage, ct); err != nil {
		return err
	}
	s.stopTypingNow()
	return nil
}

// React adds (or with ReactionRemove, withdraws) an emoji on a message.
func (s *Session) React(messageID, emoji, action string) error {
	if action == "" {
		action = ReactionAdd
	}
	key, err := s.roomKey()
	if err != nil {
		return err
	}

	plain, err := json.Marshal(Reaction{Action: action, Emoji: emoji, Username: s.username})
	if err != nil {
		return err
	}
	ct, err := key.Encrypt(string(plain))
	if err != nil {
		return err
	}
	return s.emit(evAddReaction, reactionRequest{MessageID: messageID, EncryptedCipher: ct})
}

// Typing tells the room this user is typing. Repeated calls within the
// debounce window send one stopTyping after the last call.
func (s *Session) Typing() error {
	if _, err := s.roomKey(); err != nil {
		return err
	}
	if err := s.emit(evTyping, nil); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
	}
	s.typingTimer = time.AfterFunc(s.typingDebounce, func() {
		_ = s.emit(evStopTyping, nil)
	})
	return nil
}

func (s *Session) stopTypingNow() {
	s.mu.Lock()
	timer := s.typingTimer
	s.typingTimer = nil
	s.mu.Unlock()

	if timer != nil && timer.Stop() {
		_ = s.emit(evStopTyping, nil)
	}
}

// Leave exits the room. The connection stays open but cannot rejoin.
func (s *Session) Leave() error {
	s.mu.Lock()
	if s.state != StateInRoom {
		s.mu.Unlock()
		return ErrWrongState
	}
	s.state = StateClosed
	s.forgetKeysLocked()
	s.mu.Unlock()

	return s.emit(evLeaveRoom, nil)
}

// Close ends the connection and wipes key material.
func (s *Session) Close() error {
	var err error
	s.closed.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.state = StateClosed
		s.forgetKeysLocked()
		s.mu.Unlock()

		s.writeMu.Lock()
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

func (s *Session) forgetKeysLocked() {
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
	s.password = nil
}

func (s *Session) roomKey() (*RoomKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateInRoom || s.key == nil {
		return nil, ErrWrongState
	}
	return s.key, nil
}

func (s *Session) emit(event string, data interface{}) error {
	f := frame{Event: event}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		f.Data = raw
	}
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}

	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *Session) deliver(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Session) readLoop() {
	defer func() {
		s.mu.Lock()
		s.state = StateClosed
		s.forgetKeysLocked()
		s.mu.Unlock()
		close(s.events)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			continue
		}
		s.handle(f)
	}
}

func (s *Session) handle(f frame) {
	switch f.Event {
	case evRoomCreated:
		var room string
		if json.Unmarshal(f.Data, &room) != nil {
			return
		}
		s.mu.Lock()
		if s.state == StateAwaitingSalt && s.room == "" {
			s.room = room
		}
		s.mu.Unlock()
		s.deliver(Event{Type: EventRoomCreated, Room: room})

	case evRoomSalt:
		var p saltPayload
		if json.Unmarshal(f.Data, &p) != nil {
			return
		}
		entered, err := s.completeKeyExchange(p)
		if err != nil {
			s.deliver(Event{Type: EventError, Text: err.Error()})
			return
		}
		if entered {
			s.entered(p.Room)
		}

	case evSystemMessage:
		var text string
		_ = json.Unmarshal(f.Data, &text)
		if room, ok := s.admit(); ok {
			s.entered(room)
		}
		s.deliver(Event{Type: EventSystem, Text: text})

	case evErrorMessage:
		var text string
		_ = json.Unmarshal(f.Data, &text)
		s.mu.Lock()
		if s.state == StateAwaitingSalt || s.state == StateJoining {
			s.resetLocked()
		}
		s.mu.Unlock()
		s.deliver(Event{Type: EventError, Text: text})

	case evUserCount:
		var n int
		_ = json.Unmarshal(f.Data, &n)
		if room, ok := s.admit(); ok {
			s.entered(room)
		}
		s.deliver(Event{Type: EventUserCount, Count: n})

	case evChatMessage:
		var p chatPayload
		if json.Unmarshal(f.Data, &p) != nil {
			return
		}
		s.deliver(Event{Type: EventMessage, MessageID: p.MessageID, Message: s.open(p)})

	case evMessageSent:
		var p messageSent
		_ = json.Unmarshal(f.Data, &p)
		s.deliver(Event{Type: EventSent, MessageID: p.MessageID})

	case evReactionUpdate:
		var p reactionUpdate
		if json.Unmarshal(f.Data, &p) != nil {
			return
		}
		s.mu.Lock()
		key := s.key
		s.mu.Unlock()
		if key == nil {
			return
		}
		s.deliver(Event{Type: EventReactions, MessageID: p.MessageID, Reactions: ReduceReactions(key, p.History)})

	case evTyping:
		var who string
		_ = json.Unmarshal(f.Data, &who)
		s.deliver(Event{Type: EventTyping, Username: who})

	case evStopTyping:
		s.deliver(Event{Type: EventStopTyping})
	}
}

// completeKeyExchange derives the room key from the stored password and the
// issued salt. The creator is already in its room; anyone else moves to
// StateJoining and asks the relay to admit them. entered reports whether the
// session is now in the room.
func (s *Session) completeKeyExchange(p saltPayload) (entered bool, err error) {
	s.mu.Lock()
	if s.state != StateAwaitingSalt || s.password == nil {
		s.mu.Unlock()
		return false, ErrWrongState
	}
	if s.room != "" && s.room != p.Room {
		s.mu.Unlock()
		return false, errUnexpectedSalt
	}
	pw := s.password
	created := s.creator
	s.mu.Unlock()

	// PBKDF2 is slow; Close and Leave must not wait on it.
	key, err := unsealAndDerive(pw, p.Salt)

	s.mu.Lock()
	if s.state != StateAwaitingSalt || s.password != pw {
		s.mu.Unlock()
		if key != nil {
			key.Destroy()
		}
		return false, ErrWrongState
	}
	if err != nil {
		s.resetLocked()
		s.mu.Unlock()
		return false, err
	}
	s.key = key
	s.password = nil
	s.room = p.Room
	if created {
		s.state = StateInRoom
		s.mu.Unlock()
		return true, nil
	}
	s.state = StateJoining
	s.mu.Unlock()

	if err := s.emit(evJoinRoom, joinPayload{Username: s.username, Room: p.Room}); err != nil {
		s.mu.Lock()
		if s.state == StateJoining {
			s.resetLocked()
		}
		s.mu.Unlock()
		return false, err
	}
	return false, nil
}

func unsealAndDerive(pw *memguard.Enclave, salt string) (*RoomKey, error) {
	buf, err := pw.Open()
	if err != nil {
		return nil, fmt.Errorf("unseal password: %w", err)
	}
	defer buf.Destroy()
	return deriveRoomKey(buf.Bytes(), salt)
}

// admit moves a joining session into its room. The relay's first reply to
// joinRoom is either a system message or a user count.
func (s *Session) admit() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJoining {
		return "", false
	}
	s.state = StateInRoom
	return s.room, true
}

// entered announces the room and decrypts whatever arrived before the key.
func (s *Session) entered(room string) {
	s.deliver(Event{Type: EventJoined, Room: room})
	for _, msg := range s.pending.drain() {
		m := s.open(msg)
		s.deliver(Event{Type: EventDecrypted, MessageID: m.ID, Message: m})
	}
}

// resetLocked abandons a key exchange or join and returns to the lobby.
func (s *Session) resetLocked() {
	s.state = StateLobby
	s.room = ""
	s.creator = false
	s.password = nil
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
	s.pending.drain()
}

// open decrypts a chat payload, buffering it when no key is available yet.
func (s *Session) open(p chatPayload) *Message {
	m := &Message{ID: p.MessageID, Username: p.Username, Time: p.Time}

	s.mu.Lock()
	key := s.key
	s.mu.Unlock()

	if key == nil {
		m.Text = AwaitingKeyPlaceholder
		s.pending.add(p)
		return m
	}
	if text, ok := key.Decrypt(p.Encrypted); ok {
		m.Text = text
		m.Decrypted = true
	} else {
		m.Text = UndecryptablePlaceholder
	}
	return m
}
