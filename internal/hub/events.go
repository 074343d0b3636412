package hub

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/neonchat/neonchat/internal/crypto"
	"github.com/neonchat/neonchat/internal/metrics"
	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/rooms"
)

// Error texts sent to clients in errorMessage frames.
const (
	msgRoomRequired     = "Room required"
	msgRoomNotFound     = "Room does not exist"
	msgUsernameRequired = "Username required"
	msgAlreadyInRoom    = "Already in a room"
	msgCreateFailed     = "Could not create room"
	msgSaltFailed       = "Could not issue room salt"
	msgSlowDown         = "Slow down"
)

const maxUsernameRunes = 32

// handle dispatches one inbound frame. Runs on the hub goroutine.
func (h *Hub) handle(c *Client, f models.Frame) {
	metrics.EventsTotal.WithLabelValues(eventLabel(f.Event)).Inc()

	switch f.Event {
	case models.EventCreateRoom:
		h.handleCreateRoom(c, f)
	case models.EventGetSalt:
		h.handleGetSalt(c, f)
	case models.EventJoinRoom:
		h.handleJoinRoom(c, f)
	case models.EventChatMessage:
		h.handleChatMessage(c, f)
	case models.EventAddReaction:
		h.handleAddReaction(c, f)
	case models.EventTyping:
		h.handleTyping(c)
	case models.EventStopTyping:
		h.handleStopTyping(c)
	case models.EventLeaveRoom:
		h.handleLeaveRoom(c)
	default:
		h.logger.Debug().Str("conn", c.ID).Str("event", f.Event).Msg("ignoring unknown event")
	}
}

func (h *Hub) handleCreateRoom(c *Client, f models.Frame) {
	var username string
	_ = f.Decode(&username)
	username = sanitizeUsername(username)
	if username == "" {
		h.sendTo(c, models.EventErrorMessage, msgUsernameRequired)
		return
	}
	if c.state != StateUnbound {
		h.sendTo(c, models.EventErrorMessage, msgAlreadyInRoom)
		return
	}

	code, salt, err := h.registry.CreateRoom()
	if err != nil {
		h.logger.Error().Err(err).Str("conn", c.ID).Msg("create room failed")
		h.sendTo(c, models.EventErrorMessage, msgCreateFailed)
		return
	}
	if err := h.registry.Join(code, c.ID); err != nil {
		h.logger.Error().Err(err).Str("conn", c.ID).Msg("join created room failed")
		h.sendTo(c, models.EventErrorMessage, msgCreateFailed)
		return
	}
	h.bind(c, username, code, h.registry.AssignColor(code, c.ID))
	metrics.RoomsCreated.Inc()

	h.logger.Info().Str("conn", c.ID).Str("room", code).Msg("room created")

	h.sendTo(c, models.EventRoomCreated, code)
	h.sendTo(c, models.EventRoomSalt, models.RoomSalt{Room: code, Salt: salt})
	h.sendTo(c, models.EventSystemMessage, fmt.Sprintf("Created & joined room %s", code))
	h.broadcastCount(code)
}

func (h *Hub) handleGetSalt(c *Client, f models.Frame) {
	var req models.GetSaltRequest
	_ = f.Decode(&req)
	code := normalizeCode(req.Room)
	if code == "" {
		h.sendTo(c, models.EventErrorMessage, msgRoomRequired)
		return
	}
	if !crypto.IsRoomCode(code) {
		h.sendTo(c, models.EventErrorMessage, msgRoomNotFound)
		return
	}

	salt, err := h.registry.GetOrCreateSalt(code)
	if errors.Is(err, rooms.ErrRoomNotFound) {
		h.sendTo(c, models.EventErrorMessage, msgRoomNotFound)
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Str("conn", c.ID).Str("room", code).Msg("salt lookup failed")
		h.sendTo(c, models.EventErrorMessage, msgSaltFailed)
		return
	}

	h.sendTo(c, models.EventRoomSalt, models.RoomSalt{Room: code, Salt: salt})
}

func (h *Hub) handleJoinRoom(c *Client, f models.Frame) {
	var req models.JoinRoomRequest
	_ = f.Decode(&req)
	code := normalizeCode(req.Room)
	if code == "" {
		h.sendTo(c, models.EventErrorMessage, msgRoomRequired)
		return
	}
	if !crypto.IsRoomCode(code) {
		h.sendTo(c, models.EventErrorMessage, msgRoomNotFound)
		return
	}
	if !h.registry.Exists(code) {
		h.sendTo(c, models.EventErrorMessage, msgRoomNotFound)
		return
	}
	// Browser clients join again after receiving the salt of a room they created
	if c.state == StateBound && c.room == code {
		return
	}
	if c.state != StateUnbound {
		h.sendTo(c, models.EventErrorMessage, msgAlreadyInRoom)
		return
	}
	username := sanitizeUsername(req.Username)
	if username == "" {
		h.sendTo(c, models.EventErrorMessage, msgUsernameRequired)
		return
	}

	color := h.registry.AssignColor(code, c.ID)
	if err := h.registry.Join(code, c.ID); err != nil {
		h.sendTo(c, models.EventErrorMessage, msgRoomNotFound)
		return
	}
	h.bind(c, username, code, color)

	h.logger.Info().Str("conn", c.ID).Str("room", code).Int("members", h.registry.Count(code)).Msg("joined room")

	h.sendTo(c, models.EventSystemMessage, fmt.Sprintf("Joined room %s", code))
	h.toRoom(code, c, models.EventSystemMessage, fmt.Sprintf("%s joined", username))
	h.broadcastCount(code)
}

func (h *Hub) handleChatMessage(c *Client, f models.Frame) {
	if c.state != StateBound {
		return
	}
	var ct models.Ciphertext
	if err := f.Decode(&ct); err != nil || !ct.Present() {
		h.logger.Debug().Str("conn", c.ID).Msg("dropping chat message without ciphertext")
		return
	}
	if !h.allowFrame(c, f.Event) {
		return
	}

	now := h.now()
	ms := now.UnixMilli()
	if ms <= c.lastMessageMs {
		ms = c.lastMessageMs + 1
	}
	c.lastMessageMs = ms
	messageID := fmt.Sprintf("%s-%d", c.ID, ms)

	h.sendTo(c, models.EventMessageSent, models.MessageSent{MessageID: messageID})
	h.toRoom(c.room, nil, models.EventChatMessage, models.ChatEnvelope{
		Username:  c.username,
		Encrypted: f.Data,
		Time:      now.Format("15:04"),
		MessageID: messageID,
	})
	metrics.MessagesRelayed.Inc()
}

func (h *Hub) handleAddReaction(c *Client, f models.Frame) {
	if c.state != StateBound {
		return
	}
	var req models.AddReactionRequest
	if err := f.Decode(&req); err != nil || req.MessageID == "" || !req.EncryptedCipher.Present() {
		return
	}
	if !h.allowFrame(c, f.Event) {
		return
	}

	history, err := h.registry.RecordReaction(c.room, req.MessageID, *req.EncryptedCipher)
	if err != nil {
		h.logger.Error().Err(err).Str("conn", c.ID).Msg("record reaction failed")
		return
	}
	metrics.ReactionsRecorded.Inc()

	h.toRoom(c.room, nil, models.EventReactionUpdate, models.ReactionUpdate{
		MessageID: req.MessageID,
		History:   history,
	})
}

func (h *Hub) handleTyping(c *Client) {
	if c.state != StateBound || c.username == "" {
		return
	}
	h.toRoom(c.room, c, models.EventTyping, c.username)
}

func (h *Hub) handleStopTyping(c *Client) {
	if c.state != StateBound {
		return
	}
	h.toRoom(c.room, c, models.EventStopTyping, nil)
}

func (h *Hub) handleLeaveRoom(c *Client) {
	if c.state != StateBound {
		return
	}
	h.closeSession(c, "left")
}

func (h *Hub) bind(c *Client, username, code, color string) {
	c.state = StateBound
	c.username = username
	c.room = code
	c.color = color
}

// closeSession removes a bound connection from its room and tells the
// remaining members.
func (h *Hub) closeSession(c *Client, verb string) {
	code := c.room
	remaining := h.registry.Leave(code, c.ID)
	c.state = StateClosed

	h.logger.Info().Str("conn", c.ID).Str("room", code).Int("members", remaining).Str("reason", verb).Msg("left room")

	h.toRoom(code, nil, models.EventSystemMessage, fmt.Sprintf("%s %s", c.username, verb))
	h.broadcastCount(code)
}

// normalizeCode trims and upper-cases a room code as typed by a user.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// sanitizeUsername trims, strips control characters and caps the length.
func sanitizeUsername(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	if runes := []rune(name); len(runes) > maxUsernameRunes {
		name = string(runes[:maxUsernameRunes])
	}

	return name
}

// eventLabel bounds metric cardinality to known event names.
func eventLabel(event string) string {
	switch event {
	case models.EventCreateRoom, models.EventGetSalt, models.EventJoinRoom,
		models.EventChatMessage, models.EventAddReaction, models.EventTyping,
		models.EventStopTyping, models.EventLeaveRoom:
		return event
	}
	return "unknown"
}
