// Package rooms holds the in-memory state of live chat rooms: salts, member
// colors, membership sets and reaction histories.
//
// A Registry is not safe for concurrent use. The hub owns one and touches it
// only from its event loop.
package rooms

import (
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"time"

	"github.com/neonchat/neonchat/internal/crypto"
	"github.com/neonchat/neonchat/internal/models"
)

var (
	ErrRoomNotFound       = errors.New("room does not exist")
	ErrCodeSpaceExhausted = errors.New("could not allocate an unused room code")
)

// Palette is the fixed set of display colors handed out to room members.
var Palette = []string{
	"#5865F2", "#F04747", "#43B581", "#FAA61A", "#7289DA", "#9B59B6",
	"#2ECC71", "#3498DB", "#E67E22", "#E84393", "#00B894", "#D63031",
}

const (
	// DefaultIdleTTL is how long an empty room's residual state is kept.
	DefaultIdleTTL = 10 * time.Minute

	maxCodeAttempts = 32
)

type room struct {
	salt       string
	colors     map[string]string
	members    map[string]struct{}
	reactions  map[string][]models.ReactionEntry
	emptySince time.Time
}

// Registry maps room codes to their state.
type Registry struct {
	rooms   map[string]*room
	idleTTL time.Duration

	newCode func() string
	newSalt func() (string, error)
	now     func() time.Time
	intn    func(int) int
}

// Option configures a Registry.
type Option func(*Registry)

// WithIdleTTL sets how long an empty room survives before Sweep evicts it.
func WithIdleTTL(ttl time.Duration) Option {
	return func(r *Registry) { r.idleTTL = ttl }
}

// WithCodeGenerator replaces the room code source.
func WithCodeGenerator(fn func() string) Option {
	return func(r *Registry) { r.newCode = fn }
}

// WithClock replaces the time source.
func WithClock(fn func() time.Time) Option {
	return func(r *Registry) { r.now = fn }
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:   make(map[string]*room),
		idleTTL: DefaultIdleTTL,
		newCode: crypto.GenerateRoomCode,
		newSalt: crypto.GenerateSalt,
		now:     time.Now,
		intn:    mrand.IntN,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateRoom allocates a new room code and salt. Codes still resident in the
// registry, including empty rooms awaiting eviction, are never reused.
func (r *Registry) CreateRoom() (string, string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code := r.newCode()
		if _, taken := r.rooms[code]; taken {
			continue
		}

		salt, err := r.newSalt()
		if err != nil {
			return "", "", err
		}

		r.rooms[code] = &room{
			salt:       salt,
			colors:     make(map[string]string),
			members:    make(map[string]struct{}),
			reactions:  make(map[string][]models.ReactionEntry),
			emptySince: r.now(),
		}
		return code, salt, nil
	}
	return "", "", ErrCodeSpaceExhausted
}

// GetOrCreateSalt returns the salt of a room with active members, generating
// one if the room somehow has none.
func (r *Registry) GetOrCreateSalt(code string) (string, error) {
	rm, ok := r.rooms[code]
	if !ok || len(rm.members) == 0 {
		return "", ErrRoomNotFound
	}
	if rm.salt == "" {
		salt, err := r.newSalt()
		if err != nil {
			return "", err
		}
		rm.salt = salt
	}
	return rm.salt, nil
}

// Exists reports whether the room has at least one active member. Empty rooms
// are indistinguishable from rooms that never existed.
func (r *Registry) Exists(code string) bool {
	rm, ok := r.rooms[code]
	return ok && len(rm.members) > 0
}

// Join adds a connection to the room's membership set.
func (r *Registry) Join(code, connID string) error {
	rm, ok := r.rooms[code]
	if !ok {
		return fmt.Errorf("join %s: %w", code, ErrRoomNotFound)
	}
	rm.members[connID] = struct{}{}
	rm.emptySince = time.Time{}
	return nil
}

// Leave removes a connection from the room, frees its color and returns the
// remaining member count.
func (r *Registry) Leave(code, connID string) int {
	rm, ok := r.rooms[code]
	if !ok {
		return 0
	}
	delete(rm.members, connID)
	delete(rm.colors, connID)
	if len(rm.members) == 0 {
		rm.emptySince = r.now()
	}
	return len(rm.members)
}

// Count returns the live membership cardinality of a room.
func (r *Registry) Count(code string) int {
	rm, ok := r.rooms[code]
	if !ok {
		return 0
	}
	return len(rm.members)
}

// Members returns the connection ids currently in the room.
func (r *Registry) Members(code string) []string {
	rm, ok := r.rooms[code]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(rm.members))
	for id := range rm.members {
		ids = append(ids, id)
	}
	return ids
}

// AssignColor gives the connection the first palette color unused in the
// room. Once the palette is exhausted a random palette color is reused.
func (r *Registry) AssignColor(code, connID string) string {
	rm, ok := r.rooms[code]
	if !ok {
		return Palette[r.intn(len(Palette))]
	}

	used := make(map[string]bool, len(rm.colors))
	for id, c := range rm.colors {
		if id != connID {
			used[c] = true
		}
	}

	color := ""
	for _, c := range Palette {
		if !used[c] {
			color = c
			break
		}
	}
	if color == "" {
		color = Palette[r.intn(len(Palette))]
	}
	rm.colors[connID] = color
	return color
}

// Color returns the color assigned to a connection, if any.
func (r *Registry) Color(code, connID string) string {
	rm, ok := r.rooms[code]
	if !ok {
		return ""
	}
	return rm.colors[connID]
}

// RecordReaction appends an opaque reaction ciphertext to a message's history
// and returns a copy of the full ordered history.
func (r *Registry) RecordReaction(code, messageID string, ct models.Ciphertext) ([]models.ReactionEntry, error) {
	rm, ok := r.rooms[code]
	if !ok {
		return nil, fmt.Errorf("record reaction in %s: %w", code, ErrRoomNotFound)
	}

	history := append(rm.reactions[messageID], models.ReactionEntry{
		Ciphertext: ct,
		Time:       r.now().UnixMilli(),
	})
	rm.reactions[messageID] = history

	out := make([]models.ReactionEntry, len(history))
	copy(out, history)
	return out, nil
}

// ReactionHistory returns a copy of the reaction history of a message.
func (r *Registry) ReactionHistory(code, messageID string) []models.ReactionEntry {
	rm, ok := r.rooms[code]
	if !ok {
		return nil
	}
	history := rm.reactions[messageID]
	out := make([]models.ReactionEntry, len(history))
	copy(out, history)
	return out
}

// Sweep evicts rooms that have been empty for longer than the idle TTL and
// returns their codes.
func (r *Registry) Sweep(now time.Time) []string {
	var evicted []string
	for code, rm := range r.rooms {
		if len(rm.members) > 0 || rm.emptySince.IsZero() {
			continue
		}
		if now.Sub(rm.emptySince) >= r.idleTTL {
			delete(r.rooms, code)
			evicted = append(evicted, code)
		}
	}
	return evicted
}

// Stats summarises resident state.
func (r *Registry) Stats() models.RoomStats {
	var s models.RoomStats
	s.ResidentRooms = len(r.rooms)
	for _, rm := range r.rooms {
		if len(rm.members) > 0 {
			s.ActiveRooms++
		}
		s.ReactionHistories += len(rm.reactions)
	}
	return s
}
