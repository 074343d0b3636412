package rooms

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/neonchat/neonchat/internal/crypto"
	"github.com/neonchat/neonchat/internal/models"
)

// fakeClock is advanced manually by tests.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func sequenceCodes(codes ...string) func() string {
	i := 0
	return func() string {
		c := codes[i%len(codes)]
		i++
		return c
	}
}

func TestCreateRoom(t *testing.T) {
	r := NewRegistry()

	code, salt, err := r.CreateRoom()
	require.NoError(t, err)
	require.True(t, crypto.IsRoomCode(code), "unexpected code %q", code)

	raw, err := base64.StdEncoding.DecodeString(salt)
	require.NoError(t, err)
	require.Len(t, raw, crypto.SaltSize)

	// Created but not yet joined rooms are not visible.
	require.False(t, r.Exists(code))
}

func TestCreateRoomRegeneratesOnCollision(t *testing.T) {
	r := NewRegistry(WithCodeGenerator(sequenceCodes("ROOM01", "ROOM01", "ROOM02")))

	first, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.Equal(t, "ROOM01", first)

	second, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.Equal(t, "ROOM02", second)
}

func TestCreateRoomExhausted(t *testing.T) {
	r := NewRegistry(WithCodeGenerator(func() string { return "ROOM01" }))

	_, _, err := r.CreateRoom()
	require.NoError(t, err)

	_, _, err = r.CreateRoom()
	require.ErrorIs(t, err, ErrCodeSpaceExhausted)
}

func TestGetOrCreateSalt(t *testing.T) {
	r := NewRegistry()

	_, err := r.GetOrCreateSalt("GHOST9")
	require.ErrorIs(t, err, ErrRoomNotFound)
	require.Equal(t, 0, r.Stats().ResidentRooms, "lookup must not mutate state")

	code, salt, err := r.CreateRoom()
	require.NoError(t, err)
	require.NoError(t, r.Join(code, "conn-a"))

	got, err := r.GetOrCreateSalt(code)
	require.NoError(t, err)
	require.Equal(t, salt, got)

	// Salt is immutable for the room's lifetime.
	again, err := r.GetOrCreateSalt(code)
	require.NoError(t, err)
	require.Equal(t, salt, again)
}

func TestGetOrCreateSaltLazilyGenerates(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.NoError(t, r.Join(code, "conn-a"))

	r.rooms[code].salt = ""

	salt, err := r.GetOrCreateSalt(code)
	require.NoError(t, err)
	require.NotEmpty(t, salt)
	require.Equal(t, salt, r.rooms[code].salt)
}

func TestGetOrCreateSaltEmptyRoom(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.NoError(t, r.Join(code, "conn-a"))
	require.Equal(t, 0, r.Leave(code, "conn-a"))

	_, err = r.GetOrCreateSalt(code)
	require.ErrorIs(t, err, ErrRoomNotFound)
}

func TestMembership(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.CreateRoom()
	require.NoError(t, err)

	require.ErrorIs(t, r.Join("NOPE00", "x"), ErrRoomNotFound)

	require.NoError(t, r.Join(code, "a"))
	require.NoError(t, r.Join(code, "b"))
	require.NoError(t, r.Join(code, "b"))
	require.Equal(t, 2, r.Count(code))
	require.ElementsMatch(t, []string{"a", "b"}, r.Members(code))

	require.Equal(t, 1, r.Leave(code, "a"))
	require.Equal(t, 1, r.Count(code))
	require.True(t, r.Exists(code))

	require.Equal(t, 0, r.Leave(code, "b"))
	require.False(t, r.Exists(code))
	require.Equal(t, 0, r.Leave("NOPE00", "b"))
}

func TestAssignColorUniqueWithinPalette(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.CreateRoom()
	require.NoError(t, err)

	seen := make(map[string]bool)
	for i := 0; i < len(Palette); i++ {
		id := fmt.Sprintf("conn-%d", i)
		require.NoError(t, r.Join(code, id))
		c := r.AssignColor(code, id)
		require.False(t, seen[c], "color %s assigned twice", c)
		require.Equal(t, Palette[i], c)
		seen[c] = true
	}

	// Palette exhausted: any palette color is acceptable.
	c := r.AssignColor(code, "conn-extra")
	require.Contains(t, Palette, c)
}

func TestAssignColorReleasedOnLeave(t *testing.T) {
	r := NewRegistry()
	code, _, err := r.CreateRoom()
	require.NoError(t, err)

	require.NoError(t, r.Join(code, "a"))
	require.Equal(t, Palette[0], r.AssignColor(code, "a"))
	require.NoError(t, r.Join(code, "b"))
	require.Equal(t, Palette[1], r.AssignColor(code, "b"))

	r.Leave(code, "a")
	require.Empty(t, r.Color(code, "a"))

	require.NoError(t, r.Join(code, "c"))
	require.Equal(t, Palette[0], r.AssignColor(code, "c"))
}

func TestRecordReactionAppendOnly(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	r := NewRegistry(WithClock(clock.Now))
	code, _, err := r.CreateRoom()
	require.NoError(t, err)

	_, err = r.RecordReaction("NOPE00", "m1", models.Ciphertext{IV: "a", Cipher: "b"})
	require.ErrorIs(t, err, ErrRoomNotFound)

	prev := 0
	for i := 0; i < 5; i++ {
		clock.t = clock.t.Add(time.Second)
		history, err := r.RecordReaction(code, "m1", models.Ciphertext{IV: fmt.Sprint(i), Cipher: "c"})
		require.NoError(t, err)
		require.Len(t, history, prev+1)
		require.Equal(t, fmt.Sprint(i), history[len(history)-1].Ciphertext.IV)
		require.Equal(t, clock.t.UnixMilli(), history[len(history)-1].Time)
		prev = len(history)
	}

	// Returned slices are copies.
	history := r.ReactionHistory(code, "m1")
	history[0].Ciphertext.IV = "mutated"
	require.Equal(t, "0", r.ReactionHistory(code, "m1")[0].Ciphertext.IV)

	require.Empty(t, r.ReactionHistory(code, "other"))
}

func TestSweepEvictsIdleRooms(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	r := NewRegistry(WithClock(clock.Now), WithIdleTTL(time.Minute))

	busy, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.NoError(t, r.Join(busy, "a"))

	idle, _, err := r.CreateRoom()
	require.NoError(t, err)
	require.NoError(t, r.Join(idle, "b"))
	_, err = r.RecordReaction(idle, "m1", models.Ciphertext{IV: "i", Cipher: "c"})
	require.NoError(t, err)
	r.Leave(idle, "b")

	require.Empty(t, r.Sweep(clock.t.Add(30*time.Second)))
	require.Equal(t, 2, r.Stats().ResidentRooms)

	evicted := r.Sweep(clock.t.Add(2 * time.Minute))
	require.Equal(t, []string{idle}, evicted)

	stats := r.Stats()
	require.Equal(t, 1, stats.ResidentRooms)
	require.Equal(t, 1, stats.ActiveRooms)
	require.Equal(t, 0, stats.ReactionHistories)
	require.True(t, r.Exists(busy))
}
