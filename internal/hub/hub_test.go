package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/neonchat/neonchat/internal/models"
	"github.com/neonchat/neonchat/internal/rooms"
)

var messageIDPattern = regexp.MustCompile(`^[0-9a-f-]{36}-\d+$`)

func codes(cs ...string) func() string {
	i := 0
	return func() string {
		c := cs[i%len(cs)]
		i++
		return c
	}
}

func startHub(t *testing.T, registry *rooms.Registry, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(registry, zerolog.Nop(), opts)
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

type testConn struct {
	t    *testing.T
	conn *websocket.Conn
}

func dial(t *testing.T, srv *httptest.Server) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testConn{t: t, conn: conn}
}

func (c *testConn) emit(event string, data interface{}) {
	c.t.Helper()
	frame, err := models.NewFrame(event, data)
	require.NoError(c.t, err)
	require.NoError(c.t, c.conn.WriteMessage(websocket.TextMessage, frame))
}

// next returns the next frame in arrival order.
func (c *testConn) next() models.Frame {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	var f models.Frame
	require.NoError(c.t, json.Unmarshal(data, &f))
	return f
}

// expect returns the next frame and asserts its event name.
func (c *testConn) expect(event string, v interface{}) {
	c.t.Helper()
	f := c.next()
	require.Equal(c.t, event, f.Event, "payload: %s", string(f.Data))
	if v != nil {
		require.NoError(c.t, f.Decode(v))
	}
}

// expectSilence asserts nothing arrives within d.
func (c *testConn) expectSilence(d time.Duration) {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(d)))
	_, data, err := c.conn.ReadMessage()
	require.Error(c.t, err, "unexpected frame: %s", string(data))
}

// createRoom runs the creator's side of room creation and returns the salt.
func createRoom(t *testing.T, c *testConn, username, wantCode string) string {
	t.Helper()
	c.emit(models.EventCreateRoom, username)

	var code string
	c.expect(models.EventRoomCreated, &code)
	require.Equal(t, wantCode, code)

	var salt models.RoomSalt
	c.expect(models.EventRoomSalt, &salt)
	require.Equal(t, wantCode, salt.Room)
	require.NotEmpty(t, salt.Salt)

	var text string
	c.expect(models.EventSystemMessage, &text)
	require.Equal(t, "Created & joined room "+wantCode, text)

	var count int
	c.expect(models.EventUserCountUpdate, &count)
	require.Equal(t, 1, count)
	return salt.Salt
}

// joinRoom runs salt-then-join for c and drains the notices on the others.
func joinRoom(t *testing.T, c *testConn, username, code string, others ...*testConn) string {
	t.Helper()
	c.emit(models.EventGetSalt, models.GetSaltRequest{Room: code})
	var salt models.RoomSalt
	c.expect(models.EventRoomSalt, &salt)

	c.emit(models.EventJoinRoom, models.JoinRoomRequest{Username: username, Room: code})
	var text string
	c.expect(models.EventSystemMessage, &text)
	require.Equal(t, "Joined room "+strings.ToUpper(strings.TrimSpace(code)), text)

	var count int
	c.expect(models.EventUserCountUpdate, &count)
	require.Equal(t, len(others)+1, count)

	for _, o := range others {
		o.expect(models.EventSystemMessage, &text)
		require.Equal(t, username+" joined", text)
		o.expect(models.EventUserCountUpdate, &count)
		require.Equal(t, len(others)+1, count)
	}
	return salt.Salt
}

func TestCreateAndJoinShareSalt(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})

	alice := dial(t, srv)
	bob := dial(t, srv)

	created := createRoom(t, alice, "alice", "ROOM01")
	joined := joinRoom(t, bob, "bob", "room01", alice)

	require.Equal(t, created, joined)
}

func TestGetSaltUnknownRoom(t *testing.T) {
	h, srv := startHub(t, rooms.NewRegistry(), Options{})
	c := dial(t, srv)

	c.emit(models.EventGetSalt, models.GetSaltRequest{Room: "GHOST9"})
	var text string
	c.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Room does not exist", text)

	c.emit(models.EventGetSalt, models.GetSaltRequest{})
	c.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Room required", text)

	c.emit(models.EventJoinRoom, models.JoinRoomRequest{Username: "mallory", Room: "GHOST9"})
	c.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Room does not exist", text)

	// Codes that cannot have been issued are rejected by shape
	for _, code := range []string{"ROOM-1", "TOOLONG7", "abc", "ÄÖÜ123"} {
		c.emit(models.EventGetSalt, models.GetSaltRequest{Room: code})
		c.expect(models.EventErrorMessage, &text)
		require.Equal(t, "Room does not exist", text, code)
	}

	stats, err := h.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, stats.ResidentRooms)
	require.Equal(t, 1, stats.Connections)
}

func TestCreateRoomValidation(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01", "ROOM02"))), Options{})
	c := dial(t, srv)

	var text string
	c.emit(models.EventCreateRoom, "  \t ")
	c.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Username required", text)

	createRoom(t, c, "alice", "ROOM01")

	c.emit(models.EventCreateRoom, "alice")
	c.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Already in a room", text)

	// Rejoining the room it created is a no-op for the creator
	c.emit(models.EventJoinRoom, models.JoinRoomRequest{Username: "alice", Room: "ROOM01"})
	c.expectSilence(200 * time.Millisecond)
}

func TestChatRelay(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	payload := models.Ciphertext{IV: "bm9uY2U=", Cipher: "Y2lwaGVy"}
	bob.emit(models.EventChatMessage, payload)

	var ack models.MessageSent
	bob.expect(models.EventMessageSent, &ack)
	require.Regexp(t, messageIDPattern, ack.MessageID)

	var own models.ChatEnvelope
	bob.expect(models.EventChatMessage, &own)
	require.Equal(t, ack.MessageID, own.MessageID)

	var env models.ChatEnvelope
	alice.expect(models.EventChatMessage, &env)
	require.Equal(t, "bob", env.Username)
	var relayed models.Ciphertext
	require.NoError(t, json.Unmarshal(env.Encrypted, &relayed))
	require.Equal(t, payload, relayed)
	require.Equal(t, ack.MessageID, env.MessageID)
	require.Regexp(t, `^\d{2}:\d{2}$`, env.Time)

	// Message ids stay unique per connection even within one millisecond.
	bob.emit(models.EventChatMessage, payload)
	var ack2 models.MessageSent
	bob.expect(models.EventMessageSent, &ack2)
	require.NotEqual(t, ack.MessageID, ack2.MessageID)
	bob.expect(models.EventChatMessage, nil)
	alice.expect(models.EventChatMessage, nil)

	// Payloads missing ciphertext parts are not relayed.
	bob.emit(models.EventChatMessage, models.Ciphertext{IV: "bm9uY2U="})
	alice.expectSilence(200 * time.Millisecond)
}

func TestChatPayloadRelayedVerbatim(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	payload := `{"iv":"bm9uY2U=","cipher":"Y2lwaGVy","v":2,"alg":"AES-GCM"}`
	require.NoError(t, bob.conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"chatMessage","data":`+payload+`}`)))
	bob.expect(models.EventMessageSent, nil)

	var env models.ChatEnvelope
	alice.expect(models.EventChatMessage, &env)
	require.JSONEq(t, payload, string(env.Encrypted))
}

func TestFrameLimit(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{
		FrameLimit:  2,
		FrameWindow: time.Minute,
	})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	payload := models.Ciphertext{IV: "bm9uY2U=", Cipher: "Y2lwaGVy"}
	for i := 0; i < 2; i++ {
		bob.emit(models.EventChatMessage, payload)
		bob.expect(models.EventMessageSent, nil)
		bob.expect(models.EventChatMessage, nil)
		alice.expect(models.EventChatMessage, nil)
	}

	bob.emit(models.EventChatMessage, payload)
	var text string
	bob.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Slow down", text)

	// Further drops are silent, and reactions share the budget
	bob.emit(models.EventChatMessage, payload)
	bob.emit(models.EventAddReaction, models.AddReactionRequest{MessageID: "m-1", EncryptedCipher: &payload})
	bob.emit(models.EventTyping, nil)

	var who string
	alice.expect(models.EventTyping, &who)
	require.Equal(t, "bob", who)
	bob.expectSilence(200 * time.Millisecond)
}

func TestFrameWindowSlides(t *testing.T) {
	var w frameWindow
	start := time.Unix(1700000000, 0)

	require.True(t, w.allow(start, 2, time.Second))
	require.True(t, w.allow(start.Add(100*time.Millisecond), 2, time.Second))
	require.False(t, w.allow(start.Add(900*time.Millisecond), 2, time.Second))

	// The first stamp has left the window
	require.True(t, w.allow(start.Add(1050*time.Millisecond), 2, time.Second))
	require.False(t, w.allow(start.Add(1050*time.Millisecond), 2, time.Second))
	require.Len(t, w.stamps, 2)
}

func TestChatBeforeJoinIgnored(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	eve := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")

	eve.emit(models.EventChatMessage, models.Ciphertext{IV: "a", Cipher: "b"})
	eve.emit(models.EventTyping, nil)
	alice.expectSilence(200 * time.Millisecond)
	eve.expectSilence(100 * time.Millisecond)
}

func TestReactionHistoryBroadcast(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	for i, c := range []*testConn{alice, bob} {
		c.emit(models.EventAddReaction, models.AddReactionRequest{
			MessageID:       "m-1",
			EncryptedCipher: &models.Ciphertext{IV: "aXY=", Cipher: string(rune('a' + i))},
		})
		for _, member := range []*testConn{alice, bob} {
			var update models.ReactionUpdate
			member.expect(models.EventReactionUpdate, &update)
			require.Equal(t, "m-1", update.MessageID)
			require.Len(t, update.History, i+1)
		}
	}

	// Missing cipher is ignored.
	alice.emit(models.EventAddReaction, models.AddReactionRequest{MessageID: "m-1"})
	bob.expectSilence(200 * time.Millisecond)
}

func TestTypingExcludesSender(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	alice.emit(models.EventTyping, nil)
	var who string
	bob.expect(models.EventTyping, &who)
	require.Equal(t, "alice", who)

	alice.emit(models.EventStopTyping, nil)
	bob.expect(models.EventStopTyping, nil)

	alice.expectSilence(200 * time.Millisecond)
}

func TestLeaveRoom(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	bob.emit(models.EventLeaveRoom, nil)

	var text string
	alice.expect(models.EventSystemMessage, &text)
	require.Equal(t, "bob left", text)
	var count int
	alice.expect(models.EventUserCountUpdate, &count)
	require.Equal(t, 1, count)

	// A closed session relays nothing and cannot rejoin.
	bob.emit(models.EventChatMessage, models.Ciphertext{IV: "a", Cipher: "b"})
	bob.emit(models.EventJoinRoom, models.JoinRoomRequest{Username: "bob", Room: "ROOM01"})
	bob.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Already in a room", text)

	// Closing after leaving does not announce a second departure.
	require.NoError(t, bob.conn.Close())
	alice.expectSilence(200 * time.Millisecond)
}

func TestDisconnectAnnouncesAndEmptiesRoom(t *testing.T) {
	h, srv := startHub(t, rooms.NewRegistry(rooms.WithCodeGenerator(codes("ROOM01"))), Options{})
	alice := dial(t, srv)
	bob := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	joinRoom(t, bob, "bob", "ROOM01", alice)

	require.NoError(t, bob.conn.Close())

	var text string
	alice.expect(models.EventSystemMessage, &text)
	require.Equal(t, "bob disconnected", text)
	var count int
	alice.expect(models.EventUserCountUpdate, &count)
	require.Equal(t, 1, count)

	require.NoError(t, alice.conn.Close())

	require.Eventually(t, func() bool {
		stats, err := h.Stats(context.Background())
		return err == nil && stats.Connections == 0 && stats.ActiveRooms == 0
	}, 2*time.Second, 20*time.Millisecond)

	// The emptied room is indistinguishable from one that never existed.
	carol := dial(t, srv)
	carol.emit(models.EventGetSalt, models.GetSaltRequest{Room: "ROOM01"})
	carol.expect(models.EventErrorMessage, &text)
	require.Equal(t, "Room does not exist", text)
}

func TestIdleRoomsEvicted(t *testing.T) {
	registry := rooms.NewRegistry(
		rooms.WithCodeGenerator(codes("ROOM01")),
		rooms.WithIdleTTL(time.Millisecond),
	)
	h, srv := startHub(t, registry, Options{SweepInterval: 10 * time.Millisecond})
	alice := dial(t, srv)
	createRoom(t, alice, "alice", "ROOM01")
	alice.emit(models.EventLeaveRoom, nil)

	require.Eventually(t, func() bool {
		stats, err := h.Stats(context.Background())
		return err == nil && stats.ResidentRooms == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMalformedFramesIgnored(t *testing.T) {
	_, srv := startHub(t, rooms.NewRegistry(), Options{})
	c := dial(t, srv)

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"bogus"}`)))

	c.emit(models.EventGetSalt, models.GetSaltRequest{Room: "GHOST9"})
	c.expect(models.EventErrorMessage, nil)
}

func TestCheckOrigin(t *testing.T) {
	h := New(rooms.NewRegistry(), zerolog.Nop(), Options{AllowedOrigins: []string{"https://neon.example"}})

	r := httptest.NewRequest("GET", "/ws", nil)
	require.True(t, h.checkOrigin(r), "non-browser clients send no origin")

	r.Header.Set("Origin", "https://neon.example")
	require.True(t, h.checkOrigin(r))

	r.Header.Set("Origin", "https://evil.example")
	require.False(t, h.checkOrigin(r))
}

func TestSanitizeUsername(t *testing.T) {
	require.Equal(t, "alice", sanitizeUsername("  alice\n"))
	require.Equal(t, "bob", sanitizeUsername("b\x00o\x07b"))
	require.Len(t, []rune(sanitizeUsername(strings.Repeat("é", 100))), maxUsernameRunes)
}
