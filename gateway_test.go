package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGameServer(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := &Config{
		playerTimeout:  time.Minute,
		port:           8080,
		sessionTimeout: time.Hour,
	}

	mux := httprouter.New()
	registerSpyGame(cfg, "/play", mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func dialRoom(t *testing.T, srv *httptest.Server, code, playerID string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/play/" + code + "/ws"
	header := http.Header{}
	header.Set("Cookie", playerCookieName+"="+playerID)

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	if resp != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

// readUntil drains messages until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, wanted string) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	for i := 0; i < 100; i++ {
		var msg map[string]any
		require.NoError(t, conn.ReadJSON(&msg))

		if msg["type"] == wanted {
			return msg
		}
	}

	t.Fatalf("never received %q", wanted)
	return nil
}

func sendMsg(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func TestGatewayLobbyToGameFlow(t *testing.T) {
	srv := newGameServer(t)

	ids := []string{"p1", "p2", "p3", "p4"}
	conns := make(map[string]*websocket.Conn, len(ids))

	for _, id := range ids {
		conn := dialRoom(t, srv, "123456", id)
		conns[id] = conn

		info := readUntil(t, conn, "session_info")
		assert.Equal(t, id, info["player_id"])
		assert.Equal(t, false, info["is_existing"])

		sendMsg(t, conn, map[string]any{"type": "join_room", "name": "Player " + id})
		joined := readUntil(t, conn, "room_joined")
		room := joined["room"].(map[string]any)
		assert.Equal(t, "123456", room["code"])

		sendMsg(t, conn, map[string]any{"type": "player_ready", "ready": true})
		readUntil(t, conn, "room_updated")
	}

	// First joiner is host; a non-host cannot start.
	sendMsg(t, conns["p2"], map[string]any{"type": "start_game", "category": "food"})
	errMsg := readUntil(t, conns["p2"], "error")
	assert.Equal(t, "not_host", errMsg["code"])

	sendMsg(t, conns["p1"], map[string]any{"type": "start_game", "category": "food"})

	// Everyone receives game_start with only their own word filled in.
	for _, id := range ids {
		start := readUntil(t, conns[id], "game_start")
		game := start["game"].(map[string]any)
		players := game["players"].([]any)
		require.Len(t, players, len(ids))

		for _, raw := range players {
			p := raw.(map[string]any)
			if p["id"] == id {
				assert.NotEmpty(t, p["word"], "own word visible to %s", id)
			} else {
				assert.Nil(t, p["word"], "foreign word hidden from %s", id)
			}
		}
	}

	phase := readUntil(t, conns["p1"], "clue_phase_start")
	turn := phase["player_turn"].(map[string]any)
	assert.Equal(t, "p1", turn["id"])
	assert.Nil(t, turn["word"])

	// Out-of-turn clue errors go only to the offender.
	sendMsg(t, conns["p3"], map[string]any{"type": "submit_clue", "text": "early"})
	errMsg = readUntil(t, conns["p3"], "error")
	assert.Equal(t, "not_your_turn", errMsg["code"])

	sendMsg(t, conns["p1"], map[string]any{"type": "submit_clue", "text": "tasty"})
	for _, id := range ids {
		clue := readUntil(t, conns[id], "clue_submitted")
		assert.Equal(t, "p1", clue["player_id"])
		assert.Equal(t, "tasty", clue["clue"])
	}
}

func TestGatewayChatRelay(t *testing.T) {
	srv := newGameServer(t)

	alice := dialRoom(t, srv, "777777", "alice")
	readUntil(t, alice, "session_info")
	sendMsg(t, alice, map[string]any{"type": "join_room", "name": "Alice"})
	readUntil(t, alice, "room_joined")

	bob := dialRoom(t, srv, "777777", "bob")
	readUntil(t, bob, "session_info")
	sendMsg(t, bob, map[string]any{"type": "join_room", "name": "Bob"})
	readUntil(t, bob, "room_joined")

	sendMsg(t, alice, map[string]any{"type": "send_message", "text": "hello"})
	chat := readUntil(t, bob, "message_received")
	assert.Equal(t, "alice", chat["player_id"])
	assert.Equal(t, "Alice", chat["name"])
	assert.Equal(t, "hello", chat["text"])

	sendMsg(t, bob, map[string]any{"type": "throw_item", "item": "tomato", "target_id": "alice"})
	item := readUntil(t, alice, "item_thrown")
	assert.Equal(t, "bob", item["from_player_id"])
	assert.Equal(t, "tomato", item["item"])
	assert.Equal(t, "alice", item["target_id"])
}

func TestGatewayJoinValidation(t *testing.T) {
	srv := newGameServer(t)

	conn := dialRoom(t, srv, "888888", "picky")
	readUntil(t, conn, "session_info")

	sendMsg(t, conn, map[string]any{"type": "join_room", "name": "   "})
	errMsg := readUntil(t, conn, "error")
	assert.Equal(t, "empty_name", errMsg["code"])

	sendMsg(t, conn, map[string]any{"type": "join_room", "name": "Picky"})
	readUntil(t, conn, "room_joined")

	sendMsg(t, conn, map[string]any{"type": "join_room", "name": "Picky"})
	errMsg = readUntil(t, conn, "error")
	assert.Equal(t, "already_joined", errMsg["code"])

	// Game actions before any game exists fail cleanly.
	sendMsg(t, conn, map[string]any{"type": "submit_clue", "text": "eager"})
	errMsg = readUntil(t, conn, "error")
	assert.Equal(t, "game_not_found", errMsg["code"])
}

func TestGatewayRoomInfoEndpoint(t *testing.T) {
	srv := newGameServer(t)

	resp, err := http.Get(srv.URL + "/play/999999")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	conn := dialRoom(t, srv, "999999", "scout")
	readUntil(t, conn, "session_info")
	sendMsg(t, conn, map[string]any{"type": "join_room", "name": "Scout"})
	readUntil(t, conn, "room_joined")

	resp, err = http.Get(srv.URL + "/play/999999")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var room RoomSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, "999999", room.Code)
	require.Len(t, room.Players, 1)
	assert.Equal(t, "Scout", room.Players[0].Name)
}

func TestGatewayCategoriesEndpoint(t *testing.T) {
	srv := newGameServer(t)

	resp, err := http.Get(srv.URL + "/categories")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Contains(t, body["categories"], "food")
	assert.Contains(t, body["categories"], "animals")
}

func TestGatewayQREndpoint(t *testing.T) {
	srv := newGameServer(t)

	resp, err := http.Get(srv.URL + "/play/123456/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}
