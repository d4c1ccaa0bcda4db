package main

import (
	"crypto/rand"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

type Client struct {
	conn     *websocket.Conn
	send     chan any
	playerID string
	name     string
}

type actionRequest struct {
	client *Client
	msg    ClientMessage
}

// Hub owns one room: its membership, its connected clients, and the
// pipeline between inbound actions and the room's session. Game state
// itself lives in the Session actor; the hub translates socket traffic
// into session commands and fans results back out.
type Hub struct {
	code     string
	room     *Room
	clients  map[*Client]bool
	presence *presenceRegistry
	sessions *SessionRegistry

	register chan *Client
	unreg    chan *Client
	actions  chan actionRequest

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newHub(code string, sessions *SessionRegistry) *Hub {
	now := time.Now()
	return &Hub{
		code:       code,
		room:       newRoom(code),
		clients:    make(map[*Client]bool),
		presence:   newPresenceRegistry(),
		sessions:   sessions,
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		actions:    make(chan actionRequest),
		createdAt:  now,
		lastActive: now,
	}
}

func (h *Hub) run(cfg *Config) {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.lastActive = time.Now()

			h.clients[c] = true

			// A returning cookie supersedes its old connection.
			if prev := h.presence.attach(c, h.code, c.playerID); prev != nil {
				if _, ok := h.clients[prev]; ok {
					delete(h.clients, prev)
					close(prev.send)
				}
			}

			isExisting := h.room.IsMember(c.playerID)
			if isExisting {
				c.name = h.nameOfLocked(c.playerID)
			}

			session, running := h.liveSessionLocked()

			c.send <- SessionInfoMessage{
				Type:        "session_info",
				PlayerID:    c.playerID,
				IsExisting:  isExisting,
				IsHost:      h.room.HostID() == c.playerID,
				Name:        c.name,
				GameRunning: running,
			}

			if isExisting {
				h.room.MarkConnected(c.playerID, true)
				h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
			}

			// Mid-game reconnects get a full resync snapshot.
			if running && session.IsParticipant(c.playerID) {
				if snap, ok := session.HandleReconnect(c.playerID); ok {
					h.sendLocked(c, GameStateMessage{
						Type: "game_state_update",
						Game: redactSnapshot(snap, c.playerID),
					})
				}
			}

			h.mu.Unlock()

		case c := <-h.unreg:
			h.mu.Lock()
			h.lastActive = time.Now()

			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.presence.detach(c)

			if h.room.IsMember(c.playerID) {
				h.room.MarkConnected(c.playerID, false)

				if session, running := h.liveSessionLocked(); running {
					// An active game plays on without them; the turn
					// pointer never skips a disconnected player.
					session.HandleDisconnect(c.playerID)
				} else {
					go h.scheduleRemoval(cfg, c.playerID, cfg.playerTimeout)
				}

				h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
			}

			h.mu.Unlock()

		case ar := <-h.actions:
			h.handleAction(cfg, ar)
		}
	}
}

// liveSessionLocked returns the room's session if one is running and not
// yet terminal.
func (h *Hub) liveSessionLocked() (*Session, bool) {
	session, ok := h.sessions.Get(h.code)
	if !ok || session.Ended() {
		return nil, false
	}
	return session, true
}

func (h *Hub) nameOfLocked(playerID string) string {
	for _, entry := range h.room.Roster() {
		if entry.ID == playerID {
			return entry.Name
		}
	}
	for _, entry := range h.room.SpectatorRoster() {
		if entry.ID == playerID {
			return entry.Name
		}
	}
	return ""
}

// sendLocked delivers to one client, dropping the connection if its send
// buffer is full.
func (h *Hub) sendLocked(c *Client, msg any) {
	select {
	case c.send <- msg:
	default:
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcastLocked(msg any) {
	for client := range h.clients {
		h.sendLocked(client, msg)
	}
}

// fanOutLocked delivers one session step's events to every subscriber.
// Personalized events are materialized per viewer.
func (h *Hub) fanOutLocked(events []outEvent) {
	for _, event := range events {
		for client := range h.clients {
			h.sendLocked(client, event.payloadFor(client.playerID))
		}
	}
}

func (h *Hub) handleAction(cfg *Config, ar actionRequest) {
	c := ar.client
	msg := ar.msg

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastActive = time.Now()

	switch msg.Type {
	case "join_room":
		h.handleJoinLocked(cfg, c, msg)
	case "leave_room":
		h.handleLeaveLocked(cfg, c)
	case "player_ready":
		ready := msg.Ready == nil || *msg.Ready
		if err := h.room.ToggleReady(c.playerID, ready); err != nil {
			h.sendLocked(c, errorMessage(err))
			return
		}
		h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
	case "start_game":
		h.handleStartLocked(cfg, c, msg)
	case "submit_clue":
		h.sessionAction(c, func(s *Session) ([]outEvent, error) {
			return s.SubmitClue(c.playerID, msg.Text)
		})
	case "cast_vote":
		h.sessionAction(c, func(s *Session) ([]outEvent, error) {
			return s.CastVote(c.playerID, msg.TargetID)
		})
	case "submit_spy_guess":
		h.sessionAction(c, func(s *Session) ([]outEvent, error) {
			return s.SubmitSpyGuess(msg.Text)
		})
	case "send_message":
		if !h.room.IsMember(c.playerID) || strings.TrimSpace(msg.Text) == "" {
			return
		}
		h.broadcastLocked(ChatMessage{
			Type:     "message_received",
			PlayerID: c.playerID,
			Name:     c.name,
			Text:     msg.Text,
			SentAt:   time.Now(),
		})
	case "typing_start", "typing_stop":
		if !h.room.IsMember(c.playerID) {
			return
		}
		h.broadcastLocked(TypingMessage{
			Type:     msg.Type,
			PlayerID: c.playerID,
			Name:     c.name,
		})
	case "throw_item":
		if !h.room.IsMember(c.playerID) || msg.Item == "" {
			return
		}
		h.broadcastLocked(ItemThrownMessage{
			Type:         "item_thrown",
			FromPlayerID: c.playerID,
			FromName:     c.name,
			Item:         msg.Item,
			TargetID:     msg.TargetID,
			ThrownAt:     time.Now(),
		})
	default:
		// ignore unknown types
	}
}

func (h *Hub) handleJoinLocked(cfg *Config, c *Client, msg ClientMessage) {
	name := strings.TrimSpace(msg.Name)
	if name == "" {
		h.sendLocked(c, errorMessage(ErrEmptyName))
		return
	}

	if err := h.room.Join(c.playerID, name, msg.Spectator); err != nil {
		h.sendLocked(c, errorMessage(err))
		return
	}

	c.name = name
	logf(cfg, "ROOMS: Player %q joined room %s", name, h.code)

	h.sendLocked(c, RoomJoinedMessage{Type: "room_joined", Room: h.room.Snapshot()})
	h.broadcastLocked(PlayerJoinedMessage{
		Type:      "player_joined",
		PlayerID:  c.playerID,
		Name:      name,
		Spectator: msg.Spectator,
	})
	h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
}

func (h *Hub) handleLeaveLocked(cfg *Config, c *Client) {
	left, _, empty := h.room.Leave(c.playerID)
	if !left {
		h.sendLocked(c, errorMessage(ErrPlayerNotFound))
		return
	}

	logf(cfg, "ROOMS: Player %q left room %s", c.name, h.code)

	h.sendLocked(c, RoomLeftMessage{Type: "room_left", RoomCode: h.code})
	h.broadcastLocked(PlayerLeftMessage{
		Type:     "player_left",
		PlayerID: c.playerID,
		Name:     c.name,
	})

	if empty {
		h.sessions.Destroy(h.code)
		return
	}

	h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
}

func (h *Hub) handleStartLocked(cfg *Config, c *Client, msg ClientMessage) {
	if h.room.HostID() != c.playerID {
		h.sendLocked(c, errorMessage(ErrNotHost))
		return
	}

	if err := h.room.CanStart(); err != nil {
		h.sendLocked(c, errorMessage(err))
		return
	}

	session, events, created, err := h.sessions.GetOrCreate(
		h.code, h.room.Roster(), h.room.SpectatorRoster(), msg.Category, nil)
	if err != nil {
		h.sendLocked(c, errorMessage(err))
		return
	}

	if !created {
		h.sendLocked(c, errorMessage(ErrRoomNotWaiting))
		return
	}

	h.room.SetStatus(RoomInGame)
	logf(cfg, "GAMES: Started game %s in room %s (category %q)", session.ID(), h.code, msg.Category)
	h.fanOutLocked(events)
}

// sessionAction routes one player action into the room's session. Errors
// go back to the caller alone; accepted actions fan their events out to
// everyone.
func (h *Hub) sessionAction(c *Client, op func(*Session) ([]outEvent, error)) {
	session, ok := h.sessions.Get(h.code)
	if !ok {
		h.sendLocked(c, errorMessage(ErrGameNotFound))
		return
	}

	if !session.IsParticipant(c.playerID) {
		h.sendLocked(c, errorMessage(ErrNotParticipant))
		return
	}

	events, err := op(session)
	if err != nil {
		h.sendLocked(c, errorMessage(err))
		return
	}

	h.fanOutLocked(events)

	if session.Ended() {
		h.room.ResetForRematch()
		h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
	}
}

// scheduleRemoval drops a lobby player who never reconnected. In-game
// players are never dropped this way; the room keeps their seat so the
// session roster stays valid.
func (h *Hub) scheduleRemoval(cfg *Config, playerID string, d time.Duration) {
	time.Sleep(d)

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.presence.clientFor(playerID) != nil {
		return
	}

	name := h.nameOfLocked(playerID)
	if !h.room.DropIfDisconnected(playerID) {
		return
	}

	h.lastActive = time.Now()
	logf(cfg, "ROOMS: Removed idle player %q from room %s", name, h.code)

	h.broadcastLocked(PlayerLeftMessage{
		Type:     "player_left",
		PlayerID: playerID,
		Name:     name,
	})
	h.broadcastLocked(RoomUpdatedMessage{Type: "room_updated", Room: h.room.Snapshot()})
}

// closeAll disconnects all clients of this hub (used by reaper).
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(h.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomManager holds one hub per room code, so each $path/$code is its own
// isolated lobby and game.
type RoomManager struct {
	mu          sync.Mutex
	hubs        map[string]*Hub
	sessions    *SessionRegistry
	idleTimeout time.Duration
}

func newRoomManager(idleTimeout time.Duration) *RoomManager {
	rm := &RoomManager{
		hubs:        make(map[string]*Hub),
		sessions:    NewSessionRegistry(),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go rm.reaperLoop()
	}
	return rm
}

func (rm *RoomManager) getHub(cfg *Config, code string) *Hub {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if hub, ok := rm.hubs[code]; ok {
		return hub
	}

	hub := newHub(code, rm.sessions)
	rm.hubs[code] = hub
	go hub.run(cfg)
	return hub
}

func (rm *RoomManager) lookupHub(code string) (*Hub, bool) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	hub, ok := rm.hubs[code]
	return hub, ok
}

// newRoomCode generates a crypto-random numeric room code and ensures it
// doesn't collide with existing rooms.
func (rm *RoomManager) newRoomCode() string {
	const digits = "0123456789"
	for {
		buf := make([]byte, roomCodeLength)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, roomCodeLength)
		for i := range out {
			out[i] = digits[int(buf[i])%len(digits)]
		}
		code := string(out)

		rm.mu.Lock()
		_, exists := rm.hubs[code]
		rm.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically removes hubs that have been idle longer than
// idleTimeout, along with their sessions.
func (rm *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rm.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rm.idleTimeout)

		rm.mu.Lock()
		for code, hub := range rm.hubs {
			hub.mu.RLock()
			last := hub.lastActive
			hub.mu.RUnlock()

			if last.Before(cutoff) {
				delete(rm.hubs, code)
				rm.sessions.Destroy(code)
				go hub.closeAll()
			}
		}
		rm.mu.Unlock()
	}
}

// WebSocket handler that picks the hub based on :code
func serveWSForManager(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")
		if code == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		playerID := getOrSetPlayerID(w, r)
		if playerID == "" {
			http.Error(w, "unable to assign player id", http.StatusInternalServerError)
			return
		}

		hub := rm.getHub(cfg, code)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan any, 8),
			playerID: playerID,
		}

		hub.register <- client

		go client.writePump()
		client.readPump(hub)
	}
}

func (c *Client) readPump(h *Hub) {
	defer func() {
		h.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		h.actions <- actionRequest{
			client: c,
			msg:    msg,
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// roomInfoHandler serves the lobby roster as JSON. The room is looked up
// without creating it, so probing random codes stays side-effect free.
func roomInfoHandler(cfg *Config, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		code := ps.ByName("code")

		hub, ok := rm.lookupHub(code)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			securityHeaders(cfg, w)
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(errorMessage(ErrRoomNotFound))
			return
		}

		_ = getOrSetPlayerID(w, r)

		w.Header().Set("Content-Type", "application/json")
		securityHeaders(cfg, w)
		_ = json.NewEncoder(w).Encode(hub.room.Snapshot())
	}
}

// categoriesHandler lists the selectable word categories.
func categoriesHandler(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "application/json")
		securityHeaders(cfg, w)
		_ = json.NewEncoder(w).Encode(map[string][]string{"categories": categories()})
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	code := ps.ByName("code")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../:code/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /path by generating a new random room code
// (with server-side collision detection) and redirecting to /path/:code.
func redirectNewRoom(cfg *Config, path string, rm *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		code := rm.newRoomCode()
		logf(cfg, "ROOMS: Created room %s/%s", path, code)
		http.Redirect(w, r, path+"/"+code, http.StatusTemporaryRedirect)
	}
}

// registerSpyGame sets up routes so that:
//   - $path              → redirects to a new random room (numeric code)
//   - $path/:code        → room roster as JSON
//   - $path/:code/ws     → WebSocket for that room
//   - $path/:code/qr     → PNG QR code for that room URL
//   - /categories        → selectable word categories
func registerSpyGame(cfg *Config, path string, mux *httprouter.Router) {
	rm := newRoomManager(cfg.sessionTimeout)

	// Root path → redirect to new random room
	mux.GET(path, redirectNewRoom(cfg, path, rm))

	// Per-room roster view (JSON)
	mux.GET(cfg.prefix+path+"/:code", roomInfoHandler(cfg, rm))

	// Per-room websocket
	mux.GET(cfg.prefix+path+"/:code/ws", serveWSForManager(cfg, rm))

	// Per-room QR code
	mux.GET(cfg.prefix+path+"/:code/qr", qrHandler)

	// Category list for the start-game picker
	mux.GET(cfg.prefix+"/categories", categoriesHandler(cfg))
}
