package main

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"sync"
)

const playerCookieName = "wordspy_id"

// getOrSetPlayerID resolves the caller's stable identity from a cookie,
// minting one on first contact. All game actions are attributed to this ID,
// so a reconnecting browser resumes as the same logical player.
func getOrSetPlayerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(playerCookieName); err == nil && c.Value != "" {
		return c.Value
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	id := hex.EncodeToString(buf)

	http.SetCookie(w, &http.Cookie{
		Name:     playerCookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	return id
}

// presenceRegistry maps live connections to participants and back, and
// remembers which room each connection currently belongs to. It carries no
// game state; hubs consult it to re-attach reconnecting players and to
// deliver caller-scoped messages.
type presenceRegistry struct {
	mu         sync.RWMutex
	connRoom   map[*Client]string
	connPlayer map[*Client]string
	playerConn map[string]*Client
}

func newPresenceRegistry() *presenceRegistry {
	return &presenceRegistry{
		connRoom:   make(map[*Client]string),
		connPlayer: make(map[*Client]string),
		playerConn: make(map[string]*Client),
	}
}

// attach binds a connection to a participant within a room. Any previous
// connection for the same player is superseded and returned so the hub can
// close it out.
func (p *presenceRegistry) attach(c *Client, roomCode, playerID string) *Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.playerConn[playerID]
	if prev == c {
		prev = nil
	}

	p.connRoom[c] = roomCode
	p.connPlayer[c] = playerID
	p.playerConn[playerID] = c

	return prev
}

// detach forgets a connection. The player→connection mapping is only
// cleared if it still points at this connection, so a reconnect that
// already superseded it is left alone.
func (p *presenceRegistry) detach(c *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if playerID, ok := p.connPlayer[c]; ok && p.playerConn[playerID] == c {
		delete(p.playerConn, playerID)
	}
	delete(p.connPlayer, c)
	delete(p.connRoom, c)
}

// clientFor returns the live connection for a player, if any.
func (p *presenceRegistry) clientFor(playerID string) *Client {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.playerConn[playerID]
}
