package main

import (
	"sync"
	"time"
)

type roomStatus string

const (
	RoomWaiting  roomStatus = "waiting"
	RoomInGame   roomStatus = "in_game"
	RoomFinished roomStatus = "finished"
)

// RoomPlayer is one pre-game roster entry. Ready and Connected are lobby
// bookkeeping only; once a game starts the session owns its own copy of
// the roster and these fields stop mattering to it.
type RoomPlayer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

type RoomSpectator struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Connected bool      `json:"connected"`
	JoinedAt  time.Time `json:"joined_at"`
}

type RoomSnapshot struct {
	Code       string          `json:"code"`
	HostID     string          `json:"host_id"`
	Status     roomStatus      `json:"status"`
	Players    []RoomPlayer    `json:"players"`
	Spectators []RoomSpectator `json:"spectators"`
	MaxPlayers int             `json:"max_players"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Room owns the pre-game roster for one room code: joins, leaves, ready
// toggles, host reassignment and capacity. It never touches in-game state;
// at game start the roster is copied into the session and the two stop
// sharing anything mutable.
type Room struct {
	mu sync.RWMutex

	code       string
	hostID     string
	players    []RoomPlayer
	spectators []RoomSpectator
	status     roomStatus
	createdAt  time.Time
}

func newRoom(code string) *Room {
	return &Room{
		code:      code,
		status:    RoomWaiting,
		createdAt: time.Now(),
	}
}

// Join adds a player or spectator. The first player to join becomes host.
func (r *Room) Join(playerID, name string, spectator bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RoomWaiting {
		return ErrRoomNotWaiting
	}
	if r.indexOfLocked(playerID) >= 0 || r.spectatorIndexLocked(playerID) >= 0 {
		return ErrAlreadyJoined
	}

	if spectator {
		if len(r.spectators) >= maxSpectators {
			return ErrSpectatorsFull
		}
		r.spectators = append(r.spectators, RoomSpectator{
			ID:        playerID,
			Name:      name,
			Connected: true,
			JoinedAt:  time.Now(),
		})
		return nil
	}

	if len(r.players) >= maxPlayers {
		return ErrRoomFull
	}
	r.players = append(r.players, RoomPlayer{
		ID:        playerID,
		Name:      name,
		Connected: true,
		JoinedAt:  time.Now(),
	})
	if r.hostID == "" {
		r.hostID = playerID
	}
	return nil
}

// Leave removes a participant. If the host leaves and players remain, the
// earliest remaining player inherits the host seat. An emptied room flips
// to finished.
func (r *Room) Leave(playerID string) (left bool, newHostID string, empty bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOfLocked(playerID); i >= 0 {
		r.players = append(r.players[:i], r.players[i+1:]...)
		left = true
	} else if i := r.spectatorIndexLocked(playerID); i >= 0 {
		r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
		left = true
	}
	if !left {
		return false, r.hostID, false
	}

	if r.hostID == playerID && len(r.players) > 0 {
		r.hostID = r.players[0].ID
	}
	if len(r.players) == 0 && len(r.spectators) == 0 {
		r.status = RoomFinished
		empty = true
	}

	return left, r.hostID, empty
}

func (r *Room) ToggleReady(playerID string, ready bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != RoomWaiting {
		return ErrRoomNotWaiting
	}
	i := r.indexOfLocked(playerID)
	if i < 0 {
		return ErrPlayerNotFound
	}
	r.players[i].Ready = ready
	return nil
}

// MarkConnected flips the presence flag for a roster entry, reporting
// whether the ID was known to this room.
func (r *Room) MarkConnected(playerID string, connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.indexOfLocked(playerID); i >= 0 {
		r.players[i].Connected = connected
		return true
	}
	if i := r.spectatorIndexLocked(playerID); i >= 0 {
		r.spectators[i].Connected = connected
		return true
	}
	return false
}

// DropIfDisconnected removes a player that never reconnected. Used by the
// lobby removal timer; in-game players are never dropped this way.
func (r *Room) DropIfDisconnected(playerID string) bool {
	r.mu.Lock()
	stillGone := false
	if i := r.indexOfLocked(playerID); i >= 0 && !r.players[i].Connected {
		stillGone = true
	} else if i := r.spectatorIndexLocked(playerID); i >= 0 && !r.spectators[i].Connected {
		stillGone = true
	}
	inGame := r.status == RoomInGame
	r.mu.Unlock()

	if !stillGone || inGame {
		return false
	}
	dropped, _, _ := r.Leave(playerID)
	return dropped
}

func (r *Room) IsMember(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.indexOfLocked(playerID) >= 0 || r.spectatorIndexLocked(playerID) >= 0
}

func (r *Room) IsPlayer(playerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.indexOfLocked(playerID) >= 0
}

func (r *Room) HostID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.hostID
}

func (r *Room) Status() roomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status
}

func (r *Room) SetStatus(status roomStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = status
}

// ResetForRematch returns the room to the waiting state and clears every
// ready flag, so the next game needs a fresh ready-up from everyone.
func (r *Room) ResetForRematch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.status = RoomWaiting
	for i := range r.players {
		r.players[i].Ready = false
	}
}

// CanStart reports whether the start_game gate holds: waiting status,
// enough players, everyone ready. This gate lives here at the edge, not
// inside the session state machine.
func (r *Room) CanStart() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.status != RoomWaiting {
		return ErrRoomNotWaiting
	}
	if len(r.players) < minPlayers {
		return ErrInsufficientPlayers
	}
	for _, p := range r.players {
		if !p.Ready {
			return ErrNotAllReady
		}
	}
	return nil
}

// Roster returns the ordered player roster for handing to a new session.
func (r *Room) Roster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]RosterEntry, 0, len(r.players))
	for _, p := range r.players {
		roster = append(roster, RosterEntry{ID: p.ID, Name: p.Name})
	}
	return roster
}

func (r *Room) SpectatorRoster() []RosterEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := make([]RosterEntry, 0, len(r.spectators))
	for _, s := range r.spectators {
		roster = append(roster, RosterEntry{ID: s.ID, Name: s.Name})
	}
	return roster
}

func (r *Room) Snapshot() RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RoomSnapshot{
		Code:       r.code,
		HostID:     r.hostID,
		Status:     r.status,
		Players:    append([]RoomPlayer(nil), r.players...),
		Spectators: append([]RoomSpectator(nil), r.spectators...),
		MaxPlayers: maxPlayers,
		CreatedAt:  r.createdAt,
	}
}

func (r *Room) indexOfLocked(playerID string) int {
	for i := range r.players {
		if r.players[i].ID == playerID {
			return i
		}
	}
	return -1
}

func (r *Room) spectatorIndexLocked(playerID string) int {
	for i := range r.spectators {
		if r.spectators[i].ID == playerID {
			return i
		}
	}
	return -1
}
