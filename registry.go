package main

import (
	"math/rand"
	"sync"
)

// SessionRegistry maps room codes to running sessions. Creation is
// idempotent per room: concurrent starters for the same code race once
// under the lock and every loser adopts the winner's session.
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the live session for a room, creating one when none
// exists or the previous one already finished. The returned events are the
// start announcements, non-nil only when created is true; they are built
// before the actor goroutine starts, so no command can interleave with
// them.
func (reg *SessionRegistry) GetOrCreate(roomCode string, roster, spectators []RosterEntry, category string, rng *rand.Rand) (*Session, []outEvent, bool, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if existing, ok := reg.sessions[roomCode]; ok {
		if !existing.Ended() {
			return existing, nil, false, nil
		}
		// The finished session is being replaced; release its actor
		// goroutine or it blocks on the queue forever.
		existing.stop()
	}

	session, err := newSession(roomCode, roster, spectators, category, rng)
	if err != nil {
		return nil, nil, false, err
	}

	events := session.startEvents()
	go session.run()

	reg.sessions[roomCode] = session

	return session, events, true, nil
}

func (reg *SessionRegistry) Get(roomCode string) (*Session, bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	session, ok := reg.sessions[roomCode]

	return session, ok
}

// Destroy drops the room's session and unblocks anything waiting on its
// queue. Safe to call for codes with no session.
func (reg *SessionRegistry) Destroy(roomCode string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if session, ok := reg.sessions[roomCode]; ok {
		session.stop()
		delete(reg.sessions, roomCode)
	}
}

func (reg *SessionRegistry) Count() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.sessions)
}
