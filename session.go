package main

import (
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	minPlayers             = 4
	maxPlayers             = 8
	maxSpectators          = 10
	roomCodeLength         = 6
	maxClueLength          = 20
	minPlayersForNextRound = 2

	// Advisory only. Sent to clients for countdown display, never
	// enforced server-side.
	clueTimeLimit     = 60 * time.Second
	votingTimeLimit   = 30 * time.Second
	spyGuessTimeLimit = 30 * time.Second
)

type Phase string

const (
	PhaseClue     Phase = "clue_phase"
	PhaseVoting   Phase = "voting_phase"
	PhaseSpyGuess Phase = "spy_guess_phase"
	PhaseGameEnd  Phase = "game_end"
)

type Role string

const (
	RoleVillager Role = "villager"
	RoleSpy      Role = "spy"
)

const (
	WinnerSpy       = "spy"
	WinnerVillagers = "villagers"
)

const (
	EndReasonSpyCaught          = "spy_caught"
	EndReasonVillagerEliminated = "villager_eliminated"
	EndReasonSpyWon             = "spy_won"
	EndReasonVillagersWon       = "villagers_won"
)

// RosterEntry is the identity slice of a roster handed over at game start.
type RosterEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type playerClue struct {
	text string
	at   time.Time
}

type playerVote struct {
	round    int
	targetID string
	at       time.Time
}

// sessionPlayer is a player as the session sees them. Role and word are
// assigned once at creation and never change; alive flips at most once.
type sessionPlayer struct {
	id        string
	name      string
	role      Role
	word      string
	alive     bool
	connected bool
	clues     []playerClue
	votes     []playerVote
}

type roundClue struct {
	playerID string
	text     string
	at       time.Time
}

type roundVote struct {
	voterID  string
	targetID string
	at       time.Time
}

// round is one clue→vote→(elimination|guess) cycle. Once a round ends it
// is immutable history.
type round struct {
	number          int
	phase           Phase
	clues           []roundClue
	votes           []roundVote
	eliminatedID    string
	spyGuess        string
	spyGuessCorrect *bool
	endReason       string
	startedAt       time.Time
	endedAt         time.Time
}

// Session is the game state machine for one room. All mutating access is
// serialized through a single command channel consumed by run(); nothing
// outside the actor goroutine touches the fields below cmds.
type Session struct {
	id           string
	roomCode     string
	category     string
	villagerWord string
	spyWord      string
	players      []*sessionPlayer
	spectators   []RosterEntry
	turn         int
	phase        Phase
	roundNum     int
	winner       string
	rounds       []*round
	startedAt    time.Time
	endedAt      time.Time
	rng          *rand.Rand

	cmds     chan sessionCmd
	done     chan struct{}
	stopOnce sync.Once
}

// newSession assigns roles and words and opens round 1 in the clue phase.
// The caller is responsible for starting run(). A nil rng gets a
// time-seeded source; tests pass their own seeded one.
func newSession(roomCode string, roster, spectators []RosterEntry, category string, rng *rand.Rand) (*Session, error) {
	if len(roster) < minPlayers {
		return nil, ErrInsufficientPlayers
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	pair, err := wordPairFor(category, rng)
	if err != nil {
		return nil, err
	}
	spyIndex := rng.Intn(len(roster))

	now := time.Now()
	players := make([]*sessionPlayer, 0, len(roster))
	for i, entry := range roster {
		role, word := RoleVillager, pair.Villager
		if i == spyIndex {
			role, word = RoleSpy, pair.Spy
		}
		players = append(players, &sessionPlayer{
			id:        entry.ID,
			name:      entry.Name,
			role:      role,
			word:      word,
			alive:     true,
			connected: true,
		})
	}

	return &Session{
		id:           uuid.NewString(),
		roomCode:     roomCode,
		category:     category,
		villagerWord: pair.Villager,
		spyWord:      pair.Spy,
		players:      players,
		spectators:   append([]RosterEntry(nil), spectators...),
		turn:         0,
		phase:        PhaseClue,
		roundNum:     1,
		rounds:       []*round{{number: 1, phase: PhaseClue, startedAt: now}},
		startedAt:    now,
		rng:          rng,
		cmds:         make(chan sessionCmd),
		done:         make(chan struct{}),
	}, nil
}

type cmdKind int

const (
	cmdSubmitClue cmdKind = iota
	cmdCastVote
	cmdSubmitSpyGuess
	cmdDisconnect
	cmdReconnect
	cmdSnapshot
)

type sessionCmd struct {
	kind     cmdKind
	playerID string
	text     string
	targetID string
	viewerID string
	reply    chan sessionResult
}

type sessionResult struct {
	events []outEvent
	snap   GameSnapshot
	err    error
}

// run is the single consumer of the command queue. One state transition is
// applied at a time; no two operations on the same session ever interleave.
func (s *Session) run() {
	for {
		select {
		case cmd := <-s.cmds:
			cmd.reply <- s.apply(cmd)
		case <-s.done:
			return
		}
	}
}

// apply executes one command against private state. A panic here means an
// internal invariant broke; the session is force-terminated because there
// is no client-visible way to recover a corrupted state machine.
func (s *Session) apply(cmd sessionCmd) (res sessionResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("%s | GAMES: invariant violation in session %s (room %s): %v",
				time.Now().Format(logDate), s.id, s.roomCode, r)
			s.phase = PhaseGameEnd
			s.endedAt = time.Now()
			res = sessionResult{err: ErrGameNotFound}
			s.stop()
		}
	}()

	switch cmd.kind {
	case cmdSubmitClue:
		events, err := s.submitClue(cmd.playerID, cmd.text)
		return sessionResult{events: events, err: err}
	case cmdCastVote:
		events, err := s.castVote(cmd.playerID, cmd.targetID)
		return sessionResult{events: events, err: err}
	case cmdSubmitSpyGuess:
		events, err := s.submitSpyGuess(cmd.text)
		return sessionResult{events: events, err: err}
	case cmdDisconnect:
		s.setConnected(cmd.playerID, false)
		return sessionResult{}
	case cmdReconnect:
		s.setConnected(cmd.playerID, true)
		return sessionResult{snap: s.snapshot()}
	case cmdSnapshot:
		return sessionResult{snap: s.snapshot()}
	default:
		return sessionResult{err: ErrGameNotFound}
	}
}

// do submits one command and waits for its result. Every accepted or
// rejected action yields exactly one response. A destroyed session answers
// everything with ErrGameNotFound.
func (s *Session) do(cmd sessionCmd) sessionResult {
	cmd.reply = make(chan sessionResult, 1)

	select {
	case s.cmds <- cmd:
	case <-s.done:
		return sessionResult{err: ErrGameNotFound}
	}

	select {
	case res := <-cmd.reply:
		return res
	case <-s.done:
		// The command may have been the one that terminated the
		// session; prefer its buffered reply if present.
		select {
		case res := <-cmd.reply:
			return res
		default:
			return sessionResult{err: ErrGameNotFound}
		}
	}
}

func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.done)
	})
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) RoomCode() string {
	return s.roomCode
}

func (s *Session) SubmitClue(playerID, text string) ([]outEvent, error) {
	res := s.do(sessionCmd{kind: cmdSubmitClue, playerID: playerID, text: text})
	return res.events, res.err
}

func (s *Session) CastVote(voterID, targetID string) ([]outEvent, error) {
	res := s.do(sessionCmd{kind: cmdCastVote, playerID: voterID, targetID: targetID})
	return res.events, res.err
}

func (s *Session) SubmitSpyGuess(guess string) ([]outEvent, error) {
	res := s.do(sessionCmd{kind: cmdSubmitSpyGuess, text: guess})
	return res.events, res.err
}

// HandleDisconnect marks presence stale. It never eliminates the player or
// advances the turn; an active game continues without them.
func (s *Session) HandleDisconnect(playerID string) {
	s.do(sessionCmd{kind: cmdDisconnect, playerID: playerID})
}

// HandleReconnect re-attaches a returning player and hands back a
// consistent snapshot for resync.
func (s *Session) HandleReconnect(playerID string) (GameSnapshot, bool) {
	res := s.do(sessionCmd{kind: cmdReconnect, playerID: playerID})
	if res.err != nil {
		return GameSnapshot{}, false
	}
	return res.snap, true
}

// SnapshotFor returns a consistent, viewer-redacted snapshot. The read is
// routed through the same serialization point as writes.
func (s *Session) SnapshotFor(viewerID string) (GameSnapshot, error) {
	res := s.do(sessionCmd{kind: cmdSnapshot, viewerID: viewerID})
	if res.err != nil {
		return GameSnapshot{}, res.err
	}
	return redactSnapshot(res.snap, viewerID), nil
}

// Ended reports whether the session is terminal (or already destroyed).
func (s *Session) Ended() bool {
	res := s.do(sessionCmd{kind: cmdSnapshot})
	if res.err != nil {
		return true
	}
	return res.snap.Phase == PhaseGameEnd
}

// IsParticipant reports whether the ID belongs to a player or spectator.
// Membership is fixed at game start, so this reads immutable data.
func (s *Session) IsParticipant(playerID string) bool {
	for _, p := range s.players {
		if p.id == playerID {
			return true
		}
	}
	for _, watcher := range s.spectators {
		if watcher.ID == playerID {
			return true
		}
	}
	return false
}

func (s *Session) setConnected(playerID string, connected bool) {
	for _, p := range s.players {
		if p.id == playerID {
			p.connected = connected
			return
		}
	}
}

// Snapshot types: plain copies of session state, safe to hand outside the
// actor goroutine.

type ClueRecord struct {
	PlayerID    string    `json:"player_id"`
	Clue        string    `json:"clue"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type VoteRecord struct {
	VoterID  string    `json:"voter_id"`
	TargetID string    `json:"target_id"`
	VotedAt  time.Time `json:"voted_at"`
}

type RoundSnapshot struct {
	Number          int          `json:"number"`
	Phase           Phase        `json:"phase"`
	Clues           []ClueRecord `json:"clues"`
	Votes           []VoteRecord `json:"votes"`
	EliminatedID    string       `json:"eliminated_id,omitempty"`
	SpyGuess        string       `json:"spy_guess,omitempty"`
	SpyGuessCorrect *bool        `json:"spy_guess_correct,omitempty"`
	EndReason       string       `json:"end_reason,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at,omitzero"`
}

type PlayerSnapshot struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Role      Role         `json:"role,omitempty"`
	Word      string       `json:"word,omitempty"`
	Alive     bool         `json:"alive"`
	Connected bool         `json:"connected"`
	Clues     []ClueRecord `json:"clues"`
}

type GameSnapshot struct {
	GameID       string           `json:"game_id"`
	RoomCode     string           `json:"room_code"`
	Category     string           `json:"category"`
	Phase        Phase            `json:"phase"`
	Round        int              `json:"round"`
	CurrentTurn  int              `json:"current_turn"`
	Players      []PlayerSnapshot `json:"players"`
	Spectators   []RosterEntry    `json:"spectators"`
	Rounds       []RoundSnapshot  `json:"rounds"`
	Winner       string           `json:"winner,omitempty"`
	VillagerWord string           `json:"villager_word,omitempty"`
	SpyWord      string           `json:"spy_word,omitempty"`
	StartedAt    time.Time        `json:"started_at"`
	EndedAt      time.Time        `json:"ended_at,omitzero"`
}

// snapshot copies the full, unredacted state. Only the actor goroutine
// calls it; everything returned is detached from live state.
func (s *Session) snapshot() GameSnapshot {
	players := make([]PlayerSnapshot, 0, len(s.players))
	for _, p := range s.players {
		clues := make([]ClueRecord, 0, len(p.clues))
		for _, c := range p.clues {
			clues = append(clues, ClueRecord{PlayerID: p.id, Clue: c.text, SubmittedAt: c.at})
		}
		players = append(players, PlayerSnapshot{
			ID:        p.id,
			Name:      p.name,
			Role:      p.role,
			Word:      p.word,
			Alive:     p.alive,
			Connected: p.connected,
			Clues:     clues,
		})
	}

	rounds := make([]RoundSnapshot, 0, len(s.rounds))
	for _, r := range s.rounds {
		clues := make([]ClueRecord, 0, len(r.clues))
		for _, c := range r.clues {
			clues = append(clues, ClueRecord{PlayerID: c.playerID, Clue: c.text, SubmittedAt: c.at})
		}
		votes := make([]VoteRecord, 0, len(r.votes))
		for _, v := range r.votes {
			votes = append(votes, VoteRecord{VoterID: v.voterID, TargetID: v.targetID, VotedAt: v.at})
		}
		rounds = append(rounds, RoundSnapshot{
			Number:          r.number,
			Phase:           r.phase,
			Clues:           clues,
			Votes:           votes,
			EliminatedID:    r.eliminatedID,
			SpyGuess:        r.spyGuess,
			SpyGuessCorrect: r.spyGuessCorrect,
			EndReason:       r.endReason,
			StartedAt:       r.startedAt,
			EndedAt:         r.endedAt,
		})
	}

	return GameSnapshot{
		GameID:       s.id,
		RoomCode:     s.roomCode,
		Category:     s.category,
		Phase:        s.phase,
		Round:        s.roundNum,
		CurrentTurn:  s.turn,
		Players:      players,
		Spectators:   append([]RosterEntry(nil), s.spectators...),
		Rounds:       rounds,
		Winner:       s.winner,
		VillagerWord: s.villagerWord,
		SpyWord:      s.spyWord,
		StartedAt:    s.startedAt,
		EndedAt:      s.endedAt,
	}
}

// redactSnapshot strips the secrets a viewer must not see. A player always
// sees their own word and role; everyone else's stay hidden until the game
// ends, except that elimination reveals a player's role (catching the spy
// is public knowledge by definition). Spectators see secrets only at the
// end.
func redactSnapshot(full GameSnapshot, viewerID string) GameSnapshot {
	if full.Phase == PhaseGameEnd {
		return full
	}

	out := full
	out.VillagerWord = ""
	out.SpyWord = ""
	out.Players = append([]PlayerSnapshot(nil), full.Players...)
	for i := range out.Players {
		p := &out.Players[i]
		if p.ID == viewerID {
			continue
		}
		p.Word = ""
		if p.Alive {
			p.Role = ""
		}
	}
	return out
}
