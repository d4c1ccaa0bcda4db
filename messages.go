package main

import "time"

// ClientMessage is the single inbound envelope. Type selects the action;
// the other fields are per-type and ignored elsewhere.
type ClientMessage struct {
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`      // join_room
	Spectator bool   `json:"spectator,omitempty"` // join_room
	Ready     *bool  `json:"ready,omitempty"`     // player_ready
	Category  string `json:"category,omitempty"`  // start_game
	GameID    string `json:"game_id,omitempty"`   // submit_clue / cast_vote / submit_spy_guess
	Text      string `json:"text,omitempty"`      // submit_clue / submit_spy_guess / send_message
	TargetID  string `json:"target_id,omitempty"` // cast_vote / throw_item
	Item      string `json:"item,omitempty"`      // throw_item
}

// ErrorMessage is sent only to the caller whose action failed.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorMessage(err error) ErrorMessage {
	return ErrorMessage{
		Type:    "error",
		Code:    errCode(err),
		Message: err.Error(),
	}
}

// SessionInfoMessage is sent immediately on connect so the client knows
// its identity and whether this cookie already belongs to the room.
type SessionInfoMessage struct {
	Type        string `json:"type"` // "session_info"
	PlayerID    string `json:"player_id"`
	IsExisting  bool   `json:"is_existing"`
	IsHost      bool   `json:"is_host"`
	Name        string `json:"name,omitempty"`
	GameRunning bool   `json:"game_running"`
}

// Room lifecycle messages

type RoomJoinedMessage struct {
	Type string       `json:"type"` // "room_joined"
	Room RoomSnapshot `json:"room"`
}

type RoomLeftMessage struct {
	Type     string `json:"type"` // "room_left"
	RoomCode string `json:"room_code"`
}

type RoomUpdatedMessage struct {
	Type string       `json:"type"` // "room_updated"
	Room RoomSnapshot `json:"room"`
}

type PlayerJoinedMessage struct {
	Type      string `json:"type"` // "player_joined"
	PlayerID  string `json:"player_id"`
	Name      string `json:"name"`
	Spectator bool   `json:"spectator"`
}

type PlayerLeftMessage struct {
	Type     string `json:"type"` // "player_left"
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// Game event messages (system → all room subscribers)

type GameStartMessage struct {
	Type string       `json:"type"` // "game_start"
	Game GameSnapshot `json:"game"`
}

type CluePhaseStartMessage struct {
	Type        string          `json:"type"` // "clue_phase_start"
	GameID      string          `json:"game_id"`
	Round       int             `json:"round"`
	CurrentTurn int             `json:"current_turn"`
	PlayerTurn  *PlayerSnapshot `json:"player_turn"`
	TimeLimitMS int64           `json:"time_limit_ms"`
}

type PlayerTurnMessage struct {
	Type        string          `json:"type"` // "player_turn"
	GameID      string          `json:"game_id"`
	CurrentTurn int             `json:"current_turn"`
	PlayerTurn  *PlayerSnapshot `json:"player_turn"`
}

type ClueSubmittedMessage struct {
	Type     string `json:"type"` // "clue_submitted"
	GameID   string `json:"game_id"`
	PlayerID string `json:"player_id"`
	Clue     string `json:"clue"`
}

type CluePhaseEndMessage struct {
	Type   string `json:"type"` // "clue_phase_end"
	GameID string `json:"game_id"`
}

type VotingPhaseStartMessage struct {
	Type        string           `json:"type"` // "voting_phase_start"
	GameID      string           `json:"game_id"`
	Players     []PlayerSnapshot `json:"players"` // alive players eligible to vote
	TimeLimitMS int64            `json:"time_limit_ms"`
}

type VoteCastedMessage struct {
	Type        string `json:"type"` // "vote_casted"
	GameID      string `json:"game_id"`
	VoterID     string `json:"voter_id"`
	VotesIn     int    `json:"votes_in"`
	VotesNeeded int    `json:"votes_needed"`
}

type VotingResultsMessage struct {
	Type       string          `json:"type"` // "voting_results"
	GameID     string          `json:"game_id"`
	Eliminated *PlayerSnapshot `json:"eliminated"`
	Tally      map[string]int  `json:"tally"`
}

type VotingPhaseEndMessage struct {
	Type   string `json:"type"` // "voting_phase_end"
	GameID string `json:"game_id"`
}

type SpyGuessStartMessage struct {
	Type        string `json:"type"` // "spy_guess_start"
	GameID      string `json:"game_id"`
	TimeLimitMS int64  `json:"time_limit_ms"`
}

type SpyGuessResultMessage struct {
	Type    string `json:"type"` // "spy_guess_result"
	GameID  string `json:"game_id"`
	Guess   string `json:"guess"`
	Correct bool   `json:"correct"`
	Winner  string `json:"winner"`
}

type RoundStartMessage struct {
	Type   string `json:"type"` // "round_start"
	GameID string `json:"game_id"`
	Round  int    `json:"round"`
}

type RoundEndMessage struct {
	Type   string `json:"type"` // "round_end"
	GameID string `json:"game_id"`
	Round  int    `json:"round"`
	Reason string `json:"reason"`
}

type GameEndMessage struct {
	Type   string       `json:"type"` // "game_end"
	GameID string       `json:"game_id"`
	Winner string       `json:"winner"`
	Game   GameSnapshot `json:"game"`
}

type GameStateMessage struct {
	Type string       `json:"type"` // "game_state_update"
	Game GameSnapshot `json:"game"`
}

// Stateless relays (never touch session state)

type ChatMessage struct {
	Type     string    `json:"type"` // "message_received"
	PlayerID string    `json:"player_id"`
	Name     string    `json:"name"`
	Text     string    `json:"text"`
	SentAt   time.Time `json:"sent_at"`
}

type TypingMessage struct {
	Type     string `json:"type"` // "typing_start" / "typing_stop"
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

type ItemThrownMessage struct {
	Type         string    `json:"type"` // "item_thrown"
	FromPlayerID string    `json:"from_player_id"`
	FromName     string    `json:"from_name"`
	Item         string    `json:"item"`
	TargetID     string    `json:"target_id,omitempty"`
	ThrownAt     time.Time `json:"thrown_at"`
}

// outEvent is one outbound event produced by a session step. Either msg is
// set (identical payload for every subscriber) or build is set (payload
// derived per viewer, used for snapshots that carry secret words). build
// closures only capture copies taken inside the actor step, never live
// session state.
type outEvent struct {
	msg   any
	build func(viewerID string) any
}

func (e outEvent) payloadFor(viewerID string) any {
	if e.build != nil {
		return e.build(viewerID)
	}
	return e.msg
}
