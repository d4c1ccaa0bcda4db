package main

import (
	"strings"
	"time"
	"unicode/utf8"
)

// State transitions for one session. Every method in this file runs on the
// actor goroutine via apply(); none of them are safe to call elsewhere.

func (s *Session) playerByID(id string) *sessionPlayer {
	for _, p := range s.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (s *Session) aliveCount() int {
	count := 0

	for _, p := range s.players {
		if p.alive {
			count++
		}
	}

	return count
}

func (s *Session) currentRound() *round {
	return s.rounds[len(s.rounds)-1]
}

// firstAlive returns the index of the earliest seat still alive. Round one
// always starts at seat zero; later rounds start here, since seat zero may
// be eliminated by then.
func (s *Session) firstAlive() int {
	for i, p := range s.players {
		if p.alive {
			return i
		}
	}

	return len(s.players)
}

// nextAliveAfter walks forward past eliminated seats. A result of
// len(players) means the clue round is over.
func (s *Session) nextAliveAfter(i int) int {
	for j := i + 1; j < len(s.players); j++ {
		if s.players[j].alive {
			return j
		}
	}

	return len(s.players)
}

// publicPlayer is a secret-free player view, safe to broadcast mid-game.
func publicPlayer(p *sessionPlayer) *PlayerSnapshot {
	return &PlayerSnapshot{
		ID:        p.id,
		Name:      p.name,
		Alive:     p.alive,
		Connected: p.connected,
	}
}

// revealedPlayer carries the role too. Used once a player is eliminated,
// when their allegiance becomes public knowledge.
func revealedPlayer(p *sessionPlayer) *PlayerSnapshot {
	snap := publicPlayer(p)
	snap.Role = p.role

	return snap
}

// stateEvent is the personalized game_state_update appended to every
// mutating step. The snapshot copy is taken here, inside the actor;
// the closure redacts that copy per viewer during fanout.
func (s *Session) stateEvent() outEvent {
	full := s.snapshot()

	return outEvent{build: func(viewerID string) any {
		return GameStateMessage{Type: "game_state_update", Game: redactSnapshot(full, viewerID)}
	}}
}

func (s *Session) cluePhaseStartEvent() outEvent {
	current := s.players[s.turn]

	return outEvent{msg: CluePhaseStartMessage{
		Type:        "clue_phase_start",
		GameID:      s.id,
		Round:       s.roundNum,
		CurrentTurn: s.turn,
		PlayerTurn:  publicPlayer(current),
		TimeLimitMS: clueTimeLimit.Milliseconds(),
	}}
}

// startEvents announces a freshly created session: the personalized
// game_start (each player learns their own word, nobody else's) followed
// by the first clue_phase_start.
func (s *Session) startEvents() []outEvent {
	full := s.snapshot()

	return []outEvent{
		{build: func(viewerID string) any {
			return GameStartMessage{Type: "game_start", Game: redactSnapshot(full, viewerID)}
		}},
		s.cluePhaseStartEvent(),
	}
}

func (s *Session) submitClue(playerID, text string) ([]outEvent, error) {
	if s.phase != PhaseClue {
		return nil, ErrWrongPhase
	}

	player := s.playerByID(playerID)
	switch {
	case player == nil:
		return nil, ErrPlayerNotFound
	case !player.alive:
		return nil, ErrNotAlive
	case s.players[s.turn] != player:
		return nil, ErrNotYourTurn
	}

	clue := strings.TrimSpace(text)
	switch {
	case clue == "":
		return nil, ErrEmptyClue
	case utf8.RuneCountInString(clue) > maxClueLength:
		return nil, ErrClueTooLong
	}

	rnd := s.currentRound()
	for _, c := range rnd.clues {
		if c.playerID == playerID {
			return nil, ErrAlreadySubmitted
		}
	}

	now := time.Now()
	rnd.clues = append(rnd.clues, roundClue{playerID: playerID, text: clue, at: now})
	player.clues = append(player.clues, playerClue{text: clue, at: now})

	events := []outEvent{{msg: ClueSubmittedMessage{
		Type:     "clue_submitted",
		GameID:   s.id,
		PlayerID: playerID,
		Clue:     clue,
	}}}

	next := s.nextAliveAfter(s.turn)
	if next < len(s.players) {
		s.turn = next
		events = append(events, outEvent{msg: PlayerTurnMessage{
			Type:        "player_turn",
			GameID:      s.id,
			CurrentTurn: s.turn,
			PlayerTurn:  publicPlayer(s.players[s.turn]),
		}})
	} else {
		s.phase = PhaseVoting
		rnd.phase = PhaseVoting
		s.turn = 0

		voters := make([]PlayerSnapshot, 0, s.aliveCount())
		for _, p := range s.players {
			if p.alive {
				voters = append(voters, *publicPlayer(p))
			}
		}

		events = append(events,
			outEvent{msg: CluePhaseEndMessage{Type: "clue_phase_end", GameID: s.id}},
			outEvent{msg: VotingPhaseStartMessage{
				Type:        "voting_phase_start",
				GameID:      s.id,
				Players:     voters,
				TimeLimitMS: votingTimeLimit.Milliseconds(),
			}},
		)
	}

	return append(events, s.stateEvent()), nil
}

func (s *Session) castVote(voterID, targetID string) ([]outEvent, error) {
	if s.phase != PhaseVoting {
		return nil, ErrWrongPhase
	}

	voter := s.playerByID(voterID)
	switch {
	case voter == nil:
		return nil, ErrPlayerNotFound
	case !voter.alive:
		return nil, ErrNotAlive
	}

	target := s.playerByID(targetID)
	if target == nil || !target.alive {
		return nil, ErrInvalidTarget
	}

	rnd := s.currentRound()
	for _, v := range rnd.votes {
		if v.voterID == voterID {
			return nil, ErrAlreadyVoted
		}
	}

	now := time.Now()
	rnd.votes = append(rnd.votes, roundVote{voterID: voterID, targetID: targetID, at: now})
	voter.votes = append(voter.votes, playerVote{round: s.roundNum, targetID: targetID, at: now})

	needed := s.aliveCount()
	events := []outEvent{{msg: VoteCastedMessage{
		Type:        "vote_casted",
		GameID:      s.id,
		VoterID:     voterID,
		VotesIn:     len(rnd.votes),
		VotesNeeded: needed,
	}}}

	// The final ballot resolves the round in the same step, so resolution
	// happens exactly once no matter how votes raced on the queue.
	if len(rnd.votes) >= needed {
		events = append(events, s.resolveVotes()...)
	}

	return append(events, s.stateEvent()), nil
}

// resolveVotes tallies the round, eliminates the strict-majority target
// (random pick among tied leaders), and routes to the next phase.
func (s *Session) resolveVotes() []outEvent {
	rnd := s.currentRound()

	tally := make(map[string]int)
	for _, v := range rnd.votes {
		tally[v.targetID]++
	}

	most := 0
	for _, n := range tally {
		if n > most {
			most = n
		}
	}

	leaders := make([]string, 0, len(tally))
	for _, p := range s.players {
		if tally[p.id] == most {
			leaders = append(leaders, p.id)
		}
	}

	eliminated := s.playerByID(leaders[s.rng.Intn(len(leaders))])
	eliminated.alive = false
	rnd.eliminatedID = eliminated.id

	events := []outEvent{
		{msg: VotingPhaseEndMessage{Type: "voting_phase_end", GameID: s.id}},
		{msg: VotingResultsMessage{
			Type:       "voting_results",
			GameID:     s.id,
			Eliminated: revealedPlayer(eliminated),
			Tally:      tally,
		}},
	}

	now := time.Now()

	switch {
	case eliminated.role == RoleSpy:
		// Caught, but the spy gets one shot at naming the villager word.
		s.phase = PhaseSpyGuess
		rnd.phase = PhaseSpyGuess
		rnd.endReason = EndReasonSpyCaught

		events = append(events, outEvent{msg: SpyGuessStartMessage{
			Type:        "spy_guess_start",
			GameID:      s.id,
			TimeLimitMS: spyGuessTimeLimit.Milliseconds(),
		}})
	case s.aliveCount() < minPlayersForNextRound:
		s.winner = WinnerSpy
		rnd.endReason = EndReasonSpyWon
		rnd.endedAt = now
		events = append(events, s.endGame()...)
	default:
		rnd.endReason = EndReasonVillagerEliminated
		rnd.endedAt = now

		events = append(events, outEvent{msg: RoundEndMessage{
			Type:   "round_end",
			GameID: s.id,
			Round:  s.roundNum,
			Reason: EndReasonVillagerEliminated,
		}})

		s.roundNum++
		s.rounds = append(s.rounds, &round{number: s.roundNum, phase: PhaseClue, startedAt: now})
		s.phase = PhaseClue
		s.turn = s.firstAlive()

		events = append(events,
			outEvent{msg: RoundStartMessage{Type: "round_start", GameID: s.id, Round: s.roundNum}},
			s.cluePhaseStartEvent(),
		)
	}

	return events
}

// submitSpyGuess resolves the endgame gamble. Identity is not checked
// here; by this phase only the caught spy has anything to submit, and the
// transport layer already restricts senders to game participants.
func (s *Session) submitSpyGuess(guess string) ([]outEvent, error) {
	if s.phase != PhaseSpyGuess {
		return nil, ErrWrongPhase
	}

	guess = strings.TrimSpace(guess)
	if guess == "" {
		return nil, ErrEmptyGuess
	}

	correct := strings.EqualFold(guess, s.villagerWord)
	if correct {
		s.winner = WinnerSpy
	} else {
		s.winner = WinnerVillagers
	}

	rnd := s.currentRound()
	rnd.spyGuess = guess
	rnd.spyGuessCorrect = &correct
	rnd.endedAt = time.Now()

	events := []outEvent{{msg: SpyGuessResultMessage{
		Type:    "spy_guess_result",
		GameID:  s.id,
		Guess:   guess,
		Correct: correct,
		Winner:  s.winner,
	}}}
	events = append(events, s.endGame()...)

	return append(events, s.stateEvent()), nil
}

// endGame flips to the terminal phase and emits the personalized
// game_end. Terminal snapshots reveal every word and role.
func (s *Session) endGame() []outEvent {
	s.phase = PhaseGameEnd
	s.currentRound().phase = PhaseGameEnd
	if s.currentRound().endedAt.IsZero() {
		s.currentRound().endedAt = time.Now()
	}
	s.endedAt = time.Now()

	full := s.snapshot()

	return []outEvent{{build: func(viewerID string) any {
		return GameEndMessage{
			Type:   "game_end",
			GameID: full.GameID,
			Winner: full.Winner,
			Game:   redactSnapshot(full, viewerID),
		}
	}}}
}
