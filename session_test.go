package main

import (
	"fmt"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRoster(n int) []RosterEntry {
	roster := make([]RosterEntry, 0, n)
	for i := 0; i < n; i++ {
		roster = append(roster, RosterEntry{
			ID:   fmt.Sprintf("p%d", i),
			Name: fmt.Sprintf("Player %d", i),
		})
	}
	return roster
}

func newTestSession(t *testing.T, n int, seed int64) *Session {
	t.Helper()

	s, err := newSession("123456", testRoster(n), nil, "animals", rand.New(rand.NewSource(seed)))
	require.NoError(t, err)

	go s.run()
	t.Cleanup(s.stop)

	return s
}

// spyID inspects role assignments, which are fixed before the actor
// starts and never change.
func spyID(s *Session) string {
	for _, p := range s.players {
		if p.role == RoleSpy {
			return p.id
		}
	}
	return ""
}

func villagerID(s *Session) string {
	for _, p := range s.players {
		if p.role == RoleVillager {
			return p.id
		}
	}
	return ""
}

func mustSnapshot(t *testing.T, s *Session) GameSnapshot {
	t.Helper()

	snap, err := s.SnapshotFor("")
	require.NoError(t, err)

	return snap
}

// msgType extracts the wire discriminator from any outbound message.
func msgType(payload any) string {
	v := reflect.ValueOf(payload)
	if v.Kind() == reflect.Pointer {
		v = v.Elem()
	}
	f := v.FieldByName("Type")
	if !f.IsValid() || f.Kind() != reflect.String {
		return ""
	}
	return f.String()
}

func eventTypes(events []outEvent, viewerID string) []string {
	types := make([]string, 0, len(events))
	for _, e := range events {
		types = append(types, msgType(e.payloadFor(viewerID)))
	}
	return types
}

func countType(events []outEvent, want string) int {
	n := 0
	for _, typ := range eventTypes(events, "") {
		if typ == want {
			n++
		}
	}
	return n
}

// submitAllClues drives the clue phase to completion in turn order,
// returning the events from the final submission.
func submitAllClues(t *testing.T, s *Session) []outEvent {
	t.Helper()

	var last []outEvent
	for i := 0; i < maxPlayers; i++ {
		snap := mustSnapshot(t, s)
		if snap.Phase != PhaseClue {
			return last
		}

		current := snap.Players[snap.CurrentTurn]
		events, err := s.SubmitClue(current.ID, "clue-"+current.ID)
		require.NoError(t, err)
		last = events
	}

	t.Fatal("clue phase never completed")
	return nil
}

// castAllVotes has every alive player vote for the same target, returning
// the events from the resolving ballot.
func castAllVotes(t *testing.T, s *Session, targetID string) []outEvent {
	t.Helper()

	snap := mustSnapshot(t, s)
	require.Equal(t, PhaseVoting, snap.Phase)

	var last []outEvent
	for _, p := range snap.Players {
		if !p.Alive {
			continue
		}
		events, err := s.CastVote(p.ID, targetID)
		require.NoError(t, err)
		last = events
	}
	return last
}

// playRound drives one full clue and vote cycle against the target.
func playRound(t *testing.T, s *Session, targetID string) []outEvent {
	t.Helper()

	submitAllClues(t, s)
	return castAllVotes(t, s, targetID)
}

func TestNewSessionAssignsExactlyOneSpy(t *testing.T) {
	for n := minPlayers; n <= maxPlayers; n++ {
		s, err := newSession("123456", testRoster(n), nil, "food", rand.New(rand.NewSource(int64(n))))
		require.NoError(t, err)

		spies := 0
		for _, p := range s.players {
			switch p.role {
			case RoleSpy:
				spies++
				assert.Equal(t, s.spyWord, p.word)
			case RoleVillager:
				assert.Equal(t, s.villagerWord, p.word)
			}
		}
		assert.Equal(t, 1, spies, "size %d", n)
		assert.NotEqual(t, s.villagerWord, s.spyWord)
	}
}

func TestNewSessionRejectsInsufficientPlayers(t *testing.T) {
	_, err := newSession("123456", testRoster(minPlayers-1), nil, "food", rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrInsufficientPlayers)
}

func TestNewSessionRejectsUnknownCategory(t *testing.T) {
	_, err := newSession("123456", testRoster(minPlayers), nil, "quasars", rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestStartEventsIncludePhaseStart(t *testing.T) {
	s, err := newSession("123456", testRoster(4), nil, "animals", rand.New(rand.NewSource(7)))
	require.NoError(t, err)

	events := s.startEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "game_start", msgType(events[0].payloadFor("p0")))
	assert.Equal(t, "clue_phase_start", msgType(events[1].payloadFor("p0")))

	// Each player sees their own word in game_start and nobody else's.
	start := events[0].payloadFor("p1").(GameStartMessage)
	for _, p := range start.Game.Players {
		if p.ID == "p1" {
			assert.NotEmpty(t, p.Word)
		} else {
			assert.Empty(t, p.Word)
			if p.Alive {
				assert.Empty(t, p.Role)
			}
		}
	}
}

func TestSubmitClueOutOfTurnRejectedWithoutMutation(t *testing.T) {
	s := newTestSession(t, 4, 7)

	_, err := s.SubmitClue("p1", "early")
	assert.ErrorIs(t, err, ErrNotYourTurn)

	snap := mustSnapshot(t, s)
	assert.Equal(t, 0, snap.CurrentTurn)
	assert.Empty(t, snap.Rounds[0].Clues)

	events, err := s.SubmitClue("p0", "fluffy")
	require.NoError(t, err)
	assert.Equal(t, []string{"clue_submitted", "player_turn", "game_state_update"}, eventTypes(events, ""))

	snap = mustSnapshot(t, s)
	assert.Equal(t, 1, snap.CurrentTurn)
	require.Len(t, snap.Rounds[0].Clues, 1)
	assert.Equal(t, "fluffy", snap.Rounds[0].Clues[0].Clue)
}

func TestSubmitClueValidation(t *testing.T) {
	s := newTestSession(t, 4, 7)

	_, err := s.SubmitClue("p0", "   ")
	assert.ErrorIs(t, err, ErrEmptyClue)

	_, err = s.SubmitClue("p0", strings.Repeat("x", maxClueLength+1))
	assert.ErrorIs(t, err, ErrClueTooLong)

	_, err = s.SubmitClue("ghost", "word")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	// A clue of exactly the limit is fine once trimmed.
	_, err = s.SubmitClue("p0", "  "+strings.Repeat("y", maxClueLength)+"  ")
	assert.NoError(t, err)
}

func TestCluePhaseCompletionStartsVoting(t *testing.T) {
	s := newTestSession(t, 4, 7)

	last := submitAllClues(t, s)
	assert.Equal(t,
		[]string{"clue_submitted", "clue_phase_end", "voting_phase_start", "game_state_update"},
		eventTypes(last, ""))

	snap := mustSnapshot(t, s)
	assert.Equal(t, PhaseVoting, snap.Phase)
	assert.Len(t, snap.Rounds[0].Clues, 4)

	// Clue submissions are rejected once voting opens.
	_, err := s.SubmitClue("p0", "late")
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestCastVoteValidation(t *testing.T) {
	s := newTestSession(t, 4, 7)

	_, err := s.CastVote("p0", "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)

	submitAllClues(t, s)

	_, err = s.CastVote("p0", "ghost")
	assert.ErrorIs(t, err, ErrInvalidTarget)

	_, err = s.CastVote("ghost", "p1")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	_, err = s.CastVote("p0", "p1")
	require.NoError(t, err)

	_, err = s.CastVote("p0", "p2")
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestVotesResolveExactlyOnce(t *testing.T) {
	s := newTestSession(t, 4, 7)
	target := villagerID(s)

	submitAllClues(t, s)

	resolutions := 0
	for _, p := range mustSnapshot(t, s).Players {
		events, err := s.CastVote(p.ID, target)
		require.NoError(t, err)
		resolutions += countType(events, "voting_results")
	}

	assert.Equal(t, 1, resolutions)

	snap := mustSnapshot(t, s)
	assert.Equal(t, target, snap.Rounds[0].EliminatedID)
}

func TestConcurrentVotesResolveExactlyOnce(t *testing.T) {
	s := newTestSession(t, 6, 7)
	target := villagerID(s)

	submitAllClues(t, s)
	snap := mustSnapshot(t, s)

	var wg sync.WaitGroup
	results := make(chan []outEvent, len(snap.Players))

	for _, p := range snap.Players {
		wg.Add(1)
		go func(voterID string) {
			defer wg.Done()
			events, err := s.CastVote(voterID, target)
			assert.NoError(t, err)
			results <- events
		}(p.ID)
	}
	wg.Wait()
	close(results)

	resolutions := 0
	for events := range results {
		resolutions += countType(events, "voting_results")
	}
	assert.Equal(t, 1, resolutions)
}

func TestSpyEliminationOpensGuessPhase(t *testing.T) {
	s := newTestSession(t, 4, 7)
	spy := spyID(s)

	last := playRound(t, s, spy)
	types := eventTypes(last, "")
	assert.Contains(t, types, "voting_phase_end")
	assert.Contains(t, types, "voting_results")
	assert.Contains(t, types, "spy_guess_start")
	assert.NotContains(t, types, "game_end")

	snap := mustSnapshot(t, s)
	assert.Equal(t, PhaseSpyGuess, snap.Phase)
	assert.Equal(t, spy, snap.Rounds[0].EliminatedID)

	// Voting is closed while the spy considers their guess.
	_, err := s.CastVote("p0", spy)
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestSpyGuessCorrectStealsWin(t *testing.T) {
	s := newTestSession(t, 4, 7)
	word := s.villagerWord

	playRound(t, s, spyID(s))

	_, err := s.SubmitSpyGuess("  ")
	assert.ErrorIs(t, err, ErrEmptyGuess)

	// Comparison ignores case.
	events, err := s.SubmitSpyGuess(strings.ToUpper(word))
	require.NoError(t, err)

	types := eventTypes(events, "")
	assert.Contains(t, types, "spy_guess_result")
	assert.Contains(t, types, "game_end")

	snap := mustSnapshot(t, s)
	assert.Equal(t, PhaseGameEnd, snap.Phase)
	assert.Equal(t, WinnerSpy, snap.Winner)
	require.NotNil(t, snap.Rounds[0].SpyGuessCorrect)
	assert.True(t, *snap.Rounds[0].SpyGuessCorrect)
}

func TestSpyGuessWrongVillagersWin(t *testing.T) {
	s := newTestSession(t, 4, 7)

	playRound(t, s, spyID(s))

	_, err := s.SubmitSpyGuess("definitely not it")
	require.NoError(t, err)

	snap := mustSnapshot(t, s)
	assert.Equal(t, WinnerVillagers, snap.Winner)

	// A finished game rejects everything.
	_, err = s.SubmitSpyGuess("again")
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = s.SubmitClue("p0", "word")
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = s.CastVote("p0", "p1")
	assert.ErrorIs(t, err, ErrWrongPhase)
}

func TestVillagerEliminationStartsNextRound(t *testing.T) {
	s := newTestSession(t, 5, 7)
	target := villagerID(s)

	last := playRound(t, s, target)
	types := eventTypes(last, "")
	assert.Contains(t, types, "round_end")
	assert.Contains(t, types, "round_start")
	assert.Contains(t, types, "clue_phase_start")

	snap := mustSnapshot(t, s)
	assert.Equal(t, PhaseClue, snap.Phase)
	assert.Equal(t, 2, snap.Round)
	require.Len(t, snap.Rounds, 2)
	assert.Equal(t, EndReasonVillagerEliminated, snap.Rounds[0].EndReason)

	// The turn pointer lands on the earliest surviving seat.
	current := snap.Players[snap.CurrentTurn]
	assert.True(t, current.Alive)
	for _, p := range snap.Players {
		if p.ID == current.ID {
			break
		}
		assert.False(t, p.Alive)
	}

	// The eliminated player can no longer act.
	_, err := s.SubmitClue(target, "from beyond")
	assert.ErrorIs(t, err, ErrNotAlive)
}

func TestSpyWinsWhenTooFewRemain(t *testing.T) {
	s := newTestSession(t, 4, 7)
	spy := spyID(s)

	// Eliminate villagers round by round until only the spy and one
	// villager are candidates for the final cut.
	for {
		snap := mustSnapshot(t, s)
		if snap.Phase == PhaseGameEnd {
			break
		}

		var target string
		for _, p := range snap.Players {
			if p.Alive && p.ID != spy {
				target = p.ID
				break
			}
		}
		require.NotEmpty(t, target)

		playRound(t, s, target)
	}

	snap := mustSnapshot(t, s)
	assert.Equal(t, WinnerSpy, snap.Winner)
	assert.Equal(t, EndReasonSpyWon, snap.Rounds[len(snap.Rounds)-1].EndReason)
}

func TestTieBreakEliminatesOneOfTheLeaders(t *testing.T) {
	s := newTestSession(t, 6, 42)

	submitAllClues(t, s)

	// Three-way tie: two votes each for p0, p1, and p2.
	targets := map[string]string{
		"p0": "p1", "p3": "p1",
		"p1": "p2", "p4": "p2",
		"p2": "p0", "p5": "p0",
	}
	for voter, target := range targets {
		_, err := s.CastVote(voter, target)
		require.NoError(t, err)
	}

	snap := mustSnapshot(t, s)
	eliminated := snap.Rounds[0].EliminatedID
	assert.Contains(t, []string{"p0", "p1", "p2"}, eliminated)

	alive := 0
	for _, p := range snap.Players {
		if p.Alive {
			alive++
		}
	}
	assert.Equal(t, 5, alive)
}

func TestDisconnectNeverEliminates(t *testing.T) {
	s := newTestSession(t, 4, 7)

	s.HandleDisconnect("p0")

	snap := mustSnapshot(t, s)
	assert.True(t, snap.Players[0].Alive)
	assert.False(t, snap.Players[0].Connected)
	assert.Equal(t, 0, snap.CurrentTurn, "turn pointer stays on the disconnected player")

	// The seat still acts normally once they return.
	resync, ok := s.HandleReconnect("p0")
	require.True(t, ok)
	assert.True(t, resync.Players[0].Connected)

	_, err := s.SubmitClue("p0", "back")
	assert.NoError(t, err)
}

func TestSnapshotRedaction(t *testing.T) {
	s := newTestSession(t, 4, 7)
	spy := spyID(s)
	villager := villagerID(s)

	snap, err := s.SnapshotFor(villager)
	require.NoError(t, err)
	assert.Empty(t, snap.VillagerWord)
	assert.Empty(t, snap.SpyWord)

	for _, p := range snap.Players {
		if p.ID == villager {
			assert.Equal(t, RoleVillager, p.Role)
			assert.NotEmpty(t, p.Word)
		} else {
			assert.Empty(t, p.Role)
			assert.Empty(t, p.Word)
		}
	}

	// The spy sees only the spy word.
	snap, err = s.SnapshotFor(spy)
	require.NoError(t, err)
	for _, p := range snap.Players {
		if p.ID == spy {
			assert.Equal(t, RoleSpy, p.Role)
			assert.Equal(t, s.spyWord, p.Word)
		}
	}

	// Elimination reveals a role mid-game.
	playRound(t, s, villager)
	snap, err = s.SnapshotFor("")
	require.NoError(t, err)
	for _, p := range snap.Players {
		if p.ID == villager {
			assert.Equal(t, RoleVillager, p.Role)
			assert.Empty(t, p.Word)
		}
	}
}

func TestTerminalSnapshotRevealsEverything(t *testing.T) {
	s := newTestSession(t, 4, 7)

	playRound(t, s, spyID(s))
	_, err := s.SubmitSpyGuess("nope")
	require.NoError(t, err)

	snap := mustSnapshot(t, s)
	assert.NotEmpty(t, snap.VillagerWord)
	assert.NotEmpty(t, snap.SpyWord)
	for _, p := range snap.Players {
		assert.NotEmpty(t, p.Role)
		assert.NotEmpty(t, p.Word)
	}
	assert.False(t, snap.EndedAt.IsZero())
}

func TestRoundHistoryReplaysConsistently(t *testing.T) {
	s := newTestSession(t, 5, 7)
	spy := spyID(s)

	first := villagerID(s)
	playRound(t, s, first)
	playRound(t, s, spy)
	_, err := s.SubmitSpyGuess("wrong")
	require.NoError(t, err)

	snap := mustSnapshot(t, s)
	require.Len(t, snap.Rounds, 2)

	r1, r2 := snap.Rounds[0], snap.Rounds[1]
	assert.Equal(t, 5, len(r1.Clues))
	assert.Equal(t, 5, len(r1.Votes))
	assert.Equal(t, first, r1.EliminatedID)

	assert.Equal(t, 4, len(r2.Clues))
	assert.Equal(t, 4, len(r2.Votes))
	assert.Equal(t, spy, r2.EliminatedID)
	assert.Equal(t, EndReasonSpyCaught, r2.EndReason)
	assert.Equal(t, "wrong", r2.SpyGuess)

	// No eliminated player appears as a voter or clue giver afterwards.
	for _, c := range r2.Clues {
		assert.NotEqual(t, first, c.PlayerID)
	}
	for _, v := range r2.Votes {
		assert.NotEqual(t, first, v.VoterID)
	}
}

// A full scripted game with a known spy, found by scanning seeds.
func TestScriptedGameSpyStealsWin(t *testing.T) {
	roster := []RosterEntry{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
		{ID: "c", Name: "Carol"},
		{ID: "d", Name: "Dave"},
	}

	var s *Session
	for seed := int64(0); seed < 1000; seed++ {
		candidate, err := newSession("654321", roster, nil, "movies", rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		if candidate.players[3].role == RoleSpy {
			s = candidate
			break
		}
	}
	require.NotNil(t, s, "no seed put the spy on the last seat")

	go s.run()
	t.Cleanup(s.stop)

	for _, id := range []string{"a", "b", "c", "d"} {
		_, err := s.SubmitClue(id, "clue-"+id)
		require.NoError(t, err)
	}

	// 3-1 split: the spy's dissenting vote for Alice changes nothing.
	var last []outEvent
	for voter, target := range map[string]string{"a": "d", "b": "d", "c": "d", "d": "a"} {
		events, err := s.CastVote(voter, target)
		require.NoError(t, err)
		if countType(events, "voting_results") > 0 {
			last = events
		}
	}
	require.NotNil(t, last)

	for _, e := range last {
		if results, ok := e.payloadFor("").(VotingResultsMessage); ok {
			assert.Equal(t, map[string]int{"d": 3, "a": 1}, results.Tally)
			assert.Equal(t, "d", results.Eliminated.ID)
		}
	}

	snap := mustSnapshot(t, s)
	require.Equal(t, PhaseSpyGuess, snap.Phase)

	_, err := s.SubmitSpyGuess(s.villagerWord)
	require.NoError(t, err)

	snap = mustSnapshot(t, s)
	assert.Equal(t, WinnerSpy, snap.Winner)
	assert.Equal(t, PhaseGameEnd, snap.Phase)
}

func TestStoppedSessionAnswersGameNotFound(t *testing.T) {
	s := newTestSession(t, 4, 7)
	s.stop()

	_, err := s.SubmitClue("p0", "word")
	assert.ErrorIs(t, err, ErrGameNotFound)

	_, err = s.SnapshotFor("p0")
	assert.ErrorIs(t, err, ErrGameNotFound)

	assert.True(t, s.Ended())
}
