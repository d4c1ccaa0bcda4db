/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}

// GameError is a recoverable, caller-scoped failure. The Code field is the
// machine-readable value carried by "error" events; Message is for humans.
// None of these tear down a session.
type GameError struct {
	Code    string
	Message string
}

func (e *GameError) Error() string {
	return e.Message
}

var (
	// Precondition failures
	ErrInsufficientPlayers = &GameError{"insufficient_players", "need at least 4 players to start"}
	ErrUnknownCategory     = &GameError{"unknown_category", "no word pairs exist for that category"}
	ErrWrongPhase          = &GameError{"wrong_phase", "that action is not valid in the current phase"}
	ErrNotYourTurn         = &GameError{"not_your_turn", "it is not your turn to give a clue"}
	ErrAlreadySubmitted    = &GameError{"already_submitted", "you already gave a clue this round"}
	ErrAlreadyVoted        = &GameError{"already_voted", "you already voted this round"}
	ErrNotAlive            = &GameError{"not_alive", "eliminated players cannot act"}
	ErrInvalidTarget       = &GameError{"invalid_target", "that player cannot be voted for"}
	ErrNotAllReady         = &GameError{"not_ready", "all players must be ready to start"}

	// Validation failures
	ErrEmptyClue   = &GameError{"empty_clue", "clue cannot be empty"}
	ErrClueTooLong = &GameError{"clue_too_long", fmt.Sprintf("clue cannot be longer than %d characters", maxClueLength)}
	ErrEmptyGuess  = &GameError{"empty_guess", "guess cannot be empty"}
	ErrEmptyName   = &GameError{"empty_name", "a display name is required to join"}

	// Lookup failures
	ErrRoomNotFound   = &GameError{"room_not_found", "room not found"}
	ErrGameNotFound   = &GameError{"game_not_found", "no active game for this room"}
	ErrPlayerNotFound = &GameError{"player_not_found", "player not found or eliminated"}

	// Authorization / membership failures
	ErrNotParticipant = &GameError{"not_participant", "you are not a participant in this game"}
	ErrRoomFull       = &GameError{"room_full", "room is full"}
	ErrSpectatorsFull = &GameError{"spectators_full", "room is full for spectators"}
	ErrAlreadyJoined  = &GameError{"already_joined", "you are already in this room"}
	ErrRoomNotWaiting = &GameError{"room_not_waiting", "room is not accepting new players"}
	ErrNotHost        = &GameError{"not_host", "only the host can do that"}
)

// errCode maps any error to a wire code, hiding internals behind a
// generic value.
func errCode(err error) string {
	var ge *GameError
	if errors.As(err, &ge) {
		return ge.Code
	}
	return "internal_error"
}
