package games

// Each player receives a secret word from a shared category; one randomly chosen player
// (the spy) receives a different but related word from the same category
// Players take turns giving a one-word clue about their word, trying to prove they
// know it without giving it away to the spy
// After everyone has given a clue, all alive players vote on who they think the spy is
// The player with the most votes is eliminated (ties broken at random)
// If the spy is eliminated, they get one last chance: correctly guessing the
// villagers' word steals the win
// If a villager is eliminated, a new round of clues begins with the survivors
// The spy wins outright once fewer than two players remain alive

// Display formats:
// Card reveal of your own word at game start, hidden from other players
// Clue feed in turn order, then a voting grid of alive players

// Implementation details:
// - One websocket hub per room code, one session actor per running game
// - Players identified by cookie on first connection
// - Rooms joinable by 6-digit numeric code or QR share link

// How to play
// - Each player joins a room, is assigned a cookie, and prompted for their name
// - Everyone readies up; the host picks a category and starts the game
// - Seats give clues in join order; eliminated seats are skipped in later rounds
// - Spectators can watch and chat but never receive a word or a vote
