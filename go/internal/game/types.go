package game

import (
	"encoding/json"
	"strings"
	"time"
)

// SessionState represents the lifecycle state of a game session
type SessionState string

const (
	SessionLobby    SessionState = "LOBBY"
	SessionStarting SessionState = "STARTING"
	SessionPlaying  SessionState = "PLAYING"
	SessionRoundEnd SessionState = "ROUND_END"
	SessionPaused   SessionState = "PAUSED"
	SessionGameEnd  SessionState = "GAME_END"
)

// IsActive reports whether a game is considered in progress. LOBBY and
// GAME_END are the only inactive states.
func (s SessionState) IsActive() bool {
	switch s {
	case SessionStarting, SessionPlaying, SessionRoundEnd, SessionPaused:
		return true
	default:
		return false
	}
}

// ParseSessionState normalizes a wire string into a SessionState.
// Unknown values map to LOBBY so a malformed snapshot degrades to the
// waiting screen instead of failing.
func ParseSessionState(raw string) SessionState {
	switch SessionState(strings.ToUpper(strings.TrimSpace(raw))) {
	case SessionStarting:
		return SessionStarting
	case SessionPlaying:
		return SessionPlaying
	case SessionRoundEnd:
		return SessionRoundEnd
	case SessionPaused:
		return SessionPaused
	case SessionGameEnd:
		return SessionGameEnd
	default:
		return SessionLobby
	}
}

// GameType identifies one of the known mini-games
type GameType string

const (
	GameUnknown  GameType = ""
	GameTrivia   GameType = "TRIVIA"
	GameBingo    GameType = "BINGO"
	GameEmoji    GameType = "EMOJI"
	GameGuessing GameType = "GUESSING"
)

// NormalizeGameType maps both enum constants and the free-form strings that
// occur on the wire onto one canonical GameType. The mapping is
// case-insensitive and alias-aware; anything unrecognized is GameUnknown.
func NormalizeGameType(raw string) GameType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trivia", "quiz":
		return GameTrivia
	case "bingo":
		return GameBingo
	case "emoji", "emoji_guess":
		return GameEmoji
	case "guessing", "guess_the_picture":
		return GameGuessing
	default:
		return GameUnknown
	}
}

// Per-game payload keys. Each known game declares exactly one required key
// whose presence in the snapshot payload marks its data as usable.
const (
	PayloadKeyCurrentQuestion  = "current_question"
	PayloadKeyCalledItems      = "called_items"
	PayloadKeyCurrentItem      = "current_item"
	PayloadKeyCurrentChallenge = "current_challenge"
)

// StateSnapshot is one complete, versioned description of session state as
// broadcast by the server. GameType is kept as the raw wire string here;
// normalization happens once at the resolver boundary.
type StateSnapshot struct {
	Version      int64                      `json:"version"`
	Timestamp    time.Time                  `json:"timestamp"`
	SessionState SessionState               `json:"session_state"`
	Round        int                        `json:"round"`
	MaxRounds    int                        `json:"max_rounds"`
	GameType     string                     `json:"game_type"`
	Payload      map[string]json.RawMessage `json:"payload,omitempty"`
}

// PayloadKeys returns the set of keys present in the snapshot payload.
func (s StateSnapshot) PayloadKeys() map[string]struct{} {
	keys := make(map[string]struct{}, len(s.Payload))
	for k := range s.Payload {
		keys[k] = struct{}{}
	}
	return keys
}

// PlayerStatus indicates connection liveness for a player
type PlayerStatus string

const (
	PlayerConnected    PlayerStatus = "CONNECTED"
	PlayerDisconnected PlayerStatus = "DISCONNECTED"
)

// Player is a participant in the session. Rosters always arrive as a full
// replacement array; there are no incremental add/remove events.
type Player struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Avatar string       `json:"avatar,omitempty"`
	Score  int          `json:"score"`
	Status PlayerStatus `json:"status"`
}
