package statesync

import "github.com/mcdev12/partyhub/go/internal/game"

// Fallback carries the hosting surface's locally-held display parameters.
// They cover the cold-start window before the first snapshot arrives; once a
// snapshot exists the server is the source of truth.
type Fallback struct {
	Round     int
	MaxRounds int
	GameType  string
}

// Resolved is the set of effective display parameters derived from one
// consistent snapshot (or from fallbacks when no snapshot exists yet).
type Resolved struct {
	Round        int
	MaxRounds    int
	GameType     game.GameType
	SessionState game.SessionState
	Active       bool
}

// Resolve computes effective round, maxRounds, gameType and the is-active
// flag. Precedence is explicit here rather than scattered through views:
// snapshot values win whenever a snapshot is present, even against a
// conflicting fallback. Game-type normalization happens exactly once, at
// this boundary.
func Resolve(snap *game.StateSnapshot, fb Fallback) Resolved {
	if snap == nil {
		return Resolved{
			Round:        fb.Round,
			MaxRounds:    fb.MaxRounds,
			GameType:     game.NormalizeGameType(fb.GameType),
			SessionState: game.SessionLobby,
			Active:       false,
		}
	}

	gt := game.NormalizeGameType(snap.GameType)
	if gt == game.GameUnknown {
		gt = game.NormalizeGameType(fb.GameType)
	}

	return Resolved{
		Round:        snap.Round,
		MaxRounds:    snap.MaxRounds,
		GameType:     gt,
		SessionState: snap.SessionState,
		Active:       snap.SessionState.IsActive(),
	}
}
