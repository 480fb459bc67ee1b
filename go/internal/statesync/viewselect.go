package statesync

import "github.com/mcdev12/partyhub/go/internal/game"

// ViewVariant is the specific display component the UI layer should render
type ViewVariant string

const (
	ViewTrivia   ViewVariant = "trivia"
	ViewBingo    ViewVariant = "bingo"
	ViewEmoji    ViewVariant = "emoji"
	ViewGuessing ViewVariant = "guessing"
	// ViewInProgress is the "game in progress, data not yet available"
	// placeholder shown during round transitions
	ViewInProgress ViewVariant = "in_progress"
	// ViewWaiting is the "waiting for game to start" placeholder
	ViewWaiting ViewVariant = "waiting"
)

type gameCheck struct {
	gameType   game.GameType
	payloadKey string
	variant    ViewVariant
}

// Game checks run in this fixed priority order; only the first match wins.
// Each known game declares exactly one required payload key, and no two
// games share a key.
var gameChecks = []gameCheck{
	{game.GameTrivia, game.PayloadKeyCurrentQuestion, ViewTrivia},
	{game.GameBingo, game.PayloadKeyCalledItems, ViewBingo},
	{game.GameEmoji, game.PayloadKeyCurrentItem, ViewEmoji},
	{game.GameGuessing, game.PayloadKeyCurrentChallenge, ViewGuessing},
}

// SelectView deterministically maps effective game type, session state and
// payload key presence to exactly one view variant.
//
// A game's variant is selected when its type matches AND either the game is
// active or its required payload key is present. The payload-key branch
// covers payloads that arrive fractionally before the session-state
// transition is applied. An active session with no matching game is a
// legitimate transient state, not an error.
func SelectView(gt game.GameType, st game.SessionState, payloadKeys map[string]struct{}) ViewVariant {
	active := st.IsActive()
	for _, check := range gameChecks {
		if gt != check.gameType {
			continue
		}
		if _, present := payloadKeys[check.payloadKey]; active || present {
			return check.variant
		}
	}
	if active {
		return ViewInProgress
	}
	return ViewWaiting
}
