package game

import "sort"

// ScoreboardEntry is the read-only projection of a Player used by the UI
// layer. It intentionally carries no game-logic fields.
type ScoreboardEntry struct {
	Name  string `json:"name"`
	Score int    `json:"score"`
}

// BuildScoreboard projects a roster into scoreboard entries ordered by
// descending score. Equal scores keep their original roster order.
func BuildScoreboard(players []Player) []ScoreboardEntry {
	entries := make([]ScoreboardEntry, 0, len(players))
	for _, p := range players {
		entries = append(entries, ScoreboardEntry{Name: p.Name, Score: p.Score})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}
