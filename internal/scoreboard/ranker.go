// Package scoreboard derives a live ranking from a room's player list. It is
// pure: callers recompute on every room snapshot or state broadcast.
package scoreboard

import (
	"sort"

	"rollio/internal/model"
)

type BadgeTier string

const (
	BadgeGold    BadgeTier = "gold"
	BadgeSilver  BadgeTier = "silver"
	BadgeBronze  BadgeTier = "bronze"
	BadgeDefault BadgeTier = "default"
)

// Entry is one ranked scoreboard row.
type Entry struct {
	PlayerID    string    `json:"playerId"`
	Username    string    `json:"username"`
	GameScore   int       `json:"gameScore"`
	RoundPoints int       `json:"roundPoints"`
	Round       int       `json:"round"`
	HotDice     int       `json:"hotDice"`
	Performance float64   `json:"performance"`
	Rank        int       `json:"rank"`
	Badge       BadgeTier `json:"badge"`
	Active      bool      `json:"active"`
}

// Performance scores accumulated points against rounds played:
// (gameScore + roundPoints) / max(1, currentRound).
func Performance(p *model.Player) float64 {
	rounds := p.CurrentRound
	if rounds < 1 {
		rounds = 1
	}
	return float64(p.GameScore+p.RoundPoints) / float64(rounds)
}

// Rank orders players by performance, highest first. Ties keep the original
// slice order, which the registry maintains as join order, so repeated
// computations on the same input always agree. activeIDs marks which entries
// belong to active play; the rest are spectators.
func Rank(players []*model.Player, activeIDs []string) []Entry {
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	entries := make([]Entry, len(players))
	for i, p := range players {
		entries[i] = Entry{
			PlayerID:    p.ID,
			Username:    p.Username,
			GameScore:   p.GameScore,
			RoundPoints: p.RoundPoints,
			Round:       p.CurrentRound,
			HotDice:     p.HotDiceCounterRound,
			Performance: Performance(p),
			Active:      active[p.ID],
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Performance > entries[j].Performance
	})

	for i := range entries {
		entries[i].Rank = i + 1
		entries[i].Badge = badgeFor(i + 1)
	}
	return entries
}

func badgeFor(rank int) BadgeTier {
	switch rank {
	case 1:
		return BadgeGold
	case 2:
		return BadgeSilver
	case 3:
		return BadgeBronze
	default:
		return BadgeDefault
	}
}
