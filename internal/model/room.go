package model

import "time"

type GameState string

const (
	GameWaiting  GameState = "waiting"
	GamePlaying  GameState = "playing"
	GameFinished GameState = "finished"
)

// Room is the server-authoritative aggregate of players sharing one game
// session. Players are ordered by join time and unique by ID. The room ID
// doubles as the short human-enterable join code.
type Room struct {
	ID              string    `json:"id"`
	Players         []*Player `json:"players"`
	GameState       GameState `json:"gameState"`
	ActivePlayerIDs []string  `json:"activePlayerIds"`
	HostID          string    `json:"hostId"`
	CreatedAt       time.Time `json:"createdAt"`
}

// FindPlayer returns the player with the given ID, or nil.
func (r *Room) FindPlayer(id string) *Player {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand outside the owning lock.
func (r *Room) Clone() *Room {
	cp := *r
	cp.Players = make([]*Player, len(r.Players))
	for i, p := range r.Players {
		cp.Players[i] = p.Clone()
	}
	cp.ActivePlayerIDs = append([]string(nil), r.ActivePlayerIDs...)
	return &cp
}
