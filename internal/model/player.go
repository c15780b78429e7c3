package model

import "time"

type PlayerStatus string

const (
	PlayerLobby      PlayerStatus = "lobby"
	PlayerInGame     PlayerStatus = "in_game"
	PlayerSpectating PlayerStatus = "spectating"
)

// Player represents a participant's identity and live game stats within a room.
// ID is stable for the lifetime of the room membership; ConnectionID tracks the
// current transport session and changes when the player reconnects.
type Player struct {
	ID                  string       `json:"id"`
	Username            string       `json:"username"`
	ConnectionID        string       `json:"connectionId"`
	GameScore           int          `json:"gameScore"`
	CurrentRound        int          `json:"currentRound"`
	HotDiceCounterRound int          `json:"hotDiceCounterRound"`
	RoundPoints         int          `json:"roundPoints"`
	Status              PlayerStatus `json:"status"`
	LastAction          time.Time    `json:"lastAction"`
	JoinedAt            time.Time    `json:"joinedAt"`
}

// PlayerUpdate is a partial gameplay-state delta. Nil fields are left unchanged.
type PlayerUpdate struct {
	GameScore           *int `json:"gameScore,omitempty"`
	CurrentRound        *int `json:"currentRound,omitempty"`
	HotDiceCounterRound *int `json:"hotDiceCounterRound,omitempty"`
	RoundPoints         *int `json:"roundPoints,omitempty"`
}

// Apply merges the delta into the player.
func (p *Player) Apply(u PlayerUpdate, now time.Time) {
	if u.GameScore != nil {
		p.GameScore = *u.GameScore
	}
	if u.CurrentRound != nil {
		p.CurrentRound = *u.CurrentRound
	}
	if u.HotDiceCounterRound != nil {
		p.HotDiceCounterRound = *u.HotDiceCounterRound
	}
	if u.RoundPoints != nil {
		p.RoundPoints = *u.RoundPoints
	}
	p.LastAction = now
}

// Clone returns a copy safe to hand outside the owning room's lock.
func (p *Player) Clone() *Player {
	cp := *p
	return &cp
}
