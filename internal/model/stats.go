package model

import "time"

// Game end reasons.
const (
	EndReasonWin  = "win"
	EndReasonLost = "lost"
	EndReasonQuit = "quit"
)

// GameResult is one player's outcome reported when a game finishes.
type GameResult struct {
	Username       string `json:"username"`
	FinalScore     int    `json:"finalScore"`
	TotalRounds    int    `json:"totalRounds"`
	HighSingleRoll int    `json:"highSingleRoll"`
	HighBank       int    `json:"highBank"`
	EndReason      string `json:"endReason"`
}

// CompletedGame is the persisted record of one player's finished game.
type CompletedGame struct {
	Username       string    `json:"username" bson:"username"`
	RoomCode       string    `json:"roomCode" bson:"roomCode"`
	FinalScore     int       `json:"finalScore" bson:"finalScore"`
	TotalRounds    int       `json:"totalRounds" bson:"totalRounds"`
	HighSingleRoll int       `json:"highSingleRoll" bson:"highSingleRoll"`
	HighBank       int       `json:"highBank" bson:"highBank"`
	EndReason      string    `json:"endReason" bson:"endReason"`
	FinishedAt     time.Time `json:"finishedAt" bson:"finishedAt"`
}

// PlayerStatistics are per-username aggregates across completed games.
type PlayerStatistics struct {
	Username            string    `json:"username" bson:"_id"`
	GamesPlayed         int       `json:"gamesPlayed" bson:"gamesPlayed"`
	Wins                int       `json:"wins" bson:"wins"`
	Losses              int       `json:"losses" bson:"losses"`
	HighScoreSingleRoll int       `json:"highScoreSingleRoll" bson:"highScoreSingleRoll"`
	HighScoreBank       int       `json:"highScoreBank" bson:"highScoreBank"`
	UpdatedAt           time.Time `json:"updatedAt" bson:"updatedAt"`
}
