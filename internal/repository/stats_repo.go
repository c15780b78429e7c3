package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rollio/internal/model"
)

// StatsRepo persists per-player game outcomes and aggregates.
type StatsRepo interface {
	InsertCompletedGame(ctx context.Context, game *model.CompletedGame) error
	ApplyToStatistics(ctx context.Context, game *model.CompletedGame) error
	GetPlayerStatistics(ctx context.Context, username string) (*model.PlayerStatistics, error)
	RecentGames(ctx context.Context, username string, limit int) ([]model.CompletedGame, error)
}

type statsRepo struct {
	games *mongo.Collection
	stats *mongo.Collection
}

// NewStatsRepo creates a Mongo-backed stats repository.
func NewStatsRepo(client *mongo.Client) StatsRepo {
	db := client.Database("rollio")
	return &statsRepo{
		games: db.Collection("completed_games"),
		stats: db.Collection("player_statistics"),
	}
}

func (r *statsRepo) InsertCompletedGame(ctx context.Context, game *model.CompletedGame) error {
	_, err := r.games.InsertOne(ctx, game)
	return err
}

// ApplyToStatistics folds one completed game into the player's aggregates.
func (r *statsRepo) ApplyToStatistics(ctx context.Context, game *model.CompletedGame) error {
	inc := bson.M{"gamesPlayed": 1}
	switch game.EndReason {
	case model.EndReasonWin:
		inc["wins"] = 1
	case model.EndReasonLost:
		inc["losses"] = 1
	}

	update := bson.M{
		"$inc": inc,
		"$max": bson.M{
			"highScoreSingleRoll": game.HighSingleRoll,
			"highScoreBank":       game.HighBank,
		},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	_, err := r.stats.UpdateOne(ctx,
		bson.M{"_id": game.Username},
		update,
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *statsRepo) GetPlayerStatistics(ctx context.Context, username string) (*model.PlayerStatistics, error) {
	var stats model.PlayerStatistics
	err := r.stats.FindOne(ctx, bson.M{"_id": username}).Decode(&stats)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &stats, nil
}

func (r *statsRepo) RecentGames(ctx context.Context, username string, limit int) ([]model.CompletedGame, error) {
	opts := options.Find().
		SetSort(bson.M{"finishedAt": -1}).
		SetLimit(int64(limit))

	cursor, err := r.games.Find(ctx, bson.M{"username": username}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var games []model.CompletedGame
	if err := cursor.All(ctx, &games); err != nil {
		return nil, err
	}
	return games, nil
}
