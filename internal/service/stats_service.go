package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"rollio/internal/cache"
	"rollio/internal/model"
	"rollio/internal/repository"
)

// StatsService records finished-game outcomes and serves per-player
// aggregates plus the all-time leaderboard.
type StatsService struct {
	statsRepo   repository.StatsRepo
	leaderboard cache.LeaderboardCache
}

// NewStatsService creates a new stats service.
func NewStatsService(statsRepo repository.StatsRepo, leaderboard cache.LeaderboardCache) *StatsService {
	return &StatsService{
		statsRepo:   statsRepo,
		leaderboard: leaderboard,
	}
}

// RecordCompletion persists one finished game for every reported player and
// folds the outcomes into their aggregates and the leaderboard.
func (s *StatsService) RecordCompletion(ctx context.Context, roomCode string, results []model.GameResult) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to record: %w", model.ErrValidation)
	}

	now := time.Now()
	for _, res := range results {
		if res.Username == "" {
			return fmt.Errorf("result missing username: %w", model.ErrValidation)
		}

		game := &model.CompletedGame{
			Username:       res.Username,
			RoomCode:       roomCode,
			FinalScore:     res.FinalScore,
			TotalRounds:    res.TotalRounds,
			HighSingleRoll: res.HighSingleRoll,
			HighBank:       res.HighBank,
			EndReason:      res.EndReason,
			FinishedAt:     now,
		}
		if err := s.statsRepo.InsertCompletedGame(ctx, game); err != nil {
			return fmt.Errorf("failed to record game: %w", err)
		}
		if err := s.statsRepo.ApplyToStatistics(ctx, game); err != nil {
			return fmt.Errorf("failed to update statistics: %w", err)
		}
		if err := s.leaderboard.UpdateBest(ctx, res.Username, res.FinalScore); err != nil {
			// The leaderboard is a cache; losing one update is not worth
			// failing the whole completion report.
			log.Printf("leaderboard update for %s: %v", res.Username, err)
		}
	}
	return nil
}

// PlayerStats returns per-player aggregates, or nil when the player has no
// recorded games.
func (s *StatsService) PlayerStats(ctx context.Context, username string) (*model.PlayerStatistics, error) {
	return s.statsRepo.GetPlayerStatistics(ctx, username)
}

// History returns the player's most recent completed games.
func (s *StatsService) History(ctx context.Context, username string, limit int) ([]model.CompletedGame, error) {
	return s.statsRepo.RecentGames(ctx, username, limit)
}

// Leaderboard returns the top all-time scores.
func (s *StatsService) Leaderboard(ctx context.Context, top int) ([]cache.LeaderboardEntry, error) {
	return s.leaderboard.GetTop(ctx, top)
}
