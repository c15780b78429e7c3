package service_test

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollio/internal/cache"
	"rollio/internal/model"
	"rollio/internal/service"
)

// memStatsRepo is an in-memory StatsRepo for service tests.
type memStatsRepo struct {
	games []model.CompletedGame
	stats map[string]*model.PlayerStatistics

	insertErr error
}

func newMemStatsRepo() *memStatsRepo {
	return &memStatsRepo{stats: make(map[string]*model.PlayerStatistics)}
}

func (m *memStatsRepo) InsertCompletedGame(_ context.Context, game *model.CompletedGame) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.games = append(m.games, *game)
	return nil
}

func (m *memStatsRepo) ApplyToStatistics(_ context.Context, game *model.CompletedGame) error {
	s, ok := m.stats[game.Username]
	if !ok {
		s = &model.PlayerStatistics{Username: game.Username}
		m.stats[game.Username] = s
	}
	s.GamesPlayed++
	switch game.EndReason {
	case model.EndReasonWin:
		s.Wins++
	case model.EndReasonLost:
		s.Losses++
	}
	if game.HighSingleRoll > s.HighScoreSingleRoll {
		s.HighScoreSingleRoll = game.HighSingleRoll
	}
	if game.HighBank > s.HighScoreBank {
		s.HighScoreBank = game.HighBank
	}
	return nil
}

func (m *memStatsRepo) GetPlayerStatistics(_ context.Context, username string) (*model.PlayerStatistics, error) {
	return m.stats[username], nil
}

func (m *memStatsRepo) RecentGames(_ context.Context, username string, limit int) ([]model.CompletedGame, error) {
	var out []model.CompletedGame
	for i := len(m.games) - 1; i >= 0 && len(out) < limit; i-- {
		if m.games[i].Username == username {
			out = append(out, m.games[i])
		}
	}
	return out, nil
}

// memLeaderboard is an in-memory LeaderboardCache.
type memLeaderboard struct {
	best      map[string]int
	updateErr error
}

func newMemLeaderboard() *memLeaderboard {
	return &memLeaderboard{best: make(map[string]int)}
}

func (m *memLeaderboard) UpdateBest(_ context.Context, username string, score int) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	if score > m.best[username] {
		m.best[username] = score
	}
	return nil
}

func (m *memLeaderboard) GetTop(_ context.Context, limit int) ([]cache.LeaderboardEntry, error) {
	entries := make([]cache.LeaderboardEntry, 0, len(m.best))
	for u, s := range m.best {
		entries = append(entries, cache.LeaderboardEntry{Username: u, Score: s})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Score > entries[j].Score })
	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries, nil
}

func (m *memLeaderboard) GetRank(_ context.Context, username string) (int64, error) {
	top, _ := m.GetTop(context.Background(), len(m.best))
	for _, e := range top {
		if e.Username == username {
			return int64(e.Rank - 1), nil
		}
	}
	return -1, nil
}

func TestRecordCompletion(t *testing.T) {
	repo := newMemStatsRepo()
	lb := newMemLeaderboard()
	svc := service.NewStatsService(repo, lb)
	ctx := context.Background()

	results := []model.GameResult{
		{Username: "alice", FinalScore: 10250, TotalRounds: 12, HighSingleRoll: 1500, HighBank: 2300, EndReason: model.EndReasonWin},
		{Username: "bob", FinalScore: 8700, TotalRounds: 12, HighSingleRoll: 1200, HighBank: 1900, EndReason: model.EndReasonLost},
	}
	require.NoError(t, svc.RecordCompletion(ctx, "ABC123", results))

	require.Len(t, repo.games, 2)
	assert.Equal(t, "ABC123", repo.games[0].RoomCode)
	assert.False(t, repo.games[0].FinishedAt.IsZero())

	alice, err := svc.PlayerStats(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, 1, alice.GamesPlayed)
	assert.Equal(t, 1, alice.Wins)
	assert.Equal(t, 1500, alice.HighScoreSingleRoll)

	top, err := svc.Leaderboard(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "alice", top[0].Username)
	assert.Equal(t, 10250, top[0].Score)
}

func TestRecordCompletionValidation(t *testing.T) {
	svc := service.NewStatsService(newMemStatsRepo(), newMemLeaderboard())
	ctx := context.Background()

	err := svc.RecordCompletion(ctx, "ABC123", nil)
	assert.ErrorIs(t, err, model.ErrValidation)

	err = svc.RecordCompletion(ctx, "ABC123", []model.GameResult{{FinalScore: 100}})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestRecordCompletionRepoFailure(t *testing.T) {
	repo := newMemStatsRepo()
	repo.insertErr = errors.New("mongo down")
	svc := service.NewStatsService(repo, newMemLeaderboard())

	err := svc.RecordCompletion(context.Background(), "ABC123", []model.GameResult{
		{Username: "alice", EndReason: model.EndReasonWin},
	})
	assert.ErrorContains(t, err, "mongo down")
}

func TestRecordCompletionToleratesLeaderboardFailure(t *testing.T) {
	repo := newMemStatsRepo()
	lb := newMemLeaderboard()
	lb.updateErr = errors.New("redis down")
	svc := service.NewStatsService(repo, lb)

	err := svc.RecordCompletion(context.Background(), "ABC123", []model.GameResult{
		{Username: "alice", FinalScore: 500, EndReason: model.EndReasonWin},
	})
	require.NoError(t, err)
	assert.Len(t, repo.games, 1)
}

func TestHistoryMostRecentFirst(t *testing.T) {
	repo := newMemStatsRepo()
	svc := service.NewStatsService(repo, newMemLeaderboard())
	ctx := context.Background()

	for i, score := range []int{100, 200, 300} {
		require.NoError(t, svc.RecordCompletion(ctx, "ABC123", []model.GameResult{
			{Username: "alice", FinalScore: score, TotalRounds: i + 1, EndReason: model.EndReasonWin},
		}))
	}

	games, err := svc.History(ctx, "alice", 2)
	require.NoError(t, err)
	require.Len(t, games, 2)
	assert.Equal(t, 300, games[0].FinalScore)
	assert.Equal(t, 200, games[1].FinalScore)
}

func TestPlayerStatsUnknownPlayer(t *testing.T) {
	svc := service.NewStatsService(newMemStatsRepo(), newMemLeaderboard())
	stats, err := svc.PlayerStats(context.Background(), "ghost")
	require.NoError(t, err)
	assert.Nil(t, stats)
}
