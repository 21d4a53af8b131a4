// services/history_service.go
package services

import (
	"context"
	"errors"
	"time"

	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/models"
	"github.com/wfunc/codexserver/persistence"
)

// DefaultRecentLimit caps RecentMatches when the caller asks for no limit.
const DefaultRecentLimit = 20

// HistoryService records finished matches and answers per-player statistics.
type HistoryService struct {
	db persistence.Database
}

func NewHistoryService(db persistence.Database) *HistoryService {
	return &HistoryService{db: db}
}

// RecordMatch stores the outcome of a finished match. Recording the same
// match twice is not an error.
func (s *HistoryService) RecordMatch(ctx context.Context, res game.Result, players []string) error {
	rec := models.MatchRecord{
		MatchID:    res.MatchID,
		Winner:     res.Winner,
		Forfeit:    res.Forfeit,
		Turns:      res.Turns,
		FinishedAt: time.Now(),
	}
	for _, name := range players {
		rec.Players = append(rec.Players, models.PlayerOutcome{
			Username: name,
			Outcome:  outcome(res.Winner, name),
			Score:    res.Scores[name],
			GoalGain: res.GoalGains[name],
		})
	}

	err := s.db.SaveMatchRecord(ctx, rec)
	if errors.Is(err, persistence.ErrDuplicateRecord) {
		logger.Log.Debugf("match %s already recorded", res.MatchID)
		return nil
	}
	if err != nil {
		return err
	}
	logger.Log.Infof("match %s recorded, winner %q", res.MatchID, res.Winner)
	return nil
}

func outcome(winner, name string) string {
	switch winner {
	case "":
		return models.OutcomeDraw
	case name:
		return models.OutcomeWin
	default:
		return models.OutcomeLose
	}
}

// PlayerStats 获取玩家战绩统计
func (s *HistoryService) PlayerStats(ctx context.Context, username string) (models.PlayerStats, error) {
	return s.db.PlayerStats(ctx, username)
}

// RecentMatches returns username's latest matches, newest first.
func (s *HistoryService) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return s.db.RecentMatches(ctx, username, limit)
}
