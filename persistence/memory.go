package persistence

import (
	"context"
	"sync"
	"time"

	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/models"
)

// Memory keeps match records in process memory. It backs the server when no
// database is configured, and the tests.
type Memory struct {
	mu      sync.RWMutex
	records []models.MatchRecord
	byID    map[string]bool
}

func NewMemory() *Memory {
	return &Memory{byID: make(map[string]bool)}
}

func (m *Memory) SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID[rec.MatchID] {
		return ErrDuplicateRecord
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	rec.Players = append([]models.PlayerOutcome(nil), rec.Players...)
	m.records = append(m.records, rec)
	m.byID[rec.MatchID] = true
	return nil
}

func (m *Memory) PlayerStats(ctx context.Context, username string) (models.PlayerStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := models.PlayerStats{Username: username}
	for _, rec := range m.records {
		for _, p := range rec.Players {
			if p.Username != username {
				continue
			}
			stats.TotalGames++
			switch p.Outcome {
			case models.OutcomeWin:
				stats.Wins++
			case models.OutcomeLose:
				stats.Losses++
			case models.OutcomeDraw:
				stats.Draws++
			}
			if p.Score > stats.BestScore {
				stats.BestScore = p.Score
			}
		}
	}
	return stats, nil
}

func (m *Memory) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []models.MatchRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		rec := m.records[i]
		for _, p := range rec.Players {
			if p.Username == username {
				out = append(out, rec)
				break
			}
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

// Open picks the implementation configured in cfg: in memory when the
// database is disabled, else GORM or plain database/sql on PostgreSQL.
func Open(cfg config.DatabaseConfig) (Database, error) {
	switch {
	case !cfg.Enabled:
		return NewMemory(), nil
	case cfg.Driver == "sql":
		return NewPostgreSQL(cfg.Postgres)
	default:
		return NewGormPostgreSQL(cfg.Postgres)
	}
}
