// persistence/postgresql.go
package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq" // PostgreSQL 驱动

	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/models"
)

const queryTimeout = 5 * time.Second

// uniqueViolation is the PostgreSQL error code of a unique constraint.
const uniqueViolation = "23505"

// PostgreSQL 数据库实现
type PostgreSQL struct {
	db *sql.DB
}

// NewPostgreSQL 创建 PostgreSQL 数据库连接
func NewPostgreSQL(cfg config.PostgresConfig) (*PostgreSQL, error) {
	db, err := sql.Open("postgres", dsn(cfg))
	if err != nil {
		return nil, err
	}

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	// 设置连接池参数
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := initTables(ctx, db); err != nil {
		return nil, err
	}
	return &PostgreSQL{db: db}, nil
}

// initTables 初始化数据库表结构，与GORM迁移出的表结构一致
func initTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_records (
            id BIGSERIAL PRIMARY KEY,
            match_id TEXT NOT NULL,
            winner TEXT,
            forfeit BOOLEAN DEFAULT FALSE,
            turns BIGINT DEFAULT 0,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS match_players (
            id BIGSERIAL PRIMARY KEY,
            match_record_id BIGINT NOT NULL REFERENCES match_records(id) ON DELETE CASCADE,
            username TEXT NOT NULL,
            outcome TEXT NOT NULL,
            score BIGINT,
            goal_gain BIGINT,
            created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
            deleted_at TIMESTAMPTZ
        )
    `)
	if err != nil {
		return err
	}

	// 创建索引以提高查询性能
	_, err = db.ExecContext(ctx, `
        CREATE UNIQUE INDEX IF NOT EXISTS idx_match_records_match_id ON match_records(match_id);
        CREATE INDEX IF NOT EXISTS idx_match_players_username ON match_players(username);
        CREATE INDEX IF NOT EXISTS idx_match_players_match_record_id ON match_players(match_record_id);
    `)
	return err
}

// SaveMatchRecord 保存对局记录
func (p *PostgreSQL) SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
        INSERT INTO match_records (match_id, winner, forfeit, turns)
        VALUES ($1, $2, $3, $4)
        RETURNING id
    `, rec.MatchID, rec.Winner, rec.Forfeit, rec.Turns).Scan(&id)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return ErrDuplicateRecord
		}
		return err
	}

	for _, pl := range rec.Players {
		_, err := tx.ExecContext(ctx, `
            INSERT INTO match_players (match_record_id, username, outcome, score, goal_gain)
            VALUES ($1, $2, $3, $4, $5)
        `, id, pl.Username, pl.Outcome, pl.Score, pl.GoalGain)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// PlayerStats 汇总玩家战绩
func (p *PostgreSQL) PlayerStats(ctx context.Context, username string) (models.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	stats := models.PlayerStats{Username: username}
	err := p.db.QueryRowContext(ctx, `
        SELECT
            COUNT(*),
            COALESCE(SUM(CASE WHEN outcome = $2 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN outcome = $3 THEN 1 ELSE 0 END), 0),
            COALESCE(SUM(CASE WHEN outcome = $4 THEN 1 ELSE 0 END), 0),
            COALESCE(MAX(score), 0)
        FROM match_players
        WHERE username = $1 AND deleted_at IS NULL
    `, username, models.OutcomeWin, models.OutcomeLose, models.OutcomeDraw).
		Scan(&stats.TotalGames, &stats.Wins, &stats.Losses, &stats.Draws, &stats.BestScore)
	return stats, err
}

// RecentMatches 返回玩家最近的对局，最新的在前
func (p *PostgreSQL) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
        SELECT r.id, r.match_id, COALESCE(r.winner, ''), r.forfeit, r.turns, r.created_at
        FROM match_records r
        JOIN match_players mp ON mp.match_record_id = r.id
        WHERE mp.username = $1 AND r.deleted_at IS NULL
        ORDER BY r.created_at DESC
        LIMIT $2
    `, username, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		ids   []int64
		out   []models.MatchRecord
		index = map[int64]int{}
	)
	for rows.Next() {
		var (
			id  int64
			rec models.MatchRecord
		)
		if err := rows.Scan(&id, &rec.MatchID, &rec.Winner, &rec.Forfeit, &rec.Turns, &rec.FinishedAt); err != nil {
			return nil, err
		}
		index[id] = len(out)
		ids = append(ids, id)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	players, err := p.db.QueryContext(ctx, `
        SELECT match_record_id, username, outcome, score, goal_gain
        FROM match_players
        WHERE match_record_id = ANY($1)
        ORDER BY id
    `, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer players.Close()
	for players.Next() {
		var (
			id int64
			pl models.PlayerOutcome
		)
		if err := players.Scan(&id, &pl.Username, &pl.Outcome, &pl.Score, &pl.GoalGain); err != nil {
			return nil, err
		}
		i := index[id]
		out[i].Players = append(out[i].Players, pl)
	}
	return out, players.Err()
}

// Close 关闭数据库连接
func (p *PostgreSQL) Close() error {
	return p.db.Close()
}
