// persistence/gorm_postgresql.go
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/models"
)

// GormPostgreSQL 使用GORM的PostgreSQL实现
type GormPostgreSQL struct {
	db *gorm.DB
}

func dsn(cfg config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
}

// NewGormPostgreSQL 创建GORM PostgreSQL数据库连接
func NewGormPostgreSQL(cfg config.PostgresConfig) (*GormPostgreSQL, error) {
	// 配置GORM日志
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold: time.Second,
			LogLevel:      logger.Silent,
			Colorful:      false,
		},
	)

	db, err := gorm.Open(postgres.Open(dsn(cfg)), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.GormMatchRecord{}, &models.GormMatchPlayer{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &GormPostgreSQL{db: db}, nil
}

// SaveMatchRecord 保存对局记录及每个玩家的结果
func (p *GormPostgreSQL) SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error {
	return p.Transaction(ctx, func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.GormMatchRecord{}).Where("match_id = ?", rec.MatchID).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateRecord
		}
		row := models.FromRecord(rec)
		return tx.Create(&row).Error
	})
}

// PlayerStats 汇总玩家战绩
func (p *GormPostgreSQL) PlayerStats(ctx context.Context, username string) (models.PlayerStats, error) {
	stats := models.PlayerStats{Username: username}
	err := p.db.WithContext(ctx).Raw(`
        SELECT
            COUNT(*) AS total_games,
            COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS wins,
            COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS losses,
            COALESCE(SUM(CASE WHEN outcome = ? THEN 1 ELSE 0 END), 0) AS draws,
            COALESCE(MAX(score), 0) AS best_score
        FROM match_players
        WHERE username = ? AND deleted_at IS NULL`,
		models.OutcomeWin, models.OutcomeLose, models.OutcomeDraw, username,
	).Scan(&stats).Error
	stats.Username = username
	return stats, err
}

// RecentMatches 返回玩家最近的对局，最新的在前
func (p *GormPostgreSQL) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	var rows []models.GormMatchRecord
	err := p.db.WithContext(ctx).
		Preload("Players").
		Joins("JOIN match_players ON match_players.match_record_id = match_records.id").
		Where("match_players.username = ?", username).
		Order("match_records.created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]models.MatchRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToRecord())
	}
	return out, nil
}

// Transaction runs fn inside a database transaction.
func (p *GormPostgreSQL) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	err := p.db.WithContext(ctx).Transaction(fn)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecordNotFound
	}
	return err
}

// Close 关闭数据库连接
func (p *GormPostgreSQL) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
