// persistence/interface.go
package persistence

import (
	"context"
	"errors"

	"github.com/wfunc/codexserver/models"
)

// Database stores finished matches. It is an audit log: nothing is read back
// to resume play.
type Database interface {
	SaveMatchRecord(ctx context.Context, rec models.MatchRecord) error
	PlayerStats(ctx context.Context, username string) (models.PlayerStats, error)
	RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error)
	Close() error
}

// 错误定义
var (
	ErrRecordNotFound  = errors.New("record not found")
	ErrDuplicateRecord = errors.New("match already recorded")
)
