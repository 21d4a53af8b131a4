// models/gorm_models.go
package models

import (
	"gorm.io/gorm"
)

// GormMatchRecord 对局记录模型
type GormMatchRecord struct {
	gorm.Model
	MatchID string            `gorm:"uniqueIndex;not null"`
	Winner  string            `gorm:"index"`
	Forfeit bool              `gorm:"default:false"`
	Turns   int               `gorm:"default:0"`
	Players []GormMatchPlayer `gorm:"foreignKey:MatchRecordID;constraint:OnDelete:CASCADE"`
}

func (GormMatchRecord) TableName() string { return "match_records" }

// GormMatchPlayer 对局中单个玩家的结果
type GormMatchPlayer struct {
	gorm.Model
	MatchRecordID uint   `gorm:"index;not null"`
	Username      string `gorm:"index;not null"`
	Outcome       string `gorm:"not null"`
	Score         int
	GoalGain      int
}

func (GormMatchPlayer) TableName() string { return "match_players" }

// ToRecord converts the stored rows back into a MatchRecord.
func (r GormMatchRecord) ToRecord() MatchRecord {
	rec := MatchRecord{
		MatchID:    r.MatchID,
		Winner:     r.Winner,
		Forfeit:    r.Forfeit,
		Turns:      r.Turns,
		FinishedAt: r.CreatedAt,
	}
	for _, p := range r.Players {
		rec.Players = append(rec.Players, PlayerOutcome{
			Username: p.Username,
			Outcome:  p.Outcome,
			Score:    p.Score,
			GoalGain: p.GoalGain,
		})
	}
	return rec
}

// FromRecord builds the rows stored for rec.
func FromRecord(rec MatchRecord) GormMatchRecord {
	r := GormMatchRecord{
		MatchID: rec.MatchID,
		Winner:  rec.Winner,
		Forfeit: rec.Forfeit,
		Turns:   rec.Turns,
	}
	for _, p := range rec.Players {
		r.Players = append(r.Players, GormMatchPlayer{
			Username: p.Username,
			Outcome:  p.Outcome,
			Score:    p.Score,
			GoalGain: p.GoalGain,
		})
	}
	return r
}
