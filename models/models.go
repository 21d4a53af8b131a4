// models/models.go
package models

import (
	"time"
)

// Outcome of one player in a finished match.
const (
	OutcomeWin  = "win"
	OutcomeLose = "lose"
	OutcomeDraw = "draw"
)

// MatchRecord 对局记录
type MatchRecord struct {
	MatchID    string          `json:"match_id"`
	Winner     string          `json:"winner,omitempty"`
	Forfeit    bool            `json:"forfeit"`
	Turns      int             `json:"turns"`
	Players    []PlayerOutcome `json:"players"`
	FinishedAt time.Time       `json:"finished_at"`
}

// PlayerOutcome 玩家在一局中的结果
type PlayerOutcome struct {
	Username string `json:"username"`
	Outcome  string `json:"outcome"` // win/lose/draw
	Score    int    `json:"score"`
	GoalGain int    `json:"goal_gain"`
}

// PlayerStats 玩家统计信息
type PlayerStats struct {
	Username   string `json:"username"`
	TotalGames int    `json:"total_games"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
	BestScore  int    `json:"best_score"`
}
