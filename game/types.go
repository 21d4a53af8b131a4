package game

import (
	"errors"
	"fmt"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/state"
)

// HandSize is the number of hand slots per player.
const HandSize = 3

// DefaultScoreThreshold is the score that triggers the last round.
const DefaultScoreThreshold = 20

// Color identifies a player's pawn. The zero value means "not chosen".
type Color string

const (
	Red    Color = "RED"
	Blue   Color = "BLUE"
	Green  Color = "GREEN"
	Yellow Color = "YELLOW"
)

// Colors lists the pawn colors in assignment order.
var Colors = []Color{Red, Blue, Green, Yellow}

// ErrInvalidCall marks calls that are structurally impossible for the caller's
// identity or the current phase. Rule violations are not errors; the action
// methods report them as false or nil results.
var ErrInvalidCall = errors.New("invalid call")

var (
	ErrUnknownPlayer = fmt.Errorf("%w: unknown player", ErrInvalidCall)
	ErrDisconnected  = fmt.Errorf("%w: player is disconnected", ErrInvalidCall)
	ErrWrongPhase    = fmt.Errorf("%w: not allowed in this phase", ErrInvalidCall)
	ErrNotEnded      = fmt.Errorf("%w: match is not over", ErrInvalidCall)
	ErrBadRequest    = fmt.Errorf("%w: malformed request", ErrInvalidCall)
	ErrRoster        = errors.New("a match needs 2 to 4 distinct players")
	ErrCatalogue     = errors.New("catalogue too small for this roster")
)

// TurnState is an immutable snapshot of match progress.
type TurnState struct {
	Phase state.Phase `json:"phase"`
	// Idle is set while exactly one of at least two players is connected.
	Idle bool `json:"idle"`
	// Turn never decreases during a match.
	Turn         int      `json:"turn"`
	Order        []string `json:"order"`
	Current      string   `json:"current,omitempty"`
	Disconnected []string `json:"disconnected"`
	// Placed is true once the current player placed a card this turn.
	Placed bool `json:"placed"`
}

// PlayerView is an immutable snapshot of one player.
type PlayerView struct {
	Username    string                `json:"username"`
	Hand        [HandSize]*cards.Card `json:"hand"`
	PrivateGoal *cards.Goal           `json:"private_goal"`
	Color       Color                 `json:"color,omitempty"`
	Score       int                   `json:"score"`
	Connected   bool                  `json:"connected"`
	StarterSet  bool                  `json:"starter_set"`
}

// PileView is one card type's corner of the shared board.
type PileView struct {
	Visible    [2]*cards.Card `json:"visible"`
	Remaining  int            `json:"remaining"`
	TopKingdom cards.Symbol   `json:"top_kingdom"`
}

// BoardView is an immutable snapshot of the shared board.
type BoardView struct {
	Resource    PileView      `json:"resource"`
	Gold        PileView      `json:"gold"`
	CommonGoals [2]cards.Goal `json:"common_goals"`
}

// Result describes a finished match.
type Result struct {
	MatchID string `json:"match_id"`
	// Winner is empty for a draw.
	Winner    string         `json:"winner,omitempty"`
	Scores    map[string]int `json:"scores"`
	GoalGains map[string]int `json:"goal_gains"`
	Forfeit   bool           `json:"forfeit,omitempty"`
	Turns     int            `json:"turns"`
}

// Event payloads published on the engine bus.
type (
	TurnChange struct {
		Turn    int         `json:"turn"`
		Current string      `json:"current"`
		Phase   state.Phase `json:"phase"`
	}
	CardPlacement struct {
		Username string         `json:"username"`
		Card     cards.Card     `json:"card"`
		Side     cards.Side     `json:"side"`
		Position cards.Position `json:"position"`
		Points   int            `json:"points"`
		Score    int            `json:"score"`
	}
	CardDraw struct {
		Username string     `json:"username"`
		Type     cards.Type `json:"type"`
		// Index is the face-up slot, or -1 for the covered deck.
		Index     int       `json:"index"`
		Synthetic bool      `json:"synthetic,omitempty"`
		Board     BoardView `json:"board"`
	}
	ColorChoice struct {
		Username string `json:"username"`
		Color    Color  `json:"color"`
	}
	StarterChoice struct {
		Username string     `json:"username"`
		Side     cards.Side `json:"side"`
	}
	GoalChoice struct {
		Username string `json:"username"`
	}
	PhaseChange struct {
		From   state.Phase `json:"from"`
		To     state.Phase `json:"to"`
		Idle   bool        `json:"idle"`
		Result *Result     `json:"result,omitempty"`
	}
)
