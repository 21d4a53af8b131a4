package network

import (
	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/game"
)

// Request message ids. The response to a request reuses its id.
const (
	MsgTypeHeartbeat = 1
	MsgTypeLogin     = 2

	MsgTypeCreateLobby = 101
	MsgTypeListLobbies = 102
	MsgTypeJoinLobby   = 103
	MsgTypeLobbyInfo   = 104
	MsgTypeStartLobby  = 105
	MsgTypeExitLobby   = 106

	MsgTypeStarterCard     = 201
	MsgTypeSetStarterCard  = 202
	MsgTypeAvailableColors = 203
	MsgTypeSetPlayerColor  = 204
	MsgTypeProposedGoals   = 205
	MsgTypeChooseGoal      = 206

	MsgTypePlayerData  = 301
	MsgTypeManuscript  = 302
	MsgTypeGameFlow    = 303
	MsgTypeGameBoard   = 304
	MsgTypePlaceCard   = 305
	MsgTypeDrawVisible = 306
	MsgTypeDrawCovered = 307
	MsgTypeGameEnded   = 308
	MsgTypeWinner      = 309
	MsgTypeExitMatch   = 310

	MsgTypeSendChat    = 401
	MsgTypeChatHistory = 402

	MsgTypePlayerStats   = 501
	MsgTypeRecentMatches = 502
)

// Push message ids, one per event category.
const (
	MsgTypeTurnChanged        = 1001
	MsgTypeCardPlaced         = 1002
	MsgTypeCardDrawn          = 1003
	MsgTypeColorSet           = 1004
	MsgTypeStarterSet         = 1005
	MsgTypeGoalChosen         = 1006
	MsgTypePhaseChanged       = 1007
	MsgTypeCompositionChanged = 1008
	MsgTypeLobbyStarted       = 1009
	MsgTypeChatMessage        = 1010
)

var pushIDs = map[events.Category]uint16{
	events.TurnChanged:        MsgTypeTurnChanged,
	events.CardPlaced:         MsgTypeCardPlaced,
	events.CardDrawn:          MsgTypeCardDrawn,
	events.ColorSet:           MsgTypeColorSet,
	events.StarterSet:         MsgTypeStarterSet,
	events.GoalChosen:         MsgTypeGoalChosen,
	events.PhaseChanged:       MsgTypePhaseChanged,
	events.CompositionChanged: MsgTypeCompositionChanged,
	events.LobbyStarted:       MsgTypeLobbyStarted,
	events.ChatMessage:        MsgTypeChatMessage,
}

// PushMsgID returns the push id of category c.
func PushMsgID(c events.Category) (uint16, bool) {
	id, ok := pushIDs[c]
	return id, ok
}

// Response is the JSON body of every reply. Reason is set when OK is false.
type Response struct {
	OK     bool        `json:"ok"`
	Reason string      `json:"reason,omitempty"`
	Data   interface{} `json:"data,omitempty"`
}

// Push is the JSON body of a notification.
type Push struct {
	Category events.Category `json:"category"`
	Actor    string          `json:"actor,omitempty"`
	Payload  interface{}     `json:"payload"`
	At       int64           `json:"at"`
}

// Request bodies.
type (
	LoginRequest struct {
		Username string `json:"username"`
	}
	CreateLobbyRequest struct {
		Name       string `json:"name"`
		MaxPlayers int    `json:"max_players"`
	}
	JoinLobbyRequest struct {
		Code string `json:"code"`
	}
	SetStarterRequest struct {
		Side cards.Side `json:"side"`
	}
	SetColorRequest struct {
		Color game.Color `json:"color"`
	}
	ChooseGoalRequest struct {
		GoalID int `json:"goal_id"`
	}
	// PlayerRequest names the player to inspect; empty means the caller.
	PlayerRequest struct {
		Username string `json:"username,omitempty"`
	}
	PlaceCardRequest struct {
		CardID   int            `json:"card_id"`
		Side     cards.Side     `json:"side"`
		Position cards.Position `json:"position"`
	}
	DrawVisibleRequest struct {
		Type  cards.Type `json:"type"`
		Index int        `json:"index"`
	}
	DrawCoveredRequest struct {
		Type cards.Type `json:"type"`
	}
	ChatRequest struct {
		To   string `json:"to,omitempty"`
		Text string `json:"text"`
	}
	RecentMatchesRequest struct {
		Username string `json:"username,omitempty"`
		Limit    int    `json:"limit,omitempty"`
	}
)
