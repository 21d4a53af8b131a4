// services/codex_service.go
package services

import (
	"context"

	"github.com/samber/lo"

	"github.com/wfunc/codexserver/broadcast"
	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/chat"
	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/lobby"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/models"
)

// CodexService is the operation set shared by the websocket and rpc
// transports. Every method acts on behalf of username.
type CodexService struct {
	orch     *lobby.Orchestrator
	rooms    *chat.Rooms
	notifier *broadcast.SessionNotifier
	history  *HistoryService
}

func NewCodexService(orch *lobby.Orchestrator, rooms *chat.Rooms, notifier *broadcast.SessionNotifier, history *HistoryService) *CodexService {
	if notifier == nil {
		notifier = broadcast.NewSessionNotifier()
	}
	return &CodexService{orch: orch, rooms: rooms, notifier: notifier, history: history}
}

// Notifier returns the notifier sessions are bound to.
func (s *CodexService) Notifier() *broadcast.SessionNotifier { return s.notifier }

// Attach starts pushing lobby notifications to username.
func (s *CodexService) Attach(username string, sink broadcast.Sink) {
	s.notifier.Bind(username, sink)
	s.notifier.Watch(s.orch.Bus(), username)
}

// Detach is called when username's connection is gone: it leaves whatever
// lobby or match username is in and stops every push.
func (s *CodexService) Detach(username string) error {
	s.unwatchChat(username)
	err := s.orch.Leave(username)
	s.notifier.Unwatch(s.orch.Bus(), username)
	s.notifier.Forget(username)
	return err
}

func (s *CodexService) CreateLobby(username, name string, maxPlayers int) (lobby.Info, error) {
	info, err := s.orch.CreateLobby(name, maxPlayers, username)
	if err != nil {
		return lobby.Info{}, err
	}
	s.notifier.Watch(s.rooms.Mailbox(info.Code).Bus(), username)
	return info, nil
}

func (s *CodexService) ListJoinableLobbies() []lobby.Info {
	return s.orch.ListJoinableLobbies()
}

// JoinLobby joins or, for a member of a running match, rejoins lobby code.
func (s *CodexService) JoinLobby(username, code string) (lobby.Info, error) {
	e, err := s.orch.JoinLobby(code, username)
	if err != nil {
		return lobby.Info{}, err
	}
	s.notifier.Watch(s.rooms.Mailbox(code).Bus(), username)
	if e != nil {
		s.notifier.Watch(e.Bus(), username)
	}
	info, _ := s.orch.LobbyInfo(username)
	return info, nil
}

// Resume puts username back into a running match it left, if there is one.
func (s *CodexService) Resume(username string) (lobby.Info, bool) {
	code, ok := s.orch.MatchToRejoin(username)
	if !ok {
		return lobby.Info{}, false
	}
	info, err := s.JoinLobby(username, code)
	if err != nil {
		logger.Log.Warnf("resume %s in %s: %v", username, code, err)
		return lobby.Info{}, false
	}
	return info, true
}

func (s *CodexService) LobbyInfo(username string) (lobby.Info, error) {
	info, ok := s.orch.LobbyInfo(username)
	if !ok {
		return lobby.Info{}, lobby.ErrNotInLobby
	}
	return info, nil
}

// StartLobby starts the match and subscribes every player to it.
func (s *CodexService) StartLobby(username string) (game.TurnState, error) {
	e, err := s.orch.StartLobby(username)
	if err != nil {
		return game.TurnState{}, err
	}
	for _, p := range e.Players() {
		s.notifier.Watch(e.Bus(), p)
	}
	return e.TurnState(), nil
}

func (s *CodexService) ExitLobby(username string) error {
	code := s.codeOf(username)
	if err := s.orch.ExitLobby(username); err != nil {
		return err
	}
	s.unwatchCode(code, username)
	return nil
}

func (s *CodexService) ExitMatch(username string) error {
	code := s.codeOf(username)
	if err := s.orch.ExitMatch(username); err != nil {
		return err
	}
	s.unwatchCode(code, username)
	return nil
}

func (s *CodexService) codeOf(username string) string {
	info, _ := s.orch.LobbyInfo(username)
	return info.Code
}

func (s *CodexService) unwatchChat(username string) {
	s.unwatchCode(s.codeOf(username), username)
}

func (s *CodexService) unwatchCode(code, username string) {
	if code == "" {
		return
	}
	if box, ok := s.rooms.Lookup(code); ok {
		s.notifier.Unwatch(box.Bus(), username)
	}
}

func (s *CodexService) StarterCard(username string) (cards.Card, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return cards.Card{}, err
	}
	return e.StarterCard(username)
}

func (s *CodexService) SetStarterCard(username string, side cards.Side) (bool, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return false, err
	}
	return e.SetStarterCard(username, side)
}

func (s *CodexService) AvailableColors(username string) ([]game.Color, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return nil, err
	}
	return e.AvailableColors(), nil
}

func (s *CodexService) SetPlayerColor(username string, color game.Color) (bool, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return false, err
	}
	return e.SetPlayerColor(username, color)
}

func (s *CodexService) ProposedPrivateGoals(username string) ([]cards.Goal, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return nil, err
	}
	return e.ProposedPrivateGoals(username)
}

func (s *CodexService) ChoosePrivateGoal(username string, goalID int) (bool, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return false, err
	}
	return e.ChoosePrivateGoal(username, goalID)
}

// PlayerData snapshots of, or the caller when of is empty. Another player's
// private goal is hidden.
func (s *CodexService) PlayerData(username, of string) (game.PlayerView, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return game.PlayerView{}, err
	}
	if of == "" {
		of = username
	}
	v, err := e.PlayerData(of)
	if err != nil {
		return game.PlayerView{}, err
	}
	if of != username {
		v.PrivateGoal = nil
	}
	return v, nil
}

// Manuscript snapshots the manuscript of of, or the caller when of is empty.
func (s *CodexService) Manuscript(username, of string) (cards.View, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return cards.View{}, err
	}
	if of == "" {
		of = username
	}
	return e.Manuscript(of)
}

func (s *CodexService) GameFlow(username string) (game.TurnState, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return game.TurnState{}, err
	}
	return e.TurnState(), nil
}

func (s *CodexService) GameBoard(username string) (game.BoardView, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return game.BoardView{}, err
	}
	return e.Board(), nil
}

func (s *CodexService) PlaceCard(username string, cardID int, side cards.Side, pos cards.Position) (bool, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return false, err
	}
	return e.PlaceCard(username, cardID, side, pos)
}

func (s *CodexService) DrawVisibleCard(username string, t cards.Type, index int) (*cards.Card, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return nil, err
	}
	return e.DrawVisibleCard(username, t, index)
}

func (s *CodexService) DrawCoveredCard(username string, t cards.Type) (*cards.Card, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return nil, err
	}
	return e.DrawCoveredCard(username, t)
}

func (s *CodexService) GameEnded(username string) (bool, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return false, err
	}
	return e.GameEnded(), nil
}

// Winner returns the winner, "" for a draw.
func (s *CodexService) Winner(username string) (string, error) {
	e, err := s.orch.Engine(username)
	if err != nil {
		return "", err
	}
	return e.Winner()
}

// SendChat posts text to the caller's lobby; an empty to reaches everyone.
func (s *CodexService) SendChat(username, to, text string) (chat.Message, error) {
	code := s.codeOf(username)
	if code == "" {
		return chat.Message{}, lobby.ErrNotInLobby
	}
	if to != "" {
		if info, _ := s.orch.LobbyInfo(username); !lo.Contains(info.Members, to) {
			return chat.Message{}, chat.ErrInvalidMessage
		}
	}
	return s.rooms.Mailbox(code).Send(username, to, text)
}

func (s *CodexService) ChatHistory(username string) ([]chat.Message, error) {
	code := s.codeOf(username)
	if code == "" {
		return nil, lobby.ErrNotInLobby
	}
	return s.rooms.Mailbox(code).History(username), nil
}

// PlayerStats 获取玩家战绩统计
func (s *CodexService) PlayerStats(ctx context.Context, username string) (models.PlayerStats, error) {
	return s.history.PlayerStats(ctx, username)
}

func (s *CodexService) RecentMatches(ctx context.Context, username string, limit int) ([]models.MatchRecord, error) {
	return s.history.RecentMatches(ctx, username, limit)
}
