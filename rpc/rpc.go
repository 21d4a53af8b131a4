package rpc

import (
	"context"
	"errors"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/google/uuid"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/chat"
	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/lobby"
	"github.com/wfunc/codexserver/models"
	"github.com/wfunc/codexserver/network"
	"github.com/wfunc/codexserver/services"
	"github.com/wfunc/codexserver/session"
)

// ServiceName is the name Codex methods are registered under.
const ServiceName = "Codex"

var (
	ErrNoPush     = errors.New("rpc connections do not receive pushes")
	errCodecOwned = errors.New("rpc connection is read by its codec")
)

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	svc      *services.CodexService
	sessions *session.Manager
}

// NewServer listens on addr. Usernames are reserved in sessions, so sharing
// the websocket transport's manager keeps them unique across both.
func NewServer(addr string, svc *services.CodexService, sessions *session.Manager) (*Server, error) {
	if sessions == nil {
		sessions = session.NewManager()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  listener.Addr().String(),
		svc:      svc,
		sessions: sessions,
	}, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() string { return s.address }

// Start begins listening for RPC requests. Connections speak JSON-RPC 1.0.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.address)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.serveConn(conn)
	}
}

// serveConn gives conn its own session and Codex. When the client goes away
// its user leaves whatever lobby or match it was in.
func (s *Server) serveConn(conn net.Conn) {
	sess := session.NewSession(uuid.New().String(), &streamConn{conn: conn})
	s.sessions.Add(sess)

	srv := rpc.NewServer()
	if err := srv.RegisterName(ServiceName, NewCodex(s.svc, s.sessions, sess)); err != nil {
		logger.Log.Errorf("register rpc service: %v", err)
		s.sessions.Remove(sess.GetID())
		conn.Close()
		return
	}
	srv.ServeCodec(jsonrpc.NewServerCodec(conn))

	if name := sess.Username(); name != "" {
		if err := s.svc.Detach(name); err != nil {
			logger.Log.Warnf("detach %s: %v", name, err)
		}
	}
	s.sessions.Remove(sess.GetID())
	logger.Log.Infof("RPC connection closed from %s, session ID: %s", conn.RemoteAddr(), sess.GetID())
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// streamConn lets an rpc connection live in the session manager. The codec
// owns reads, and pushes are not delivered: rpc clients poll GameFlow.
type streamConn struct {
	conn net.Conn
}

func (c *streamConn) Send(msgID uint16, data []byte) error { return ErrNoPush }
func (c *streamConn) Close() error                         { return c.conn.Close() }
func (c *streamConn) RemoteAddr() net.Addr                 { return c.conn.RemoteAddr() }
func (c *streamConn) SetHeartbeat(interval time.Duration)  {}
func (c *streamConn) ReadPacket() (*network.Packet, error) { return nil, errCodecOwned }

// Codex exposes every lobby and match operation to one connection. Login
// binds the connection to a username; every other call acts as that user.
type Codex struct {
	svc      *services.CodexService
	sessions *session.Manager
	sess     *session.Session
}

func NewCodex(svc *services.CodexService, sessions *session.Manager, sess *session.Session) *Codex {
	return &Codex{svc: svc, sessions: sessions, sess: sess}
}

// user returns the username bound to the connection.
func (c *Codex) user() (string, error) {
	c.sess.Touch()
	name := c.sess.Username()
	if name == "" {
		return "", session.ErrNotLoggedIn
	}
	return name, nil
}

type NoArgs struct{}

type LoginArgs struct {
	Username string
}

type CreateLobbyArgs struct {
	Name       string
	MaxPlayers int
}

type JoinLobbyArgs struct {
	Code string
}

type SetStarterArgs struct {
	Side cards.Side
}

type SetColorArgs struct {
	Color game.Color
}

type ChooseGoalArgs struct {
	GoalID int
}

// PlayerArgs names the inspected user; an empty Of means the caller.
type PlayerArgs struct {
	Of string
}

type PlaceCardArgs struct {
	CardID   int
	Side     cards.Side
	Position cards.Position
}

type DrawVisibleArgs struct {
	Type  cards.Type
	Index int
}

type DrawCoveredArgs struct {
	Type cards.Type
}

type ChatArgs struct {
	To   string
	Text string
}

type RecentMatchesArgs struct {
	Of    string
	Limit int
}

// LoginReply carries the lobby of a match the user was put back into.
type LoginReply struct {
	Resumed bool
	Lobby   lobby.Info
}

type LobbyReply struct {
	Lobby lobby.Info
}

type LobbiesReply struct {
	Lobbies []lobby.Info
}

// OKReply carries the outcome of an action; false means the action was
// rejected by the rules.
type OKReply struct {
	OK bool
}

type CardReply struct {
	Card *cards.Card
}

type ColorsReply struct {
	Colors []game.Color
}

type GoalsReply struct {
	Goals []cards.Goal
}

type PlayerReply struct {
	Player game.PlayerView
}

type ManuscriptReply struct {
	Manuscript cards.View
}

type FlowReply struct {
	Flow game.TurnState
}

type BoardReply struct {
	Board game.BoardView
}

// WinnerReply has an empty Winner for a draw.
type WinnerReply struct {
	Winner string
}

type ChatReply struct {
	Message chat.Message
}

type ChatHistoryReply struct {
	Messages []chat.Message
}

type StatsReply struct {
	Stats models.PlayerStats
}

type RecentMatchesReply struct {
	Matches []models.MatchRecord
}

// Login binds username to the connection. A user who dropped out of a running
// match is put back in it.
func (c *Codex) Login(args *LoginArgs, reply *LoginReply) error {
	if err := c.sessions.Bind(c.sess.GetID(), args.Username); err != nil {
		return err
	}
	c.sess.Touch()
	logger.Log.Infof("RPC session %s logged in as %s", c.sess.GetID(), args.Username)
	reply.Lobby, reply.Resumed = c.svc.Resume(args.Username)
	return nil
}

// Heartbeat keeps an otherwise quiet connection from being swept.
func (c *Codex) Heartbeat(args *NoArgs, reply *OKReply) error {
	c.sess.Touch()
	reply.OK = true
	return nil
}

func (c *Codex) CreateLobby(args *CreateLobbyArgs, reply *LobbyReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	info, err := c.svc.CreateLobby(user, args.Name, args.MaxPlayers)
	reply.Lobby = info
	return err
}

func (c *Codex) ListJoinableLobbies(args *NoArgs, reply *LobbiesReply) error {
	if _, err := c.user(); err != nil {
		return err
	}
	reply.Lobbies = c.svc.ListJoinableLobbies()
	return nil
}

func (c *Codex) JoinLobby(args *JoinLobbyArgs, reply *LobbyReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	info, err := c.svc.JoinLobby(user, args.Code)
	reply.Lobby = info
	return err
}

func (c *Codex) LobbyInfo(args *NoArgs, reply *LobbyReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	info, err := c.svc.LobbyInfo(user)
	reply.Lobby = info
	return err
}

func (c *Codex) StartLobby(args *NoArgs, reply *FlowReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	flow, err := c.svc.StartLobby(user)
	reply.Flow = flow
	return err
}

func (c *Codex) ExitLobby(args *NoArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	err = c.svc.ExitLobby(user)
	reply.OK = err == nil
	return err
}

func (c *Codex) StarterCard(args *NoArgs, reply *CardReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	card, err := c.svc.StarterCard(user)
	if err != nil {
		return err
	}
	reply.Card = &card
	return nil
}

func (c *Codex) SetStarterCard(args *SetStarterArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.OK, err = c.svc.SetStarterCard(user, args.Side)
	return err
}

func (c *Codex) AvailableColors(args *NoArgs, reply *ColorsReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Colors, err = c.svc.AvailableColors(user)
	return err
}

func (c *Codex) SetPlayerColor(args *SetColorArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.OK, err = c.svc.SetPlayerColor(user, args.Color)
	return err
}

func (c *Codex) ProposedPrivateGoals(args *NoArgs, reply *GoalsReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Goals, err = c.svc.ProposedPrivateGoals(user)
	return err
}

func (c *Codex) ChoosePrivateGoal(args *ChooseGoalArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.OK, err = c.svc.ChoosePrivateGoal(user, args.GoalID)
	return err
}

func (c *Codex) PlayerData(args *PlayerArgs, reply *PlayerReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Player, err = c.svc.PlayerData(user, args.Of)
	return err
}

func (c *Codex) Manuscript(args *PlayerArgs, reply *ManuscriptReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Manuscript, err = c.svc.Manuscript(user, args.Of)
	return err
}

func (c *Codex) GameFlow(args *NoArgs, reply *FlowReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Flow, err = c.svc.GameFlow(user)
	return err
}

func (c *Codex) GameBoard(args *NoArgs, reply *BoardReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Board, err = c.svc.GameBoard(user)
	return err
}

func (c *Codex) PlaceCard(args *PlaceCardArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.OK, err = c.svc.PlaceCard(user, args.CardID, args.Side, args.Position)
	return err
}

// DrawVisibleCard leaves reply.Card nil when nothing was drawn.
func (c *Codex) DrawVisibleCard(args *DrawVisibleArgs, reply *CardReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Card, err = c.svc.DrawVisibleCard(user, args.Type, args.Index)
	return err
}

func (c *Codex) DrawCoveredCard(args *DrawCoveredArgs, reply *CardReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Card, err = c.svc.DrawCoveredCard(user, args.Type)
	return err
}

func (c *Codex) GameEnded(args *NoArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.OK, err = c.svc.GameEnded(user)
	return err
}

func (c *Codex) Winner(args *NoArgs, reply *WinnerReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Winner, err = c.svc.Winner(user)
	return err
}

func (c *Codex) ExitMatch(args *NoArgs, reply *OKReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	err = c.svc.ExitMatch(user)
	reply.OK = err == nil
	return err
}

func (c *Codex) SendChat(args *ChatArgs, reply *ChatReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Message, err = c.svc.SendChat(user, args.To, args.Text)
	return err
}

func (c *Codex) ChatHistory(args *NoArgs, reply *ChatHistoryReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	reply.Messages, err = c.svc.ChatHistory(user)
	return err
}

// GetPlayerStats returns the recorded win/loss statistics of a user.
func (c *Codex) GetPlayerStats(args *PlayerArgs, reply *StatsReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	if args.Of != "" {
		user = args.Of
	}
	reply.Stats, err = c.svc.PlayerStats(context.Background(), user)
	return err
}

func (c *Codex) RecentMatches(args *RecentMatchesArgs, reply *RecentMatchesReply) error {
	user, err := c.user()
	if err != nil {
		return err
	}
	if args.Of != "" {
		user = args.Of
	}
	reply.Matches, err = c.svc.RecentMatches(context.Background(), user, args.Limit)
	return err
}
