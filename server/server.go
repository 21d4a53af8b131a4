package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/network"
	codexrpc "github.com/wfunc/codexserver/rpc"
	"github.com/wfunc/codexserver/services"
	"github.com/wfunc/codexserver/session"
	"github.com/wfunc/codexserver/timer"
)

var (
	ErrNotLoggedIn    = session.ErrNotLoggedIn
	ErrUnknownMessage = errors.New("unknown message type")
	ErrBadBody        = errors.New("malformed request body")
	errRejected       = errors.New("rejected")
	errNothingDrawn   = errors.New("nothing drawn")
)

// Metrics receives transport counters. monitor.Monitor implements it.
type Metrics interface {
	IncOnlinePlayers()
	DecOnlinePlayers()
	IncMessagesReceived()
	ObserveMessageLatency(d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) IncOnlinePlayers()                   {}
func (nopMetrics) DecOnlinePlayers()                   {}
func (nopMetrics) IncMessagesReceived()                {}
func (nopMetrics) ObserveMessageLatency(time.Duration) {}

// Options configures a GameServer.
type Options struct {
	Addr    string
	RPCAddr string
	// Heartbeat is the expected client heartbeat period. A session silent for
	// two periods is closed.
	Heartbeat time.Duration
	Service   *services.CodexService
	Timers    *timer.TimerManager
	Metrics   Metrics
}

// handler serves one request type for a logged in user.
type handler func(username string, body []byte) (interface{}, error)

type GameServer struct {
	addr           string
	upgrader       websocket.Upgrader
	sessionManager *session.Manager
	service        *services.CodexService
	rpcServer      *codexrpc.Server
	timers         *timer.TimerManager
	metrics        Metrics
	heartbeat      time.Duration
	sweepID        int64
	handlers       map[uint16]handler

	httpServer   *http.Server
	listener     net.Listener
	mutex        sync.Mutex
	shutdownChan chan struct{}
	shutdownOnce sync.Once
}

func NewGameServer(opts Options) (*GameServer, error) {
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}
	if opts.Timers == nil {
		opts.Timers = timer.NewTimerManager()
	}
	s := &GameServer{
		addr:           opts.Addr,
		sessionManager: session.NewManager(),
		service:        opts.Service,
		timers:         opts.Timers,
		metrics:        opts.Metrics,
		heartbeat:      opts.Heartbeat,
		shutdownChan:   make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // 允许所有跨域请求
			},
		},
	}
	s.handlers = s.routes()

	// 初始化RPC服务器
	if opts.RPCAddr != "" {
		rpcServer, err := codexrpc.NewServer(opts.RPCAddr, opts.Service, s.sessionManager)
		if err != nil {
			return nil, err
		}
		s.rpcServer = rpcServer
	}
	return s, nil
}

// Handler serves the websocket endpoint.
func (s *GameServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	return mux
}

// Start serves websocket and rpc clients until Shutdown.
func (s *GameServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.mutex.Lock()
	s.listener = ln
	s.httpServer = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	s.mutex.Unlock()

	if s.rpcServer != nil {
		go s.rpcServer.Start()
	}
	s.startSweep()

	logger.Log.Infof("Game server listening on %s", ln.Addr())
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting clients and closes every session.
func (s *GameServer) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		if s.rpcServer != nil {
			s.rpcServer.Stop()
		}
		s.mutex.Lock()
		srv := s.httpServer
		s.timers.RemoveTimer(s.sweepID)
		s.mutex.Unlock()
		if srv != nil {
			_ = srv.Shutdown(ctx)
		}
		for _, sess := range s.sessionManager.All() {
			sess.Close()
		}
	})
}

// startSweep closes sessions that stopped sending heartbeats.
func (s *GameServer) startSweep() {
	if s.heartbeat <= 0 {
		return
	}
	s.mutex.Lock()
	s.sweepID = s.timers.AddTimer(s.heartbeat, s.heartbeat, s.sweep)
	s.mutex.Unlock()
}

func (s *GameServer) sweep() {
	cutoff := time.Now().Add(-2 * s.heartbeat)
	for _, sess := range s.sessionManager.IdleSince(cutoff) {
		logger.Log.Infof("session %s (%q) missed its heartbeat", sess.GetID(), sess.Username())
		// the read loop notices the closed connection and cleans up
		sess.Close()
	}
}

func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	s.handleConnection(network.NewWSConnection(conn))
}

func (s *GameServer) handleConnection(wsConn network.Connection) {
	sess := session.NewSession(uuid.New().String(), wsConn)
	s.sessionManager.Add(sess)
	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}

	logger.Log.Infof("New connection from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())

	defer func() {
		logger.Log.Infof("Connection closed from %s, session ID: %s", wsConn.RemoteAddr(), sess.GetID())
		if name := sess.Username(); name != "" {
			if err := s.service.Detach(name); err != nil {
				logger.Log.Warnf("detach %s: %v", name, err)
			}
			s.metrics.DecOnlinePlayers()
		}
		s.sessionManager.Remove(sess.GetID())
		wsConn.Close()
	}()

	for {
		select {
		case <-s.shutdownChan:
			return
		default:
			packet, err := wsConn.ReadPacket()
			if err != nil {
				return
			}
			s.handlePacket(sess, packet)
		}
	}
}

func (s *GameServer) handlePacket(sess *session.Session, packet *network.Packet) {
	start := time.Now()
	s.metrics.IncMessagesReceived()
	sess.Touch()
	defer func() { s.metrics.ObserveMessageLatency(time.Since(start)) }()

	var data interface{}
	var err error
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
		return
	case network.MsgTypeLogin:
		data, err = s.handleLogin(sess, packet.Data)
	default:
		h, ok := s.handlers[packet.MsgID]
		switch {
		case !ok:
			logger.Log.Infof("Unknown message type: %d", packet.MsgID)
			err = ErrUnknownMessage
		case sess.Username() == "":
			err = ErrNotLoggedIn
		default:
			data, err = h(sess.Username(), packet.Data)
		}
	}
	s.reply(sess, packet.MsgID, data, err)
}

func (s *GameServer) reply(sess *session.Session, msgID uint16, data interface{}, err error) {
	resp := network.Response{OK: err == nil, Data: data}
	if err != nil {
		resp.Reason = err.Error()
		resp.Data = nil
	}
	body, mErr := json.Marshal(resp)
	if mErr != nil {
		logger.Log.Errorf("encode reply %d: %v", msgID, mErr)
		return
	}
	if err := sess.Send(msgID, body); err != nil {
		logger.Log.Warnf("reply %d to session %s: %v", msgID, sess.GetID(), err)
	}
}

func (s *GameServer) handleLogin(sess *session.Session, body []byte) (interface{}, error) {
	var req network.LoginRequest
	if err := decode(body, &req); err != nil {
		return nil, err
	}
	if err := s.sessionManager.Bind(sess.GetID(), req.Username); err != nil {
		return nil, err
	}
	s.service.Attach(req.Username, sess)
	s.metrics.IncOnlinePlayers()
	logger.Log.Infof("Session %s logged in as %s", sess.GetID(), req.Username)

	// a user who dropped out of a running match is put straight back in it
	if info, ok := s.service.Resume(req.Username); ok {
		return info, nil
	}
	return nil, nil
}

func decode(body []byte, v interface{}) error {
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, v); err != nil {
		return ErrBadBody
	}
	return nil
}

// accepted maps a rules verdict to a reply: a rejected action is not OK.
func accepted(ok bool, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errRejected
	}
	return true, nil
}

// drawn maps a draw outcome to a reply. Nothing drawn keeps the turn open.
func drawn(c *cards.Card, err error) (interface{}, error) {
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, errNothingDrawn
	}
	return c, nil
}

func (s *GameServer) routes() map[uint16]handler {
	svc := s.service
	return map[uint16]handler{
		network.MsgTypeCreateLobby: func(user string, body []byte) (interface{}, error) {
			var req network.CreateLobbyRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.CreateLobby(user, req.Name, req.MaxPlayers)
		},
		network.MsgTypeListLobbies: func(user string, body []byte) (interface{}, error) {
			return svc.ListJoinableLobbies(), nil
		},
		network.MsgTypeJoinLobby: func(user string, body []byte) (interface{}, error) {
			var req network.JoinLobbyRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.JoinLobby(user, req.Code)
		},
		network.MsgTypeLobbyInfo: func(user string, body []byte) (interface{}, error) {
			return svc.LobbyInfo(user)
		},
		network.MsgTypeStartLobby: func(user string, body []byte) (interface{}, error) {
			return svc.StartLobby(user)
		},
		network.MsgTypeExitLobby: func(user string, body []byte) (interface{}, error) {
			return nil, svc.ExitLobby(user)
		},
		network.MsgTypeStarterCard: func(user string, body []byte) (interface{}, error) {
			return svc.StarterCard(user)
		},
		network.MsgTypeSetStarterCard: func(user string, body []byte) (interface{}, error) {
			var req network.SetStarterRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return accepted(svc.SetStarterCard(user, req.Side))
		},
		network.MsgTypeAvailableColors: func(user string, body []byte) (interface{}, error) {
			return svc.AvailableColors(user)
		},
		network.MsgTypeSetPlayerColor: func(user string, body []byte) (interface{}, error) {
			var req network.SetColorRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return accepted(svc.SetPlayerColor(user, req.Color))
		},
		network.MsgTypeProposedGoals: func(user string, body []byte) (interface{}, error) {
			return svc.ProposedPrivateGoals(user)
		},
		network.MsgTypeChooseGoal: func(user string, body []byte) (interface{}, error) {
			var req network.ChooseGoalRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return accepted(svc.ChoosePrivateGoal(user, req.GoalID))
		},
		network.MsgTypePlayerData: func(user string, body []byte) (interface{}, error) {
			var req network.PlayerRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.PlayerData(user, req.Username)
		},
		network.MsgTypeManuscript: func(user string, body []byte) (interface{}, error) {
			var req network.PlayerRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.Manuscript(user, req.Username)
		},
		network.MsgTypeGameFlow: func(user string, body []byte) (interface{}, error) {
			return svc.GameFlow(user)
		},
		network.MsgTypeGameBoard: func(user string, body []byte) (interface{}, error) {
			return svc.GameBoard(user)
		},
		network.MsgTypePlaceCard: func(user string, body []byte) (interface{}, error) {
			var req network.PlaceCardRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return accepted(svc.PlaceCard(user, req.CardID, req.Side, req.Position))
		},
		network.MsgTypeDrawVisible: func(user string, body []byte) (interface{}, error) {
			var req network.DrawVisibleRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return drawn(svc.DrawVisibleCard(user, req.Type, req.Index))
		},
		network.MsgTypeDrawCovered: func(user string, body []byte) (interface{}, error) {
			var req network.DrawCoveredRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return drawn(svc.DrawCoveredCard(user, req.Type))
		},
		network.MsgTypeGameEnded: func(user string, body []byte) (interface{}, error) {
			return svc.GameEnded(user)
		},
		network.MsgTypeWinner: func(user string, body []byte) (interface{}, error) {
			return svc.Winner(user)
		},
		network.MsgTypeExitMatch: func(user string, body []byte) (interface{}, error) {
			return nil, svc.ExitMatch(user)
		},
		network.MsgTypeSendChat: func(user string, body []byte) (interface{}, error) {
			var req network.ChatRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			return svc.SendChat(user, req.To, req.Text)
		},
		network.MsgTypeChatHistory: func(user string, body []byte) (interface{}, error) {
			return svc.ChatHistory(user)
		},
		network.MsgTypePlayerStats: func(user string, body []byte) (interface{}, error) {
			var req network.PlayerRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			if req.Username == "" {
				req.Username = user
			}
			return svc.PlayerStats(context.Background(), req.Username)
		},
		network.MsgTypeRecentMatches: func(user string, body []byte) (interface{}, error) {
			var req network.RecentMatchesRequest
			if err := decode(body, &req); err != nil {
				return nil, err
			}
			if req.Username == "" {
				req.Username = user
			}
			return svc.RecentMatches(context.Background(), req.Username, req.Limit)
		},
	}
}
