// Package lobby keeps track of which lobbies and matches exist and who sits
// in each of them.
package lobby

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/state"
)

// codeAlphabet avoids characters that are easy to misread.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

var (
	ErrServerFull       = errors.New("no lobby slots left")
	ErrInvalidLobby     = errors.New("invalid lobby request")
	ErrAlreadyInLobby   = errors.New("user already in a lobby")
	ErrLobbyNotFound    = errors.New("lobby not found")
	ErrNotJoinable      = errors.New("lobby is not joinable")
	ErrNotInLobby       = errors.New("user is not in a lobby")
	ErrNotMaster        = errors.New("only the lobby master may start")
	ErrNotEnoughPlayers = errors.New("at least two members are needed")
	ErrNotInMatch       = errors.New("user is not in a match")
	ErrMatchInProgress  = errors.New("lobby already runs a match")
)

// Metrics receives orchestrator gauges. monitor implements it.
type Metrics interface {
	SetActiveLobbies(n int)
	SetActiveMatches(n int)
	IncMatchesFinished()
}

// Recorder stores finished matches. services.HistoryService implements it.
type Recorder interface {
	RecordMatch(ctx context.Context, res game.Result, players []string) error
}

type nopMetrics struct{}

func (nopMetrics) SetActiveLobbies(int) {}
func (nopMetrics) SetActiveMatches(int) {}
func (nopMetrics) IncMatchesFinished()  {}

// Deps are the collaborators of an Orchestrator. Every field is optional.
type Deps struct {
	// Dispatcher runs bus handlers for the orchestrator and every match.
	Dispatcher events.Dispatcher
	Scheduler  game.Scheduler
	Metrics    Metrics
	Recorder   Recorder
	// OnPrune runs, under the orchestrator lock, when a lobby is deleted.
	OnPrune func(code string)
}

type createRequest struct {
	Name       string `validate:"required,max=32"`
	MaxPlayers int    `validate:"gte=2,lte=4"`
	Username   string `validate:"required,max=32"`
}

// Orchestrator is the single source of truth for lobbies and their matches.
type Orchestrator struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby // code -> lobby
	byUser  map[string]string // username -> code

	maxLobbies int
	codeLength int
	rules      config.GameConfig

	bus        *events.Bus
	dispatcher events.Dispatcher
	scheduler  game.Scheduler
	metrics    Metrics
	recorder   Recorder
	onPrune    func(code string)
	validate   *validator.Validate
}

// NewOrchestrator builds an empty orchestrator from the lobby and game sections
// of cfg.
func NewOrchestrator(cfg *config.Config, deps Deps) *Orchestrator {
	if deps.Dispatcher == nil {
		deps.Dispatcher = events.Immediate{}
	}
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	return &Orchestrator{
		lobbies:    make(map[string]*Lobby),
		byUser:     make(map[string]string),
		maxLobbies: cfg.Lobby.MaxLobbies,
		codeLength: cfg.Lobby.CodeLength,
		rules:      cfg.Game,
		bus:        events.NewBus(deps.Dispatcher),
		dispatcher: deps.Dispatcher,
		scheduler:  deps.Scheduler,
		metrics:    deps.Metrics,
		recorder:   deps.Recorder,
		onPrune:    deps.OnPrune,
		validate:   validator.New(),
	}
}

// Bus carries CompositionChanged and LobbyStarted events, targeted at members.
func (o *Orchestrator) Bus() *events.Bus { return o.bus }

// CreateLobby opens a lobby with username as its only member and master.
func (o *Orchestrator) CreateLobby(name string, maxPlayers int, username string) (Info, error) {
	req := createRequest{Name: name, MaxPlayers: maxPlayers, Username: username}
	if err := o.validate.Struct(req); err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrInvalidLobby, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if _, in := o.byUser[username]; in {
		return Info{}, ErrAlreadyInLobby
	}
	if len(o.lobbies) >= o.maxLobbies {
		logger.Log.Warnf("lobby cap %d reached, %s turned away", o.maxLobbies, username)
		return Info{}, ErrServerFull
	}
	code, err := o.newCode()
	if err != nil {
		return Info{}, err
	}

	l := newLobby(code, name, maxPlayers, username)
	o.lobbies[code] = l
	o.byUser[username] = code
	o.updateGauges()
	logger.Log.Infof("lobby %s (%s) created by %s", code, name, username)
	return l.info(), nil
}

func (o *Orchestrator) newCode() (string, error) {
	for {
		code, err := gonanoid.Generate(codeAlphabet, o.codeLength)
		if err != nil {
			return "", fmt.Errorf("generate lobby code: %w", err)
		}
		if _, taken := o.lobbies[code]; !taken {
			return code, nil
		}
	}
}

// ListJoinableLobbies returns the lobbies a newcomer could join, by name.
func (o *Orchestrator) ListJoinableLobbies() []Info {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Info, 0, len(o.lobbies))
	for _, l := range o.lobbies {
		if l.lobbable() {
			out = append(out, l.info())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Code < out[j].Code
	})
	return out
}

// LobbyInfo returns the lobby username belongs to.
func (o *Orchestrator) LobbyInfo(username string) (Info, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.lobbyOf(username)
	if !ok {
		return Info{}, false
	}
	return l.info(), true
}

// MatchToRejoin returns the code of a running match username played in and
// has since left.
func (o *Orchestrator) MatchToRejoin(username string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, in := o.byUser[username]; in {
		return "", false
	}
	for code, l := range o.lobbies {
		if l.Status == StatusOngoing && l.inChrono(username) {
			return code, true
		}
	}
	return "", false
}

func (o *Orchestrator) lobbyOf(username string) (*Lobby, bool) {
	code, ok := o.byUser[username]
	if !ok {
		return nil, false
	}
	l, ok := o.lobbies[code]
	return l, ok
}

// JoinLobby adds username to lobby code. A nil engine means the lobby has no
// match yet. A non-nil engine means username rejoined a running match and has
// been reconnected in it.
func (o *Orchestrator) JoinLobby(code, username string) (*game.Engine, error) {
	if username == "" {
		return nil, ErrInvalidLobby
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, in := o.byUser[username]; in {
		return nil, ErrAlreadyInLobby
	}
	l, ok := o.lobbies[code]
	if !ok {
		return nil, ErrLobbyNotFound
	}

	switch {
	case l.lobbable():
		l.add(username)
		o.byUser[username] = code
		o.announceComposition(l, Composition{Joined: username})
		return nil, nil

	case l.Status == StatusOngoing && l.inChrono(username) && !l.isMember(username):
		if err := l.engine.ReconnectPlayer(username); err != nil {
			return nil, err
		}
		l.add(username)
		o.byUser[username] = code
		logger.Log.Infof("%s rejoined match %s", username, code)
		o.announceComposition(l, Composition{Joined: username})
		return l.engine, nil
	}
	return nil, ErrNotJoinable
}

// StartLobby turns the caller's lobby into a match. Only the master may start,
// and only with at least two members.
func (o *Orchestrator) StartLobby(username string) (*game.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.lobbyOf(username)
	if !ok {
		return nil, ErrNotInLobby
	}
	if l.Status != StatusLobbable {
		return nil, ErrMatchInProgress
	}
	if l.master != username {
		return nil, ErrNotMaster
	}
	if len(l.members) < 2 {
		return nil, ErrNotEnoughPlayers
	}

	e, err := game.NewEngine(game.Options{
		ID:             l.Code,
		Players:        l.members,
		Bus:            events.NewBus(o.dispatcher),
		ScoreThreshold: o.rules.ScoreThreshold,
		IdleTimeout:    o.rules.IdleTimeout,
		Scheduler:      o.scheduler,
	})
	if err != nil {
		return nil, err
	}
	l.start(e)
	o.watchEnd(l.Code, e)
	o.updateGauges()

	started := Started{Code: l.Code, MatchID: e.ID(), Players: e.Players()}
	for _, m := range l.members {
		o.bus.Publish(events.Event{Category: events.LobbyStarted, Actor: username, Target: m, Payload: started})
	}
	logger.Log.Infof("lobby %s started with %v", l.Code, l.members)
	return e, nil
}

// watchEnd records the match outcome once the engine reaches END.
func (o *Orchestrator) watchEnd(code string, e *game.Engine) {
	players := e.Players()
	e.Bus().Subscribe(events.PhaseChanged, "", func(ev events.Event) {
		change, ok := ev.Payload.(game.PhaseChange)
		if !ok || change.To != state.End || change.From == state.End || change.Result == nil {
			return
		}
		o.metrics.IncMatchesFinished()
		if o.recorder == nil {
			return
		}
		if err := o.recorder.RecordMatch(context.Background(), *change.Result, players); err != nil {
			logger.Log.Warnf("record match %s: %v", code, err)
		}
	})
}

// ExitLobby removes username from its lobby. Leaving a lobby that runs a
// match disconnects username from the match, as ExitMatch does.
func (o *Orchestrator) ExitLobby(username string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.lobbyOf(username)
	if !ok {
		return ErrNotInLobby
	}
	if l.Status == StatusOngoing {
		return o.exitMatch(l, username)
	}
	o.leave(l, username)
	return nil
}

// ExitMatch removes username from its running match and disconnects it in the
// engine. The user may come back through JoinLobby.
func (o *Orchestrator) ExitMatch(username string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.lobbyOf(username)
	if !ok || l.Status != StatusOngoing {
		return ErrNotInMatch
	}
	return o.exitMatch(l, username)
}

func (o *Orchestrator) exitMatch(l *Lobby, username string) error {
	l.engine.Bus().UnsubscribeAll(username)
	if err := l.engine.DisconnectPlayer(username); err != nil {
		return err
	}
	o.leave(l, username)
	return nil
}

// Leave is what the transports call on connection loss: it exits whatever
// username is in. Being nowhere is not an error.
func (o *Orchestrator) Leave(username string) error {
	if err := o.ExitLobby(username); err != nil && !errors.Is(err, ErrNotInLobby) {
		return err
	}
	return nil
}

func (o *Orchestrator) leave(l *Lobby, username string) {
	l.remove(username)
	delete(o.byUser, username)

	if len(l.members) == 0 {
		delete(o.lobbies, l.Code)
		if l.engine != nil {
			l.engine.Bus().Close()
		}
		if o.onPrune != nil {
			o.onPrune(l.Code)
		}
		logger.Log.Infof("lobby %s pruned", l.Code)
		o.updateGauges()
		return
	}
	o.announceComposition(l, Composition{Left: username})
}

// Engine routes username to the match it plays in.
func (o *Orchestrator) Engine(username string) (*game.Engine, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	l, ok := o.lobbyOf(username)
	if !ok || l.engine == nil {
		return nil, ErrNotInMatch
	}
	return l.engine, nil
}

// Counts returns the number of live lobbies and how many of them run a match.
func (o *Orchestrator) Counts() (lobbies, matches int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts()
}

func (o *Orchestrator) counts() (lobbies, matches int) {
	for _, l := range o.lobbies {
		if l.Status == StatusOngoing {
			matches++
		}
	}
	return len(o.lobbies), matches
}

func (o *Orchestrator) updateGauges() {
	lobbies, matches := o.counts()
	o.metrics.SetActiveLobbies(lobbies)
	o.metrics.SetActiveMatches(matches)
}

// announceComposition tells every member of l about its new membership.
func (o *Orchestrator) announceComposition(l *Lobby, c Composition) {
	c.Info = l.info()
	actor := c.Joined + c.Left
	for _, m := range l.members {
		if m == actor {
			continue
		}
		o.bus.Publish(events.Event{Category: events.CompositionChanged, Actor: actor, Target: m, Payload: c})
	}
}
