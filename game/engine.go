// Package game is the per-match turn engine: setup choices, the play loop,
// end-game scoring and disconnection handling for one match.
package game

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/state"
)

// Scheduler runs delayed callbacks. timer.TimerManager implements it.
type Scheduler interface {
	AddTimer(delay time.Duration, interval time.Duration, callback func()) int64
	RemoveTimer(timerId int64)
}

// Options configures a new Engine.
type Options struct {
	ID        string
	Players   []string
	Catalogue cards.Catalogue
	Rand      *rand.Rand
	Bus       *events.Bus
	// ScoreThreshold defaults to DefaultScoreThreshold.
	ScoreThreshold int
	// IdleTimeout ends an idle match in favour of the connected player.
	// Zero, or a nil Scheduler, disables it.
	IdleTimeout time.Duration
	Scheduler   Scheduler
}

type player struct {
	name       string
	hand       [HandSize]*cards.Card
	starter    cards.Card
	proposed   [2]cards.Goal
	goal       *cards.Goal
	color      Color
	score      int
	manuscript *cards.Manuscript
}

func (p *player) setupDone() bool {
	return p.manuscript.HasStarter() && p.color != "" && p.goal != nil
}

func (p *player) freeSlot() int {
	for i, c := range p.hand {
		if c == nil {
			return i
		}
	}
	return -1
}

// Engine owns the whole mutable state of one match. Every exported method
// takes the engine lock, so actions on one match never interleave.
type Engine struct {
	mu sync.Mutex

	id        string
	order     []string
	players   map[string]*player
	board     *board
	machine   *state.BaseStateMachine
	bus       *events.Bus
	rng       *rand.Rand
	threshold int

	turn         int
	placed       bool
	disconnected map[string]bool
	idle         bool

	idleTimeout time.Duration
	scheduler   Scheduler
	idleTimer   int64
	idleGen     uint64
	forfeit     bool

	result *Result
}

// NewEngine deals a new match for opts.Players in roster order.
func NewEngine(opts Options) (*Engine, error) {
	if n := len(opts.Players); n < 2 || n > len(Colors) || len(lo.Uniq(opts.Players)) != n {
		return nil, ErrRoster
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	bus := opts.Bus
	if bus == nil {
		bus = events.NewBus(events.Immediate{})
	}
	threshold := opts.ScoreThreshold
	if threshold <= 0 {
		threshold = DefaultScoreThreshold
	}

	cat := opts.Catalogue
	if len(cat.Resources) == 0 {
		cat = cards.Standard()
	}
	if len(cat.Goals) < 2+2*len(opts.Players) || len(cat.Starters) < len(opts.Players) {
		return nil, ErrCatalogue
	}
	goals := append([]cards.Goal(nil), cat.Goals...)
	rng.Shuffle(len(goals), func(i, j int) { goals[i], goals[j] = goals[j], goals[i] })
	starters := cards.NewDeck(cat.Starters, rng)

	e := &Engine{
		id:           opts.ID,
		order:        append([]string(nil), opts.Players...),
		players:      make(map[string]*player, len(opts.Players)),
		bus:          bus,
		rng:          rng,
		threshold:    threshold,
		disconnected: make(map[string]bool),
		idleTimeout:  opts.IdleTimeout,
		scheduler:    opts.Scheduler,
	}
	e.board = &board{
		resource: newPile(cards.NewDeck(cat.Resources, rng)),
		gold:     newPile(cards.NewDeck(cat.Golds, rng)),
		common:   [2]cards.Goal{goals[0], goals[1]},
	}
	goals = goals[2:]

	for _, name := range e.order {
		p := &player{name: name, manuscript: cards.NewManuscript()}
		p.starter, _ = starters.Draw()
		for i, t := range []cards.Type{cards.Resource, cards.Resource, cards.Gold} {
			if c, ok := e.board.takeCovered(t); ok {
				p.hand[i] = &c
			}
		}
		p.proposed = [2]cards.Goal{goals[0], goals[1]}
		goals = goals[2:]
		e.players[name] = p
	}

	e.machine = state.NewMatchMachine(func() bool { return e.forfeit })
	e.machine.OnTransition(func(from, to state.Phase) {
		logger.Log.Infof("match %s: %s -> %s", e.id, from, to)
		e.publish(events.Event{
			Category: events.PhaseChanged,
			Payload:  PhaseChange{From: from, To: to, Idle: e.idle, Result: e.result},
		})
	})
	return e, nil
}

// ID returns the match identifier given at construction.
func (e *Engine) ID() string { return e.id }

// Bus returns the bus the engine publishes on.
func (e *Engine) Bus() *events.Bus { return e.bus }

// Players returns the roster in turn order.
func (e *Engine) Players() []string {
	return append([]string(nil), e.order...)
}

func (e *Engine) lookup(username string) (*player, error) {
	p, ok := e.players[username]
	if !ok {
		return nil, ErrUnknownPlayer
	}
	return p, nil
}

// actor resolves a player allowed to act: known and connected.
func (e *Engine) actor(username string) (*player, error) {
	p, err := e.lookup(username)
	if err != nil {
		return nil, err
	}
	if e.disconnected[username] {
		return nil, ErrDisconnected
	}
	return p, nil
}

func (e *Engine) phase() state.Phase { return e.machine.GetCurrentState() }

func (e *Engine) current() string {
	if !e.phase().Active() {
		return ""
	}
	return e.order[e.turn%len(e.order)]
}

func (e *Engine) connected() []string {
	return lo.Filter(e.order, func(n string, _ int) bool { return !e.disconnected[n] })
}

func (e *Engine) publish(ev events.Event) {
	ev.At = time.Now()
	e.bus.Publish(ev)
}

// StarterCard returns the starter card dealt to username.
func (e *Engine) StarterCard(username string) (cards.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.lookup(username)
	if err != nil {
		return cards.Card{}, err
	}
	return p.starter, nil
}

// AvailableColors lists the colors nobody has picked yet.
func (e *Engine) AvailableColors() []Color {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.freeColors()
}

func (e *Engine) freeColors() []Color {
	taken := map[Color]bool{}
	for _, p := range e.players {
		taken[p.color] = true
	}
	return lo.Filter(Colors, func(c Color, _ int) bool { return !taken[c] })
}

// ProposedPrivateGoals returns the two goals username may choose from.
// It is only meaningful during setup.
func (e *Engine) ProposedPrivateGoals(username string) ([]cards.Goal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.lookup(username)
	if err != nil {
		return nil, err
	}
	if e.phase() != state.Setting {
		return nil, ErrWrongPhase
	}
	return append([]cards.Goal(nil), p.proposed[:]...), nil
}

// PlayerData snapshots username's state.
func (e *Engine) PlayerData(username string) (PlayerView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.lookup(username)
	if err != nil {
		return PlayerView{}, err
	}
	v := PlayerView{
		Username:   p.name,
		Color:      p.color,
		Score:      p.score,
		Connected:  !e.disconnected[p.name],
		StarterSet: p.manuscript.HasStarter(),
	}
	for i, c := range p.hand {
		if c != nil {
			cp := *c
			v.Hand[i] = &cp
		}
	}
	if p.goal != nil {
		g := *p.goal
		v.PrivateGoal = &g
	}
	return v, nil
}

// Manuscript snapshots username's placement area.
func (e *Engine) Manuscript(username string) (cards.View, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.lookup(username)
	if err != nil {
		return cards.View{}, err
	}
	return p.manuscript.Snapshot(), nil
}

// TurnState snapshots the match progress.
func (e *Engine) TurnState() TurnState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.turnState()
}

func (e *Engine) turnState() TurnState {
	disc := lo.Keys(e.disconnected)
	sort.Strings(disc)
	return TurnState{
		Phase:        e.phase(),
		Idle:         e.idle,
		Turn:         e.turn,
		Order:        append([]string(nil), e.order...),
		Current:      e.current(),
		Disconnected: disc,
		Placed:       e.placed,
	}
}

// Board snapshots the shared board.
func (e *Engine) Board() BoardView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.board.view()
}

// GameEnded reports whether play is over and the winner can be asked for.
func (e *Engine) GameEnded() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.phase()
	return p == state.PostGame || p == state.End
}
