package game

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/state"
)

type recorder struct {
	mu   sync.Mutex
	seen map[string][]events.Event
}

func newRecorder() *recorder { return &recorder{seen: map[string][]events.Event{}} }

func (r *recorder) listen(bus *events.Bus, key string) {
	bus.SubscribeAll(key, func(ev events.Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.seen[key] = append(r.seen[key], ev)
	})
}

func (r *recorder) count(key string, cat events.Category) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.seen[key] {
		if ev.Category == cat {
			n++
		}
	}
	return n
}

func (r *recorder) last(key string, cat events.Category) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.seen[key]) - 1; i >= 0; i-- {
		if r.seen[key][i].Category == cat {
			return r.seen[key][i], true
		}
	}
	return events.Event{}, false
}

type MockScheduler struct {
	mu        sync.Mutex
	callbacks map[int64]func()
	next      int64
}

func (m *MockScheduler) AddTimer(delay, interval time.Duration, callback func()) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.callbacks == nil {
		m.callbacks = map[int64]func(){}
	}
	m.next++
	m.callbacks[m.next] = callback
	return m.next
}

func (m *MockScheduler) RemoveTimer(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, id)
}

func (m *MockScheduler) fireAll() {
	m.mu.Lock()
	cbs := make([]func(), 0, len(m.callbacks))
	for id, cb := range m.callbacks {
		cbs = append(cbs, cb)
		delete(m.callbacks, id)
	}
	m.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func newTestEngine(t *testing.T, opts Options) (*Engine, *recorder) {
	t.Helper()
	if opts.ID == "" {
		opts.ID = "m1"
	}
	opts.Rand = rand.New(rand.NewSource(7))
	opts.Bus = events.NewBus(events.Immediate{})
	e, err := NewEngine(opts)
	require.NoError(t, err)
	rec := newRecorder()
	rec.listen(e.Bus(), "")
	for _, name := range opts.Players {
		rec.listen(e.Bus(), name)
	}
	return e, rec
}

func setupPlayer(t *testing.T, e *Engine, name string) {
	t.Helper()
	ok, err := e.SetStarterCard(name, cards.Front)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.SetPlayerColor(name, e.AvailableColors()[0])
	require.NoError(t, err)
	require.True(t, ok)
	goals, err := e.ProposedPrivateGoals(name)
	require.NoError(t, err)
	ok, err = e.ChoosePrivateGoal(name, goals[0].ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func setupAll(t *testing.T, e *Engine) {
	t.Helper()
	for _, name := range e.Players() {
		setupPlayer(t, e, name)
	}
	require.Equal(t, state.Playing, e.TurnState().Phase)
}

// nextPosition returns a free cell on the rising diagonal. Backs have visible
// corners and no cost, so a back placed there is always legal.
func nextPosition(t *testing.T, e *Engine, name string) cards.Position {
	t.Helper()
	m, err := e.Manuscript(name)
	require.NoError(t, err)
	k := len(m.Cards)
	return cards.Position{X: k, Y: k}
}

func handCard(t *testing.T, e *Engine, name string) cards.Card {
	t.Helper()
	v, err := e.PlayerData(name)
	require.NoError(t, err)
	for _, c := range v.Hand {
		if c != nil {
			return *c
		}
	}
	t.Fatalf("%s has an empty hand", name)
	return cards.Card{}
}

func place(t *testing.T, e *Engine, name string) cards.Card {
	t.Helper()
	c := handCard(t, e, name)
	ok, err := e.PlaceCard(name, c.ID, cards.Back, nextPosition(t, e, name))
	require.NoError(t, err)
	require.True(t, ok)
	return c
}

func drawAny(t *testing.T, e *Engine, name string) {
	t.Helper()
	for _, typ := range []cards.Type{cards.Resource, cards.Gold} {
		if c, err := e.DrawCoveredCard(name, typ); err == nil && c != nil {
			return
		}
		for i := 0; i < 2; i++ {
			if c, err := e.DrawVisibleCard(name, typ, i); err == nil && c != nil {
				return
			}
		}
	}
	t.Fatalf("%s could not draw anything", name)
}

func playTurn(t *testing.T, e *Engine, name string) {
	t.Helper()
	require.Equal(t, name, e.TurnState().Current)
	place(t, e, name)
	drawAny(t, e, name)
}

func TestNewEngine_Roster(t *testing.T) {
	_, err := NewEngine(Options{Players: []string{"a"}})
	require.ErrorIs(t, err, ErrRoster)
	_, err = NewEngine(Options{Players: []string{"a", "a"}})
	require.ErrorIs(t, err, ErrRoster)
	_, err = NewEngine(Options{Players: []string{"a", "b", "c", "d", "e"}})
	require.ErrorIs(t, err, ErrRoster)

	small := cards.Standard()
	small.Goals = small.Goals[:4]
	_, err = NewEngine(Options{Players: []string{"a", "b"}, Catalogue: small})
	require.ErrorIs(t, err, ErrCatalogue)
}

func TestNewEngine_Deal(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}})

	ts := e.TurnState()
	require.Equal(t, state.Setting, ts.Phase)
	require.Empty(t, ts.Current)
	require.Equal(t, []string{"A", "B"}, ts.Order)

	for _, name := range []string{"A", "B"} {
		v, err := e.PlayerData(name)
		require.NoError(t, err)
		require.Equal(t, cards.Resource, v.Hand[0].Type)
		require.Equal(t, cards.Resource, v.Hand[1].Type)
		require.Equal(t, cards.Gold, v.Hand[2].Type)
		require.Nil(t, v.PrivateGoal)
		require.False(t, v.StarterSet)

		starter, err := e.StarterCard(name)
		require.NoError(t, err)
		require.Equal(t, cards.Starter, starter.Type)
	}

	b := e.Board()
	require.NotNil(t, b.Resource.Visible[0])
	require.NotNil(t, b.Gold.Visible[1])
	require.Equal(t, 40-2-4, b.Resource.Remaining)
	require.Equal(t, 40-2-2, b.Gold.Remaining)
	require.NotEqual(t, b.CommonGoals[0].ID, b.CommonGoals[1].ID)
}

func TestSetup_CompletesAndStartsPlay(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B"}})

	setupPlayer(t, e, "A")
	require.Equal(t, state.Setting, e.TurnState().Phase)

	setupPlayer(t, e, "B")
	ts := e.TurnState()
	require.Equal(t, state.Playing, ts.Phase)
	require.Equal(t, 0, ts.Turn)
	require.Equal(t, "A", ts.Current)

	ev, ok := rec.last("", events.TurnChanged)
	require.True(t, ok)
	require.Equal(t, "A", ev.Payload.(TurnChange).Current)

	_, err := e.ProposedPrivateGoals("A")
	require.ErrorIs(t, err, ErrWrongPhase)
	require.ErrorIs(t, err, ErrInvalidCall)
}

func TestSetup_RejectsRepeatedChoices(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})

	ok, err := e.SetPlayerColor("A", Red)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = e.SetPlayerColor("A", Blue)
	require.NoError(t, err)
	require.False(t, ok, "color already chosen")

	ok, err = e.SetPlayerColor("B", Red)
	require.NoError(t, err)
	require.False(t, ok, "color taken by A")
	require.NotContains(t, e.AvailableColors(), Red)

	ok, err = e.SetStarterCard("B", cards.Back)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = e.SetStarterCard("B", cards.Front)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = e.ChoosePrivateGoal("C", -1)
	require.NoError(t, err)
	require.False(t, ok, "goal was not proposed")

	_, err = e.SetPlayerColor("Z", Green)
	require.ErrorIs(t, err, ErrUnknownPlayer)
}

func TestSetup_EventsSkipTheActor(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B"}})

	ok, err := e.SetPlayerColor("A", Green)
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, 0, rec.count("A", events.ColorSet))
	require.Equal(t, 1, rec.count("B", events.ColorSet))
	require.Equal(t, 1, rec.count("", events.ColorSet))
}

func TestSetup_DefaultsForDisconnectedPlayers(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})

	require.NoError(t, e.DisconnectPlayer("C"))
	setupPlayer(t, e, "A")
	setupPlayer(t, e, "B")

	ts := e.TurnState()
	require.Equal(t, state.Playing, ts.Phase)
	require.Equal(t, "A", ts.Current)

	c, err := e.PlayerData("C")
	require.NoError(t, err)
	require.True(t, c.StarterSet)
	require.NotEmpty(t, c.Color)
	require.NotNil(t, c.PrivateGoal)
	require.False(t, c.Connected)

	m, err := e.Manuscript("C")
	require.NoError(t, err)
	require.Len(t, m.Cards, 1)
	require.Equal(t, cards.Front, m.Cards[0].Side)
}

func TestPlay_PlaceThenDrawPassesTheTurn(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B"}})
	setupAll(t, e)

	c := place(t, e, "A")
	ts := e.TurnState()
	require.Equal(t, "A", ts.Current, "the turn stays open until A draws")
	require.True(t, ts.Placed)

	v, err := e.PlayerData("A")
	require.NoError(t, err)
	for _, h := range v.Hand {
		if h != nil {
			require.NotEqual(t, c.ID, h.ID)
		}
	}
	m, err := e.Manuscript("A")
	require.NoError(t, err)
	found := 0
	for _, pc := range m.Cards {
		if pc.Card.ID == c.ID {
			found++
		}
	}
	require.Equal(t, 1, found)

	ok, err := e.PlaceCard("A", handCard(t, e, "A").ID, cards.Back, nextPosition(t, e, "A"))
	require.NoError(t, err)
	require.False(t, ok, "one placement per turn")

	drawn, err := e.DrawVisibleCard("A", cards.Gold, 1)
	require.NoError(t, err)
	require.NotNil(t, drawn)

	ts = e.TurnState()
	require.Equal(t, 1, ts.Turn)
	require.Equal(t, "B", ts.Current)
	require.False(t, ts.Placed)

	require.Equal(t, 0, rec.count("A", events.CardPlaced))
	require.Equal(t, 1, rec.count("B", events.CardPlaced))
	require.Equal(t, 1, rec.count("B", events.CardDrawn))
	require.NotNil(t, e.Board().Gold.Visible[1], "face-up slot refilled from its deck")
}

func TestPlay_Rejections(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}})

	ok, err := e.PlaceCard("A", handCard(t, e, "A").ID, cards.Back, cards.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.False(t, ok, "no placements during setup")

	setupAll(t, e)

	ok, err = e.PlaceCard("B", handCard(t, e, "B").ID, cards.Back, cards.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.False(t, ok, "not B's turn")

	ok, err = e.PlaceCard("A", 9999, cards.Back, cards.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.False(t, ok, "card not in hand")

	ok, err = e.PlaceCard("A", handCard(t, e, "A").ID, cards.Back, cards.Position{X: 5, Y: 5})
	require.NoError(t, err)
	require.False(t, ok, "not adjacent")

	c, err := e.DrawCoveredCard("A", cards.Resource)
	require.NoError(t, err)
	require.Nil(t, c, "must place before drawing")

	_, err = e.DrawCoveredCard("A", cards.Starter)
	require.ErrorIs(t, err, ErrBadRequest)
	_, err = e.DrawVisibleCard("A", cards.Gold, 2)
	require.ErrorIs(t, err, ErrBadRequest)

	_, err = e.PlaceCard("nobody", 1, cards.Front, cards.Position{})
	require.ErrorIs(t, err, ErrInvalidCall)

	_, err = e.Winner()
	require.ErrorIs(t, err, ErrNotEnded)
	require.False(t, e.GameEnded())
}

func TestPlay_ScoreThresholdWaitsForRoundWrap(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})
	setupAll(t, e)

	e.players["A"].score = 19
	e.players["A"].hand[0] = &cards.Card{
		ID: 999, Type: cards.Resource, Kingdom: cards.Fungi, Points: 2,
		Front: cards.Face{Corners: [4]cards.Corner{{}, {}, {}, {}}},
	}
	ok, err := e.PlaceCard("A", 999, cards.Front, cards.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := e.PlayerData("A")
	require.Equal(t, 21, v.Score)
	drawAny(t, e, "A")

	require.Equal(t, state.Playing, e.TurnState().Phase)
	playTurn(t, e, "B")
	require.Equal(t, state.Playing, e.TurnState().Phase)
	playTurn(t, e, "C")
	require.Equal(t, state.LastRound, e.TurnState().Phase)

	playTurn(t, e, "A")
	playTurn(t, e, "B")
	require.Equal(t, state.LastRound, e.TurnState().Phase)
	playTurn(t, e, "C")

	ts := e.TurnState()
	require.Equal(t, state.PostGame, ts.Phase)
	require.Empty(t, ts.Current)
	require.Equal(t, 6, ts.Turn)
	require.True(t, e.GameEnded())
}

func TestPlay_EmptyDecks(t *testing.T) {
	cat := cards.Standard()
	// two face up plus two cards per hand leaves the resource deck empty
	cat.Resources = cat.Resources[:6]
	cat.Golds = cat.Golds[:5]
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B"}, Catalogue: cat})
	setupAll(t, e)
	require.Zero(t, e.Board().Resource.Remaining)
	require.Equal(t, 1, e.Board().Gold.Remaining)

	place(t, e, "A")
	c, err := e.DrawCoveredCard("A", cards.Resource)
	require.NoError(t, err)
	require.Nil(t, c, "empty deck means retry")
	require.Equal(t, "A", e.TurnState().Current)

	c, err = e.DrawCoveredCard("A", cards.Gold)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, state.EmptyDecks, e.TurnState().Phase)

	ev, ok := rec.last("", events.PhaseChanged)
	require.True(t, ok)
	require.Equal(t, state.EmptyDecks, ev.Payload.(PhaseChange).To)

	playTurn(t, e, "B")
	require.Equal(t, state.LastRound, e.TurnState().Phase)
}

func TestPlay_EmptyBoardSkipsTheDraw(t *testing.T) {
	cat := cards.Standard()
	cat.Resources = cat.Resources[:6]
	cat.Golds = cat.Golds[:4]
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}, Catalogue: cat})
	setupAll(t, e)

	for _, typ := range []cards.Type{cards.Resource, cards.Gold} {
		p := e.board.pile(typ)
		p.visible = [2]*cards.Card{}
	}
	place(t, e, "A")
	require.Equal(t, "B", e.TurnState().Current)
}

func TestWinner_TieBrokenByGoalGain(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}})
	setupAll(t, e)

	nothing := cards.Goal{ID: 500, Kind: cards.SymbolGoal, Points: 9, Symbols: []cards.Symbol{cards.Quill}}
	e.board.common = [2]cards.Goal{nothing, nothing}

	a := e.players["A"]
	k := a.starter.Front.Center[0]
	a.goal = &cards.Goal{ID: 501, Kind: cards.SymbolGoal, Points: 2, Symbols: []cards.Symbol{k}}
	gain := a.goal.Score(a.manuscript)
	require.Positive(t, gain)
	e.players["B"].goal = &nothing

	a.score = 10
	e.players["B"].score = 10 + gain

	require.NoError(t, e.machine.ChangeState(state.LastRound))
	require.NoError(t, e.machine.ChangeState(state.PostGame))

	winner, err := e.Winner()
	require.NoError(t, err)
	require.Equal(t, "A", winner)
	require.Equal(t, state.End, e.TurnState().Phase)

	res := e.Result()
	require.Equal(t, 10+gain, res.Scores["A"])
	require.Equal(t, gain, res.GoalGains["A"])
	require.Zero(t, res.GoalGains["B"])
}

func TestWinner_ThreeWayTieIsADraw(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})
	setupAll(t, e)

	nothing := cards.Goal{ID: 500, Kind: cards.SymbolGoal, Points: 9, Symbols: []cards.Symbol{cards.Quill}}
	e.board.common = [2]cards.Goal{nothing, nothing}
	for _, p := range e.players {
		p.goal = &nothing
		p.score = 12
	}
	require.NoError(t, e.machine.ChangeState(state.LastRound))
	require.NoError(t, e.machine.ChangeState(state.PostGame))

	winner, err := e.Winner()
	require.NoError(t, err)
	require.Empty(t, winner)
	require.Equal(t, state.End, e.TurnState().Phase)

	ev, ok := rec.last("", events.PhaseChanged)
	require.True(t, ok)
	change := ev.Payload.(PhaseChange)
	require.Equal(t, state.End, change.To)
	require.NotNil(t, change.Result)
	require.Empty(t, change.Result.Winner)
}

func TestWinner_Idempotent(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}})
	setupAll(t, e)

	e.players["A"].goal = &cards.Goal{ID: 600, Kind: cards.SymbolGoal, Points: 1,
		Symbols: []cards.Symbol{e.players["A"].starter.Front.Center[0]}}
	require.NoError(t, e.machine.ChangeState(state.LastRound))
	require.NoError(t, e.machine.ChangeState(state.PostGame))

	first, err := e.Winner()
	require.NoError(t, err)
	before, _ := e.PlayerData("A")

	second, err := e.Winner()
	require.NoError(t, err)
	after, _ := e.PlayerData("A")

	require.Equal(t, first, second)
	require.Equal(t, before.Score, after.Score)
}

func TestDisconnect_FullHandAdvancesWithoutDrawing(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})
	setupAll(t, e)

	require.NoError(t, e.DisconnectPlayer("A"))
	ts := e.TurnState()
	require.Equal(t, "B", ts.Current)
	require.Equal(t, 1, ts.Turn)
	require.Equal(t, []string{"A"}, ts.Disconnected)
	require.False(t, ts.Idle)
	require.Equal(t, 0, rec.count("", events.CardDrawn))

	_, err := e.PlaceCard("A", 1, cards.Back, cards.Position{X: 1, Y: 1})
	require.ErrorIs(t, err, ErrDisconnected)
}

func TestDisconnect_MidTurnForcesOneSyntheticDraw(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})
	setupAll(t, e)

	place(t, e, "A")
	require.NoError(t, e.DisconnectPlayer("A"))

	require.Equal(t, 1, rec.count("", events.CardDrawn))
	ev, _ := rec.last("", events.CardDrawn)
	require.True(t, ev.Payload.(CardDraw).Synthetic)

	v, err := e.PlayerData("A")
	require.NoError(t, err)
	for _, c := range v.Hand {
		require.NotNil(t, c)
	}
	require.Equal(t, "B", e.TurnState().Current)
}

func TestDisconnect_SkipsDisconnectedPlayers(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B", "C"}})
	setupAll(t, e)

	require.NoError(t, e.DisconnectPlayer("B"))
	playTurn(t, e, "A")
	ts := e.TurnState()
	require.Equal(t, "C", ts.Current)
	require.Equal(t, 2, ts.Turn)
}

func TestIdle_AndReconnect(t *testing.T) {
	e, rec := newTestEngine(t, Options{Players: []string{"A", "B"}})
	setupAll(t, e)

	require.NoError(t, e.DisconnectPlayer("B"))
	ts := e.TurnState()
	require.True(t, ts.Idle)
	require.Equal(t, "A", ts.Current)

	ev, ok := rec.last("", events.PhaseChanged)
	require.True(t, ok)
	require.True(t, ev.Payload.(PhaseChange).Idle)

	ok, err := e.PlaceCard("A", handCard(t, e, "A").ID, cards.Back, cards.Position{X: 1, Y: 1})
	require.NoError(t, err)
	require.False(t, ok, "nobody plays alone")

	require.NoError(t, e.ReconnectPlayer("B"))
	require.False(t, e.TurnState().Idle)
	playTurn(t, e, "A")
	require.Equal(t, "B", e.TurnState().Current)

	require.ErrorIs(t, e.ReconnectPlayer("Z"), ErrUnknownPlayer)
}

func TestIdle_ForfeitEndsTheMatch(t *testing.T) {
	sched := &MockScheduler{}
	e, _ := newTestEngine(t, Options{
		Players:     []string{"A", "B"},
		IdleTimeout: time.Minute,
		Scheduler:   sched,
	})
	setupAll(t, e)

	require.NoError(t, e.DisconnectPlayer("B"))
	require.Len(t, sched.callbacks, 1)

	sched.fireAll()
	require.Equal(t, state.End, e.TurnState().Phase)

	winner, err := e.Winner()
	require.NoError(t, err)
	require.Equal(t, "A", winner)
	require.True(t, e.Result().Forfeit)
}

func TestIdle_ReconnectCancelsForfeit(t *testing.T) {
	sched := &MockScheduler{}
	e, _ := newTestEngine(t, Options{
		Players:     []string{"A", "B"},
		IdleTimeout: time.Minute,
		Scheduler:   sched,
	})
	setupAll(t, e)

	require.NoError(t, e.DisconnectPlayer("B"))
	require.NoError(t, e.ReconnectPlayer("B"))
	require.Empty(t, sched.callbacks)
	require.Equal(t, state.Playing, e.TurnState().Phase)
}

func TestSetup_ProposedGoalsAreACopy(t *testing.T) {
	e, _ := newTestEngine(t, Options{Players: []string{"A", "B"}})

	goals, err := e.ProposedPrivateGoals("A")
	require.NoError(t, err)
	want := append([]cards.Goal(nil), goals...)
	goals[0] = cards.Goal{ID: -1}

	again, err := e.ProposedPrivateGoals("A")
	require.NoError(t, err)
	require.Equal(t, want, again)
}

func TestEngine_ConcurrentPlayersOnPool(t *testing.T) {
	pool, err := events.NewPool(8, nil)
	require.NoError(t, err)
	defer pool.Stop()

	players := []string{"A", "B", "C", "D"}
	e, err := NewEngine(Options{
		ID:      "m1",
		Players: players,
		Rand:    rand.New(rand.NewSource(7)),
		Bus:     events.NewBus(pool),
	})
	require.NoError(t, err)
	rec := newRecorder()
	for _, name := range players {
		rec.listen(e.Bus(), name)
	}

	var wg sync.WaitGroup
	for i, name := range players {
		wg.Add(2)
		go func(name string, color Color) {
			defer wg.Done()
			ok, err := e.SetStarterCard(name, cards.Front)
			assert.NoError(t, err)
			assert.True(t, ok)
			ok, err = e.SetPlayerColor(name, color)
			assert.NoError(t, err)
			assert.True(t, ok)
			goals, err := e.ProposedPrivateGoals(name)
			if assert.NoError(t, err) {
				ok, err = e.ChoosePrivateGoal(name, goals[0].ID)
				assert.NoError(t, err)
				assert.True(t, ok)
			}
		}(name, Colors[i])
		go func(name string) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = e.TurnState()
				_ = e.Board()
				_, _ = e.PlayerData(name)
			}
		}(name)
	}
	wg.Wait()

	ts := e.TurnState()
	require.Equal(t, state.Playing, ts.Phase)
	require.Equal(t, "A", ts.Current)

	// every player tries to place at once; only the current one may
	var placed atomic.Int32
	for _, name := range players {
		c := handCard(t, e, name)
		wg.Add(1)
		go func(name string, c cards.Card) {
			defer wg.Done()
			ok, err := e.PlaceCard(name, c.ID, cards.Back, cards.Position{X: 1, Y: 1})
			assert.NoError(t, err)
			if ok {
				placed.Add(1)
			}
		}(name, c)
	}
	wg.Wait()
	require.EqualValues(t, 1, placed.Load())

	// two draws race for the single draw step of the turn
	var drawn atomic.Int32
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := e.DrawCoveredCard("A", cards.Resource)
			assert.NoError(t, err)
			if c != nil {
				drawn.Add(1)
			}
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, drawn.Load())
	require.Equal(t, "B", e.TurnState().Current)

	require.Eventually(t, func() bool {
		return rec.count("B", events.CardPlaced) == 1
	}, time.Second, 10*time.Millisecond)
}
