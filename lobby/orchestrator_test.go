package lobby

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/codexserver/config"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/game"
	"github.com/wfunc/codexserver/state"
)

// MockRecorder is a test double for the Recorder interface.
type MockRecorder struct {
	mu      sync.Mutex
	results []game.Result
	players [][]string
}

func (m *MockRecorder) RecordMatch(ctx context.Context, res game.Result, players []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	m.players = append(m.players, players)
	return nil
}

// MockMetrics is a test double for the Metrics interface.
type MockMetrics struct {
	mu       sync.Mutex
	lobbies  int
	matches  int
	finished int
}

func (m *MockMetrics) SetActiveLobbies(n int) { m.mu.Lock(); m.lobbies = n; m.mu.Unlock() }
func (m *MockMetrics) SetActiveMatches(n int) { m.mu.Lock(); m.matches = n; m.mu.Unlock() }
func (m *MockMetrics) IncMatchesFinished()    { m.mu.Lock(); m.finished++; m.mu.Unlock() }

// MockScheduler keeps callbacks until the test fires them.
type MockScheduler struct {
	mu        sync.Mutex
	next      int64
	callbacks map[int64]func()
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
	var cbs []func()
	for id, cb := range m.callbacks {
		cbs = append(cbs, cb)
		delete(m.callbacks, id)
	}
	m.mu.Unlock()
	for _, cb := range cbs {
		cb()
	}
}

func newTestOrchestrator(t *testing.T, deps Deps) *Orchestrator {
	t.Helper()
	return NewOrchestrator(config.Default(), deps)
}

func TestOrchestrator_CreateLobby(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	info, err := o.CreateLobby("Foo", 3, "alice")
	require.NoError(t, err)
	require.Len(t, info.Code, 6)
	require.Equal(t, "Foo", info.Name)
	require.Equal(t, []string{"alice"}, info.Members)
	require.Equal(t, "alice", info.Master)
	require.Equal(t, StatusLobbable, info.Status)

	got, ok := o.LobbyInfo("alice")
	require.True(t, ok)
	require.Equal(t, info, got)

	_, ok = o.LobbyInfo("bob")
	require.False(t, ok)

	_, err = o.CreateLobby("Bar", 2, "alice")
	require.ErrorIs(t, err, ErrAlreadyInLobby)
}

func TestOrchestrator_CreateLobbyValidation(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	cases := []struct {
		name     string
		capacity int
		user     string
	}{
		{"", 2, "alice"},
		{"Foo", 1, "alice"},
		{"Foo", 5, "alice"},
		{"Foo", 2, ""},
	}
	for _, c := range cases {
		_, err := o.CreateLobby(c.name, c.capacity, c.user)
		require.ErrorIs(t, err, ErrInvalidLobby, "%+v", c)
	}
}

func TestOrchestrator_ServerFull(t *testing.T) {
	cfg := config.Default()
	cfg.Lobby.MaxLobbies = 2
	o := NewOrchestrator(cfg, Deps{})

	a, err := o.CreateLobby("A", 2, "alice")
	require.NoError(t, err)
	b, err := o.CreateLobby("B", 2, "bob")
	require.NoError(t, err)
	require.NotEqual(t, a.Code, b.Code)

	_, err = o.CreateLobby("C", 2, "carol")
	require.ErrorIs(t, err, ErrServerFull)
}

func TestOrchestrator_FooScenario(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	foo, err := o.CreateLobby("Foo", 2, "alice")
	require.NoError(t, err)
	require.Len(t, o.ListJoinableLobbies(), 1)

	e, err := o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	require.Nil(t, e, "no engine before the match starts")
	require.Empty(t, o.ListJoinableLobbies(), "a full lobby is not listed")

	_, err = o.StartLobby("bob")
	require.ErrorIs(t, err, ErrNotMaster)

	e, err = o.StartLobby("alice")
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, []string{"alice", "bob"}, e.Players())

	_, err = o.JoinLobby(foo.Code, "carol")
	require.ErrorIs(t, err, ErrNotJoinable)

	routed, err := o.Engine("bob")
	require.NoError(t, err)
	require.Same(t, e, routed)

	lobbies, matches := o.Counts()
	require.Equal(t, 1, lobbies)
	require.Equal(t, 1, matches)
}

func TestOrchestrator_JoinRules(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	_, err := o.JoinLobby("NOPE", "bob")
	require.ErrorIs(t, err, ErrLobbyNotFound)

	foo, err := o.CreateLobby("Foo", 2, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "alice")
	require.ErrorIs(t, err, ErrAlreadyInLobby)

	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "carol")
	require.ErrorIs(t, err, ErrNotJoinable, "lobby is full")

	_, err = o.StartLobby("carol")
	require.ErrorIs(t, err, ErrNotInLobby)
}

func TestOrchestrator_StartNeedsTwoMembers(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	_, err := o.CreateLobby("Solo", 4, "alice")
	require.NoError(t, err)
	_, err = o.StartLobby("alice")
	require.ErrorIs(t, err, ErrNotEnoughPlayers)

	_, err = o.Engine("alice")
	require.ErrorIs(t, err, ErrNotInMatch)
}

func TestOrchestrator_ExitLobbyRecomputesMasterAndPrunes(t *testing.T) {
	metrics := &MockMetrics{}
	var pruned []string
	o := newTestOrchestrator(t, Deps{Metrics: metrics, OnPrune: func(code string) { pruned = append(pruned, code) }})

	foo, err := o.CreateLobby("Foo", 3, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, metrics.lobbies)

	require.NoError(t, o.ExitLobby("alice"))
	info, ok := o.LobbyInfo("bob")
	require.True(t, ok)
	require.Equal(t, "bob", info.Master)
	require.Equal(t, []string{"bob"}, info.Members)

	require.ErrorIs(t, o.ExitLobby("alice"), ErrNotInLobby)

	require.NoError(t, o.ExitLobby("bob"))
	lobbies, _ := o.Counts()
	require.Zero(t, lobbies)
	require.Zero(t, metrics.lobbies)
	require.Equal(t, []string{foo.Code}, pruned)

	_, err = o.JoinLobby(foo.Code, "carol")
	require.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestOrchestrator_ExitMatchAndRejoin(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	foo, err := o.CreateLobby("Foo", 3, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "carol")
	require.NoError(t, err)
	e, err := o.StartLobby("alice")
	require.NoError(t, err)

	require.NoError(t, o.ExitMatch("alice"))
	require.ErrorIs(t, o.ExitMatch("alice"), ErrNotInMatch)
	require.ErrorIs(t, o.ExitLobby("alice"), ErrNotInLobby)

	require.Equal(t, []string{"alice"}, e.TurnState().Disconnected)
	info, ok := o.LobbyInfo("bob")
	require.True(t, ok)
	require.Equal(t, "bob", info.Master)

	back, err := o.JoinLobby(foo.Code, "alice")
	require.NoError(t, err)
	require.Same(t, e, back)
	require.Empty(t, e.TurnState().Disconnected)

	_, err = o.JoinLobby(foo.Code, "dave")
	require.ErrorIs(t, err, ErrNotJoinable)
}

func TestOrchestrator_EmptyMatchIsPruned(t *testing.T) {
	metrics := &MockMetrics{}
	o := newTestOrchestrator(t, Deps{Metrics: metrics})

	foo, err := o.CreateLobby("Foo", 2, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	_, err = o.StartLobby("alice")
	require.NoError(t, err)
	require.Equal(t, 1, metrics.matches)

	require.NoError(t, o.Leave("alice"))
	require.NoError(t, o.Leave("bob"))
	require.NoError(t, o.Leave("bob"), "leaving twice is harmless")

	lobbies, matches := o.Counts()
	require.Zero(t, lobbies)
	require.Zero(t, matches)
	require.Zero(t, metrics.matches)

	_, err = o.JoinLobby(foo.Code, "alice")
	require.ErrorIs(t, err, ErrLobbyNotFound)
}

func TestOrchestrator_EventsAreTargetedAtMembers(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	var mu sync.Mutex
	seen := map[string][]events.Category{}
	watch := func(user string) {
		o.Bus().SubscribeAll(user, func(ev events.Event) {
			mu.Lock()
			defer mu.Unlock()
			seen[user] = append(seen[user], ev.Category)
		})
	}
	watch("alice")
	watch("bob")
	watch("mallory")

	foo, err := o.CreateLobby("Foo", 2, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	_, err = o.StartLobby("alice")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []events.Category{events.CompositionChanged, events.LobbyStarted}, seen["alice"])
	require.Equal(t, []events.Category{events.LobbyStarted}, seen["bob"], "no echo of bob's own join")
	require.Empty(t, seen["mallory"])
}

func TestOrchestrator_FinishedMatchIsRecorded(t *testing.T) {
	cfg := config.Default()
	cfg.Game.IdleTimeout = time.Minute
	sched := &MockScheduler{}
	rec := &MockRecorder{}
	metrics := &MockMetrics{}
	o := NewOrchestrator(cfg, Deps{Scheduler: sched, Recorder: rec, Metrics: metrics})

	foo, err := o.CreateLobby("Foo", 2, "alice")
	require.NoError(t, err)
	_, err = o.JoinLobby(foo.Code, "bob")
	require.NoError(t, err)
	e, err := o.StartLobby("alice")
	require.NoError(t, err)

	require.NoError(t, o.ExitMatch("bob"))
	require.True(t, e.TurnState().Idle)
	sched.fireAll()

	require.Equal(t, state.End, e.TurnState().Phase)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.results, 1)
	require.Equal(t, "alice", rec.results[0].Winner)
	require.True(t, rec.results[0].Forfeit)
	require.Equal(t, []string{"alice", "bob"}, rec.players[0])
	require.Equal(t, 1, metrics.finished)
}

func TestOrchestrator_ExitLobbyDuringMatchDisconnects(t *testing.T) {
	o := newTestOrchestrator(t, Deps{})

	foo, err := o.CreateLobby("Foo", 3, "alice")
	require.NoError(t, err)
	for _, name := range []string{"bob", "carol"} {
		_, err = o.JoinLobby(foo.Code, name)
		require.NoError(t, err)
	}
	e, err := o.StartLobby("alice")
	require.NoError(t, err)

	require.NoError(t, o.ExitLobby("alice"))
	require.Equal(t, []string{"alice"}, e.TurnState().Disconnected)
	require.ErrorIs(t, o.ExitMatch("alice"), ErrNotInMatch)

	back, err := o.JoinLobby(foo.Code, "alice")
	require.NoError(t, err)
	require.Same(t, e, back)
}

func TestOrchestrator_ConcurrentStartsYieldOneMatch(t *testing.T) {
	pool, err := events.NewPool(16, nil)
	require.NoError(t, err)
	defer pool.Stop()
	o := newTestOrchestrator(t, Deps{Dispatcher: pool})

	const lobbies = 20
	rosters := make([][]string, lobbies)
	for i := range rosters {
		roster := make([]string, 4)
		for j := range roster {
			roster[j] = fmt.Sprintf("p%dx%d", i, j)
		}
		info, err := o.CreateLobby(fmt.Sprintf("L%d", i), 4, roster[0])
		require.NoError(t, err)
		for _, name := range roster[1:] {
			_, err = o.JoinLobby(info.Code, name)
			require.NoError(t, err)
		}
		rosters[i] = roster
	}

	var mu sync.Mutex
	engines := map[*game.Engine]int{}
	var wg sync.WaitGroup
	for _, roster := range rosters {
		for k := 0; k < 4; k++ {
			wg.Add(1)
			go func(master string) {
				defer wg.Done()
				e, err := o.StartLobby(master)
				if err != nil {
					assert.ErrorIs(t, err, ErrMatchInProgress)
					return
				}
				mu.Lock()
				engines[e]++
				mu.Unlock()
			}(roster[0])
		}
	}
	wg.Wait()

	require.Len(t, engines, lobbies)
	for _, n := range engines {
		require.Equal(t, 1, n)
	}
	_, matches := o.Counts()
	require.Equal(t, lobbies, matches)

	// setup races with a player walking out of every match
	for _, roster := range rosters {
		e, err := o.Engine(roster[0])
		require.NoError(t, err)
		for j, name := range roster {
			wg.Add(1)
			go func(e *game.Engine, name string, color game.Color, leaves bool) {
				defer wg.Done()
				if leaves {
					assert.NoError(t, o.ExitMatch(name))
					return
				}
				_, err := e.SetStarterCard(name, cards.Front)
				assert.NoError(t, err)
				_, err = e.SetPlayerColor(name, color)
				assert.NoError(t, err)
				if goals, err := e.ProposedPrivateGoals(name); err == nil {
					_, err = e.ChoosePrivateGoal(name, goals[0].ID)
					assert.NoError(t, err)
				}
			}(e, name, game.Colors[j], j == 3)
		}
	}
	wg.Wait()

	for _, roster := range rosters {
		e, err := o.Engine(roster[0])
		require.NoError(t, err)
		ts := e.TurnState()
		require.Equal(t, state.Playing, ts.Phase)
		require.Equal(t, []string{roster[3]}, ts.Disconnected)
	}
}
