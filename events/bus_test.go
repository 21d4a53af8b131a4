package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := NewPool(4, nil)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestEvent_Concerns(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		key   string
		want  bool
	}{
		{"unkeyed sees broadcast", Event{Actor: "alice"}, "", true},
		{"unkeyed sees targeted", Event{Target: "bob"}, "", true},
		{"keyed sees broadcast", Event{Actor: "alice"}, "bob", true},
		{"actor sees own broadcast", Event{Actor: "alice"}, "alice", true},
		{"actor excluded", Event{Actor: "alice", ExcludeActor: true}, "alice", false},
		{"other sees exclusion event", Event{Actor: "alice", ExcludeActor: true}, "bob", true},
		{"target matches", Event{Target: "bob"}, "bob", true},
		{"target mismatch", Event{Target: "bob"}, "carol", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.event.Concerns(tt.key))
		})
	}
}

func TestBus_PublishReachesMatchingSubscribers(t *testing.T) {
	bus := NewBus(newTestPool(t))

	var mu sync.Mutex
	seen := map[string]int{}
	var wg sync.WaitGroup
	wg.Add(2)

	record := func(key string) Handler {
		return func(Event) {
			mu.Lock()
			seen[key]++
			mu.Unlock()
			wg.Done()
		}
	}
	bus.Subscribe(ColorSet, "alice", record("alice"))
	bus.Subscribe(ColorSet, "bob", record("bob"))
	bus.Subscribe(ColorSet, "", record("all"))
	bus.Subscribe(TurnChanged, "", record("turn"))

	// Given alice chose a color, alice must not get her own echo
	bus.Publish(Event{Category: ColorSet, Actor: "alice", ExcludeActor: true})

	waitOrFail(t, &wg)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[string]int{"bob": 1, "all": 1}, seen)
}

func TestBus_PublishDoesNotWaitForHandlers(t *testing.T) {
	bus := NewBus(newTestPool(t))
	release := make(chan struct{})
	done := make(chan struct{})

	bus.Subscribe(CardPlaced, "", func(Event) {
		<-release
		close(done)
	})

	returned := make(chan struct{})
	go func() {
		bus.Publish(Event{Category: CardPlaced})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow handler")
	}
	close(release)
	<-done
}

func TestBus_UnsubscribeAll(t *testing.T) {
	bus := NewBus(Immediate{})
	calls := 0
	bus.Subscribe(TurnChanged, "alice", func(Event) { calls++ })
	bus.Subscribe(CardDrawn, "alice", func(Event) { calls++ })
	bus.Subscribe(CardDrawn, "bob", func(Event) {})

	bus.UnsubscribeAll("alice")

	bus.Publish(Event{Category: TurnChanged})
	bus.Publish(Event{Category: CardDrawn})
	require.Zero(t, calls)
	require.Equal(t, 1, bus.Len(CardDrawn))
}

func TestBus_UnsubscribeSingle(t *testing.T) {
	bus := NewBus(Immediate{})
	calls := 0
	id := bus.Subscribe(GoalChosen, "", func(Event) { calls++ })
	bus.Subscribe(GoalChosen, "", func(Event) { calls += 10 })

	bus.Unsubscribe(id)
	bus.Publish(Event{Category: GoalChosen})
	require.Equal(t, 10, calls)
}

func TestBus_PanickingObserverIsIsolated(t *testing.T) {
	bus := NewBus(Immediate{})
	delivered := false
	bus.Subscribe(PhaseChanged, "broken", func(Event) { panic("boom") })
	bus.Subscribe(PhaseChanged, "healthy", func(Event) { delivered = true })

	require.NotPanics(t, func() { bus.Publish(Event{Category: PhaseChanged}) })
	require.True(t, delivered)
}

func TestBus_ClosedBusDropsEvents(t *testing.T) {
	bus := NewBus(Immediate{})
	calls := 0
	bus.Subscribe(LobbyStarted, "", func(Event) { calls++ })
	bus.Close()
	bus.Publish(Event{Category: LobbyStarted})
	require.Zero(t, calls)
}

func TestPool_StoppedRejects(t *testing.T) {
	p, err := NewPool(1, nil)
	require.NoError(t, err)
	p.Stop()
	require.ErrorIs(t, p.Submit(func() {}), ErrPoolStopped)
}

func TestPool_OverflowRunsTask(t *testing.T) {
	p := newTestPool(t)
	block := make(chan struct{})
	defer close(block)

	for i := 0; i < 4; i++ {
		require.NoError(t, p.Submit(func() { <-block }))
	}

	ran := make(chan struct{})
	require.NoError(t, p.Submit(func() { close(ran) }))
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("overflow task never ran")
	}
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("handlers did not run in time")
	}
}
