package state

import (
	"errors"
	"fmt"
	"sync"
)

// Phase is the match-wide lifecycle state.
type Phase string

const (
	Setting    Phase = "SETTING"
	Playing    Phase = "PLAYING"
	EmptyDecks Phase = "EMPTY_DECKS"
	LastRound  Phase = "LAST_ROUND"
	PostGame   Phase = "POST_GAME"
	End        Phase = "END"
)

// Active reports whether players take turns in p.
func (p Phase) Active() bool {
	return p == Playing || p == EmptyDecks || p == LastRound
}

// 状态机接口
type StateMachine interface {
	ChangeState(to Phase) error
	GetCurrentState() Phase
	AddTransition(from Phase, to Phase, condition func() bool) error
}

var (
	// ErrTransitionNotAllowed is returned when a declared transition's condition fails.
	ErrTransitionNotAllowed = errors.New("state transition not allowed")
	// ErrUnknownTransition is returned for an edge that was never declared.
	ErrUnknownTransition = errors.New("state transition not declared")
)

// BaseStateMachine only moves along declared edges, so phases can never go
// backwards unless someone declares such an edge.
type BaseStateMachine struct {
	currentState Phase
	transitions  map[Phase]map[Phase]func() bool // fromState -> toState -> condition
	listeners    []func(from, to Phase)
	mutex        sync.RWMutex
}

func NewBaseStateMachine(initial Phase) *BaseStateMachine {
	return &BaseStateMachine{
		currentState: initial,
		transitions:  make(map[Phase]map[Phase]func() bool),
	}
}

func (sm *BaseStateMachine) ChangeState(to Phase) error {
	sm.mutex.Lock()
	from := sm.currentState

	conditions, exists := sm.transitions[from]
	if !exists {
		sm.mutex.Unlock()
		return fmt.Errorf("%s -> %s: %w", from, to, ErrUnknownTransition)
	}
	condition, exists := conditions[to]
	if !exists {
		sm.mutex.Unlock()
		return fmt.Errorf("%s -> %s: %w", from, to, ErrUnknownTransition)
	}
	if condition != nil && !condition() {
		sm.mutex.Unlock()
		return ErrTransitionNotAllowed
	}

	sm.currentState = to
	listeners := append([]func(from, to Phase){}, sm.listeners...)
	sm.mutex.Unlock()

	for _, l := range listeners {
		l(from, to)
	}
	return nil
}

func (sm *BaseStateMachine) GetCurrentState() Phase {
	sm.mutex.RLock()
	defer sm.mutex.RUnlock()
	return sm.currentState
}

func (sm *BaseStateMachine) AddTransition(from Phase, to Phase, condition func() bool) error {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()

	if _, exists := sm.transitions[from]; !exists {
		sm.transitions[from] = make(map[Phase]func() bool)
	}
	sm.transitions[from][to] = condition
	return nil
}

// OnTransition registers fn to run after every successful change, outside the lock.
func (sm *BaseStateMachine) OnTransition(fn func(from, to Phase)) {
	sm.mutex.Lock()
	defer sm.mutex.Unlock()
	sm.listeners = append(sm.listeners, fn)
}

// NewMatchMachine declares the forward-only match lifecycle:
// SETTING → PLAYING → {EMPTY_DECKS → LAST_ROUND | LAST_ROUND} → POST_GAME → END.
// forfeit guards the extra edges from any non-final phase straight to END.
func NewMatchMachine(forfeit func() bool) *BaseStateMachine {
	sm := NewBaseStateMachine(Setting)
	_ = sm.AddTransition(Setting, Playing, nil)
	_ = sm.AddTransition(Playing, EmptyDecks, nil)
	_ = sm.AddTransition(Playing, LastRound, nil)
	_ = sm.AddTransition(EmptyDecks, LastRound, nil)
	_ = sm.AddTransition(LastRound, PostGame, nil)
	_ = sm.AddTransition(PostGame, End, nil)
	for _, p := range []Phase{Setting, Playing, EmptyDecks, LastRound} {
		_ = sm.AddTransition(p, End, forfeit)
	}
	return sm
}
