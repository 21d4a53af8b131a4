package game

import (
	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/state"
)

// SetStarterCard places username's starter card with side up.
func (e *Engine) SetStarterCard(username string, side cards.Side) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.actor(username)
	if err != nil {
		return false, err
	}
	if e.phase() != state.Setting || p.manuscript.HasStarter() {
		logger.Log.Debugf("match %s: starter rejected for %s", e.id, username)
		return false, nil
	}
	if err := p.manuscript.PlaceStarter(p.starter, side); err != nil {
		return false, nil
	}
	e.publish(events.Event{
		Category:     events.StarterSet,
		Actor:        username,
		ExcludeActor: true,
		Payload:      StarterChoice{Username: username, Side: side},
	})
	e.completeSetup()
	return true, nil
}

// SetPlayerColor gives username a color nobody else holds.
func (e *Engine) SetPlayerColor(username string, color Color) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.actor(username)
	if err != nil {
		return false, err
	}
	if e.phase() != state.Setting || p.color != "" || !e.colorFree(color) {
		logger.Log.Debugf("match %s: color %s rejected for %s", e.id, color, username)
		return false, nil
	}
	p.color = color
	e.publish(events.Event{
		Category:     events.ColorSet,
		Actor:        username,
		ExcludeActor: true,
		Payload:      ColorChoice{Username: username, Color: color},
	})
	e.completeSetup()
	return true, nil
}

func (e *Engine) colorFree(color Color) bool {
	for _, c := range e.freeColors() {
		if c == color {
			return true
		}
	}
	return false
}

// ChoosePrivateGoal keeps one of the two goals proposed to username.
func (e *Engine) ChoosePrivateGoal(username string, goalID int) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.actor(username)
	if err != nil {
		return false, err
	}
	if e.phase() != state.Setting || p.goal != nil {
		return false, nil
	}
	for _, g := range p.proposed {
		if g.ID == goalID {
			g := g
			p.goal = &g
			e.publish(events.Event{
				Category:     events.GoalChosen,
				Actor:        username,
				ExcludeActor: true,
				Payload:      GoalChoice{Username: username},
			})
			e.completeSetup()
			return true, nil
		}
	}
	logger.Log.Debugf("match %s: goal %d not proposed to %s", e.id, goalID, username)
	return false, nil
}

// completeSetup starts play once every connected player made all three
// choices. Disconnected players get defaults so nobody absent blocks the match.
func (e *Engine) completeSetup() {
	if e.phase() != state.Setting {
		return
	}
	connected := e.connected()
	if len(connected) == 0 {
		return
	}
	for _, name := range connected {
		if !e.players[name].setupDone() {
			return
		}
	}

	for _, name := range e.order {
		p := e.players[name]
		if !p.manuscript.HasStarter() {
			_ = p.manuscript.PlaceStarter(p.starter, cards.Front)
		}
		if p.color == "" {
			p.color = e.freeColors()[0]
		}
		if p.goal == nil {
			g := p.proposed[0]
			p.goal = &g
		}
	}

	if err := e.machine.ChangeState(state.Playing); err != nil {
		logger.Log.Errorf("match %s: cannot start play: %v", e.id, err)
		return
	}
	e.placed = false
	if e.disconnected[e.current()] {
		e.advanceTurn()
		return
	}
	e.announceTurn()
}

func (e *Engine) announceTurn() {
	e.publish(events.Event{
		Category: events.TurnChanged,
		Payload:  TurnChange{Turn: e.turn, Current: e.current(), Phase: e.phase()},
	})
}
