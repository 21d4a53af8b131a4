package game

import (
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/state"
)

// DisconnectPlayer marks username as gone. A player caught between placing
// and drawing gets one random card first so the turn can close.
func (e *Engine) DisconnectPlayer(username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.lookup(username)
	if err != nil {
		return err
	}
	if e.disconnected[username] {
		return nil
	}

	wasCurrent := e.current() == username
	if wasCurrent && e.placed {
		if p.freeSlot() >= 0 {
			if c, from, ok := e.board.takeRandom(e.rng); ok {
				logger.Log.Infof("match %s: synthetic draw for %s", e.id, username)
				e.disconnected[username] = true
				e.refreshIdle()
				e.keepDrawn(p, c, from, true)
				return nil
			}
		}
	}

	e.disconnected[username] = true
	e.refreshIdle()

	if e.phase() == state.Setting {
		e.completeSetup()
		return nil
	}
	if wasCurrent && e.phase().Active() {
		e.advanceTurn()
	}
	return nil
}

// ReconnectPlayer lets username act again.
func (e *Engine) ReconnectPlayer(username string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.lookup(username); err != nil {
		return err
	}
	if !e.disconnected[username] {
		return nil
	}
	delete(e.disconnected, username)
	wasIdle := e.idle
	e.refreshIdle()

	if !e.phase().Active() {
		return nil
	}
	if e.disconnected[e.current()] {
		e.advanceTurn()
		return nil
	}
	if wasIdle {
		e.announceTurn()
	}
	return nil
}

// refreshIdle recomputes the IDLE overlay and arms or disarms the forfeit.
func (e *Engine) refreshIdle() {
	idle := len(e.order) >= 2 && len(e.connected()) == 1
	if idle == e.idle {
		return
	}
	e.idle = idle
	phase := e.phase()
	e.publish(events.Event{
		Category: events.PhaseChanged,
		Payload:  PhaseChange{From: phase, To: phase, Idle: idle},
	})

	if e.scheduler == nil || e.idleTimeout <= 0 {
		return
	}
	if e.idleTimer != 0 {
		e.scheduler.RemoveTimer(e.idleTimer)
		e.idleTimer = 0
	}
	e.idleGen++
	if idle && (phase == state.Setting || phase.Active()) {
		gen := e.idleGen
		e.idleTimer = e.scheduler.AddTimer(e.idleTimeout, 0, func() { e.forfeitIdle(gen) })
	}
}

// forfeitIdle ends a match that stayed idle too long. The only connected
// player wins. A timer from an earlier idle period is ignored.
func (e *Engine) forfeitIdle(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.idleGen {
		return
	}
	e.idleTimer = 0
	connected := e.connected()
	phase := e.phase()
	if !e.idle || len(connected) != 1 || !(phase == state.Setting || phase.Active()) {
		return
	}
	res := &Result{
		MatchID:   e.id,
		Winner:    connected[0],
		Scores:    make(map[string]int, len(e.order)),
		GoalGains: make(map[string]int, len(e.order)),
		Forfeit:   true,
		Turns:     e.turn,
	}
	for _, name := range e.order {
		res.Scores[name] = e.players[name].score
	}
	e.forfeit = true
	e.result = res
	logger.Log.Infof("match %s: %s wins by forfeit", e.id, res.Winner)
	e.change(state.End)
}
