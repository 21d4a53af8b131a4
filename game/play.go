package game

import (
	"github.com/wfunc/codexserver/cards"
	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/state"
)

// PlaceCard puts the hand card cardID into username's manuscript. It returns
// false when the move breaks a rule: wrong turn, already placed this turn,
// card not in hand, or an illegal position.
func (e *Engine) PlaceCard(username string, cardID int, side cards.Side, pos cards.Position) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, err := e.actor(username)
	if err != nil {
		return false, err
	}
	if e.idle || e.current() != username || e.placed || !p.manuscript.HasStarter() {
		logger.Log.Debugf("match %s: %s may not place now", e.id, username)
		return false, nil
	}
	slot := -1
	for i, c := range p.hand {
		if c != nil && c.ID == cardID {
			slot = i
			break
		}
	}
	if slot < 0 {
		return false, nil
	}
	card := *p.hand[slot]
	points, ok := p.manuscript.Place(card, side, pos)
	if !ok {
		logger.Log.Debugf("match %s: %s cannot place card %d at %v", e.id, username, cardID, pos)
		return false, nil
	}

	p.hand[slot] = nil
	p.score += points
	e.placed = true
	e.publish(events.Event{
		Category:     events.CardPlaced,
		Actor:        username,
		ExcludeActor: true,
		Payload: CardPlacement{
			Username: username, Card: card, Side: side, Position: pos,
			Points: points, Score: p.score,
		},
	})

	// With nothing left on the board the draw step is skipped.
	if !e.board.anyDrawable() {
		e.advanceTurn()
	}
	return true, nil
}

// DrawVisibleCard takes face-up card index of type t. A nil card with a nil
// error means the slot is empty: the player keeps the turn and may retry.
func (e *Engine) DrawVisibleCard(username string, t cards.Type, index int) (*cards.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !drawable(t) || index < 0 || index > 1 {
		return nil, ErrBadRequest
	}
	p, err := e.actor(username)
	if err != nil {
		return nil, err
	}
	if !e.mayDraw(p) {
		return nil, nil
	}
	c, ok := e.board.takeVisible(t, index)
	if !ok {
		return nil, nil
	}
	e.keepDrawn(p, c, source{typ: t, index: index}, false)
	return &c, nil
}

// DrawCoveredCard takes the top of the deck of type t. A nil card with a nil
// error means the deck is empty and the player should pick another source.
func (e *Engine) DrawCoveredCard(username string, t cards.Type) (*cards.Card, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !drawable(t) {
		return nil, ErrBadRequest
	}
	p, err := e.actor(username)
	if err != nil {
		return nil, err
	}
	if !e.mayDraw(p) {
		return nil, nil
	}
	c, ok := e.board.takeCovered(t)
	if !ok {
		return nil, nil
	}
	e.keepDrawn(p, c, source{typ: t, index: -1}, false)
	return &c, nil
}

func drawable(t cards.Type) bool { return t == cards.Resource || t == cards.Gold }

func (e *Engine) mayDraw(p *player) bool {
	return e.current() == p.name && e.placed && p.freeSlot() >= 0
}

// keepDrawn stores c in p's hand, then closes the turn.
func (e *Engine) keepDrawn(p *player, c cards.Card, from source, synthetic bool) {
	p.hand[p.freeSlot()] = &c
	e.publish(events.Event{
		Category:     events.CardDrawn,
		Actor:        p.name,
		ExcludeActor: !synthetic,
		Payload: CardDraw{
			Username: p.name, Type: from.typ, Index: from.index,
			Synthetic: synthetic, Board: e.board.view(),
		},
	})
	if e.phase() == state.Playing && e.board.decksEmpty() {
		e.change(state.EmptyDecks)
	}
	e.advanceTurn()
}

// advanceTurn moves to the next player. At every round wrap the phase may
// escalate; disconnected players are skipped while someone is connected.
func (e *Engine) advanceTurn() {
	e.placed = false
	e.turn++
	if e.turn%len(e.order) == 0 {
		e.escalate()
	}
	if !e.phase().Active() {
		return
	}
	if e.disconnected[e.current()] && len(e.connected()) > 0 {
		e.advanceTurn()
		return
	}
	e.announceTurn()
}

func (e *Engine) escalate() {
	switch e.phase() {
	case state.LastRound:
		e.change(state.PostGame)
	case state.EmptyDecks:
		e.change(state.LastRound)
	case state.Playing:
		for _, p := range e.players {
			if p.score >= e.threshold {
				e.change(state.LastRound)
				return
			}
		}
	}
}

func (e *Engine) change(to state.Phase) {
	if err := e.machine.ChangeState(to); err != nil {
		logger.Log.Errorf("match %s: %v", e.id, err)
	}
}
