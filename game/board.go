package game

import (
	"math/rand"

	"github.com/wfunc/codexserver/cards"
)

type pile struct {
	deck    *cards.Deck
	visible [2]*cards.Card
}

func newPile(deck *cards.Deck) *pile {
	p := &pile{deck: deck}
	p.refill(0)
	p.refill(1)
	return p
}

// refill turns the top of the deck face up into slot i, or leaves it empty.
func (p *pile) refill(i int) {
	if c, ok := p.deck.Draw(); ok {
		p.visible[i] = &c
		return
	}
	p.visible[i] = nil
}

func (p *pile) view() PileView {
	v := PileView{Remaining: p.deck.Len()}
	for i, c := range p.visible {
		if c != nil {
			cp := *c
			v.Visible[i] = &cp
		}
	}
	if top, ok := p.deck.Top(); ok {
		v.TopKingdom = top.Kingdom
	}
	return v
}

// board is the shared area of one match. Owned by its Engine.
type board struct {
	resource *pile
	gold     *pile
	common   [2]cards.Goal
}

func (b *board) pile(t cards.Type) *pile {
	switch t {
	case cards.Resource:
		return b.resource
	case cards.Gold:
		return b.gold
	}
	return nil
}

func (b *board) takeVisible(t cards.Type, i int) (cards.Card, bool) {
	p := b.pile(t)
	if p.visible[i] == nil {
		return cards.Card{}, false
	}
	c := *p.visible[i]
	p.refill(i)
	return c, true
}

func (b *board) takeCovered(t cards.Type) (cards.Card, bool) {
	return b.pile(t).deck.Draw()
}

func (b *board) decksEmpty() bool {
	return b.resource.deck.Empty() && b.gold.deck.Empty()
}

type source struct {
	typ   cards.Type
	index int // -1 for the deck
}

// sources lists everything a player could draw right now.
func (b *board) sources() []source {
	var out []source
	for _, t := range []cards.Type{cards.Resource, cards.Gold} {
		p := b.pile(t)
		for i, c := range p.visible {
			if c != nil {
				out = append(out, source{typ: t, index: i})
			}
		}
		if !p.deck.Empty() {
			out = append(out, source{typ: t, index: -1})
		}
	}
	return out
}

func (b *board) anyDrawable() bool { return len(b.sources()) > 0 }

func (b *board) takeRandom(rng *rand.Rand) (cards.Card, source, bool) {
	srcs := b.sources()
	if len(srcs) == 0 {
		return cards.Card{}, source{}, false
	}
	s := srcs[rng.Intn(len(srcs))]
	if s.index < 0 {
		c, ok := b.takeCovered(s.typ)
		return c, s, ok
	}
	c, ok := b.takeVisible(s.typ, s.index)
	return c, s, ok
}

func (b *board) view() BoardView {
	return BoardView{
		Resource:    b.resource.view(),
		Gold:        b.gold.view(),
		CommonGoals: b.common,
	}
}
