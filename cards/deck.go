package cards

import "math/rand"

// Deck is a covered pile drawn from the top.
type Deck struct {
	cards []Card
}

// NewDeck shuffles a copy of cards with rng.
func NewDeck(cards []Card, rng *rand.Rand) *Deck {
	d := &Deck{cards: append([]Card(nil), cards...)}
	rng.Shuffle(len(d.cards), func(i, j int) { d.cards[i], d.cards[j] = d.cards[j], d.cards[i] })
	return d
}

// Draw removes and returns the top card.
func (d *Deck) Draw() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	c := d.cards[len(d.cards)-1]
	d.cards = d.cards[:len(d.cards)-1]
	return c, true
}

// Top returns the top card without removing it.
func (d *Deck) Top() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}
	return d.cards[len(d.cards)-1], true
}

func (d *Deck) Len() int    { return len(d.cards) }
func (d *Deck) Empty() bool { return len(d.cards) == 0 }
