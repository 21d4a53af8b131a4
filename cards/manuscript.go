package cards

import (
	"errors"
	"sort"
)

var (
	ErrStarterPlaced = errors.New("starter card already placed")
	ErrNotStarter    = errors.New("card is not a starter card")
)

// Position is a cell of the manuscript grid. Y grows upwards; the starter card
// sits at the origin and every other card touches its neighbours diagonally.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// neighbour returns the cell touched by corner c of a card at p.
func (p Position) neighbour(c int) Position {
	switch c {
	case TopLeft:
		return Position{p.X - 1, p.Y + 1}
	case TopRight:
		return Position{p.X + 1, p.Y + 1}
	case BottomRight:
		return Position{p.X + 1, p.Y - 1}
	default:
		return Position{p.X - 1, p.Y - 1}
	}
}

func opposite(c int) int { return (c + 2) % 4 }

type placement struct {
	card    Card
	side    Side
	order   int
	covered [4]bool
}

// Manuscript is a player's placement area. It is not safe for concurrent use;
// the owning engine serializes access.
type Manuscript struct {
	cells   map[Position]*placement
	symbols map[Symbol]int
	placed  int
}

func NewManuscript() *Manuscript {
	return &Manuscript{
		cells:   make(map[Position]*placement),
		symbols: make(map[Symbol]int),
	}
}

// HasStarter reports whether the starter card has been placed.
func (m *Manuscript) HasStarter() bool { return m.placed > 0 }

// Count returns how many visible symbols s the manuscript shows.
func (m *Manuscript) Count(s Symbol) int { return m.symbols[s] }

// PlaceStarter puts the starter card at the origin.
func (m *Manuscript) PlaceStarter(c Card, side Side) error {
	if c.Type != Starter {
		return ErrNotStarter
	}
	if m.HasStarter() {
		return ErrStarterPlaced
	}
	m.put(Position{}, c, side)
	return nil
}

// CanPlace reports whether c may be placed with side up at pos.
func (m *Manuscript) CanPlace(c Card, side Side, pos Position) bool {
	if !m.HasStarter() || c.Type == Starter {
		return false
	}
	if _, taken := m.cells[pos]; taken {
		return false
	}
	touching := 0
	for corner := 0; corner < 4; corner++ {
		n, ok := m.cells[pos.neighbour(corner)]
		if !ok {
			continue
		}
		if n.card.Face(n.side).Corners[opposite(corner)].Hidden {
			return false
		}
		touching++
	}
	if touching == 0 {
		return false
	}
	if side == Front && c.Type == Gold && !c.CostMet(m.Count) {
		return false
	}
	return true
}

// Place inserts c at pos and returns the points it yields. ok is false when the
// placement is illegal; the manuscript is then unchanged.
func (m *Manuscript) Place(c Card, side Side, pos Position) (points int, ok bool) {
	if !m.CanPlace(c, side, pos) {
		return 0, false
	}
	covered := m.put(pos, c, side)
	if side == Back {
		return 0, true
	}
	switch c.Rule {
	case PerItem:
		return c.Points * m.Count(c.RuleItem), true
	case PerCoveredCorner:
		return c.Points * covered, true
	default:
		return c.Points, true
	}
}

// put covers the neighbours' corners, records the card and returns how many
// corners it covered.
func (m *Manuscript) put(pos Position, c Card, side Side) int {
	covered := 0
	for corner := 0; corner < 4; corner++ {
		n, ok := m.cells[pos.neighbour(corner)]
		if !ok {
			continue
		}
		oc := opposite(corner)
		if s := n.card.Face(n.side).Corners[oc].Symbol; s != None {
			m.symbols[s]--
		}
		n.covered[oc] = true
		covered++
	}
	for _, s := range c.Face(side).Symbols() {
		m.symbols[s]++
	}
	m.cells[pos] = &placement{card: c, side: side, order: m.placed}
	m.placed++
	return covered
}

// Contains reports how many times the card id occurs in the manuscript.
func (m *Manuscript) Contains(id int) int {
	n := 0
	for _, p := range m.cells {
		if p.card.ID == id {
			n++
		}
	}
	return n
}

// AvailablePositions lists every empty cell a non-starter card could occupy,
// ignoring gold costs.
func (m *Manuscript) AvailablePositions() []Position {
	seen := map[Position]bool{}
	var out []Position
	for pos := range m.cells {
		for corner := 0; corner < 4; corner++ {
			cand := pos.neighbour(corner)
			if seen[cand] {
				continue
			}
			seen[cand] = true
			if m.canCover(cand) {
				out = append(out, cand)
			}
		}
	}
	sortPositions(out)
	return out
}

func (m *Manuscript) canCover(pos Position) bool {
	if _, taken := m.cells[pos]; taken {
		return false
	}
	for corner := 0; corner < 4; corner++ {
		if n, ok := m.cells[pos.neighbour(corner)]; ok && n.card.Face(n.side).Corners[opposite(corner)].Hidden {
			return false
		}
	}
	return true
}

// PlacedCard is one cell of a manuscript snapshot.
type PlacedCard struct {
	Position Position `json:"position"`
	Card     Card     `json:"card"`
	Side     Side     `json:"side"`
	Order    int      `json:"order"`
	Covered  [4]bool  `json:"covered"`
}

// View is an immutable snapshot of a manuscript.
type View struct {
	Cards   []PlacedCard   `json:"cards"`
	Symbols map[Symbol]int `json:"symbols"`
}

// Snapshot copies the manuscript into a View ordered by placement.
func (m *Manuscript) Snapshot() View {
	v := View{
		Cards:   make([]PlacedCard, 0, len(m.cells)),
		Symbols: make(map[Symbol]int, len(m.symbols)),
	}
	for pos, p := range m.cells {
		v.Cards = append(v.Cards, PlacedCard{Position: pos, Card: p.card, Side: p.side, Order: p.order, Covered: p.covered})
	}
	sort.Slice(v.Cards, func(i, j int) bool { return v.Cards[i].Order < v.Cards[j].Order })
	for s, n := range m.symbols {
		v.Symbols[s] = n
	}
	return v
}

func sortPositions(ps []Position) {
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Y != ps[j].Y {
			return ps[i].Y > ps[j].Y
		}
		return ps[i].X < ps[j].X
	})
}
