package cards

// Corner positions, clockwise from the top left.
const (
	TopLeft = iota
	TopRight
	BottomRight
	BottomLeft
)

// Corner is hidden (no corner at all) or visible showing Symbol.
type Corner struct {
	Hidden bool   `json:"hidden,omitempty"`
	Symbol Symbol `json:"symbol"`
}

func visible(s Symbol) Corner { return Corner{Symbol: s} }

var hidden = Corner{Hidden: true}

// Face is one side of a card.
type Face struct {
	Corners [4]Corner `json:"corners"`
	Center  []Symbol  `json:"center,omitempty"`
}

// Symbols returns every symbol the face shows while fully uncovered.
func (f Face) Symbols() []Symbol {
	out := make([]Symbol, 0, 4+len(f.Center))
	for _, c := range f.Corners {
		if !c.Hidden && c.Symbol != None {
			out = append(out, c.Symbol)
		}
	}
	return append(out, f.Center...)
}

// PointRule tells how a front-placed card scores.
type PointRule int

const (
	FlatPoints PointRule = iota
	PerItem
	PerCoveredCorner
)

// Card is immutable once built by the catalogue.
type Card struct {
	ID      int       `json:"id"`
	Type    Type      `json:"type"`
	Kingdom Symbol    `json:"kingdom"`
	Front   Face      `json:"front"`
	Back    Face      `json:"back"`
	Points  int       `json:"points"`
	Rule    PointRule `json:"rule"`
	// RuleItem is the item counted by PerItem.
	RuleItem Symbol `json:"rule_item,omitempty"`
	// Cost lists the symbols a gold card needs visible before its front is placed.
	Cost []Symbol `json:"cost,omitempty"`
}

// Face returns the face for side.
func (c Card) Face(side Side) Face {
	if side == Back {
		return c.Back
	}
	return c.Front
}

// CostMet reports whether counts satisfy the card's placement cost.
func (c Card) CostMet(count func(Symbol) int) bool {
	need := map[Symbol]int{}
	for _, s := range c.Cost {
		need[s]++
	}
	for s, n := range need {
		if count(s) < n {
			return false
		}
	}
	return true
}
