package cards

import "sort"

// GoalKind selects how a goal scores a manuscript.
type GoalKind int

const (
	// SymbolGoal scores Points for every complete set of Symbols visible.
	SymbolGoal GoalKind = iota
	// DiagonalGoal scores Points for every three cards of Kingdom on a diagonal.
	DiagonalGoal
)

// Goal is a private or common objective evaluated at the end of the match.
type Goal struct {
	ID      int      `json:"id"`
	Kind    GoalKind `json:"kind"`
	Points  int      `json:"points"`
	Symbols []Symbol `json:"symbols,omitempty"`
	Kingdom Symbol   `json:"kingdom,omitempty"`
	// Rising selects bottom-left to top-right diagonals.
	Rising bool `json:"rising,omitempty"`
}

// Score evaluates g against m.
func (g Goal) Score(m *Manuscript) int {
	switch g.Kind {
	case DiagonalGoal:
		return g.Points * g.diagonals(m)
	default:
		return g.Points * g.sets(m)
	}
}

func (g Goal) sets(m *Manuscript) int {
	if len(g.Symbols) == 0 {
		return 0
	}
	need := map[Symbol]int{}
	for _, s := range g.Symbols {
		need[s]++
	}
	best := -1
	for s, n := range need {
		if k := m.Count(s) / n; best < 0 || k < best {
			best = k
		}
	}
	return best
}

// diagonals counts disjoint runs of three same-kingdom cards along one
// diagonal direction. Each card counts at most once.
func (g Goal) diagonals(m *Manuscript) int {
	lines := map[int][]int{}
	for pos, p := range m.cells {
		if p.card.Type == Starter || p.card.Kingdom != g.Kingdom {
			continue
		}
		key := pos.X + pos.Y
		if g.Rising {
			key = pos.X - pos.Y
		}
		lines[key] = append(lines[key], pos.X)
	}

	total := 0
	for _, xs := range lines {
		sort.Ints(xs)
		run := 1
		for i := 1; i <= len(xs); i++ {
			if i < len(xs) && xs[i] == xs[i-1]+1 {
				run++
				continue
			}
			total += run / 3
			run = 1
		}
	}
	return total
}
