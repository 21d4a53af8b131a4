package cards

// Catalogue is the fixed set of cards and goals a match is dealt from.
type Catalogue struct {
	Resources []Card
	Golds     []Card
	Starters  []Card
	Goals     []Goal
}

const perKingdom = 10

// Standard builds the built-in catalogue: ten resource and ten gold cards per
// kingdom, six starter cards and twelve goals. IDs are stable.
func Standard() Catalogue {
	var cat Catalogue
	id := 1
	for _, k := range Kingdoms {
		for i := 0; i < perKingdom; i++ {
			cat.Resources = append(cat.Resources, resourceCard(id, k, i))
			id++
		}
	}
	for ki, k := range Kingdoms {
		for i := 0; i < perKingdom; i++ {
			cat.Golds = append(cat.Golds, goldCard(id, k, Kingdoms[(ki+1)%len(Kingdoms)], i))
			id++
		}
	}
	for j := 0; j < 6; j++ {
		cat.Starters = append(cat.Starters, starterCard(id, j))
		id++
	}
	for _, k := range Kingdoms {
		cat.Goals = append(cat.Goals, Goal{ID: id, Kind: SymbolGoal, Points: 2, Symbols: []Symbol{k, k, k}})
		id++
	}
	for i, k := range Kingdoms {
		cat.Goals = append(cat.Goals, Goal{ID: id, Kind: DiagonalGoal, Points: 2, Kingdom: k, Rising: i%2 == 0})
		id++
	}
	for _, it := range Items {
		cat.Goals = append(cat.Goals, Goal{ID: id, Kind: SymbolGoal, Points: 2, Symbols: []Symbol{it, it}})
		id++
	}
	cat.Goals = append(cat.Goals, Goal{ID: id, Kind: SymbolGoal, Points: 3, Symbols: append([]Symbol(nil), Items...)})
	return cat
}

func backOf(k Symbol) Face {
	return Face{
		Corners: [4]Corner{visible(None), visible(None), visible(None), visible(None)},
		Center:  []Symbol{k},
	}
}

func resourceCard(id int, k Symbol, i int) Card {
	var f Face
	hide := i % 4
	for c := range f.Corners {
		if c == hide {
			f.Corners[c] = hidden
		}
	}
	open := make([]int, 0, 3)
	for c := range f.Corners {
		if c != hide {
			open = append(open, c)
		}
	}
	c := Card{ID: id, Type: Resource, Kingdom: k, Back: backOf(k)}
	switch {
	case i < 5:
		f.Corners[open[0]].Symbol = k
		f.Corners[open[1]].Symbol = k
		f.Corners[open[2]].Symbol = k
	case i < 8:
		f.Corners[open[0]].Symbol = k
		f.Corners[open[1]].Symbol = k
		f.Corners[open[2]].Symbol = Items[i-5]
	default:
		f.Corners[open[0]].Symbol = k
		c.Points = 1
	}
	c.Front = f
	return c
}

func goldCard(id int, k, other Symbol, i int) Card {
	var f Face
	hide := (i + 1) % 4
	f.Corners[hide] = hidden
	c := Card{ID: id, Type: Gold, Kingdom: k, Back: backOf(k)}
	switch {
	case i < 3:
		c.Points, c.Rule, c.RuleItem = 1, PerItem, Items[i]
		f.Corners[(hide+2)%4].Symbol = Items[i]
		c.Cost = []Symbol{k, k, other}
	case i < 6:
		c.Points, c.Rule = 2, PerCoveredCorner
		c.Cost = []Symbol{k, k, k, other}
	case i < 9:
		c.Points = 3
		c.Cost = []Symbol{k, k, k, other}
	default:
		c.Points = 5
		c.Cost = []Symbol{k, k, k, k, k}
		f.Corners[(hide+1)%4] = hidden
	}
	c.Front = f
	return c
}

func starterCard(id, j int) Card {
	var front, back Face
	for c := 0; c < 4; c++ {
		if (c+j)%2 == 0 {
			front.Corners[c] = visible(None)
		} else {
			front.Corners[c] = visible(Kingdoms[(c+j)%4])
		}
		back.Corners[c] = visible(Kingdoms[(c+j)%4])
	}
	front.Center = []Symbol{Kingdoms[j%4]}
	if j >= 2 {
		front.Center = append(front.Center, Kingdoms[(j+1)%4])
	}
	if j >= 4 {
		front.Center = append(front.Center, Kingdoms[(j+2)%4])
	}
	return Card{ID: id, Type: Starter, Front: front, Back: back}
}
