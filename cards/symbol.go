// Package cards holds the card content of the game: symbols, faces, cards,
// goals, decks and the manuscript grid where a player places cards.
package cards

import "fmt"

// Symbol is what a visible corner or a card center shows.
type Symbol int

const (
	// None is a visible but empty corner.
	None Symbol = iota
	Fungi
	Plant
	Animal
	Insect
	Quill
	Inkwell
	Scroll
)

var (
	Kingdoms = []Symbol{Fungi, Plant, Animal, Insect}
	Items    = []Symbol{Quill, Inkwell, Scroll}
)

var symbolNames = map[Symbol]string{
	None:    "none",
	Fungi:   "fungi",
	Plant:   "plant",
	Animal:  "animal",
	Insect:  "insect",
	Quill:   "quill",
	Inkwell: "inkwell",
	Scroll:  "scroll",
}

func (s Symbol) String() string {
	if n, ok := symbolNames[s]; ok {
		return n
	}
	return fmt.Sprintf("symbol(%d)", int(s))
}

func (s Symbol) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Symbol) UnmarshalText(b []byte) error {
	for k, n := range symbolNames {
		if n == string(b) {
			*s = k
			return nil
		}
	}
	return fmt.Errorf("unknown symbol %q", b)
}

// Type is the card family.
type Type int

const (
	Resource Type = iota
	Gold
	Starter
)

func (t Type) String() string {
	switch t {
	case Resource:
		return "resource"
	case Gold:
		return "gold"
	case Starter:
		return "starter"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Type) UnmarshalText(b []byte) error {
	switch string(b) {
	case "resource":
		*t = Resource
	case "gold":
		*t = Gold
	case "starter":
		*t = Starter
	default:
		return fmt.Errorf("unknown card type %q", b)
	}
	return nil
}

// Side selects which face of a card is shown.
type Side int

const (
	Front Side = iota
	Back
)

func (s Side) String() string {
	if s == Back {
		return "back"
	}
	return "front"
}

func (s Side) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "front":
		*s = Front
	case "back":
		*s = Back
	default:
		return fmt.Errorf("unknown side %q", b)
	}
	return nil
}
