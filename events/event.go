package events

import "time"

// Category identifies a kind of notification.
type Category string

const (
	TurnChanged        Category = "turn_changed"
	CardPlaced         Category = "card_placed"
	CardDrawn          Category = "card_drawn"
	ColorSet           Category = "color_set"
	StarterSet         Category = "starter_set"
	GoalChosen         Category = "goal_chosen"
	PhaseChanged       Category = "phase_changed"
	CompositionChanged Category = "composition_changed"
	LobbyStarted       Category = "lobby_started"
	ChatMessage        Category = "chat_message"
)

// Categories lists every category, in a stable order.
var Categories = []Category{
	TurnChanged, CardPlaced, CardDrawn, ColorSet, StarterSet, GoalChosen,
	PhaseChanged, CompositionChanged, LobbyStarted, ChatMessage,
}

// Event is one notification. Payload is an immutable value owned by the publisher.
type Event struct {
	Category Category
	// Actor is the username whose action caused the event, if any.
	Actor string
	// Target restricts delivery of keyed subscriptions to this key.
	Target string
	// ExcludeActor keeps keyed subscriptions of the actor from seeing the event.
	ExcludeActor bool
	Payload      any
	At           time.Time
}

// Concerns reports whether a subscription registered under key should receive e.
// The empty key receives everything.
func (e Event) Concerns(key string) bool {
	if key == "" {
		return true
	}
	if e.Target != "" {
		return key == e.Target
	}
	if e.ExcludeActor && key == e.Actor {
		return false
	}
	return true
}
