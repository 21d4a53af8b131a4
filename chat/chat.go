// Package chat holds the per-lobby message mailboxes.
package chat

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"

	"github.com/wfunc/codexserver/events"
)

var ErrInvalidMessage = errors.New("invalid chat message")

var validate = validator.New()

// Message is one chat line. An empty To means everyone in the lobby.
type Message struct {
	ID   int64     `json:"id"`
	From string    `json:"from" validate:"required"`
	To   string    `json:"to,omitempty" validate:"nefield=From"`
	Text string    `json:"text" validate:"required,max=512"`
	At   time.Time `json:"at"`
}

// Mailbox keeps the recent history of one lobby and publishes every message
// on its bus.
type Mailbox struct {
	mu      sync.Mutex
	bus     *events.Bus
	limit   int
	nextID  int64
	history []Message
}

// NewMailbox keeps at most limit messages. A limit of zero keeps none.
func NewMailbox(limit int, bus *events.Bus) *Mailbox {
	return &Mailbox{bus: bus, limit: limit}
}

// Bus returns the bus messages are published on.
func (m *Mailbox) Bus() *events.Bus { return m.bus }

// Send records a message from from to to (empty for a broadcast) and
// publishes it. The sender is not notified of its own message.
func (m *Mailbox) Send(from, to, text string) (Message, error) {
	msg := Message{From: from, To: to, Text: text, At: time.Now()}
	if err := validate.Struct(msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}

	m.mu.Lock()
	m.nextID++
	msg.ID = m.nextID
	if m.limit > 0 {
		m.history = append(m.history, msg)
		if over := len(m.history) - m.limit; over > 0 {
			m.history = append([]Message(nil), m.history[over:]...)
		}
	}
	m.mu.Unlock()

	m.bus.Publish(events.Event{
		Category:     events.ChatMessage,
		Actor:        from,
		Target:       to,
		ExcludeActor: true,
		Payload:      msg,
		At:           msg.At,
	})
	return msg, nil
}

// History returns the kept messages username may read, oldest first.
func (m *Mailbox) History(username string) []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return lo.Filter(m.history, func(msg Message, _ int) bool {
		return msg.To == "" || msg.To == username || msg.From == username
	})
}

// Rooms maps lobby codes to mailboxes.
type Rooms struct {
	mu         sync.Mutex
	boxes      map[string]*Mailbox
	limit      int
	dispatcher events.Dispatcher
}

func NewRooms(limit int, dispatcher events.Dispatcher) *Rooms {
	if dispatcher == nil {
		dispatcher = events.Immediate{}
	}
	return &Rooms{boxes: make(map[string]*Mailbox), limit: limit, dispatcher: dispatcher}
}

// Mailbox returns the mailbox of lobby code, creating it on first use.
func (r *Rooms) Mailbox(code string) *Mailbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	box, ok := r.boxes[code]
	if !ok {
		box = NewMailbox(r.limit, events.NewBus(r.dispatcher))
		r.boxes[code] = box
	}
	return box
}

// Lookup returns the mailbox of lobby code if it exists.
func (r *Rooms) Lookup(code string) (*Mailbox, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	box, ok := r.boxes[code]
	return box, ok
}

// Drop forgets the mailbox of a pruned lobby.
func (r *Rooms) Drop(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if box, ok := r.boxes[code]; ok {
		box.bus.Close()
		delete(r.boxes, code)
	}
}

// Len returns the number of live mailboxes.
func (r *Rooms) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}
