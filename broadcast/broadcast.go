// broadcast/broadcast.go
package broadcast

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/wfunc/codexserver/events"
	"github.com/wfunc/codexserver/logger"
	"github.com/wfunc/codexserver/network"
)

var (
	ErrUserNotBound    = errors.New("user has no live session")
	ErrUnknownCategory = errors.New("event category has no push id")
)

// Sink is where pushes for one user go. session.Session implements it.
type Sink interface {
	Send(msgID uint16, data []byte) error
}

// 广播接口
type Broadcaster interface {
	BroadcastToUsers(usernames []string, msgID uint16, data []byte) error
}

// SessionNotifier turns bus events into pushes for the sessions bound to
// their recipients. Delivery is best effort: a failed send is logged and
// never reaches the publisher.
type SessionNotifier struct {
	mu    sync.RWMutex
	sinks map[string]Sink
}

func NewSessionNotifier() *SessionNotifier {
	return &SessionNotifier{sinks: make(map[string]Sink)}
}

// Bind routes pushes for username to sink, replacing any previous sink.
func (n *SessionNotifier) Bind(username string, sink Sink) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sinks[username] = sink
}

// Forget stops pushing to username.
func (n *SessionNotifier) Forget(username string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sinks, username)
}

func (n *SessionNotifier) sink(username string) (Sink, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sinks[username]
	return s, ok
}

// Watch subscribes username to every category of bus. Events that do not
// concern username are filtered by the bus.
func (n *SessionNotifier) Watch(bus *events.Bus, username string) {
	bus.SubscribeAll(username, func(ev events.Event) {
		if err := n.Notify(username, ev); err != nil && !errors.Is(err, ErrUserNotBound) {
			logger.Log.Warnf("push %s to %s: %v", ev.Category, username, err)
		}
	})
}

// Unwatch drops every subscription of username on bus.
func (n *SessionNotifier) Unwatch(bus *events.Bus, username string) {
	bus.UnsubscribeAll(username)
}

// Notify pushes ev to username.
func (n *SessionNotifier) Notify(username string, ev events.Event) error {
	msgID, ok := network.PushMsgID(ev.Category)
	if !ok {
		return ErrUnknownCategory
	}
	data, err := json.Marshal(network.Push{
		Category: ev.Category,
		Actor:    ev.Actor,
		Payload:  ev.Payload,
		At:       ev.At.UnixMilli(),
	})
	if err != nil {
		return err
	}
	return n.BroadcastToUsers([]string{username}, msgID, data)
}

// BroadcastToUsers sends one packet to every bound user in usernames. It
// returns the first failure after trying everyone.
func (n *SessionNotifier) BroadcastToUsers(usernames []string, msgID uint16, data []byte) error {
	var first error
	for _, name := range usernames {
		s, ok := n.sink(name)
		if !ok {
			if first == nil {
				first = ErrUserNotBound
			}
			continue
		}
		if err := s.Send(msgID, data); err != nil && first == nil {
			first = err
		}
	}
	return first
}
