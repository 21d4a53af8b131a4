package lobby

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/wfunc/codexserver/game"
)

// Status 表示大厅的业务状态
type Status int

const (
	// StatusLobbable accepts new members.
	StatusLobbable Status = iota
	// StatusOngoing runs a match; only chrono members may come back.
	StatusOngoing
)

func (s Status) String() string {
	if s == StatusOngoing {
		return "ONGOING"
	}
	return "LOBBABLE"
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "LOBBABLE":
		*s = StatusLobbable
	case "ONGOING":
		*s = StatusOngoing
	default:
		return fmt.Errorf("unknown lobby status %q", b)
	}
	return nil
}

// Lobby groups players before and during a match. Guarded by the
// orchestrator lock.
type Lobby struct {
	Code       string
	Name       string
	MaxPlayers int
	Status     Status
	CreatedAt  time.Time

	members []string
	master  string
	// chrono is the roster frozen when the match started.
	chrono []string
	engine *game.Engine
}

func newLobby(code, name string, maxPlayers int, creator string) *Lobby {
	l := &Lobby{
		Code:       code,
		Name:       name,
		MaxPlayers: maxPlayers,
		Status:     StatusLobbable,
		CreatedAt:  time.Now(),
	}
	l.add(creator)
	return l
}

func (l *Lobby) full() bool { return len(l.members) >= l.MaxPlayers }

func (l *Lobby) lobbable() bool { return l.Status == StatusLobbable && !l.full() }

func (l *Lobby) isMember(username string) bool { return lo.Contains(l.members, username) }

func (l *Lobby) inChrono(username string) bool { return lo.Contains(l.chrono, username) }

func (l *Lobby) add(username string) {
	l.members = append(l.members, username)
	l.recomputeMaster()
}

func (l *Lobby) remove(username string) {
	l.members = lo.Without(l.members, username)
	l.recomputeMaster()
}

// recomputeMaster keeps the earliest remaining joiner in charge.
func (l *Lobby) recomputeMaster() {
	if len(l.members) == 0 {
		l.master = ""
		return
	}
	l.master = l.members[0]
}

// start freezes the roster around e. It is the only way out of LOBBABLE.
func (l *Lobby) start(e *game.Engine) {
	l.engine = e
	l.chrono = append([]string(nil), l.members...)
	l.Status = StatusOngoing
}

// Info is an immutable snapshot of a lobby.
type Info struct {
	Code       string   `json:"code"`
	Name       string   `json:"name"`
	MaxPlayers int      `json:"max_players"`
	Members    []string `json:"members"`
	Master     string   `json:"master"`
	Status     Status   `json:"status"`
}

func (l *Lobby) info() Info {
	return Info{
		Code:       l.Code,
		Name:       l.Name,
		MaxPlayers: l.MaxPlayers,
		Members:    append([]string(nil), l.members...),
		Master:     l.master,
		Status:     l.Status,
	}
}

// Composition is the payload of events.CompositionChanged.
type Composition struct {
	Info
	// Left is set when the change is a departure.
	Left   string `json:"left,omitempty"`
	Joined string `json:"joined,omitempty"`
}

// Started is the payload of events.LobbyStarted.
type Started struct {
	Code    string   `json:"code"`
	MatchID string   `json:"match_id"`
	Players []string `json:"players"`
}
