package game

import (
	"github.com/wfunc/codexserver/state"
)

// Winner scores the goals once, then names the winner. An empty name means a
// draw. Further calls return the same outcome without scoring again.
func (e *Engine) Winner() (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.phase() {
	case state.End:
		if e.result == nil {
			return "", nil
		}
		return e.result.Winner, nil
	case state.PostGame:
	default:
		return "", ErrNotEnded
	}

	res := &Result{
		MatchID:   e.id,
		Scores:    make(map[string]int, len(e.order)),
		GoalGains: make(map[string]int, len(e.order)),
		Turns:     e.turn,
	}
	best := -1
	for _, name := range e.order {
		p := e.players[name]
		gain := e.board.common[0].Score(p.manuscript) + e.board.common[1].Score(p.manuscript)
		if p.goal != nil {
			gain += p.goal.Score(p.manuscript)
		}
		p.score += gain
		res.Scores[name] = p.score
		res.GoalGains[name] = gain
		if p.score > best {
			best = p.score
		}
	}

	var tied []string
	for _, name := range e.order {
		if res.Scores[name] == best {
			tied = append(tied, name)
		}
	}
	if len(tied) == 1 {
		res.Winner = tied[0]
	} else {
		top, count := -1, 0
		for _, name := range tied {
			switch g := res.GoalGains[name]; {
			case g > top:
				top, count = g, 1
				res.Winner = name
			case g == top:
				count++
			}
		}
		if count > 1 {
			res.Winner = ""
		}
	}

	e.result = res
	e.change(state.End)
	return res.Winner, nil
}

// Result returns the outcome of a finished match, or nil before END.
func (e *Engine) Result() *Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.result == nil {
		return nil
	}
	r := *e.result
	return &r
}
