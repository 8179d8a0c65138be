package call

import (
	"sync"
	"time"
)

// hardStopSlack bounds the limit-message phase so a dead synthesis service
// cannot hold a call open past its budget.
const hardStopSlack = 10 * time.Second

// governor enforces the call duration budget. It posts evGovernorExpired at
// the limit and evHardStop at an absolute failsafe deadline; the session
// decides how gracefully to wind down in between.
type governor struct {
	max   time.Duration
	grace time.Duration
	post  func(event)

	mu      sync.Mutex
	timers  []*time.Timer
	stopped bool
}

func newGovernor(max, grace time.Duration, post func(event)) *governor {
	return &governor{max: max, grace: grace, post: post}
}

// start arms both deadlines. The hard stop always fires late enough for the
// grace window plus the limit message.
func (g *governor) start() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.timers = append(g.timers,
		time.AfterFunc(g.max, func() { g.post(evGovernorExpired{}) }),
		time.AfterFunc(g.max+g.grace+hardStopSlack, func() { g.post(evHardStop{}) }),
	)
}

// armGrace bounds a reply the session let finish past the limit. Fires
// evGraceExpired if the deferred playout is still going when the window ends.
func (g *governor) armGrace() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.stopped {
		return
	}
	g.timers = append(g.timers,
		time.AfterFunc(g.grace, func() { g.post(evGraceExpired{}) }))
}

// stop cancels every deadline; called once the session reached Ended.
func (g *governor) stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopped = true
	for _, t := range g.timers {
		t.Stop()
	}
	g.timers = nil
}
