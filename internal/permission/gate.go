// Package permission gates access to the SMS store behind a runtime
// capability that an external authority grants or denies.
package permission

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// ReadSMS is the capability the bridge needs.
const ReadSMS = "android.permission.READ_SMS"

// RequestCode tags prompts raised by the bridge.
const RequestCode = 123

// Authority owns the grant state. Prompt must not block on the user; it
// calls done exactly once, later, with the outcome.
type Authority interface {
	Granted(ctx context.Context, perm string) (bool, error)
	Prompt(ctx context.Context, perm string, requestCode int, done func(granted bool)) error
}

// Event reports the outcome of a prompt.
type Event struct {
	Permission  string    `json:"permission"`
	RequestCode int       `json:"request_code"`
	Granted     bool      `json:"granted"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Gate checks and requests one capability.
type Gate struct {
	auth Authority
	perm string
	log  *slog.Logger

	// OnOutcome, when set, observes every resolved prompt.
	OnOutcome func(Event)

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

func NewGate(auth Authority, perm string, log *slog.Logger) *Gate {
	if log == nil {
		log = slog.Default()
	}
	return &Gate{auth: auth, perm: perm, log: log, subs: map[int]chan Event{}}
}

func (g *Gate) Permission() string { return g.perm }

// Check asks the authority for the current grant state. Authority errors
// count as not granted.
func (g *Gate) Check(ctx context.Context) bool {
	ok, err := g.auth.Granted(ctx, g.perm)
	if err != nil {
		g.log.Warn("permission check failed", "permission", g.perm, "err", err)
		return false
	}
	return ok
}

// Request returns true without prompting when the capability is already
// granted. Otherwise it raises a prompt and returns false right away along
// with a Pending that resolves once the authority answers.
func (g *Gate) Request(ctx context.Context) (bool, *Pending) {
	if g.Check(ctx) {
		return true, nil
	}

	p := newPending()
	err := g.auth.Prompt(ctx, g.perm, RequestCode, func(granted bool) {
		g.resolve(p, Event{Permission: g.perm, RequestCode: RequestCode, Granted: granted})
	})
	if err != nil {
		g.log.Error("permission prompt failed", "permission", g.perm, "err", err)
		g.resolve(p, Event{Permission: g.perm, RequestCode: RequestCode, Error: err.Error()})
	}
	return false, p
}

func (g *Gate) resolve(p *Pending, ev Event) {
	ev.At = time.Now()
	if !p.resolve(ev) {
		return
	}
	if ev.Granted {
		g.log.Info("sms permission granted", "permission", ev.Permission, "request_code", ev.RequestCode)
	} else {
		g.log.Info("sms permission denied", "permission", ev.Permission, "request_code", ev.RequestCode)
	}
	if g.OnOutcome != nil {
		g.OnOutcome(ev)
	}
	g.publish(ev)
}

// Subscribe registers for prompt outcomes. Slow subscribers miss events
// rather than blocking the authority. Call cancel to unsubscribe.
func (g *Gate) Subscribe() (<-chan Event, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextSub
	g.nextSub++
	ch := make(chan Event, 8)
	g.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			delete(g.subs, id)
			close(ch)
		})
	}
	return ch, cancel
}

func (g *Gate) publish(ev Event) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, ch := range g.subs {
		select {
		case ch <- ev:
		default:
			g.log.Debug("dropping permission event for slow subscriber", "subscriber", id)
		}
	}
}

// Pending is the future outcome of one prompt.
type Pending struct {
	done chan struct{}
	once sync.Once
	ev   Event
}

func newPending() *Pending { return &Pending{done: make(chan struct{})} }

func (p *Pending) resolve(ev Event) bool {
	first := false
	p.once.Do(func() {
		p.ev = ev
		close(p.done)
		first = true
	})
	return first
}

// Done is closed when the outcome is known.
func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the prompt resolves or ctx ends.
func (p *Pending) Wait(ctx context.Context) (Event, error) {
	select {
	case <-p.done:
		return p.ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}
