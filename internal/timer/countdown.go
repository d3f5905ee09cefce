// internal/timer/countdown.go
package timer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Mode is the cadence a countdown ticks at.
type Mode int

const (
	ModeNormal Mode = iota
	ModeAlert
)

func (m Mode) String() string {
	if m == ModeAlert {
		return "alert"
	}
	return "normal"
}

const (
	DefaultInterval      = time.Second
	DefaultAlertInterval = 250 * time.Millisecond
)

// Options configures a Countdown.
//
// OnTick and OnExpire run on the countdown's own goroutine, never from Start,
// Pause, Resume, StartAlert or Stop. Callers can therefore hold their own
// locks while controlling the countdown, and must acquire them inside the
// callbacks before touching shared state.
type Options struct {
	Clock         clockwork.Clock
	Interval      time.Duration
	AlertInterval time.Duration
	OnTick        func(remaining int)
	OnExpire      func()
}

// Countdown decrements an integer counter to zero on a fixed cadence.
// An instance fires OnExpire at most once; after expiry or Stop it is inert.
type Countdown struct {
	mu sync.Mutex

	clock         clockwork.Clock
	interval      time.Duration
	alertInterval time.Duration
	onTick        func(int)
	onExpire      func()

	remaining int
	mode      Mode
	started   bool
	paused    bool
	done      bool

	// gen invalidates ticks delivered to a loop that has since been halted.
	gen    int
	stopCh chan struct{}
	ticker clockwork.Ticker
}

// New builds a countdown starting at start. It does not tick until Start.
func New(start int, opts Options) *Countdown {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.AlertInterval <= 0 {
		opts.AlertInterval = DefaultAlertInterval
	}
	if start < 0 {
		start = 0
	}
	return &Countdown{
		clock:         opts.Clock,
		interval:      opts.Interval,
		alertInterval: opts.AlertInterval,
		onTick:        opts.OnTick,
		onExpire:      opts.OnExpire,
		remaining:     start,
	}
}

// Start begins ticking. A countdown created at zero expires right away.
// Calling Start twice is a no-op.
func (c *Countdown) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started || c.done {
		return
	}
	c.started = true
	if c.remaining == 0 {
		c.done = true
		go c.fire(0, true)
		return
	}
	c.launchLocked()
}

// Pause freezes the counter. It reports whether the countdown was running.
func (c *Countdown) Pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started || c.done || c.paused {
		return false
	}
	c.paused = true
	c.haltLocked()
	return true
}

// Resume restarts ticking from the frozen value in the cadence active at pause time.
func (c *Countdown) Resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || !c.paused {
		return false
	}
	c.paused = false
	c.launchLocked()
	return true
}

// StartAlert switches to the alert cadence without touching the counter.
// It returns false when the countdown is already in alert mode or finished.
func (c *Countdown) StartAlert() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done || c.mode == ModeAlert {
		return false
	}
	c.mode = ModeAlert
	if c.started && !c.paused {
		c.haltLocked()
		c.launchLocked()
	}
	return true
}

// Stop cancels any pending tick and makes the countdown inert. It never waits
// for the tick goroutine and is safe to call repeatedly.
func (c *Countdown) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
	c.haltLocked()
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

func (c *Countdown) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Countdown) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Done reports whether the countdown expired or was stopped.
func (c *Countdown) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// launchLocked starts a tick loop for the current mode. Assumes lock is held.
func (c *Countdown) launchLocked() {
	c.gen++
	d := c.interval
	if c.mode == ModeAlert {
		d = c.alertInterval
	}
	c.stopCh = make(chan struct{})
	c.ticker = c.clock.NewTicker(d)
	go c.run(c.gen, c.ticker, c.stopCh)
}

// haltLocked stops the active tick loop, if any. Assumes lock is held.
func (c *Countdown) haltLocked() {
	c.gen++
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
}

func (c *Countdown) run(gen int, t clockwork.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-t.Chan():
			remaining, expired, ok := c.step(gen)
			if !ok {
				return
			}
			c.fire(remaining, expired)
			if expired {
				return
			}
		}
	}
}

// step applies one tick. The countdown is halted before the expiry callback
// ever runs, so a panicking callback cannot leave it half-stopped.
func (c *Countdown) step(gen int) (remaining int, expired bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.paused || c.done {
		return 0, false, false
	}
	c.remaining--
	if c.remaining <= 0 {
		c.remaining = 0
		c.done = true
		c.haltLocked()
		return 0, true, true
	}
	return c.remaining, false, true
}

func (c *Countdown) fire(remaining int, expired bool) {
	if c.onTick != nil {
		c.onTick(remaining)
	}
	if expired && c.onExpire != nil {
		c.onExpire()
	}
}
