// Package schedule provides next-tick scheduling for the editor's deferred
// passes. Geometry recomputation, highlight application and boundary
// normalization are all frame-coalesced: repeated triggers within one tick
// collapse into a single pass.
//
// The tick source is abstracted behind [Ticker] so hosts can plug in an
// animation-frame callback, a time.Ticker, or the [ManualTicker] used by
// tests and by the batch CLI pipeline.
package schedule

// Ticker schedules a callback for the next tick. The returned cancel
// function unregisters the callback if it has not fired yet; calling it
// after the callback fired is a no-op.
type Ticker interface {
	Schedule(fn func()) (cancel func())
}

// Coalescer runs one function per tick no matter how many times it was
// triggered in between. It keeps a dirty flag plus an in-flight token so a
// pass that re-triggers itself (a proxy deletion cascading into decoration
// cleanup, say) schedules a fresh tick instead of re-entering.
//
// Coalescer is single-threaded by design, matching the editor's cooperative
// scheduling model.
type Coalescer struct {
	ticker   Ticker
	run      func()
	dirty    bool
	pending  bool
	inFlight bool
	cancel   func()
	stopped  bool
}

// NewCoalescer creates a coalescer that invokes run at most once per tick.
func NewCoalescer(t Ticker, run func()) *Coalescer {
	return &Coalescer{ticker: t, run: run}
}

// Mark flags the coalescer dirty and ensures at most one pending callback.
func (c *Coalescer) Mark() {
	if c.stopped {
		return
	}
	c.dirty = true
	if c.pending {
		return
	}
	c.pending = true
	c.cancel = c.ticker.Schedule(c.fire)
}

// Flush runs the pass immediately if dirty, bypassing the ticker. Used by
// synchronous flows (group creation, batch pipeline) that must not wait a
// frame.
func (c *Coalescer) Flush() {
	if !c.dirty || c.inFlight || c.stopped {
		return
	}
	c.fire()
}

// Stop cancels any pending callback and ignores further marks. Called on
// component teardown.
func (c *Coalescer) Stop() {
	c.stopped = true
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.pending = false
	c.dirty = false
}

// Dirty reports whether a pass is still owed.
func (c *Coalescer) Dirty() bool { return c.dirty }

func (c *Coalescer) fire() {
	c.pending = false
	if c.stopped || !c.dirty {
		return
	}
	if c.inFlight {
		// The pass re-triggered itself; pick the work up next tick.
		c.pending = true
		c.cancel = c.ticker.Schedule(c.fire)
		return
	}
	c.dirty = false
	c.inFlight = true
	c.run()
	c.inFlight = false
	if c.dirty && !c.pending {
		c.pending = true
		c.cancel = c.ticker.Schedule(c.fire)
	}
}

// ManualTicker is a [Ticker] driven by explicit [ManualTicker.Tick] calls.
// Callbacks scheduled during a tick run on the following tick.
type ManualTicker struct {
	queue []func()
}

// NewManualTicker creates an empty manual ticker.
func NewManualTicker() *ManualTicker { return &ManualTicker{} }

// Schedule implements [Ticker].
func (m *ManualTicker) Schedule(fn func()) (cancel func()) {
	m.queue = append(m.queue, fn)
	cancelled := false
	idx := len(m.queue) - 1
	return func() {
		if cancelled || idx >= len(m.queue) || m.queue[idx] == nil {
			return
		}
		cancelled = true
		m.queue[idx] = nil
	}
}

// Tick fires every callback scheduled before this call. Callbacks scheduled
// while ticking wait for the next Tick.
func (m *ManualTicker) Tick() {
	batch := m.queue
	m.queue = nil
	for _, fn := range batch {
		if fn != nil {
			fn()
		}
	}
}

// Pending returns the number of callbacks waiting for the next tick.
func (m *ManualTicker) Pending() int {
	n := 0
	for _, fn := range m.queue {
		if fn != nil {
			n++
		}
	}
	return n
}

// Drain ticks until no callbacks remain, with a hard cap to stop a
// self-rescheduling pass from spinning forever. Returns the number of ticks
// fired.
func (m *ManualTicker) Drain(maxTicks int) int {
	ticks := 0
	for m.Pending() > 0 && ticks < maxTicks {
		m.Tick()
		ticks++
	}
	return ticks
}

// Animation drives a fixed-length frame animation through a [Ticker].
// Each tick advances one frame and calls step with progress in (0, 1];
// progress 1 is always delivered exactly once unless the animation is
// cancelled first.
type Animation struct {
	ticker    Ticker
	frames    int
	frame     int
	step      func(progress float64)
	done      func()
	cancel    func()
	cancelled bool
}

// NewAnimation creates an animation spanning the given number of frames.
// frames < 1 is clamped to 1 (a single immediate step on the next tick).
func NewAnimation(t Ticker, frames int, step func(progress float64), done func()) *Animation {
	if frames < 1 {
		frames = 1
	}
	return &Animation{ticker: t, frames: frames, step: step, done: done}
}

// Start schedules the first frame.
func (a *Animation) Start() {
	a.cancel = a.ticker.Schedule(a.advance)
}

// Cancel stops the animation; no further steps fire and done is skipped.
func (a *Animation) Cancel() {
	a.cancelled = true
	if a.cancel != nil {
		a.cancel()
	}
}

func (a *Animation) advance() {
	if a.cancelled {
		return
	}
	a.frame++
	a.step(float64(a.frame) / float64(a.frames))
	if a.frame >= a.frames {
		if a.done != nil {
			a.done()
		}
		return
	}
	a.cancel = a.ticker.Schedule(a.advance)
}
