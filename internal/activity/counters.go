package activity

import "sync/atomic"

// Counts holds input deltas drained from Counters.
type Counts struct {
	Keystrokes uint64 `json:"keystrokes"`
	Clicks     uint64 `json:"clicks"`
	Scrolls    uint64 `json:"scrolls"`
}

// HasActivity reports whether any input was recorded.
func (c Counts) HasActivity() bool {
	return c.Keystrokes > 0 || c.Clicks > 0 || c.Scrolls > 0
}

// Add returns the element-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Keystrokes: c.Keystrokes + o.Keystrokes,
		Clicks:     c.Clicks + o.Clicks,
		Scrolls:    c.Scrolls + o.Scrolls,
	}
}

// Counters are lock-free accumulators written by input readers.
// The increment methods do a single relaxed atomic add and nothing else,
// so they are safe to call from the input path.
type Counters struct {
	keystrokes atomic.Uint64
	clicks     atomic.Uint64
	scrolls    atomic.Uint64
}

// NewCounters creates zeroed counters.
func NewCounters() *Counters {
	return &Counters{}
}

// AddKeystroke records one key-down event.
func (c *Counters) AddKeystroke() {
	c.keystrokes.Add(1)
}

// AddClick records one mouse button press.
func (c *Counters) AddClick() {
	c.clicks.Add(1)
}

// AddScroll records one wheel event.
func (c *Counters) AddScroll() {
	c.scrolls.Add(1)
}

// Drain swaps every counter to zero and returns the values accumulated
// since the previous drain. Increments racing with Drain land in either
// this delta or the next one.
func (c *Counters) Drain() Counts {
	return Counts{
		Keystrokes: c.keystrokes.Swap(0),
		Clicks:     c.clicks.Swap(0),
		Scrolls:    c.scrolls.Swap(0),
	}
}

// Peek reads the counters without resetting them.
func (c *Counters) Peek() Counts {
	return Counts{
		Keystrokes: c.keystrokes.Load(),
		Clicks:     c.clicks.Load(),
		Scrolls:    c.scrolls.Load(),
	}
}
