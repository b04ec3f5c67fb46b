package safety

import "time"

// Clock supplies a monotonic millisecond timestamp. It is a uint32 on
// purpose: all dwell and hysteresis arithmetic uses modular subtraction so
// a single wraparound (~49.7 days) is tolerated.
type Clock interface {
	NowMillis() uint32
}

type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock backed by the runtime monotonic clock,
// zeroed at construction time.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// elapsed returns now-then under modular uint32 arithmetic
func elapsed(now, then uint32) uint32 {
	return now - then
}
