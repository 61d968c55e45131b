// Package activity records when a client last triggered work so background
// loops can tell an active process from an idle one.
package activity

import (
	"sync/atomic"
	"time"

	"mediaconv/internal/clock"
)

// Tracker holds the last-activity timestamp as unix nanoseconds. The zero
// value means no activity has been recorded yet.
type Tracker struct {
	clock clock.Clock
	last  atomic.Int64
}

// New returns a tracker reading time from c (the system clock if nil).
func New(c clock.Clock) *Tracker {
	return &Tracker{clock: clock.OrReal(c)}
}

// Touch records the current time as the latest activity. Concurrent callers
// race last-writer-wins; an older reading never replaces a newer one.
func (t *Tracker) Touch() {
	now := t.clock.Now().UnixNano()
	for {
		prev := t.last.Load()
		if prev >= now {
			return
		}
		if t.last.CompareAndSwap(prev, now) {
			return
		}
	}
}

// Last returns the time of the most recent activity, or the zero time.
func (t *Tracker) Last() time.Time {
	v := t.last.Load()
	if v == 0 {
		return time.Time{}
	}
	return time.Unix(0, v)
}

// Since returns how long ago the last activity happened. It reports false
// when nothing has been recorded.
func (t *Tracker) Since() (time.Duration, bool) {
	v := t.last.Load()
	if v == 0 {
		return 0, false
	}
	return t.clock.Now().Sub(time.Unix(0, v)), true
}

// ActiveWithin reports whether activity was recorded less than window ago.
func (t *Tracker) ActiveWithin(window time.Duration) bool {
	since, ok := t.Since()
	return ok && since < window
}
