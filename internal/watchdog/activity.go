package watchdog

import (
	"sync/atomic"
	"time"
)

// Activity is the process-wide "last message seen in the channel" clock.
// It is a single atomic timestamp; last write wins.
type Activity struct {
	last atomic.Int64 // unix nanos
	now  func() time.Time
}

// NewActivity creates an Activity stamped at the current time.
func NewActivity() *Activity {
	return NewActivityWithClock(time.Now)
}

// NewActivityWithClock creates an Activity that reads time from now.
func NewActivityWithClock(now func() time.Time) *Activity {
	a := &Activity{now: now}
	a.Touch()
	return a
}

// Touch records activity at the current time.
func (a *Activity) Touch() {
	a.TouchAt(a.now())
}

// TouchAt records activity at t.
func (a *Activity) TouchAt(t time.Time) {
	a.last.Store(t.UnixNano())
}

// Last returns the most recent activity time.
func (a *Activity) Last() time.Time {
	return time.Unix(0, a.last.Load())
}

// Since returns how long the channel has been quiet.
func (a *Activity) Since() time.Duration {
	return a.now().Sub(a.Last())
}
