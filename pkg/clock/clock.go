// ABOUTME: Clock abstraction and offset computation from a shared start time
// ABOUTME: Real clock backed by package time, pure offset helpers
package clock

import "time"

// Clock is the time source used by timers and offset computation
type Clock interface {
	Now() time.Time
	// AfterFunc calls f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call created by AfterFunc
type Timer interface {
	// Stop prevents the call from firing. Returns false if it already fired or was stopped.
	Stop() bool
}

// Real is the wall clock
var Real Clock = realClock{}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Elapsed returns now - startedAt. Negative when startedAt is in the future.
func Elapsed(startedAt, now time.Time) time.Duration {
	return now.Sub(startedAt)
}

// Offset returns the playback position in seconds a client should be at,
// clamped to [0, maxDuration]
func Offset(startedAt, now time.Time, maxDuration float64) float64 {
	offset := Elapsed(startedAt, now).Seconds()
	if offset < 0 {
		return 0
	}
	if maxDuration < 0 {
		maxDuration = 0
	}
	if offset > maxDuration {
		return maxDuration
	}
	return offset
}

// Millis converts t to unix milliseconds, the wire format for shared timestamps
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// FromMillis converts unix milliseconds back to a time. Zero stays the zero time.
func FromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
