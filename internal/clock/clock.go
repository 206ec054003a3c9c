// Package clock abstracts wall time and one-shot timers so the
// orchestrator's schedule can be driven deterministically in tests.
package clock

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	// Stop prevents the callback from firing; it reports whether the
	// timer was still pending.
	Stop() bool
}

type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Real is the process clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }

func (Real) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
