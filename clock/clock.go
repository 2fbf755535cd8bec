// Package clock provides the logical clock interface §5 requires so that
// router and pipeline timeouts can be driven deterministically in tests,
// grounded on the andres-erbsen/clock.Clock shape used by uber/kraken's
// origin blob server for the same purpose.
package clock

import (
	"time"

	erbsenclock "github.com/andres-erbsen/clock"
)

// Clock abstracts time.Now, time.NewTimer, and time.After so production
// code runs against a real clock and tests run against a Fake clock that
// advances on demand.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
	NewTimer(d time.Duration) Timer
}

// Timer abstracts *time.Timer so a Fake clock can control firing.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

// Real is the production Clock, backed by andres-erbsen/clock's Clock
// rather than calling time.Now/time.NewTimer directly, so every duration
// that reaches the runtime clock goes through the same seam the Fake
// clock substitutes in tests.
type Real struct {
	c erbsenclock.Clock
}

// NewReal constructs a production Clock.
func NewReal() Real { return Real{c: erbsenclock.New()} }

func (r Real) Now() time.Time { return r.clock().Now() }

func (r Real) After(d time.Duration) <-chan time.Time { return r.clock().After(d) }

func (r Real) NewTimer(d time.Duration) Timer {
	return &realTimer{t: r.clock().Timer(d)}
}

// clock falls back to a package-level default so the zero value of Real
// (used by callers that haven't switched to NewReal) still works.
func (r Real) clock() erbsenclock.Clock {
	if r.c != nil {
		return r.c
	}
	return defaultClock
}

var defaultClock = erbsenclock.New()

type realTimer struct {
	t *erbsenclock.Timer
}

func (r *realTimer) C() <-chan time.Time        { return r.t.C }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
