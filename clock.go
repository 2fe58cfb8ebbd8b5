// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "time"

// Clock abstracts the monotonic clock the [Racer] uses for its staggered
// attempt schedule and the default [InterfaceEnumerator] uses for its
// interface-enumeration cache.
//
// By depending on an abstract [Clock] instead of calling [time.Now] and
// [time.NewTimer] directly, the stagger schedule and the cache expiry are
// deterministically testable, the same way [ConnectFunc] depends on an
// abstract [Dialer].
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the current time once d has
	// elapsed. It mirrors [time.After].
	After(d time.Duration) <-chan time.Time
}

// NewRealClock returns a [Clock] backed by the standard library.
func NewRealClock() Clock {
	return realClock{}
}

type realClock struct{}

var _ Clock = realClock{}

// Now implements [Clock].
func (realClock) Now() time.Time { return time.Now() }

// After implements [Clock].
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
