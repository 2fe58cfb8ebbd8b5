// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "time"

// Preference is an ordinal preference value. The ordering (Prohibit < Avoid
// < NoPreference < Prefer < Require) is meaningful: [SelectStacks] compares
// preferences, not just equality, when scoring candidate stacks.
type Preference int

const (
	Prohibit Preference = iota
	Avoid
	NoPreference
	Prefer
	Require
)

// String implements [fmt.Stringer].
func (p Preference) String() string {
	switch p {
	case Prohibit:
		return "prohibit"
	case Avoid:
		return "avoid"
	case NoPreference:
		return "no-preference"
	case Prefer:
		return "prefer"
	case Require:
		return "require"
	default:
		return "unknown"
	}
}

// MultipathMode enumerates the multipath-mode knob.
type MultipathMode int

const (
	MultipathDisabled MultipathMode = iota
	MultipathPassive
	MultipathActive
	MultipathAggregate
)

// TrafficClass enumerates the traffic-class knob.
type TrafficClass int

const (
	TrafficBackground TrafficClass = iota
	TrafficBestEffort
	TrafficVideo
	TrafficVoice
	TrafficControl
)

// TransportProperties is the immutable bundle of preferences and scalar
// knobs an application declares before establishment. The zero value has
// every [Preference] field at [Prohibit] (the first Preference value) and
// every scalar at its natural zero; use [NewTransportProperties] for the
// documented defaults
// instead of the zero value when in doubt.
type TransportProperties struct {
	Reliability            Preference
	PreserveMsgBoundaries   Preference
	PreserveOrder           Preference
	PerMsgReliability       Preference
	CongestionControl       Preference
	ZeroRTT                 Preference
	MultipathMode           MultipathMode
	UseTemporaryAddress     Preference
	AdvertisesAltAddr       Preference
	DisableNagle            Preference
	KeepAlive               Preference
	KeepAliveInterval       durationKnob
	ConnectionTimeout       durationKnob
	RetransmissionTimeout   durationKnob
	Priority                int
	TrafficClass            TrafficClass
	ReceiveBufferSize       int
	SendBufferSize          int
}

// durationKnob is an optional scalar duration: the zero value is unset. Use
// [SetDuration] to produce a set value and [durationKnob.Get] to read one
// back; the type itself stays unexported since TransportProperties' fields
// are the only place it needs to be named.
type durationKnob struct {
	set   bool
	value time.Duration
}

// SetDuration returns a [TransportProperties] duration knob set to d. Pass
// the result to KeepAliveInterval, ConnectionTimeout, or
// RetransmissionTimeout.
func SetDuration(d time.Duration) durationKnob {
	return durationKnob{set: true, value: d}
}

// Get returns the knob's duration and whether it was ever set.
func (k durationKnob) Get() (time.Duration, bool) {
	return k.value, k.set
}

// NewTransportProperties returns the recommended defaults: reliable,
// ordered, boundary-preserving, congestion-controlled, best-effort traffic,
// no multipath, no 0-RTT. This matches the common case of "I want something
// like TCP" without requiring the caller to enumerate every field.
func NewTransportProperties() TransportProperties {
	return TransportProperties{
		Reliability:           Require,
		PreserveMsgBoundaries: Prefer,
		PreserveOrder:         Require,
		PerMsgReliability:     NoPreference,
		CongestionControl:     Require,
		ZeroRTT:               NoPreference,
		MultipathMode:         MultipathDisabled,
		UseTemporaryAddress:   NoPreference,
		AdvertisesAltAddr:     NoPreference,
		DisableNagle:          NoPreference,
		KeepAlive:             NoPreference,
		Priority:              100,
		TrafficClass:          TrafficBestEffort,
	}
}

// WithPriority returns a copy with Priority overridden. Priority is one of
// the few properties a [ConnectionGroup] clone may alter.
func (p TransportProperties) WithPriority(priority int) TransportProperties {
	p.Priority = priority
	return p
}

// violatesGroupInvariant reports whether altered differs from p in a field
// other than the ones a clone is allowed to override (Priority,
// TrafficClass). Reliability, ordering, and boundary preservation are
// fixed for the lifetime of the group because they determine which
// [ProtocolStack]s are feasible for the shared transport.
func (p TransportProperties) violatesGroupInvariant(altered TransportProperties) bool {
	altered.Priority = p.Priority
	altered.TrafficClass = p.TrafficClass
	return altered != p
}
