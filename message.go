// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "time"

// Message is the atomic unit of application data on Send/Receive.
//
// A stream transport with no [Framer] installed presents received bytes as
// a single lazily-growing Message; a framer-equipped stream, or an
// inherently message-oriented transport (UDP, SCTP, QUIC streams), presents
// framer- or transport-defined message boundaries.
type Message struct {
	// Payload is the message's byte content.
	Payload []byte

	// Context carries the per-message properties.
	Context MessageContext
}

// MessageContext is the per-message metadata bundle.
type MessageContext struct {
	// SafelyReplayable marks a message as safe to send as 0-RTT data: the
	// peer may see and act on it more than once (e.g. on a retried
	// handshake) without incorrect side effects.
	SafelyReplayable bool

	// Lifetime bounds how long the runtime may hold the message before
	// giving up on delivering it. Zero means no expiry.
	Lifetime time.Duration

	// Deadline is an absolute alternative to Lifetime. Zero means unset.
	Deadline time.Time

	// Priority orders messages relative to each other on the same
	// Connection when the underlying stack supports prioritized send
	// (lower values are sent first). Nil means "use TransportProperties.Priority".
	Priority *int

	// Final marks this as the last message the application will ever send
	// on this Connection. A subsequent Send fails with [ErrSendAfterFinal].
	Final bool

	// FramerMetadata carries out-of-band data between the application and
	// its installed [Framer]s (e.g. a framer-specific tag or channel id).
	FramerMetadata map[string]any
}

// ReceiveResult is the outcome of [Connection.Receive]: a message together
// with whether it is complete.
type ReceiveResult struct {
	Message Message

	// EndOfMessage is true when Message.Payload is the complete message;
	// false for a partial read on a stream with no framer, bounded by the
	// caller's requested max.
	EndOfMessage bool
}
