// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"encoding/binary"
	"io"
)

// DefaultMaxFrameSize bounds a single length-prefixed frame produced by
// [NewLengthPrefixFramer] when no explicit limit is given.
const DefaultMaxFrameSize = 1 << 20 // 1 MiB

// Framer translates between application [Message]s and the byte stream a
// [Channel] exposes. A Framer is a pure, stateless transformer: the same
// FrameOutbound/ParseInbound pair could be swapped in or out of a
// [Connection] without the Connection itself changing behavior beyond the
// wire format.
//
// Connections with no message-oriented transport below them (a raw TCP
// byte stream) need a Framer to recover message boundaries; connections
// over an inherently message-oriented transport (UDP, a QUIC stream) may
// use [NoopFramer] instead, one Write/Read per Message.
type Framer interface {
	// FrameOutbound encodes msg as the bytes to write to the channel.
	FrameOutbound(msg Message) ([]byte, error)

	// ParseInbound reads a frame from r, decoding it into a [ReceiveResult].
	// min and max bound a raw, boundary-less read (see [NoopFramer]): read
	// at least min bytes, blocking as needed, then return without reading
	// further once at least min and at most max bytes are held. A framer
	// that always produces complete, self-delimited messages (e.g. the
	// length-prefix framer) ignores min/max and returns the next whole
	// frame with EndOfMessage true.
	ParseInbound(r io.Reader, min, max int) (ReceiveResult, error)
}

// NoopFramer passes Message.Payload through unchanged: one Write per Send,
// one Read per Receive. Suitable for transports that already preserve
// message boundaries (UDP, SCTP, a QUIC stream per message).
type NoopFramer struct {
	MaxMessageSize int
}

var _ Framer = NoopFramer{}

// FrameOutbound implements [Framer].
func (f NoopFramer) FrameOutbound(msg Message) ([]byte, error) {
	return msg.Payload, nil
}

// ParseInbound implements [Framer]. It blocks until at least min bytes have
// been read, then returns without attempting a further Read once it holds
// at least min and at most max bytes: a min==max call that finds exactly
// that many bytes already available returns immediately without blocking
// for more. EndOfMessage is true only once r reports the peer has
// half-closed (io.EOF or similar); otherwise the returned bytes are a
// partial message and the caller should Receive again for the rest.
func (f NoopFramer) ParseInbound(r io.Reader, min, max int) (ReceiveResult, error) {
	if max <= 0 {
		max = f.MaxMessageSize
	}
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	if min <= 0 {
		min = 1
	}
	if min > max {
		min = max
	}

	buf := make([]byte, max)
	n := 0
	var readErr error
	for n < min {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			readErr = err
			break
		}
	}
	if n == 0 && readErr != nil {
		return ReceiveResult{}, readErr
	}
	return ReceiveResult{Message: Message{Payload: buf[:n]}, EndOfMessage: readErr != nil}, nil
}

// lengthPrefixFramer frames each Message as a 4-byte big-endian length
// prefix followed by the payload, for stream transports with no native
// message boundaries.
type lengthPrefixFramer struct {
	maxSize uint32
}

// NewLengthPrefixFramer returns a [Framer] that prefixes each message with
// a 4-byte big-endian length. maxSize bounds both outbound and inbound
// frames; an inbound frame whose declared length exceeds maxSize is
// rejected with a [*ReceiveError] rather than read into memory.
func NewLengthPrefixFramer(maxSize uint32) Framer {
	if maxSize == 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &lengthPrefixFramer{maxSize: maxSize}
}

var _ Framer = &lengthPrefixFramer{}

// FrameOutbound implements [Framer].
func (f *lengthPrefixFramer) FrameOutbound(msg Message) ([]byte, error) {
	if uint32(len(msg.Payload)) > f.maxSize {
		return nil, &SendError{Reason: "message exceeds framer max size"}
	}
	out := make([]byte, 4+len(msg.Payload))
	binary.BigEndian.PutUint32(out, uint32(len(msg.Payload)))
	copy(out[4:], msg.Payload)
	return out, nil
}

// ParseInbound implements [Framer]. min and max are ignored: every frame is
// self-delimited by its length prefix, so the result is always a complete
// message.
func (f *lengthPrefixFramer) ParseInbound(r io.Reader, min, max int) (ReceiveResult, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return ReceiveResult{}, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > f.maxSize {
		return ReceiveResult{}, &ReceiveError{Reason: "frame exceeds framer max size"}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return ReceiveResult{}, err
	}
	return ReceiveResult{Message: Message{Payload: payload}, EndOfMessage: true}, nil
}
