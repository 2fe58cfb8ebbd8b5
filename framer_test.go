// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// FrameOutbound passes the payload through unchanged.
func TestNoopFramerFrameOutbound(t *testing.T) {
	f := NoopFramer{}
	out, err := f.FrameOutbound(Message{Payload: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), out)
}

// ParseInbound returns the bytes of the first Read as a partial message:
// bytes.Reader only reports EOF on the Read after the one that drains it.
func TestNoopFramerParseInbound(t *testing.T) {
	f := NoopFramer{MaxMessageSize: 1024}
	r := bytes.NewReader([]byte("world"))

	result, err := f.ParseInbound(r, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("world"), result.Message.Payload)
	assert.False(t, result.EndOfMessage, "bytes.Reader has not reported EOF yet")
}

// ParseInbound defaults to DefaultMaxFrameSize when MaxMessageSize is unset.
func TestNoopFramerParseInboundDefaultSize(t *testing.T) {
	f := NoopFramer{}
	r := bytes.NewReader([]byte("x"))

	result, err := f.ParseInbound(r, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), result.Message.Payload)
}

// ParseInbound with min==max returns exactly that many bytes without
// blocking for more once they are available, and does not yet report
// EndOfMessage since the underlying reader has not half-closed.
func TestNoopFramerParseInboundExactMinMaxDoesNotBlock(t *testing.T) {
	f := NoopFramer{}
	pr, pw := io.Pipe()
	defer pr.Close()

	go func() {
		pw.Write([]byte("12345"))
		// Deliberately never close pw: a further Read would block forever,
		// so if ParseInbound tried to read past max it would hang the test.
	}()

	done := make(chan struct{})
	var result ReceiveResult
	var err error
	go func() {
		result, err = f.ParseInbound(pr, 5, 5)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ParseInbound blocked past min==max bytes")
	}

	require.NoError(t, err)
	assert.Equal(t, []byte("12345"), result.Message.Payload)
	assert.False(t, result.EndOfMessage)
}

// ParseInbound reports EndOfMessage when the reader is exhausted before min
// bytes accumulate, treating it as the peer's final partial message rather
// than an error.
func TestNoopFramerParseInboundShortReadIsEndOfMessage(t *testing.T) {
	f := NoopFramer{}
	r := bytes.NewReader([]byte("ab"))

	result, err := f.ParseInbound(r, 10, 10)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), result.Message.Payload)
	assert.True(t, result.EndOfMessage)
}

// ParseInbound surfaces a read error when no bytes were read at all.
func TestNoopFramerParseInboundEmptyReaderErrors(t *testing.T) {
	f := NoopFramer{}
	r := bytes.NewReader(nil)

	_, err := f.ParseInbound(r, 1, 1)
	require.Error(t, err)
}

// NewLengthPrefixFramer round-trips a message through its 4-byte length
// prefix.
func TestLengthPrefixFramerRoundTrip(t *testing.T) {
	f := NewLengthPrefixFramer(0)

	encoded, err := f.FrameOutbound(Message{Payload: []byte("round trip")})
	require.NoError(t, err)

	result, err := f.ParseInbound(bytes.NewReader(encoded), 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []byte("round trip"), result.Message.Payload)
	assert.True(t, result.EndOfMessage)
}

// FrameOutbound rejects a payload larger than maxSize.
func TestLengthPrefixFramerFrameOutboundTooLarge(t *testing.T) {
	f := NewLengthPrefixFramer(4)
	_, err := f.FrameOutbound(Message{Payload: []byte("too big")})
	require.Error(t, err)
	var sendErr *SendError
	assert.True(t, errors.As(err, &sendErr))
}

// ParseInbound rejects a declared length exceeding maxSize without reading
// the payload into memory.
func TestLengthPrefixFramerParseInboundTooLarge(t *testing.T) {
	f := NewLengthPrefixFramer(4)

	oversized := NewLengthPrefixFramer(0)
	encoded, err := oversized.FrameOutbound(Message{Payload: []byte("too big")})
	require.NoError(t, err)

	_, err = f.ParseInbound(bytes.NewReader(encoded), 0, 0)
	require.Error(t, err)
	var recvErr *ReceiveError
	assert.True(t, errors.As(err, &recvErr))
}

// ParseInbound surfaces a short read on the length prefix itself.
func TestLengthPrefixFramerParseInboundShortRead(t *testing.T) {
	f := NewLengthPrefixFramer(0)
	_, err := f.ParseInbound(bytes.NewReader([]byte{0x00, 0x01}), 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
}
