// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"log/slog"
	"sync"
)

// ConnectionState is the lifecycle state of a [Connection].
type ConnectionState int

const (
	StateEstablishing ConnectionState = iota
	StateEstablished
	StateClosing
	StateClosed
)

// String implements [fmt.Stringer].
func (s ConnectionState) String() string {
	switch s {
	case StateEstablishing:
		return "establishing"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// EventKind tags a [ConnectionEvent].
type EventKind int

const (
	EventReady EventKind = iota
	EventSent
	EventReceived
	EventClosed
	EventError
	EventPathChange
	EventSoftError
)

// ConnectionEvent is one entry on a [Connection]'s event stream.
type ConnectionEvent struct {
	Kind    EventKind
	Message *Message
	Err     error
}

// connectionEstablisher is what [Connection.Clone] uses to produce the
// Channel backing a new group member. It is set once at construction time
// (see [newConnection]) by whichever caller has the remote candidate and
// winning stack on hand; a Connection with a nil establisher (e.g. one
// delivered by [Listener.Accepted]) cannot be cloned.
type connectionEstablisher interface {
	establishClone(ctx context.Context, props TransportProperties) (Channel, error)
}

// Connection is an established two-way communication channel. Send and Close
// queue their work on an operation queue drained by a single goroutine (the
// run loop), so writes and the close-time flush never overlap. Receive and
// Abort bypass the queue: Receive decodes from the [Channel] on a goroutine
// of its own, and Abort marks the Connection Closed and aborts the Channel
// from the caller's goroutine. Lifecycle state is guarded by a mutex.
//
// Events (Ready, Sent, Received, Closed, Error, PathChange, SoftError) are
// delivered in the order they are emitted on the channel returned by Events,
// which buffers 64 events; when the buffer is full, the oldest pending event
// is dropped to make room for the new one.
type Connection struct {
	channel Channel
	framer  Framer
	props   TransportProperties
	logger  SLogger
	group   *ConnectionGroup
	spanID  string

	establish connectionEstablisher

	ops    chan func()
	events chan ConnectionEvent

	mu        sync.Mutex
	state     ConnectionState
	sendBuf   []queuedSend
	finalSet  bool
	closeErr  error
	opsClosed bool
}

// submitOp sends op to the run loop, returning false instead of sending on
// a closed ops channel if Close or Abort already shut the loop down.
func (c *Connection) submitOp(op func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opsClosed {
		return false
	}
	c.ops <- op
	return true
}

// shutdownOps closes the ops channel exactly once, under the same lock
// that guards opsClosed, so a concurrent submitOp can never race a close.
func (c *Connection) shutdownOps() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opsClosed {
		return
	}
	c.opsClosed = true
	close(c.ops)
}

type queuedSend struct {
	msg  Message
	done chan error
}

// newConnection wraps an established channel. establish may be nil when the
// caller has no way to re-establish a sibling connection (e.g. an accepted
// Connection); in that case [Connection.Clone] fails with [ErrConfiguration].
func newConnection(channel Channel, framer Framer, props TransportProperties, logger SLogger, group *ConnectionGroup, establish connectionEstablisher) *Connection {
	if framer == nil {
		framer = NewLengthPrefixFramer(DefaultMaxFrameSize)
	}
	if logger == nil {
		logger = DefaultSLogger()
	}
	c := &Connection{
		channel:   channel,
		framer:    framer,
		props:     props,
		logger:    logger,
		group:     group,
		spanID:    NewSpanID(),
		establish: establish,
		ops:       make(chan func(), 16),
		events:    make(chan ConnectionEvent, 64),
		state:     StateEstablished,
	}
	go c.run()
	c.emit(ConnectionEvent{Kind: EventReady})
	return c
}

func (c *Connection) run() {
	for op := range c.ops {
		op()
	}
}

func (c *Connection) emit(ev ConnectionEvent) {
	select {
	case c.events <- ev:
	default:
		// Events channel is bounded; when it is full, the oldest pending
		// event, whatever its kind, is dropped rather than block the emitter.
		select {
		case <-c.events:
		default:
		}
		c.events <- ev
	}
}

// Events returns the Connection's event stream.
func (c *Connection) Events() <-chan ConnectionEvent {
	return c.events
}

// State returns the Connection's current lifecycle state.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Send enqueues msg for transmission. Send on a Closing connection is
// accepted and queued for flush rather than rejected immediately, so a
// caller that triggers Close and then sends a final goodbye message does
// not race the close. A Send whose queued operation only runs after Close
// has flushed and closed the channel fails with [ErrConnectionClosed]. Send
// on a Closed connection, or after a previous message set Final, fails
// immediately.
func (c *Connection) Send(ctx context.Context, msg Message) error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ErrConnectionClosed
	}
	if c.finalSet {
		c.mu.Unlock()
		return ErrSendAfterFinal
	}
	if msg.Context.Final {
		c.finalSet = true
	}
	closing := c.state == StateClosing
	c.mu.Unlock()

	done := make(chan error, 1)
	qs := queuedSend{msg: msg, done: done}

	submit := func() {
		if closing {
			c.mu.Lock()
			if c.state == StateClosed {
				// Close already flushed sendBuf; nothing drains it again.
				c.mu.Unlock()
				qs.done <- ErrConnectionClosed
				return
			}
			c.sendBuf = append(c.sendBuf, qs)
			c.mu.Unlock()
			return
		}
		c.doSend(qs)
	}

	if !c.submitOp(submit) {
		return ErrConnectionClosed
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Connection) doSend(qs queuedSend) {
	frame, err := c.framer.FrameOutbound(qs.msg)
	if err != nil {
		qs.done <- &SendError{Reason: "frame encode failed", Err: err}
		return
	}
	_, err = c.channel.Write(frame)
	if err != nil {
		c.logger.Info("sendFailed", slog.String("spanID", c.spanID), slog.Any("err", err))
		qs.done <- &SendError{Reason: "write failed", Err: err}
		c.emit(ConnectionEvent{Kind: EventError, Err: err})
		return
	}
	qs.done <- nil
	c.emit(ConnectionEvent{Kind: EventSent, Message: &qs.msg})
}

// Receive reads and decodes the next message from the channel's framer
// pipeline. min and max bound how many bytes a framer with no inherent
// message boundary (see [NoopFramer]) may return in one call: it blocks
// until at least min bytes are available, then returns without blocking
// further once it holds at least min and at most max bytes, reporting
// EndOfMessage only once the peer has half-closed. max <= 0 means "use the
// framer's own default"; min <= 0 means "no minimum".
func (c *Connection) Receive(ctx context.Context, min, max int) (ReceiveResult, error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return ReceiveResult{}, ErrConnectionClosed
	}
	c.mu.Unlock()

	type result struct {
		rr  ReceiveResult
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		rr, err := c.framer.ParseInbound(c.channel, min, max)
		resultCh <- result{rr, err}
	}()

	select {
	case res := <-resultCh:
		if res.err != nil {
			c.emit(ConnectionEvent{Kind: EventError, Err: res.err})
			return ReceiveResult{}, &ReceiveError{Reason: "frame decode failed", Err: res.err}
		}
		c.emit(ConnectionEvent{Kind: EventReceived, Message: &res.rr.Message})
		return res.rr, nil
	case <-ctx.Done():
		return ReceiveResult{}, ctx.Err()
	}
}

// Close performs an orderly close: queued sends are flushed before the
// underlying channel is closed.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.state = StateClosing
	c.mu.Unlock()

	done := make(chan struct{})
	ok := c.submitOp(func() {
		c.mu.Lock()
		pending := c.sendBuf
		c.sendBuf = nil
		c.mu.Unlock()
		for _, qs := range pending {
			c.doSend(qs)
		}
		err := c.channel.Close()
		c.mu.Lock()
		c.state = StateClosed
		c.closeErr = err
		c.mu.Unlock()
		c.emit(ConnectionEvent{Kind: EventClosed, Err: err})
		c.shutdownOps()
		close(done)
	})
	if !ok {
		// Another goroutine already shut the run loop down (e.g. a
		// concurrent Abort); nothing left to flush.
		return c.closeErr
	}
	<-done
	if c.group != nil {
		c.group.memberClosed(c)
	}
	return c.closeErr
}

// Abort tears the connection down immediately without flushing queued
// sends or waiting on the run loop; it always completes locally in bounded
// time.
func (c *Connection) Abort() {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	cause := c.closeErr
	if cause == nil {
		cause = ErrConnectionClosed
		c.closeErr = cause
	}
	c.mu.Unlock()

	c.shutdownOps()
	c.channel.Abort()
	c.emit(ConnectionEvent{Kind: EventClosed, Err: cause})
	if c.group != nil {
		c.group.memberClosed(c)
	}
}

// Clone creates a new Connection that joins c's [ConnectionGroup], creating
// one first if c does not already belong to one. If the winning stack
// multiplexes (quic, http/2, sctp) and the [ChannelProvider] implements an
// optional stream-opening capability, the clone is a new stream on c's
// existing transport; otherwise it degrades to a fresh Connection to the
// same remote. alterations, if given, overrides c's TransportProperties for
// the clone; it must not change a property fixed for the group (see
// [TransportProperties.violatesGroupInvariant]), or Clone fails with
// [ErrConfiguration].
func (c *Connection) Clone(ctx context.Context, alterations ...TransportProperties) (*Connection, error) {
	c.mu.Lock()
	if c.establish == nil {
		c.mu.Unlock()
		return nil, &ConfigurationError{Reason: "connection has no establisher to clone from"}
	}
	group := c.group
	base := c.props
	establish := c.establish
	framer := c.framer
	logger := c.logger
	c.mu.Unlock()

	if group == nil {
		group = NewConnectionGroup(base)
		group.add(c)
		c.mu.Lock()
		c.group = group
		c.mu.Unlock()
	}

	altered := base
	if len(alterations) > 0 {
		altered = alterations[0]
	}
	validated, err := group.Clone(altered)
	if err != nil {
		return nil, err
	}

	channel, err := establish.establishClone(ctx, validated)
	if err != nil {
		return nil, err
	}

	clone := newConnection(channel, framer, validated, logger, group, establish)
	group.add(clone)
	return clone, nil
}

// CloseGroup closes every member of c's group in an orderly fashion. If c
// does not belong to a group, it closes only c.
func (c *Connection) CloseGroup() {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group == nil {
		c.Close()
		return
	}
	group.Close()
}

// AbortGroup fate-shares an abort across every member of c's group, each
// closing with [ErrGroupAborted] as its reported cause. If c does not
// belong to a group, it aborts only c.
func (c *Connection) AbortGroup() {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()
	if group == nil {
		c.Abort()
		return
	}
	group.Abort()
}
