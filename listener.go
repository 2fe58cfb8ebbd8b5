// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"sync"
	"time"
)

// DefaultMaxConnections bounds how many simultaneously open Connections a
// [Listener] accepts before silently closing further incoming attempts,
// when the caller does not configure MaxConnections explicitly.
const DefaultMaxConnections = 1024

// Listener drives the passive-open accept loop for a bound
// [ServerChannel]: every accepted raw channel has its framer installed and
// is delivered on the channel returned by Accepted.
type Listener struct {
	server        ServerChannel
	framer        func() Framer
	props         TransportProperties
	logger        SLogger
	group         *ConnectionGroup
	maxConns      int
	accepted      chan *Connection
	errs          chan error
	stop          chan struct{}
	stopOnce      sync.Once
	activeMu      sync.Mutex
	activeCount   int
}

// NewListener returns a [*Listener] bound to server. framerFactory builds
// a fresh [Framer] per accepted connection (a Framer may hold per-message
// state); a nil factory defaults to a new [NewLengthPrefixFramer] for
// every connection. maxConns <= 0 uses [DefaultMaxConnections].
func NewListener(server ServerChannel, framerFactory func() Framer, props TransportProperties, logger SLogger, maxConns int) *Listener {
	if framerFactory == nil {
		framerFactory = func() Framer { return NewLengthPrefixFramer(DefaultMaxFrameSize) }
	}
	if logger == nil {
		logger = DefaultSLogger()
	}
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	l := &Listener{
		server:   server,
		framer:   framerFactory,
		props:    props,
		logger:   logger,
		maxConns: maxConns,
		accepted: make(chan *Connection, 16),
		errs:     make(chan error, 1),
		stop:     make(chan struct{}),
	}
	go l.run()
	return l
}

// Accepted returns the stream of accepted, framer-equipped Connections, in
// the order the OS handed the underlying sockets to the accept loop.
func (l *Listener) Accepted() <-chan *Connection {
	return l.accepted
}

// Errs returns fatal accept-loop errors (e.g. the listening socket itself
// failed); the loop exits after reporting one.
func (l *Listener) Errs() <-chan error {
	return l.errs
}

// Stop closes the bound ServerChannel and ends the accept loop.
func (l *Listener) Stop() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return l.server.Close()
}

func (l *Listener) run() {
	ctx := context.Background()
	for {
		select {
		case <-l.stop:
			close(l.accepted)
			return
		default:
		}

		channel, err := l.server.Accept(ctx)
		if err != nil {
			select {
			case <-l.stop:
				close(l.accepted)
				return
			default:
			}
			l.errs <- err
			close(l.accepted)
			return
		}

		l.activeMu.Lock()
		full := l.activeCount >= l.maxConns
		if !full {
			l.activeCount++
		}
		l.activeMu.Unlock()

		if full {
			l.logger.Info("acceptRejectedConnectionLimit")
			channel.Abort()
			continue
		}

		// Accepted connections have no establisher: a passive-open Connection
		// has no remote Candidate or stack recorded to re-dial from, so it
		// cannot be cloned.
		conn := newConnection(channel, l.framer(), l.props, l.logger, l.group, nil)
		go l.watchForClose(conn)

		select {
		case l.accepted <- conn:
		case <-l.stop:
			conn.Abort()
			close(l.accepted)
			return
		}
	}
}

// watchForClose polls conn's state rather than consuming conn.Events(),
// since Events is a single-reader stream the accepted Connection's owner
// needs for itself.
func (l *Listener) watchForClose(conn *Connection) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if conn.State() == StateClosed {
			l.activeMu.Lock()
			l.activeCount--
			l.activeMu.Unlock()
			return
		}
	}
}
