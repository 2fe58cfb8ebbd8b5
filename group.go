// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "sync"

// ConnectionGroup holds a set of Connections created through
// [Connection.Clone]. [ConnectionGroup.Abort] aborts every member still
// open, each with [ErrGroupAborted] as its close cause, and
// [ConnectionGroup.Close] closes every member; a member that closes or
// aborts on its own only leaves the group.
//
// Clones may override Priority and TrafficClass on their
// [TransportProperties] (see [TransportProperties.WithPriority]); every
// other property must match the group's original, enforced by
// [TransportProperties.violatesGroupInvariant].
type ConnectionGroup struct {
	mu       sync.Mutex
	props    TransportProperties
	members  map[*Connection]struct{}
	aborting bool
}

// NewConnectionGroup returns an empty group sharing baseProps.
func NewConnectionGroup(baseProps TransportProperties) *ConnectionGroup {
	return &ConnectionGroup{props: baseProps, members: make(map[*Connection]struct{})}
}

// Clone validates that altered does not violate the group invariant and,
// if so, returns it unchanged so the caller can use it to establish a new
// group member.
func (g *ConnectionGroup) Clone(altered TransportProperties) (TransportProperties, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.props.violatesGroupInvariant(altered) {
		return TransportProperties{}, &ConfigurationError{Reason: "clone alters a property fixed for the connection group"}
	}
	return altered, nil
}

// add registers c as a member. Called once a cloned Connection has been
// established.
func (g *ConnectionGroup) add(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.aborting {
		return
	}
	g.members[c] = struct{}{}
}

// memberClosed is called by [Connection.Close] and [Connection.Abort] when
// a member finishes closing. It removes the member from the group; it does
// not itself trigger fate-sharing, since an orderly Close of one member
// should not tear down the others. Use [ConnectionGroup.Abort] to fate-share
// a failure.
func (g *ConnectionGroup) memberClosed(c *Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, c)
}

// Abort fate-shares an abort across every current member, each closing
// with [ErrGroupAborted] as the reported cause.
func (g *ConnectionGroup) Abort() {
	g.mu.Lock()
	g.aborting = true
	members := make([]*Connection, 0, len(g.members))
	for c := range g.members {
		members = append(members, c)
	}
	g.members = make(map[*Connection]struct{})
	g.mu.Unlock()

	for _, c := range members {
		c.mu.Lock()
		c.closeErr = ErrGroupAborted
		c.mu.Unlock()
		c.Abort()
	}
}

// Close closes every current member in an orderly fashion without marking
// the group as aborted.
func (g *ConnectionGroup) Close() {
	g.mu.Lock()
	members := make([]*Connection, 0, len(g.members))
	for c := range g.members {
		members = append(members, c)
	}
	g.members = make(map[*Connection]struct{})
	g.mu.Unlock()

	for _, c := range members {
		c.Close()
	}
}
