// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"time"
)

// simultaneousWindow bounds how long rendezvous waits after an inbound
// success before committing to it, giving a near-simultaneous outbound
// success the chance to win the tie-break instead.
const simultaneousWindow = 20 * time.Millisecond

// rendezvousSide tags which half of a [rendezvous] produced a result, used
// only to break a simultaneous-success tie.
type rendezvousSide int

const (
	sideOutbound rendezvousSide = iota
	sideInbound
)

type rendezvousResult struct {
	side rendezvousSide
	conn *Connection
	err  error
}

// rendezvous races an active-open attempt (initiate) against a passive-open
// attempt (listen), returning whichever establishes first. If both
// establish at effectively the same time, the outbound (initiate) side
// wins and the inbound side's Connection is aborted, since the initiator
// is the side that is also responsible for any pre-established-connection
// framing negotiation. If both sides fail, the errors are aggregated into
// a single [*EstablishmentFailure].
func rendezvous(ctx context.Context, initiate, listen func(ctx context.Context) (*Connection, error)) (*Connection, error) {
	resultCh := make(chan rendezvousResult, 2)
	rendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		conn, err := initiate(rendCtx)
		resultCh <- rendezvousResult{side: sideOutbound, conn: conn, err: err}
	}()
	go func() {
		conn, err := listen(rendCtx)
		resultCh <- rendezvousResult{side: sideInbound, conn: conn, err: err}
	}()

	first := <-resultCh
	if first.err == nil {
		if first.side == sideOutbound {
			cancel()
			go discardRendezvousLoser(resultCh)
			return first.conn, nil
		}
		// Inbound succeeded first; give a near-simultaneous outbound
		// success a brief window to win the tie-break before committing.
		select {
		case second := <-resultCh:
			if second.err == nil && second.side == sideOutbound {
				first.conn.Abort()
				return second.conn, nil
			}
			cancel()
			return first.conn, nil
		case <-time.After(simultaneousWindow):
			cancel()
			go discardRendezvousLoser(resultCh)
			return first.conn, nil
		}
	}

	second := <-resultCh
	if second.err == nil {
		return second.conn, nil
	}

	causes := []AttemptFailure{
		{Err: first.err, ErrClass: ""},
		{Err: second.err, ErrClass: ""},
	}
	return nil, &EstablishmentFailure{Causes: causes}
}

// discardRendezvousLoser closes the losing side's Connection if it manages
// to establish after the race has already been decided.
func discardRendezvousLoser(resultCh <-chan rendezvousResult) {
	loser := <-resultCh
	if loser.conn != nil {
		loser.conn.Abort()
	}
}
