// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultStagger is the delay between successive racing attempts when a
// [Racer] has more than one candidate/stack pairing to try. It mirrors the
// Happy-Eyeballs connection-attempt delay recommended for TCP.
const DefaultStagger = 250 * time.Millisecond

// Racer races [ProtocolStack] establishment attempts across a
// [CandidateSet], returning the first successful [Channel] and cancelling
// every other in-flight attempt. Attempts start staggered by Stagger so
// that a fast early candidate does not have to share contention with a
// flood of simultaneous dials.
type Racer struct {
	Provider ChannelProvider
	Clock    Clock
	Stagger  time.Duration
	Logger   SLogger
}

// NewRacer returns a [*Racer] with the given [ChannelProvider]. A nil clock
// defaults to [NewRealClock]; a nil logger defaults to [DefaultSLogger].
// Stagger defaults to [DefaultStagger].
func NewRacer(provider ChannelProvider, clock Clock, logger SLogger) *Racer {
	if clock == nil {
		clock = NewRealClock()
	}
	if logger == nil {
		logger = DefaultSLogger()
	}
	return &Racer{Provider: provider, Clock: clock, Stagger: DefaultStagger, Logger: logger}
}

// attemptPlan is one (candidate, stack) pairing the Racer may try.
type attemptPlan struct {
	local  *Candidate
	remote Candidate
	stack  ProtocolStack
}

// raceResult is what one attempt goroutine reports back.
type raceResult struct {
	channel Channel
	plan    attemptPlan
	err     error
}

// Race runs every (candidate, stack) combination implied by candidates and
// stacks, staggered by r.Stagger, and returns the first Channel to
// establish successfully. All other in-flight attempts are cancelled via
// their per-attempt context. If every attempt fails, Race returns an
// [*EstablishmentFailure] aggregating the causes in start order. If ctx is
// done before any attempt succeeds, Race returns an
// [*EstablishmentTimeoutError].
func (r *Racer) Race(ctx context.Context, candidates CandidateSet, stacks []ProtocolStack,
	props TransportProperties, sec SecurityParameters, errClassifier ErrClassifier) (Channel, ProtocolStack, error) {

	if errClassifier == nil {
		errClassifier = DefaultErrClassifier
	}
	plans := buildAttemptPlans(candidates, stacks)
	if len(plans) == 0 {
		return nil, ProtocolStack{}, ErrNoFeasibleStack
	}

	start := r.Clock.Now()
	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan raceResult, len(plans))
	var wg sync.WaitGroup

	// released[i] is closed by attempt i-1 the moment it fails, so attempt
	// i does not have to sit out the rest of its stagger delay once it's
	// already known an earlier slot is free.
	released := make([]chan struct{}, len(plans))
	for i := range released {
		released[i] = make(chan struct{})
	}

	for i, plan := range plans {
		wg.Add(1)
		go func(i int, plan attemptPlan) {
			defer wg.Done()
			if i > 0 {
				select {
				case <-raceCtx.Done():
					results <- raceResult{plan: plan, err: raceCtx.Err()}
					return
				case <-r.Clock.After(time.Duration(i) * r.Stagger):
				case <-released[i]:
				}
			}
			r.Logger.Info("establishmentAttemptStart",
				slog.String("stack", plan.stack.String()))
			channel, err := r.Provider.Connect(raceCtx, plan.local, plan.remote, plan.stack, props, sec)
			results <- raceResult{channel: channel, plan: plan, err: err}
			if err != nil && i+1 < len(released) {
				close(released[i+1])
			}
		}(i, plan)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var causes []AttemptFailure
	for res := range results {
		if res.err == nil {
			cancel()
			r.Logger.Info("establishmentAttemptWon",
				slog.String("stack", res.plan.stack.String()))
			go drainLosers(results)
			return res.channel, res.plan.stack, nil
		}
		causes = append(causes, AttemptFailure{
			Stack:    res.plan.stack,
			Err:      res.err,
			ErrClass: errClassifier.Classify(res.err),
		})
		if ctx.Err() != nil {
			break
		}
	}

	if ctx.Err() != nil {
		return nil, ProtocolStack{}, &EstablishmentTimeoutError{Elapsed: r.Clock.Now().Sub(start).String()}
	}
	return nil, ProtocolStack{}, &EstablishmentFailure{Causes: causes}
}

// drainLosers closes every channel a losing attempt manages to establish
// after the race has already been decided, so no connection leaks.
func drainLosers(results <-chan raceResult) {
	for res := range results {
		if res.channel != nil {
			res.channel.Abort()
		}
	}
}

func buildAttemptPlans(candidates CandidateSet, stacks []ProtocolStack) []attemptPlan {
	var plans []attemptPlan
	locals := candidates.Local
	if len(locals) == 0 {
		locals = []Candidate{{}}
	}
	for _, remote := range candidates.Remote {
		for _, stack := range stacks {
			local := locals[0]
			plans = append(plans, attemptPlan{local: &local, remote: remote, stack: stack})
		}
	}
	return plans
}
