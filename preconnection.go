// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"log/slog"
)

// Preconnection gathers everything needed to attempt establishment before
// any network resource exists: candidate endpoints, the properties and
// security parameters the resulting Connection must satisfy, and the
// collaborators (resolver, channel provider, racer) that do the actual
// work. Constructing a Preconnection performs no I/O.
type Preconnection struct {
	LocalEndpoints  []Endpoint
	RemoteEndpoints []Endpoint
	Properties      TransportProperties
	Security        SecurityParameters

	Resolver ChannelResolver
	Provider ChannelProvider
	Clock    Clock
	Logger   SLogger

	FramerFactory func() Framer
	ErrClassifier ErrClassifier
}

// ChannelResolver is the subset of [*Resolver]'s surface a [Preconnection]
// depends on, so tests can substitute a fake without a real [NameResolver].
type ChannelResolver interface {
	Resolve(ctx context.Context, locals, remotes []Endpoint) (CandidateSet, error)
}

// NewPreconnection returns a [*Preconnection] for the given local and
// remote endpoints with the recommended [NewTransportProperties] defaults
// and no security. Every collaborator defaults to its package-level
// default (a real [Resolver], [NewDefaultChannelProvider], [NewRealClock],
// [DefaultSLogger]) and can be overridden on the returned value before
// calling Initiate, Listen, or Rendezvous.
func NewPreconnection(locals, remotes []Endpoint) *Preconnection {
	logger := DefaultSLogger()
	cfg := NewConfig()
	return &Preconnection{
		LocalEndpoints:  locals,
		RemoteEndpoints: remotes,
		Properties:      NewTransportProperties(),
		Resolver:        NewResolver(nil, nil, logger),
		Provider:        NewDefaultChannelProvider(cfg, logger),
		Clock:           NewRealClock(),
		Logger:          logger,
		ErrClassifier:   cfg.ErrClassifier,
	}
}

func (p *Preconnection) remoteCandidate() (Candidate, error) {
	if len(p.RemoteEndpoints) == 0 {
		return Candidate{}, &ConfigurationError{Reason: "no remote endpoint to establish to"}
	}
	return Candidate{Endpoint: p.RemoteEndpoints[0]}, nil
}

func (p *Preconnection) localCandidate() *Candidate {
	if len(p.LocalEndpoints) == 0 {
		return nil
	}
	return &Candidate{Endpoint: p.LocalEndpoints[0]}
}

func (p *Preconnection) framer() Framer {
	if p.FramerFactory != nil {
		return p.FramerFactory()
	}
	return NewLengthPrefixFramer(DefaultMaxFrameSize)
}

// Initiate performs an active open: resolve the configured endpoints,
// select feasible protocol stacks, race attempts across every resolved
// candidate, and return the winning [*Connection].
func (p *Preconnection) Initiate(ctx context.Context) (*Connection, error) {
	candidates, err := p.Resolver.Resolve(ctx, p.LocalEndpoints, p.RemoteEndpoints)
	if err != nil {
		return nil, err
	}
	if len(candidates.Remote) == 0 {
		return nil, &ConfigurationError{Reason: "no remote candidates resolved"}
	}

	local := p.localCandidate()
	if local == nil && len(candidates.Local) > 0 {
		local = &candidates.Local[0]
	}
	remote := candidates.Remote[0]

	stacks, err := SelectStacks(p.Properties, p.Security, derefCandidate(local), remote)
	if err != nil {
		return nil, err
	}

	racer := NewRacer(p.Provider, p.Clock, p.Logger)
	scoped := candidates
	if local != nil {
		scoped.Local = []Candidate{*local}
	}

	channel, stack, err := racer.Race(ctx, scoped, stacks, p.Properties, p.Security, p.ErrClassifier)
	if err != nil {
		return nil, err
	}
	p.Logger.Info("establishmentDone", slog.String("stack", stack.String()))
	establish := &stackEstablisher{
		provider: p.Provider,
		primary:  channel,
		local:    local,
		remote:   remote,
		stack:    stack,
		sec:      p.Security,
	}
	return newConnection(channel, p.framer(), p.Properties, p.Logger, nil, establish), nil
}

// stackEstablisher is the [connectionEstablisher] a successful
// [Preconnection.Initiate] attaches to its Connection so it can be cloned
// later. If stack multiplexes (quic, http/2, sctp) and the provider
// implements the optional [streamOpener] capability, the clone opens a new
// stream on the already-established primary channel; otherwise it dials a
// fresh Channel to the same remote with the clone's properties.
type stackEstablisher struct {
	provider ChannelProvider
	primary  Channel
	local    *Candidate
	remote   Candidate
	stack    ProtocolStack
	sec      SecurityParameters
}

// streamOpener is an optional [ChannelProvider] capability: providers for
// multiplexing stacks (quic, http/2, sctp) may implement it to hand out a
// new stream on an already-established Channel instead of dialing again. The
// default, net.Conn-backed provider does not implement it, so clones of a
// plain TCP/TLS connection always fall back to a fresh dial.
type streamOpener interface {
	OpenStream(ctx context.Context, primary Channel, props TransportProperties) (Channel, error)
}

func (e *stackEstablisher) establishClone(ctx context.Context, props TransportProperties) (Channel, error) {
	multiplexed := e.stack.hasLayer(LayerQUIC) || e.stack.hasLayer(LayerHTTP2) || e.stack.hasLayer(LayerSCTP)
	if multiplexed {
		if opener, ok := e.provider.(streamOpener); ok {
			return opener.OpenStream(ctx, e.primary, props)
		}
	}
	return e.provider.Connect(ctx, e.local, e.remote, e.stack, props, e.sec)
}

// InitiateWithSend is [Preconnection.Initiate] followed by an immediate
// Send of msg once the Connection is established. If msg.Context's
// SafelyReplayable is false but p.Properties.ZeroRTT is Require, the send
// fails with [ErrMessageNotSafelyReplayable] without ever establishing a
// Connection, since the only feasible stacks would all be 0-RTT ones.
func (p *Preconnection) InitiateWithSend(ctx context.Context, msg Message) (*Connection, error) {
	if p.Properties.ZeroRTT == Require && !msg.Context.SafelyReplayable {
		return nil, ErrMessageNotSafelyReplayable
	}
	conn, err := p.Initiate(ctx)
	if err != nil {
		return nil, err
	}
	if err := conn.Send(ctx, msg); err != nil {
		conn.Abort()
		return nil, err
	}
	return conn, nil
}

// Listen performs a passive open: resolve the configured local endpoints,
// bind a [ServerChannel] for the first feasible stack, and return a
// [*Listener] driving its accept loop.
func (p *Preconnection) Listen(ctx context.Context) (*Listener, error) {
	candidates, err := p.Resolver.Resolve(ctx, p.LocalEndpoints, nil)
	if err != nil {
		return nil, err
	}
	var local Candidate
	if len(candidates.Local) > 0 {
		local = candidates.Local[0]
	}

	stacks, err := SelectStacks(p.Properties, p.Security, local, Candidate{})
	if err != nil {
		return nil, err
	}
	if len(stacks) == 0 {
		return nil, ErrNoFeasibleStack
	}

	server, err := p.Provider.Bind(ctx, local, stacks[0], p.Properties, p.Security)
	if err != nil {
		return nil, err
	}
	return NewListener(server, p.FramerFactory, p.Properties, p.Logger, 0), nil
}

// Rendezvous performs simultaneous active and passive open: Initiate races
// against Listen's first accepted Connection, returning whichever
// establishes first (see [rendezvous] for the tie-break rule). Rendezvous
// requires at least one local and one remote endpoint; either being empty
// fails fast with [*ConfigurationError] before any network activity.
func (p *Preconnection) Rendezvous(ctx context.Context) (*Connection, error) {
	if len(p.LocalEndpoints) == 0 || len(p.RemoteEndpoints) == 0 {
		return nil, &ConfigurationError{Reason: "rendezvous requires at least one local and one remote endpoint"}
	}
	return rendezvous(ctx, p.Initiate, func(ctx context.Context) (*Connection, error) {
		listener, err := p.Listen(ctx)
		if err != nil {
			return nil, err
		}
		select {
		case conn, ok := <-listener.Accepted():
			if !ok {
				return nil, <-listener.Errs()
			}
			return conn, nil
		case <-ctx.Done():
			listener.Stop()
			return nil, ctx.Err()
		}
	})
}

func derefCandidate(c *Candidate) Candidate {
	if c == nil {
		return Candidate{}
	}
	return *c
}
