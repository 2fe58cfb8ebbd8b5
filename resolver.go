// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"log/slog"
	"net/netip"
)

// Resolver turns the [Endpoint]s of a [Preconnection] into a [CandidateSet].
// Remote host-and-port endpoints are resolved with a [NameResolver];
// remote ip-and-port and Bluetooth endpoints pass through unchanged. Local
// host-and-port endpoints with an empty host expand through an
// [InterfaceEnumerator], limited to the named interface when one is set;
// other local host-and-port endpoints are resolved with the [NameResolver].
//
// A Resolver is safe to reuse across [Preconnection]s; it holds no
// per-resolution state.
type Resolver struct {
	NameResolver NameResolver
	Interfaces   InterfaceEnumerator
	Logger       SLogger
}

// NewResolver returns a [*Resolver] with the given collaborators. A nil
// nameResolver defaults to [NewDefaultNameResolver]; a nil ifaces defaults
// to [NewDefaultInterfaceEnumerator]; a nil logger defaults to
// [DefaultSLogger].
func NewResolver(nameResolver NameResolver, ifaces InterfaceEnumerator, logger SLogger) *Resolver {
	if nameResolver == nil {
		nameResolver = NewDefaultNameResolver()
	}
	if ifaces == nil {
		ifaces = NewDefaultInterfaceEnumerator(nil)
	}
	if logger == nil {
		logger = DefaultSLogger()
	}
	return &Resolver{NameResolver: nameResolver, Interfaces: ifaces, Logger: logger}
}

// Resolve resolves every endpoint in locals and remotes into a
// [CandidateSet]. Remote resolution failures are tolerated individually:
// Resolve only fails with a [*ResolutionFailure] when every remote endpoint
// fails to resolve. Local resolution failures are always tolerated — a
// Local endpoint that cannot be expanded is simply dropped, since the
// Stack Selector and Racer can still attempt without a bound local address.
func (r *Resolver) Resolve(ctx context.Context, locals, remotes []Endpoint) (CandidateSet, error) {
	var set CandidateSet

	for _, ep := range locals {
		cands, err := r.resolveLocal(ctx, ep)
		if err != nil {
			r.Logger.Info("localResolutionSkipped", slog.String("err", err.Error()))
			continue
		}
		set.Local = append(set.Local, cands...)
	}
	sortByPriority(set.Local)

	var causes []error
	for _, ep := range remotes {
		cands, err := r.resolveRemote(ctx, ep)
		if err != nil {
			causes = append(causes, err)
			continue
		}
		set.Remote = append(set.Remote, cands...)
	}
	if len(remotes) > 0 && len(set.Remote) == 0 {
		return CandidateSet{}, &ResolutionFailure{Causes: causes}
	}
	sortByPriority(set.Remote)

	return set, nil
}

func (r *Resolver) resolveRemote(ctx context.Context, ep Endpoint) ([]Candidate, error) {
	switch ep.Kind {
	case EndpointIPPort:
		addr := netip.AddrPortFrom(ep.IP, ep.Port)
		return []Candidate{{Endpoint: ep, Addrs: []netip.AddrPort{addr}, Priority: 0}}, nil
	case EndpointBluetoothPeripheral, EndpointBluetoothService:
		return []Candidate{{Endpoint: ep, Priority: 0}}, nil
	case EndpointHostPort:
		addrs, err := r.NameResolver.Resolve(ctx, ep.Host, ep.Port)
		if err != nil {
			return nil, err
		}
		if len(addrs) == 0 {
			return nil, &ConfigurationError{Reason: "resolver returned no addresses for " + ep.Host}
		}
		return candidatesFromAddrs(ep, addrs), nil
	default:
		return nil, &ConfigurationError{Reason: "unknown endpoint kind"}
	}
}

func (r *Resolver) resolveLocal(ctx context.Context, ep Endpoint) ([]Candidate, error) {
	switch ep.Kind {
	case EndpointIPPort:
		addr := netip.AddrPortFrom(ep.IP, ep.Port)
		return []Candidate{{Endpoint: ep, Addrs: []netip.AddrPort{addr}, Priority: 0}}, nil
	case EndpointBluetoothPeripheral, EndpointBluetoothService:
		return []Candidate{{Endpoint: ep, Priority: 0}}, nil
	case EndpointHostPort:
		if ep.IsWildcard() {
			return r.resolveWildcard(ctx, ep)
		}
		addrs, err := r.NameResolver.Resolve(ctx, ep.Host, ep.Port)
		if err != nil {
			return nil, err
		}
		return candidatesFromAddrs(ep, addrs), nil
	default:
		return nil, &ConfigurationError{Reason: "unknown endpoint kind"}
	}
}

func (r *Resolver) resolveWildcard(ctx context.Context, ep Endpoint) ([]Candidate, error) {
	ifaces, err := r.Interfaces.List(ctx)
	if err != nil {
		return nil, err
	}
	var addrs []netip.AddrPort
	for _, iface := range ifaces {
		if !iface.Up {
			continue
		}
		if ep.InterfaceName != "" && iface.Name != ep.InterfaceName {
			continue
		}
		for _, a := range iface.Addresses {
			addrs = append(addrs, netip.AddrPortFrom(a, ep.Port))
		}
	}
	if len(addrs) == 0 {
		// No matching interface address; the zero-value AddrPort still lets
		// the default ChannelProvider bind the OS wildcard address (":port").
		return []Candidate{{Endpoint: ep, Priority: 0}}, nil
	}
	return candidatesFromAddrs(ep, addrs), nil
}
