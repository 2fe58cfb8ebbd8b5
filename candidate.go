// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"net/netip"
	"sort"
)

// Candidate is a resolved [Endpoint]: the endpoint plus zero-or-more
// concrete socket addresses, and a priority (lower = preferred). Candidates
// are produced by the [Resolver]; they never own network resources
// themselves.
type Candidate struct {
	Endpoint Endpoint

	// Addrs holds concrete IPv4/IPv6 addresses with port for
	// EndpointHostPort/EndpointIPPort endpoints. Empty for Bluetooth
	// endpoints, whose addressing is opaque to the core.
	Addrs []netip.AddrPort

	// Priority orders candidates relative to each other; lower is
	// preferred. The Resolver assigns this using Happy-Eyeballs ordering
	// for DNS-sourced candidates.
	Priority int
}

// CandidateSet is the Resolver's output: local and remote candidates plus
// their priority ordering.
type CandidateSet struct {
	Local  []Candidate
	Remote []Candidate
}

// interleaveHappyEyeballs reorders addrs so that IPv6 and IPv4 alternate,
// IPv6 first, breaking ties by the order the resolver returned them in. It
// is a pure function so it can be unit tested independently of any
// particular [NameResolver].
func interleaveHappyEyeballs(addrs []netip.AddrPort) []netip.AddrPort {
	var v6, v4 []netip.AddrPort
	for _, a := range addrs {
		if a.Addr().Is4() || a.Addr().Is4In6() {
			v4 = append(v4, a)
		} else {
			v6 = append(v6, a)
		}
	}
	out := make([]netip.AddrPort, 0, len(addrs))
	for i := 0; i < len(v6) || i < len(v4); i++ {
		if i < len(v6) {
			out = append(out, v6[i])
		}
		if i < len(v4) {
			out = append(out, v4[i])
		}
	}
	return out
}

// candidatesFromAddrs builds a priority-ordered Candidate list for a single
// remote Endpoint from its resolved, Happy-Eyeballs-interleaved addresses.
func candidatesFromAddrs(endpoint Endpoint, addrs []netip.AddrPort) []Candidate {
	ordered := interleaveHappyEyeballs(addrs)
	out := make([]Candidate, 0, len(ordered))
	for i, a := range ordered {
		out = append(out, Candidate{
			Endpoint: endpoint,
			Addrs:    []netip.AddrPort{a},
			Priority: i,
		})
	}
	return out
}

// sortByPriority sorts candidates ascending by Priority (lower = preferred),
// stable so equal-priority candidates keep their relative resolver order.
func sortByPriority(cands []Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].Priority < cands[j].Priority
	})
}
