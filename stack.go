// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "strings"

// Layer names one protocol or security layer in a [ProtocolStack].
type Layer int

const (
	LayerUDP Layer = iota
	LayerTCP
	LayerSCTP
	LayerQUIC
	LayerTLS
	LayerHTTP2
	LayerHTTP3
	LayerWebTransport
)

// String implements [fmt.Stringer].
func (l Layer) String() string {
	switch l {
	case LayerUDP:
		return "udp"
	case LayerTCP:
		return "tcp"
	case LayerSCTP:
		return "sctp"
	case LayerQUIC:
		return "quic"
	case LayerTLS:
		return "tls"
	case LayerHTTP2:
		return "http2"
	case LayerHTTP3:
		return "http3"
	case LayerWebTransport:
		return "webtransport"
	default:
		return "unknown"
	}
}

// ProtocolStack is an ordered list of layers, bottom to top, that the
// [Racer] attempts as a unit: e.g. {tcp, tls} for TLS-over-TCP, {udp} for
// raw datagrams, {quic} for a self-contained QUIC transport.
type ProtocolStack struct {
	Layers []Layer
}

// String renders the stack as "layer1+layer2+...", e.g. "tcp+tls".
func (s ProtocolStack) String() string {
	if len(s.Layers) == 0 {
		return "(empty)"
	}
	parts := make([]string, len(s.Layers))
	for i, l := range s.Layers {
		parts[i] = l.String()
	}
	return strings.Join(parts, "+")
}

// hasLayer reports whether s includes l.
func (s ProtocolStack) hasLayer(l Layer) bool {
	for _, have := range s.Layers {
		if have == l {
			return true
		}
	}
	return false
}

// baseNetwork returns the [net.Dialer]-compatible network name ("tcp",
// "udp") for the stack's bottom layer, the only layer the default
// [ChannelProvider] dials directly; everything above it is negotiated on
// top of the resulting byte stream or datagram socket.
func (s ProtocolStack) baseNetwork() (string, error) {
	if len(s.Layers) == 0 {
		return "", &ConfigurationError{Reason: "empty protocol stack"}
	}
	switch s.Layers[0] {
	case LayerTCP:
		return "tcp", nil
	case LayerQUIC:
		// The default provider has no QUIC dialer; a QUIC-capable
		// ChannelProvider overrides Connect entirely and never calls
		// baseNetwork.
		return "", ErrNotSupported
	case LayerUDP:
		return "udp", nil
	case LayerSCTP:
		return "", ErrNotSupported
	default:
		return "", &ConfigurationError{Reason: "stack must begin with udp, tcp, sctp, or quic, got " + s.Layers[0].String()}
	}
}

// candidateStack pairs a feasible ProtocolStack with the score
// [SelectStacks] computed for it, used only to sort the returned list.
type candidateStack struct {
	stack ProtocolStack
	score int
}

// SelectStacks enumerates the [ProtocolStack]s that satisfy props and sec,
// ranked best-first. It is a pure function of its inputs: given the same
// TransportProperties, SecurityParameters and Candidate pair it always
// returns the same ranked list, which is what lets the [Racer] be tested
// without a network.
//
// Feasibility looks only at Reliability (Require keeps tcp and quic,
// Prohibit keeps udp) and at a Require'd PreserveMsgBoundaries,
// CongestionControl or ZeroRTT; no other Require'd or Prohibit'd property
// excludes a stack. Feasible stacks are ranked by scoreStack (lowest first):
// fewer layers, quic when ZeroRTT is Prefer'd or Require'd, and quic or sctp
// when multipath is requested. Other Prefer'd or Avoid'd properties do not
// affect the rank, and equal scores keep the base order.
func SelectStacks(props TransportProperties, sec SecurityParameters, local, remote Candidate) ([]ProtocolStack, error) {
	var base [][]Layer

	switch props.Reliability {
	case Require:
		base = [][]Layer{{LayerTCP}, {LayerQUIC}}
	case Prohibit:
		base = [][]Layer{{LayerUDP}}
	default:
		base = [][]Layer{{LayerTCP}, {LayerQUIC}, {LayerUDP}}
	}

	if props.PreserveMsgBoundaries == Require {
		base = filterBase(base, func(l []Layer) bool {
			return l[0] == LayerQUIC || l[0] == LayerUDP
		})
	}

	if props.CongestionControl == Require {
		base = filterBase(base, func(l []Layer) bool {
			return l[0] != LayerUDP
		})
	}

	if props.ZeroRTT == Require {
		// quic is the only base layer offering 0-RTT resumption in this
		// implementation (see scoreStack); a stack list with no quic
		// candidate at all cannot satisfy a Required zero-rtt property, so
		// fail here instead of scoring and returning an infeasible stack.
		base = filterBase(base, func(l []Layer) bool {
			return l[0] == LayerQUIC
		})
	}

	if len(base) == 0 {
		return nil, ErrNoFeasibleStack
	}

	var candidates []candidateStack
	for _, layers := range base {
		stack := ProtocolStack{Layers: append([]Layer{}, layers...)}
		if !sec.Empty() && stack.Layers[0] != LayerQUIC {
			stack.Layers = append(stack.Layers, LayerTLS)
		}
		score := scoreStack(stack, props)
		candidates = append(candidates, candidateStack{stack: stack, score: score})
	}

	if len(candidates) == 0 {
		return nil, ErrNoFeasibleStack
	}

	sortCandidateStacks(candidates)

	out := make([]ProtocolStack, len(candidates))
	for i, c := range candidates {
		out[i] = c.stack
	}
	return out, nil
}

func filterBase(base [][]Layer, keep func([]Layer) bool) [][]Layer {
	var out [][]Layer
	for _, l := range base {
		if keep(l) {
			out = append(out, l)
		}
	}
	return out
}

// scoreStack rewards fewer layers (cheaper to establish), rewards matching
// a Prefer'd or Require'd ZeroRTT when the stack is quic (the only base
// layer offering 0-RTT resumption in this implementation), and rewards
// quic/sctp when the caller asked for any multipath mode other than
// disabled, since those are the only base layers this implementation
// considers multipath-capable; tcp stacks get no multipath adjustment.
func scoreStack(stack ProtocolStack, props TransportProperties) int {
	score := len(stack.Layers) * 10
	if (props.ZeroRTT == Prefer || props.ZeroRTT == Require) && stack.hasLayer(LayerQUIC) {
		score -= 5
	}
	if props.MultipathMode != MultipathDisabled && (stack.hasLayer(LayerQUIC) || stack.hasLayer(LayerSCTP)) {
		score -= 5
	}
	return score
}

func sortCandidateStacks(candidates []candidateStack) {
	for i := 1; i < len(candidates); i++ {
		for j := i; j > 0 && candidates[j].score < candidates[j-1].score; j-- {
			candidates[j], candidates[j-1] = candidates[j-1], candidates[j]
		}
	}
}
