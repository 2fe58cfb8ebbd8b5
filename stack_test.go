// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// String renders each Layer as its lowercase wire name.
func TestLayerString(t *testing.T) {
	tests := []struct {
		layer Layer
		want  string
	}{
		{LayerUDP, "udp"},
		{LayerTCP, "tcp"},
		{LayerSCTP, "sctp"},
		{LayerQUIC, "quic"},
		{LayerTLS, "tls"},
		{LayerHTTP2, "http2"},
		{LayerHTTP3, "http3"},
		{LayerWebTransport, "webtransport"},
		{Layer(99), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.layer.String())
		})
	}
}

// String joins layers with "+", and reports "(empty)" for no layers.
func TestProtocolStackString(t *testing.T) {
	assert.Equal(t, "(empty)", ProtocolStack{}.String())
	assert.Equal(t, "tcp+tls", ProtocolStack{Layers: []Layer{LayerTCP, LayerTLS}}.String())
}

// hasLayer reports membership regardless of position.
func TestProtocolStackHasLayer(t *testing.T) {
	stack := ProtocolStack{Layers: []Layer{LayerTCP, LayerTLS}}
	assert.True(t, stack.hasLayer(LayerTCP))
	assert.True(t, stack.hasLayer(LayerTLS))
	assert.False(t, stack.hasLayer(LayerQUIC))
}

// baseNetwork maps the bottom layer to a net.Dialer-compatible network, or
// fails for quic and sctp (unsupported) and an empty stack (misconfigured).
func TestProtocolStackBaseNetwork(t *testing.T) {
	tests := []struct {
		name    string
		stack   ProtocolStack
		want    string
		wantErr error
	}{
		{"tcp", ProtocolStack{Layers: []Layer{LayerTCP}}, "tcp", nil},
		{"quic unsupported", ProtocolStack{Layers: []Layer{LayerQUIC}}, "", ErrNotSupported},
		{"udp", ProtocolStack{Layers: []Layer{LayerUDP}}, "udp", nil},
		{"sctp unsupported", ProtocolStack{Layers: []Layer{LayerSCTP}}, "", ErrNotSupported},
		{"empty stack", ProtocolStack{}, "", ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.stack.baseNetwork()
			assert.Equal(t, tt.want, got)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// SelectStacks returns only stacks that satisfy Require'd properties, and
// ranks by fewest layers first.
func TestSelectStacksReliabilityRequire(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = Require

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	require.NotEmpty(t, stacks)
	for _, s := range stacks {
		assert.NotEqual(t, LayerUDP, s.Layers[0], "udp cannot satisfy Require'd reliability")
	}
	assert.Equal(t, ProtocolStack{Layers: []Layer{LayerTCP}}, stacks[0], "tcp is cheaper than quic")
}

// Reliability Prohibit admits only udp-based stacks.
func TestSelectStacksReliabilityProhibit(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = Prohibit
	props.PreserveMsgBoundaries = NoPreference
	props.CongestionControl = NoPreference

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	require.Len(t, stacks, 1)
	assert.Equal(t, LayerUDP, stacks[0].Layers[0])
}

// PreserveMsgBoundaries Require excludes tcp (a byte stream, not a message
// transport).
func TestSelectStacksPreserveMsgBoundariesRequire(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = NoPreference
	props.PreserveMsgBoundaries = Require
	props.CongestionControl = NoPreference

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	for _, s := range stacks {
		assert.NotEqual(t, LayerTCP, s.Layers[0])
	}
}

// CongestionControl Require excludes raw udp.
func TestSelectStacksCongestionControlRequire(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = NoPreference
	props.PreserveMsgBoundaries = NoPreference
	props.CongestionControl = Require

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	for _, s := range stacks {
		assert.NotEqual(t, LayerUDP, s.Layers[0])
	}
}

// Contradictory requirements (reliability prohibited, congestion control
// required) leave no feasible base layer.
func TestSelectStacksNoFeasibleStack(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = Prohibit
	props.CongestionControl = Require

	_, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoFeasibleStack))
}

// Non-empty SecurityParameters appends a tls layer to every non-quic base.
func TestSelectStacksAppendsTLS(t *testing.T) {
	props := NewTransportProperties()
	sec := SecurityParameters{AllowedProtocols: []string{"TLS1.3"}}

	stacks, err := SelectStacks(props, sec, Candidate{}, Candidate{})
	require.NoError(t, err)
	for _, s := range stacks {
		if s.Layers[0] == LayerQUIC {
			assert.False(t, s.hasLayer(LayerTLS), "quic carries intrinsic security")
			continue
		}
		assert.True(t, s.hasLayer(LayerTLS))
	}
}

// ZeroRTT Require filters the base stack list down to quic only, since quic
// is the sole 0-RTT-capable base layer this implementation knows about.
func TestSelectStacksZeroRTTRequire(t *testing.T) {
	props := NewTransportProperties()
	props.ZeroRTT = Require

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	require.NotEmpty(t, stacks)
	for _, s := range stacks {
		assert.Equal(t, LayerQUIC, s.Layers[0])
	}
}

// ZeroRTT Require fails with ErrNoFeasibleStack when no quic candidate
// survives the other feasibility filters (here Reliability=Prohibit forces
// a udp-only base).
func TestSelectStacksZeroRTTRequireNoFeasibleStack(t *testing.T) {
	props := NewTransportProperties()
	props.Reliability = Prohibit
	props.ZeroRTT = Require

	_, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoFeasibleStack)
}

// MultipathMode other than disabled scores quic/sctp above tcp, without
// excluding tcp outright (the tcp+MPTCP mapping is left to the platform).
func TestSelectStacksMultipathPrefersQUIC(t *testing.T) {
	props := NewTransportProperties()
	props.MultipathMode = MultipathActive

	stacks, err := SelectStacks(props, SecurityParameters{}, Candidate{}, Candidate{})
	require.NoError(t, err)
	require.NotEmpty(t, stacks)
	assert.Equal(t, LayerQUIC, stacks[0].Layers[0])
}

// sortCandidateStacks sorts ascending by score and is a stable insertion
// sort, so equal scores keep their original relative order.
func TestSortCandidateStacks(t *testing.T) {
	candidates := []candidateStack{
		{stack: ProtocolStack{Layers: []Layer{LayerQUIC}}, score: 5},
		{stack: ProtocolStack{Layers: []Layer{LayerTCP}}, score: 10},
		{stack: ProtocolStack{Layers: []Layer{LayerUDP}}, score: 1},
	}
	sortCandidateStacks(candidates)

	require.Len(t, candidates, 3)
	assert.Equal(t, 1, candidates[0].score)
	assert.Equal(t, 5, candidates[1].score)
	assert.Equal(t, 10, candidates[2].score)
}
