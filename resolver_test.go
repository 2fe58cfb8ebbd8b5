// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// funcNameResolver adapts a function to NameResolver for test doubles.
type funcNameResolver struct {
	fn func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error)
}

func (r *funcNameResolver) Resolve(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
	return r.fn(ctx, host, port)
}

// funcInterfaceEnumerator adapts a function to InterfaceEnumerator.
type funcInterfaceEnumerator struct {
	fn func(ctx context.Context) ([]InterfaceInfo, error)
}

func (e *funcInterfaceEnumerator) List(ctx context.Context) ([]InterfaceInfo, error) {
	return e.fn(ctx)
}

// NewResolver defaults every nil collaborator.
func TestNewResolverDefaults(t *testing.T) {
	r := NewResolver(nil, nil, nil)
	require.NotNil(t, r.NameResolver)
	require.NotNil(t, r.Interfaces)
	require.NotNil(t, r.Logger)
}

// Resolve passes ip-and-port endpoints straight through with no lookup.
func TestResolverResolveIPPortPassthrough(t *testing.T) {
	r := NewResolver(&funcNameResolver{fn: func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
		t.Fatal("should not call NameResolver for an ip-port endpoint")
		return nil, nil
	}}, nil, DefaultSLogger())

	remote := NewIPPortEndpoint(RoleRemote, netip.MustParseAddr("93.184.216.34"), 443)
	set, err := r.Resolve(context.Background(), nil, []Endpoint{remote})
	require.NoError(t, err)
	require.Len(t, set.Remote, 1)
	assert.Equal(t, netip.MustParseAddrPort("93.184.216.34:443"), set.Remote[0].Addrs[0])
}

// Resolve looks up host-port remote endpoints through the NameResolver.
func TestResolverResolveRemoteHostPort(t *testing.T) {
	r := NewResolver(&funcNameResolver{fn: func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
		assert.Equal(t, "example.com", host)
		assert.Equal(t, uint16(443), port)
		return []netip.AddrPort{netip.MustParseAddrPort("1.2.3.4:443")}, nil
	}}, nil, DefaultSLogger())

	remote := NewHostPortEndpoint(RoleRemote, "example.com", 443)
	set, err := r.Resolve(context.Background(), nil, []Endpoint{remote})
	require.NoError(t, err)
	require.Len(t, set.Remote, 1)
	assert.Equal(t, netip.MustParseAddrPort("1.2.3.4:443"), set.Remote[0].Addrs[0])
}

// Resolve tolerates some remote endpoints failing to resolve, as long as at
// least one succeeds.
func TestResolverResolveRemotePartialFailureTolerated(t *testing.T) {
	calls := 0
	r := NewResolver(&funcNameResolver{fn: func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
		calls++
		if host == "bad.example.com" {
			return nil, errors.New("no such host")
		}
		return []netip.AddrPort{netip.MustParseAddrPort("1.2.3.4:443")}, nil
	}}, nil, DefaultSLogger())

	remotes := []Endpoint{
		NewHostPortEndpoint(RoleRemote, "bad.example.com", 443),
		NewHostPortEndpoint(RoleRemote, "good.example.com", 443),
	}
	set, err := r.Resolve(context.Background(), nil, remotes)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, set.Remote, 1)
}

// Resolve fails with a ResolutionFailure only when every remote endpoint
// fails to resolve.
func TestResolverResolveAllRemoteFail(t *testing.T) {
	r := NewResolver(&funcNameResolver{fn: func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
		return nil, errors.New("no such host")
	}}, nil, DefaultSLogger())

	remotes := []Endpoint{
		NewHostPortEndpoint(RoleRemote, "a.example.com", 443),
		NewHostPortEndpoint(RoleRemote, "b.example.com", 443),
	}
	_, err := r.Resolve(context.Background(), nil, remotes)
	require.Error(t, err)

	var resFail *ResolutionFailure
	require.ErrorAs(t, err, &resFail)
	assert.Len(t, resFail.Causes, 2)
}

// Resolve drops a local endpoint that fails to resolve instead of failing
// the whole call.
func TestResolverResolveLocalFailureTolerated(t *testing.T) {
	r := NewResolver(&funcNameResolver{fn: func(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
		return nil, errors.New("interface not found")
	}}, nil, DefaultSLogger())

	local := NewHostPortEndpoint(RoleLocal, "missing.example.com", 0)
	set, err := r.Resolve(context.Background(), []Endpoint{local}, nil)
	require.NoError(t, err)
	assert.Empty(t, set.Local)
}

// Resolve expands a wildcard local endpoint through the InterfaceEnumerator,
// filtering to interfaces that are up.
func TestResolverResolveWildcardLocal(t *testing.T) {
	ifaces := &funcInterfaceEnumerator{fn: func(ctx context.Context) ([]InterfaceInfo, error) {
		return []InterfaceInfo{
			{Name: "eth0", Up: true, Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.5")}},
			{Name: "eth1", Up: false, Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.6")}},
		}, nil
	}}
	r := NewResolver(nil, ifaces, DefaultSLogger())

	local := NewHostPortEndpoint(RoleLocal, "", 8080)
	set, err := r.Resolve(context.Background(), []Endpoint{local}, nil)
	require.NoError(t, err)
	require.Len(t, set.Local, 1)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.5:8080"), set.Local[0].Addrs[0])
}

// Resolve restricts wildcard expansion to the named interface when set.
func TestResolverResolveWildcardLocalInterfaceFilter(t *testing.T) {
	ifaces := &funcInterfaceEnumerator{fn: func(ctx context.Context) ([]InterfaceInfo, error) {
		return []InterfaceInfo{
			{Name: "eth0", Up: true, Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.5")}},
			{Name: "eth1", Up: true, Addresses: []netip.Addr{netip.MustParseAddr("10.0.0.6")}},
		}, nil
	}}
	r := NewResolver(nil, ifaces, DefaultSLogger())

	local := NewHostPortEndpoint(RoleLocal, "", 8080).WithInterface("eth1")
	set, err := r.Resolve(context.Background(), []Endpoint{local}, nil)
	require.NoError(t, err)
	require.Len(t, set.Local, 1)
	assert.Equal(t, netip.MustParseAddrPort("10.0.0.6:8080"), set.Local[0].Addrs[0])
}

// Resolve falls back to a single zero-Addrs candidate when no interface
// matches, letting the ChannelProvider bind the OS wildcard address.
func TestResolverResolveWildcardLocalNoMatch(t *testing.T) {
	ifaces := &funcInterfaceEnumerator{fn: func(ctx context.Context) ([]InterfaceInfo, error) {
		return nil, nil
	}}
	r := NewResolver(nil, ifaces, DefaultSLogger())

	local := NewHostPortEndpoint(RoleLocal, "", 8080)
	set, err := r.Resolve(context.Background(), []Endpoint{local}, nil)
	require.NoError(t, err)
	require.Len(t, set.Local, 1)
	assert.Empty(t, set.Local[0].Addrs)
}
