// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "net/netip"

// EndpointKind tags the variant carried by an [Endpoint]: host-and-port,
// ip-and-port, bluetooth-peripheral, or bluetooth-service.
type EndpointKind int

const (
	EndpointHostPort EndpointKind = iota
	EndpointIPPort
	EndpointBluetoothPeripheral
	EndpointBluetoothService
)

// EndpointRole tags whether an [Endpoint] is Local or Remote. Local and
// Remote are structurally identical; the role only changes how the
// Resolver and Stack Selector treat the endpoint (e.g. Local may carry
// an interface name, wildcard expansion only applies to Local).
type EndpointRole int

const (
	RoleLocal EndpointRole = iota
	RoleRemote
)

// Endpoint is a value object describing where to communicate, not a held
// network resource. Construct with [NewHostPortEndpoint],
// [NewIPPortEndpoint], [NewBluetoothPeripheralEndpoint], or
// [NewBluetoothServiceEndpoint].
type Endpoint struct {
	Kind EndpointKind
	Role EndpointRole

	// Host is set for EndpointHostPort.
	Host string
	// Port is set for EndpointHostPort and EndpointIPPort.
	Port uint16

	// IP is set for EndpointIPPort.
	IP netip.Addr

	// BluetoothUUID is set for both Bluetooth variants: a peripheral UUID
	// for EndpointBluetoothPeripheral, a service id for EndpointBluetoothService.
	BluetoothUUID string
	// BluetoothPSM is the Protocol/Service Multiplexer for both Bluetooth variants.
	BluetoothPSM uint16

	// InterfaceName restricts a Local endpoint's wildcard expansion to
	// addresses of the named interface. Ignored for Role == RoleRemote.
	InterfaceName string
}

// NewHostPortEndpoint returns a host-and-port [Endpoint]. The host is
// resolved by the [Resolver]; it may be a DNS name or a literal IP.
func NewHostPortEndpoint(role EndpointRole, host string, port uint16) Endpoint {
	return Endpoint{Kind: EndpointHostPort, Role: role, Host: host, Port: port}
}

// NewIPPortEndpoint returns an already-resolved ip-and-port [Endpoint].
func NewIPPortEndpoint(role EndpointRole, ip netip.Addr, port uint16) Endpoint {
	return Endpoint{Kind: EndpointIPPort, Role: role, IP: ip, Port: port}
}

// NewBluetoothPeripheralEndpoint returns a bluetooth-peripheral [Endpoint].
// The core never dials Bluetooth itself; this Endpoint is only meaningful
// with a [ChannelProvider] that implements a Bluetooth stack layer.
func NewBluetoothPeripheralEndpoint(role EndpointRole, uuid string, psm uint16) Endpoint {
	return Endpoint{Kind: EndpointBluetoothPeripheral, Role: role, BluetoothUUID: uuid, BluetoothPSM: psm}
}

// NewBluetoothServiceEndpoint returns a bluetooth-service [Endpoint].
func NewBluetoothServiceEndpoint(role EndpointRole, serviceID string, psm uint16) Endpoint {
	return Endpoint{Kind: EndpointBluetoothService, Role: role, BluetoothUUID: serviceID, BluetoothPSM: psm}
}

// WithInterface returns a copy of a Local Endpoint restricted to the named
// interface's addresses during wildcard expansion.
func (e Endpoint) WithInterface(name string) Endpoint {
	e.InterfaceName = name
	return e
}

// IsWildcard reports whether e is a Local host-and-port endpoint with no
// explicit host, meaning it expands to the wildcard address of every
// address family the host supports.
func (e Endpoint) IsWildcard() bool {
	return e.Role == RoleLocal && e.Kind == EndpointHostPort && e.Host == ""
}
