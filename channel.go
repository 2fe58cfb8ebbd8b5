// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"time"
)

// Channel is the consumed transport-channel interface: the byte-oriented
// resource a [ProtocolStack] attempt establishes and a [Connection]
// subsequently drives through its [Framer] pipeline.
//
// The default [ChannelProvider] returns Channels backed by [net.Conn],
// wrapped with [ObserveConnFunc] for logging and [CancelWatchFunc] for
// context-bound cancellation, exactly as a hand-built attempt pipeline
// would (see doc.go).
type Channel interface {
	Write(b []byte) (int, error)
	Read(b []byte) (int, error)

	// Close performs an orderly, local-initiated close.
	Close() error

	// Abort performs a non-suspending teardown that always completes
	// locally in bounded time. The default implementation closes the
	// underlying net.Conn and ignores the result.
	Abort()

	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// ServerChannel is the consumed passive-open counterpart: a bound local
// resource that [Listener] drives its accept loop through.
type ServerChannel interface {
	Accept(ctx context.Context) (Channel, error)
	Close() error
}

// ChannelProvider is the external collaborator that performs actual OS
// socket I/O. The core never opens a socket itself; every [Racer] attempt
// and every [Listener] bind goes through an injected ChannelProvider, so
// test doubles can replace it without conditional compilation.
type ChannelProvider interface {
	// Connect establishes a Channel to remote using stack over the given
	// properties. local is nil unless the caller bound a specific local
	// Candidate.
	Connect(ctx context.Context, local *Candidate, remote Candidate, stack ProtocolStack, props TransportProperties, sec SecurityParameters) (Channel, error)

	// Bind opens a ServerChannel listening on local for stack.
	Bind(ctx context.Context, local Candidate, stack ProtocolStack, props TransportProperties, sec SecurityParameters) (ServerChannel, error)
}

// NameResolver is the consumed `resolve(host, port) -> [ip, port]` interface.
type NameResolver interface {
	Resolve(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error)
}

// InterfaceType enumerates the interface kinds the enumerator reports.
type InterfaceType int

const (
	InterfaceOther InterfaceType = iota
	InterfaceWiFi
	InterfaceEthernet
	InterfaceCellular
	InterfaceLoopback
)

// InterfaceInfo is one entry of the consumed interface-enumerator's output:
// `{name, index, type, addresses, up, multicast}`.
type InterfaceInfo struct {
	Name      string
	Index     int
	Type      InterfaceType
	Addresses []netip.Addr
	Up        bool
	Multicast bool
}

// InterfaceEnumerator is the consumed `list()` interface.
type InterfaceEnumerator interface {
	List(ctx context.Context) ([]InterfaceInfo, error)
}

// --- Default ChannelProvider, grounded on the attempt primitives in
// connect.go / tls.go / observeconn.go / cancelwatch.go / httpconn.go ---

// NewDefaultChannelProvider returns the [ChannelProvider] used when a
// [Preconnection] is not given one explicitly. It dials with cfg.Dialer,
// performs TLS handshakes with [NewTLSHandshakeFunc], observes every
// established connection with [NewObserveConnFunc], and binds each
// connection's lifetime to the caller's context with [NewCancelWatchFunc] —
// the same pipeline doc.go recommends callers build by hand, now built once
// and reused by the [Racer] for every attempt.
func NewDefaultChannelProvider(cfg *Config, logger SLogger) ChannelProvider {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = DefaultSLogger()
	}
	return &defaultChannelProvider{cfg: cfg, logger: logger}
}

type defaultChannelProvider struct {
	cfg    *Config
	logger SLogger
}

var _ ChannelProvider = &defaultChannelProvider{}

func (p *defaultChannelProvider) Connect(ctx context.Context, local *Candidate, remote Candidate,
	stack ProtocolStack, props TransportProperties, sec SecurityParameters) (Channel, error) {

	network, err := stack.baseNetwork()
	if err != nil {
		return nil, err
	}
	if len(remote.Addrs) == 0 {
		return nil, &ConfigurationError{Reason: "candidate has no resolved address"}
	}
	addr := remote.Addrs[0]

	connectOp := NewConnectFunc(p.cfg, network, p.logger)
	conn, err := connectOp.Call(ctx, addr)
	if err != nil {
		return nil, err
	}

	var final net.Conn = conn
	if stack.hasLayer(LayerTLS) {
		serverName := remote.Endpoint.Host
		tlsConfig := sec.tlsConfig(serverName)
		tlsOp := NewTLSHandshakeFunc(p.cfg, tlsConfig, p.logger)
		tlsConn, err := tlsOp.Call(ctx, final)
		if err != nil {
			return nil, err
		}
		final = tlsConn
	}

	observeOp := NewObserveConnFunc(p.cfg, p.logger)
	observed, err := observeOp.Call(ctx, final)
	if err != nil {
		final.Close()
		return nil, err
	}
	final = observed

	cancelOp := NewCancelWatchFunc()
	watched, err := cancelOp.Call(ctx, final)
	if err != nil {
		final.Close()
		return nil, err
	}
	final = watched

	return &channelAdapter{Conn: final}, nil
}

func (p *defaultChannelProvider) Bind(ctx context.Context, local Candidate,
	stack ProtocolStack, props TransportProperties, sec SecurityParameters) (ServerChannel, error) {

	network, err := stack.baseNetwork()
	if err != nil {
		return nil, err
	}
	if network != "tcp" {
		return nil, &ConfigurationError{Reason: "passive open requires a connection-oriented base layer"}
	}
	addr := ":0"
	if len(local.Addrs) > 0 {
		addr = local.Addrs[0].String()
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	return &serverChannelAdapter{ln: ln, provider: p, stack: stack, props: props, sec: sec}, nil
}

// channelAdapter adapts a net.Conn (possibly wrapped by TLS/observe/cancel
// layers) to the [Channel] interface.
type channelAdapter struct {
	net.Conn
}

var _ Channel = &channelAdapter{}

func (c *channelAdapter) Abort() {
	c.Conn.Close()
}

// serverChannelAdapter adapts a net.Listener to [ServerChannel]. Every
// accepted conn gets a server-side TLS handshake when the stack has a tls
// layer and is then wrapped with [ObserveConnFunc]; unlike Connect, it is not
// wrapped with [CancelWatchFunc].
type serverChannelAdapter struct {
	ln       net.Listener
	provider *defaultChannelProvider
	stack    ProtocolStack
	props    TransportProperties
	sec      SecurityParameters
}

var _ ServerChannel = &serverChannelAdapter{}

func (s *serverChannelAdapter) Accept(ctx context.Context) (Channel, error) {
	type acceptResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		conn, err := s.ln.Accept()
		resultCh <- acceptResult{conn, err}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return nil, res.err
		}
		var final net.Conn = res.conn
		if s.stack.hasLayer(LayerTLS) {
			tlsConfig := s.sec.tlsConfig("")
			tlsConfig.Certificates = serverCertificates(s.sec)
			tconn := tls.Server(final, tlsConfig)
			if err := tconn.HandshakeContext(ctx); err != nil {
				final.Close()
				return nil, err
			}
			final = tconn
		}
		observeOp := NewObserveConnFunc(s.provider.cfg, s.provider.logger)
		observed, err := observeOp.Call(ctx, final)
		if err != nil {
			final.Close()
			return nil, err
		}
		return &channelAdapter{Conn: observed}, nil
	}
}

func (s *serverChannelAdapter) Close() error {
	return s.ln.Close()
}

func serverCertificates(sec SecurityParameters) []tls.Certificate {
	if sec.LocalIdentity == nil {
		return nil
	}
	return []tls.Certificate{*sec.LocalIdentity}
}

// --- Default NameResolver ---

// NewDefaultNameResolver returns a [NameResolver] backed by [*net.Resolver].
func NewDefaultNameResolver() NameResolver {
	return &defaultNameResolver{resolver: net.DefaultResolver}
}

type defaultNameResolver struct {
	resolver *net.Resolver
}

var _ NameResolver = &defaultNameResolver{}

func (r *defaultNameResolver) Resolve(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
	ips, err := r.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}
	out := make([]netip.AddrPort, 0, len(ips))
	for _, ip := range ips {
		out = append(out, netip.AddrPortFrom(ip.Unmap(), port))
	}
	return out, nil
}

// --- Default InterfaceEnumerator, 1s cache ---

// NewDefaultInterfaceEnumerator returns an [InterfaceEnumerator] backed by
// [net.Interfaces], caching results for 1s and refreshing on demand once
// the cache expires.
func NewDefaultInterfaceEnumerator(clock Clock) InterfaceEnumerator {
	if clock == nil {
		clock = NewRealClock()
	}
	return &cachedInterfaceEnumerator{clock: clock, ttl: time.Second}
}

type cachedInterfaceEnumerator struct {
	clock    Clock
	ttl      time.Duration
	cached   []InterfaceInfo
	cachedAt time.Time
}

var _ InterfaceEnumerator = &cachedInterfaceEnumerator{}

func (e *cachedInterfaceEnumerator) List(ctx context.Context) ([]InterfaceInfo, error) {
	now := e.clock.Now()
	if !e.cachedAt.IsZero() && now.Sub(e.cachedAt) < e.ttl {
		return e.cached, nil
	}
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	out := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{
			Name:      iface.Name,
			Index:     iface.Index,
			Type:      classifyInterfaceType(iface),
			Up:        iface.Flags&net.FlagUp != 0,
			Multicast: iface.Flags&net.FlagMulticast != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, a := range addrs {
				if ipNet, ok := a.(*net.IPNet); ok {
					if addr, ok := netip.AddrFromSlice(ipNet.IP); ok {
						info.Addresses = append(info.Addresses, addr.Unmap())
					}
				}
			}
		}
		out = append(out, info)
	}
	e.cached = out
	e.cachedAt = now
	return out, nil
}

func classifyInterfaceType(iface net.Interface) InterfaceType {
	if iface.Flags&net.FlagLoopback != 0 {
		return InterfaceLoopback
	}
	// The standard library does not expose link-layer media type; hosts
	// that can distinguish wifi/cellular/ethernet should inject their own
	// InterfaceEnumerator. Package net alone can only tell us "other".
	return InterfaceOther
}
