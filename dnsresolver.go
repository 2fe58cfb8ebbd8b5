// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"crypto/tls"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/miekg/dns"
)

// EncryptedNameResolver is a [NameResolver] that resolves host names over
// DNS-over-HTTPS instead of the system resolver. A [Resolver] built with one
// never hands a plaintext query to whatever resolver the OS is configured
// with; every lookup opens a fresh TCP+TLS+HTTP/2 connection to the DoH
// server and tears it down afterward.
//
// Construct via [NewEncryptedNameResolver].
type EncryptedNameResolver struct {
	pipeline Func[Unit, *DNSOverHTTPSConn]
}

// NewEncryptedNameResolver returns an [*EncryptedNameResolver] querying the
// DoH server at serverAddr (e.g. 8.8.8.8:443), authenticating it as
// serverName, and posting queries to dohURL (e.g.
// "https://dns.google/dns-query"). cfg and logger are threaded through the
// same establishment-attempt pipeline [Preconnection.Initiate] uses.
func NewEncryptedNameResolver(cfg *Config, serverAddr netip.AddrPort, serverName, dohURL string, logger SLogger) *EncryptedNameResolver {
	if logger == nil {
		logger = DefaultSLogger()
	}
	tlsConfig := &tls.Config{ServerName: serverName, NextProtos: []string{"h2", "http/1.1"}}
	pipeline := Compose7(
		NewEndpointFunc(serverAddr),
		NewConnectFunc(cfg, "tcp", logger),
		NewObserveConnFunc(cfg, logger),
		NewCancelWatchFunc(),
		NewTLSHandshakeFunc(cfg, tlsConfig, logger),
		NewHTTPConnFuncTLS(cfg, logger),
		NewDNSOverHTTPSConnFunc(cfg, dohURL, logger),
	)
	return &EncryptedNameResolver{pipeline: pipeline}
}

var _ NameResolver = &EncryptedNameResolver{}

// Resolve implements [NameResolver]. It issues an A and an AAAA query over
// the same DoH connection and merges the results; it fails only if both
// queries fail.
func (r *EncryptedNameResolver) Resolve(ctx context.Context, host string, port uint16) ([]netip.AddrPort, error) {
	dnsConn, err := r.pipeline.Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer dnsConn.Close()

	var addrs []netip.Addr
	var lastErr error

	if resp, err := dnsConn.Exchange(ctx, dnscodec.NewQuery(host, dns.TypeA)); err != nil {
		lastErr = err
	} else if a, err := resp.RecordsA(); err == nil {
		addrs = append(addrs, a...)
	} else {
		lastErr = err
	}

	if resp, err := dnsConn.Exchange(ctx, dnscodec.NewQuery(host, dns.TypeAAAA)); err != nil {
		lastErr = err
	} else if a, err := resp.RecordsAAAA(); err == nil {
		addrs = append(addrs, a...)
	} else {
		lastErr = err
	}

	if len(addrs) == 0 {
		return nil, lastErr
	}
	out := make([]netip.AddrPort, len(addrs))
	for i, a := range addrs {
		out[i] = netip.AddrPortFrom(a, port)
	}
	return out, nil
}
