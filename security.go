// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import (
	"context"
	"crypto/tls"
	"crypto/x509"
)

// SecurityParameters bundles the TLS-shaped configuration an application
// declares before establishment: allowed protocol versions, an optional
// local identity, trusted roots, and four callbacks. Callbacks are
// optional and may suspend (they take a
// context and can block on external I/O, e.g. an interactive identity
// challenge).
//
// The default [ChannelProvider] translates SecurityParameters into a
// [*tls.Config] and a [TLSEngine] via [NewTLSHandshakeFunc]; callers
// targeting a non-stdlib TLS engine (e.g. TLS parroting) provide their own
// [TLSEngine] instead.
type SecurityParameters struct {
	// AllowedProtocols is the set of allowed protocol version strings (e.g.
	// "TLS1.3"). Empty means no security is requested; a non-empty set
	// causes the Stack Selector to insert a tls layer.
	AllowedProtocols []string

	// LocalIdentity is this endpoint's optional certificate and key, used
	// for mutual authentication or server-side identity.
	LocalIdentity *tls.Certificate

	// TrustedRoots is the optional pool of trusted CA certificates. A nil
	// pool defers to the platform trust store.
	TrustedRoots *x509.CertPool

	// TrustVerificationCallback, if set, is invoked during the handshake in
	// place of standard certificate verification. Returning an error rejects
	// the handshake with a [SecurityError] at stage "trust-verification".
	TrustVerificationCallback func(ctx context.Context, chain []*x509.Certificate) error

	// IdentityChallengeCallback answers a peer's request for client
	// authentication with a certificate. The default [ChannelProvider] does
	// not invoke it; the client certificate it presents is LocalIdentity.
	IdentityChallengeCallback func(ctx context.Context) (*tls.Certificate, error)

	// PSKLookupCallback resolves a pre-shared key by identity hint. The
	// default [ChannelProvider] does not invoke it and offers no PSK-based
	// cipher suites.
	PSKLookupCallback func(ctx context.Context, hint string) ([]byte, error)

	// SessionTicketCallback receives session tickets issued by the peer. The
	// default [ChannelProvider] does not invoke it.
	SessionTicketCallback func(ctx context.Context, ticket []byte)
}

// Empty reports whether no security was requested, i.e. AllowedProtocols is
// empty. This means the Stack Selector does not insert a tls layer (quic
// stacks still carry their intrinsic security regardless).
func (s SecurityParameters) Empty() bool {
	return len(s.AllowedProtocols) == 0
}

// tlsConfig builds a *tls.Config reflecting these SecurityParameters for
// use with [NewTLSHandshakeFunc]. serverName is the peer name to verify
// against (typically the resolved host-and-port Endpoint's host).
func (s SecurityParameters) tlsConfig(serverName string) *tls.Config {
	cfg := &tls.Config{ServerName: serverName}
	if s.TrustedRoots != nil {
		cfg.RootCAs = s.TrustedRoots
	}
	if s.LocalIdentity != nil {
		cfg.Certificates = []tls.Certificate{*s.LocalIdentity}
	}
	if s.TrustVerificationCallback != nil {
		cb := s.TrustVerificationCallback
		cfg.InsecureSkipVerify = true
		cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
			chain := make([]*x509.Certificate, 0, len(rawCerts))
			for _, raw := range rawCerts {
				cert, err := x509.ParseCertificate(raw)
				if err != nil {
					return err
				}
				chain = append(chain, cert)
			}
			if err := cb(context.Background(), chain); err != nil {
				return &SecurityError{Stage: "trust-verification", Err: err}
			}
			return nil
		}
	}
	return cfg
}
