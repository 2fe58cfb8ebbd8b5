// SPDX-License-Identifier: GPL-3.0-or-later

// Package taps implements a protocol-independent Transport Services (TAPS)
// runtime: applications declare communication requirements (reliability,
// ordering, message boundaries, security, latency preferences) through a
// [Preconnection] rather than selecting a wire protocol directly. The
// runtime resolves endpoints into candidates, selects feasible protocol
// stacks, races them in parallel, and yields a single established
// [Connection] whose semantics match the declared [TransportProperties].
//
// # Core Abstraction
//
// Establishment attempts are executed as pipelines built from a single
// interface:
//
//	type Func[A, B any] interface {
//		Call(ctx context.Context, input A) (B, error)
//	}
//
// Each Func represents an atomic step (dial, TLS handshake, HTTP/2 upgrade,
// observation) with exactly one success mode and one failure mode.
// [Compose2] through [Compose8] chain Funcs into type-safe pipelines. The
// [Racer] does not compose Funcs itself: it calls [ChannelProvider.Connect]
// once per candidate and protocol stack, and the default provider runs the
// dial, TLS, observe and cancel-watch steps inline.
//
// # Establishment Engine
//
//   - [Preconnection]: immutable bundle of endpoints, [TransportProperties],
//     [SecurityParameters], and [Framer]s; entry point via [Preconnection.Initiate],
//     [Preconnection.InitiateWithSend], [Preconnection.Listen], [Preconnection.Rendezvous].
//   - [Resolver]: expands endpoints into a [CandidateSet], Happy-Eyeballs ordered.
//   - [SelectStacks]: maps [TransportProperties] to an ordered list of feasible [ProtocolStack]s.
//   - [Racer]: attempts stacks concurrently with a staggered schedule; first
//     to reach Established wins, the rest are aborted.
//   - [Connection]: the send/receive/close/abort state machine wrapping the
//     winning attempt's channel and [Framer] pipeline.
//   - [Listener]: passive-open counterpart of the Racer; publishes accepted
//     Connections on a bounded stream.
//   - [ConnectionGroup]: shared-state clone and fate-sharing close/abort.
//
// # Attempt Primitives
//
// Connection establishment:
//   - [ConnectFunc]: dials TCP or UDP endpoints
//   - [TLSHandshakeFunc]: performs TLS handshake over an existing connection
//   - [ObserveConnFunc]: observes connections for logging I/O operations
//   - [CancelWatchFunc]: closes connection on context cancellation (for responsive ^C handling)
//
// HTTP (backs the `http/2` stack layer):
//   - [HTTPConn]: wraps a connection with an HTTP transport, performs round trips
//     with structured logging and transparent body observation (created via [NewHTTPConnFunc])
//
// DNS resolution (backs [Resolver]'s encrypted-resolution path):
//   - [DNSOverUDPConn]: wraps a UDP connection for DNS-over-UDP (owns the connection)
//   - [DNSOverTCPConn]: wraps a TCP connection for DNS-over-TCP (owns the connection)
//   - [DNSOverTLSConn]: wraps a TLS connection for DNS-over-TLS (owns the connection)
//   - [DNSOverHTTPSConn]: wraps an HTTPConn for DNS-over-HTTPS (owns the connection)
//   - [DNSExchangeLogContext]: structured logging for DNS exchanges, used internally
//     by the above types
//
// Composition utilities:
//   - [Compose2] through [Compose8]: chain Funcs into pipelines
//   - [FuncAdapter]: wrap a function as a Func for ad-hoc custom behavior
//   - [Apply]: bind a fixed input to a Func
//   - [ConstFunc]: lift a pure value into a Func
//   - [NewEndpointFunc]: convenience wrapper for ConstFunc with endpoints
//
// # Connection Lifecycle
//
// This package uses two ownership patterns for connection management:
//
// Dial operations ([ConnectFunc], [TLSHandshakeFunc]) create connections and
// transfer ownership to the next stage on success. On error, they close the connection.
//
// Wrapper types ([HTTPConn], [DNSOverTLSConn], etc.) OWN their underlying connection.
// The caller must call Close() when done, which closes the underlying connection.
// These can be composed into pipelines via their corresponding Func types.
//
// # Observability
//
// All primitives support structured logging via [SLogger] (compatible with [log/slog]).
//
// By default, logging is disabled. Set the Logger field to a custom [*slog.Logger]
// to enable logging. Error classification is configurable via [ErrClassifier];
// [NewConfig] installs [NewPlatformErrClassifier], which maps OS-level errno
// values (ECONNREFUSED, ETIMEDOUT, ...) to the strings used in establishment
// failure causes, and the no-op [DefaultErrClassifier] is used where no
// classifier is supplied.
//
// Primitives emit two kinds of structured log events:
//
//   - Span events (*Start/*Done pairs): Record operation lifecycle including
//     timing and success/failure. Used for latency analysis and error tracking.
//
//   - Wire observations (e.g., dnsQuery/dnsResponse): Capture protocol-level
//     messages for dig-like UI output and protocol debugging.
//
// The [SLogger] interface accepts any slog-compatible handler, enabling flexible
// post-processing. Handlers can filter, transform, or route events as needed.
//
// All events share a common set of fields: localAddr, remoteAddr, protocol,
// and t (timestamp). Completion events (*Done) additionally include t0 (start
// time), err, and errClass. I/O-level events (read, write, deadline changes)
// are emitted at [slog.LevelDebug]; all other events use [slog.LevelInfo].
//
// Use [NewSpanID] to generate a unique, time-ordered identifier (UUIDv7) for each
// operation, then attach it to the logger with [*slog.Logger.With]. All log entries
// from that operation will share the same spanID, enabling correlation across
// pipeline stages and simplifying log analysis. A [Connection] generates a span
// ID when it is created and reports it as the spanID field of its sendFailed
// event; the [Racer] does not generate span IDs.
//
// # Timeout and Context Philosophy
//
// This package is context-transparent: operations never modify the context they receive.
// The caller controls timeouts externally via [context.WithTimeout], [context.WithDeadline],
// or [signal.NotifyContext]. When the context is done (timeout, cancel, or signal),
// operations fail and the pipeline is interrupted.
//
// Connection lifecycle requires [CancelWatchFunc] to bind the context lifecycle to
// the connection: when the context is done, the connection is closed immediately,
// causing any in-progress I/O to fail. This enables responsive ^C handling via
// [signal.NotifyContext] and ensures that blocking I/O respects the context deadline.
// The default [ChannelProvider] applies [CancelWatchFunc] to every connection it
// dials for a [Racer] attempt; connections accepted for a [Listener] are not
// wrapped with it.
//
// # Design Boundaries
//
// The core never implements a wire protocol from scratch (TCP/QUIC/TLS internals),
// never performs raw OS socket I/O, and never drives Bluetooth host controllers or
// a DNS resolver implementation directly: those are external collaborators injected
// through [ChannelProvider], [NameResolver], and related interfaces in channel.go.
package taps
