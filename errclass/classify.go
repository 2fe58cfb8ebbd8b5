// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/common/errclass/errclass.go
//

// Package errclass classifies low-level network errors into the short,
// platform-independent labels used throughout the taps establishment and
// connection event logs (the errClass field) and folded into
// EstablishmentFailure causes.
//
// The unix and windows build-tagged files each define the same set of
// errEXXX constants from the platform's errno/WSA space; classify.go maps
// them, uniformly, to labels on top of those per-platform constants.
package errclass

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"
)

// New classifies err into a short label. It returns the empty string for a
// nil error, "ECANCELED" for a canceled context, "ETIMEDOUT" for a context
// deadline, network, DNS or I/O deadline timeout, "ENOTFOUND" or "EDNS" for
// other DNS errors, "ECONNABORTED" for use of a closed network connection,
// one of the errEXXX-derived labels for a recognized syscall.Errno, or
// "EUNKNOWN" for anything else that is still non-nil.
func New(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.Canceled) {
		return "ECANCELED"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "ETIMEDOUT"
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "ETIMEDOUT"
		}
		if dnsErr.IsNotFound {
			return "ENOTFOUND"
		}
		return "EDNS"
	}

	if errors.Is(err, os.ErrDeadlineExceeded) {
		return "ETIMEDOUT"
	}
	if errors.Is(err, net.ErrClosed) {
		return "ECONNABORTED"
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		if label, ok := classifyErrno(errno); ok {
			return label
		}
	}

	return "EUNKNOWN"
}

// classifyErrno maps a platform errno to a label using the platform-specific
// constants defined in unix.go / windows.go.
func classifyErrno(errno syscall.Errno) (string, bool) {
	switch errno {
	case errEADDRNOTAVAIL:
		return "EADDRNOTAVAIL", true
	case errEADDRINUSE:
		return "EADDRINUSE", true
	case errECONNABORTED:
		return "ECONNABORTED", true
	case errECONNREFUSED:
		return "ECONNREFUSED", true
	case errECONNRESET:
		return "ECONNRESET", true
	case errEHOSTUNREACH:
		return "EHOSTUNREACH", true
	case errEINVAL:
		return "EINVAL", true
	case errEINTR:
		return "EINTR", true
	case errENETDOWN:
		return "ENETDOWN", true
	case errENETUNREACH:
		return "ENETUNREACH", true
	case errENOBUFS:
		return "ENOBUFS", true
	case errENOTCONN:
		return "ENOTCONN", true
	case errEPROTONOSUPPORT:
		return "EPROTONOSUPPORT", true
	case errETIMEDOUT:
		return "ETIMEDOUT", true
	default:
		return "", false
	}
}
