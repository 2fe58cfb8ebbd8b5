// SPDX-License-Identifier: GPL-3.0-or-later

package taps

import "github.com/edgeengineer/taps/errclass"

// ErrClassifier classifies errors into categorical strings for analysis.
//
// Implementations map errors to short, descriptive labels (e.g., "ETIMEDOUT",
// "ECONNRESET") that are attached to establishment and I/O failure events and
// folded into the per-attempt causes of [EstablishmentFailure].
type ErrClassifier interface {
	Classify(err error) string
}

// ErrClassifierFunc adapts a function to the [ErrClassifier] interface.
//
// This allows using simple functions as classifiers:
//
//	op.ErrClassifier = ErrClassifierFunc(errclass.New)
//
// [NewPlatformErrClassifier] wraps the module's own platform-errno classifier
// (package errclass) in this adapter.
type ErrClassifierFunc func(error) string

var _ ErrClassifier = ErrClassifierFunc(nil)

// Classify implements [ErrClassifier].
func (f ErrClassifierFunc) Classify(err error) string {
	return f(err)
}

// DefaultErrClassifier is a no-op classifier that returns an empty string.
var DefaultErrClassifier = ErrClassifierFunc(func(error) string { return "" })

// NewPlatformErrClassifier returns an [ErrClassifier] backed by package
// errclass, which maps context/timeout conditions and platform errno values
// (ECONNREFUSED, ETIMEDOUT, ...) to the labels attached to establishment and
// I/O failure log events and to [EstablishmentFailure] causes.
func NewPlatformErrClassifier() ErrClassifier {
	return ErrClassifierFunc(errclass.New)
}
