/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package walleterror defines the error taxonomy shared by the wallet core.
// Low-level failures propagate unchanged; protocol components wrap them into
// one of the kinds below so callers and UI layers can branch on failure class
// without parsing message strings.
package walleterror

import (
	"github.com/pkg/errors"
)

// Kind classifies a wallet core failure.
type Kind int

const (
	// KindUnknown is the zero value, used for errors that did not originate here.
	KindUnknown Kind = iota
	// KindValidation covers malformed DIDs, invitations and message bodies.
	KindValidation
	// KindResolution covers unresolvable DIDs and uncorrectable service endpoints.
	KindResolution
	// KindCrypto covers wrap/unwrap failures, including wrong PIN and tampered ciphertext.
	KindCrypto
	// KindNetwork covers non-2xx statuses and connection failures.
	KindNetwork
	// KindProtocol covers unexpected message types and mismatched response fields.
	KindProtocol
)

// String returns the kind name used in rendered error messages.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResolution:
		return "resolution"
	case KindCrypto:
		return "crypto"
	case KindNetwork:
		return "network"
	case KindProtocol:
		return "protocol"
	default:
		return "unknown"
	}
}

// Error is a classified wallet core error. It carries an optional cause that
// stays reachable through errors.Unwrap, so sentinel checks on the underlying
// failure keep working after classification.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

// New returns a classified error without a cause.
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// Wrap classifies cause under kind with a contextual message. Returns nil if
// cause is nil.
func Wrap(kind Kind, cause error, msg string) *Error {
	if cause == nil {
		return nil
	}

	return &Error{kind: kind, msg: msg, cause: cause}
}

// NewValidation returns a KindValidation error.
func NewValidation(msg string) *Error { return New(KindValidation, msg) }

// NewResolution returns a KindResolution error.
func NewResolution(msg string) *Error { return New(KindResolution, msg) }

// NewCrypto returns a KindCrypto error.
func NewCrypto(msg string) *Error { return New(KindCrypto, msg) }

// NewNetwork returns a KindNetwork error.
func NewNetwork(msg string) *Error { return New(KindNetwork, msg) }

// NewProtocol returns a KindProtocol error.
func NewProtocol(msg string) *Error { return New(KindProtocol, msg) }

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return e.kind.String() + " error: " + e.msg + ": " + e.cause.Error()
	}

	return e.kind.String() + " error: " + e.msg
}

// Kind returns the error's classification.
func (e *Error) Kind() Kind {
	return e.kind
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.cause
}

// KindOf walks err's chain and returns the kind of the first classified error
// found, or KindUnknown.
func KindOf(err error) Kind {
	var werr *Error
	if errors.As(err, &werr) {
		return werr.kind
	}

	return KindUnknown
}

// IsKind reports whether err's chain contains a classified error of kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
