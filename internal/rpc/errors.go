package rpc

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"syscall"
)

// FailureClass groups transport failures by how the invoker should react to
// them. Classification order matters: more specific classes are checked before
// the generic one.
type FailureClass int

const (
	// FailureUnknown is any error that matched no other class.
	FailureUnknown FailureClass = iota
	// FailureRefused means the agent could not be reached at all
	// (connection refused, host or network unreachable).
	FailureRefused
	// FailureTimeout means the call did not complete within its budget.
	FailureTimeout
	// FailureTransport is transient connection noise: TLS record or alert
	// errors, broken pipes, connection resets.
	FailureTransport
)

func (c FailureClass) String() string {
	switch c {
	case FailureRefused:
		return "refused"
	case FailureTimeout:
		return "timeout"
	case FailureTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// Classify maps a call error to its failure class. Errors wrapped by
// net/http, net/url and the retrying HTTP client unwrap transparently.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureUnknown
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EHOSTUNREACH) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return FailureRefused
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) {
		return FailureTransport
	}
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return FailureTransport
	}
	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return FailureTransport
	}

	return FailureUnknown
}
