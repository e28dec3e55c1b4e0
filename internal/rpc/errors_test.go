package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
	"testing"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{"nil", nil, FailureUnknown},
		{"refused", syscall.ECONNREFUSED, FailureRefused},
		{"refused wrapped", fmt.Errorf("dial failed: %w", syscall.ECONNREFUSED), FailureRefused},
		{"refused in url.Error", &url.Error{Op: "Post", URL: "https://localhost:17444/run_instances", Err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}}, FailureRefused},
		{"host unreachable", syscall.EHOSTUNREACH, FailureRefused},
		{"deadline", context.DeadlineExceeded, FailureTimeout},
		{"net timeout", &url.Error{Op: "Post", URL: "x", Err: timeoutError{}}, FailureTimeout},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), FailureTransport},
		{"pipe", syscall.EPIPE, FailureTransport},
		{"generic", errors.New("malformed response"), FailureUnknown},
	}

	for _, tt := range tests {
		if got := Classify(tt.err); got != tt.want {
			t.Errorf("%s: Classify() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestClassifyOrderRefusedBeforeTimeout(t *testing.T) {
	// A refused connection inside a timed-out request must classify as
	// refused; the more specific class wins.
	err := fmt.Errorf("giving up: %w", &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED})
	if got := Classify(err); got != FailureRefused {
		t.Errorf("Classify() = %v, want FailureRefused", got)
	}
}
