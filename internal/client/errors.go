package client

import "fmt"

// ServiceUnavailableError is returned when the agent could not be reached
// after the bounded connection retries were exhausted.
type ServiceUnavailableError struct {
	Call string
	Err  error
}

func (e *ServiceUnavailableError) Error() string {
	return fmt.Sprintf("agent unavailable for %s call: %v", e.Call, e.Err)
}

func (e *ServiceUnavailableError) Unwrap() error { return e.Err }

// UnexpectedCallError is returned when an unclassified failure occurred and
// retrying was disabled for the call.
type UnexpectedCallError struct {
	Call string
	Kind string
	Err  error
}

func (e *UnexpectedCallError) Error() string {
	return fmt.Sprintf("%s call failed (%s): %v", e.Call, e.Kind, e.Err)
}

func (e *UnexpectedCallError) Unwrap() error { return e.Err }

// ProvisioningFailedError is returned when the agent explicitly reported a
// failed reservation. The reason is the agent's diagnostic text, verbatim.
type ProvisioningFailedError struct {
	Reason string
}

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("provisioning failed: %s", e.Reason)
}

// IndexMismatchError is returned when caller-supplied per-machine inputs
// disagree in length with the machine count the agent reported.
type IndexMismatchError struct {
	Field string
	Want  int
	Got   int
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("%s length mismatch: want %d entries, got %d", e.Field, e.Want, e.Got)
}
