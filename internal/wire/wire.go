// Package wire defines the JSON messages exchanged between the broker client
// and the management agent. Field names are the interoperability contract and
// must not change.
package wire

// DefaultPort is the well-known port the management agent listens on.
const DefaultPort = 17444

// Remote operation names. Each is served as POST /<name> by the agent.
const (
	MethodRunInstances       = "run_instances"
	MethodDescribeInstances  = "describe_instances"
	MethodTerminateInstances = "terminate_instances"
	MethodAttachDisk         = "attach_disk"
)

// Provisioning states reported for a reservation. Running and failed are
// terminal.
const (
	StatePending = "pending"
	StateRunning = "running"
	StateFailed  = "failed"
)

// Request is the envelope for every operation. The secret authenticates the
// caller; parameters carry the credential-derived fields plus call-specific
// ones (num_vms, reservation_id, disk_name, instance_id, ...).
type Request struct {
	Secret     string         `json:"secret"`
	Parameters map[string]any `json:"parameters"`
}

// RunInstancesResponse acknowledges a provisioning request. The reservation
// id correlates subsequent describe polls.
type RunInstancesResponse struct {
	Success       bool   `json:"success"`
	ReservationID string `json:"reservation_id,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// DescribeInstancesResponse reports the state of a reservation. The three
// arrays are index-aligned, one entry per machine, and are only populated
// once the state is running.
type DescribeInstancesResponse struct {
	State       string   `json:"state"`
	Reason      string   `json:"reason,omitempty"`
	PublicIPs   []string `json:"public_ips,omitempty"`
	PrivateIPs  []string `json:"private_ips,omitempty"`
	InstanceIDs []string `json:"instance_ids,omitempty"`
}

// TerminateInstancesResponse acknowledges a terminate request.
type TerminateInstancesResponse struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}

// AttachDiskResponse reports where a disk was attached on the instance.
type AttachDiskResponse struct {
	Success  bool   `json:"success"`
	Location string `json:"location,omitempty"`
	Reason   string `json:"reason,omitempty"`
}
