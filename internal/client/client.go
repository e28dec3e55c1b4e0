// Package client turns the management agent's asynchronous, failure-prone
// provisioning protocol into synchronous, retried, typed calls.
package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vmbroker/internal/credentials"
	"vmbroker/internal/rpc"
	"vmbroker/internal/wire"
)

// defaultPollInterval is the pause between describe polls while a
// reservation is pending.
const defaultPollInterval = 10 * time.Second

// InstanceRecord is the canonical description of one provisioned machine.
type InstanceRecord struct {
	PublicIP   string
	PrivateIP  string
	Role       string
	InstanceID string
	DiskID     string
}

// RoleAssignment names the workload role of each requested machine: either
// one label replicated across the reservation, or one label per machine.
type RoleAssignment struct {
	roles   []string
	uniform bool
}

// UniformRole assigns the same role to every machine.
func UniformRole(role string) RoleAssignment {
	return RoleAssignment{roles: []string{role}, uniform: true}
}

// PerInstanceRoles assigns roles positionally, one per machine.
func PerInstanceRoles(roles ...string) RoleAssignment {
	return RoleAssignment{roles: roles}
}

func (r RoleAssignment) expand(count int) ([]string, error) {
	if r.uniform {
		roles := make([]string, count)
		for i := range roles {
			roles[i] = r.roles[0]
		}
		return roles, nil
	}
	if len(r.roles) != count {
		return nil, &IndexMismatchError{Field: "roles", Want: count, Got: len(r.roles)}
	}
	return r.roles, nil
}

// Broker is the caller-facing surface: it issues operations through the
// resilient invoker and hides the agent's provisioning latency. A Broker is
// not safe for concurrent use unless the underlying transport is; callers
// serialize or parallelize above it.
type Broker struct {
	caller  rpc.Caller
	creds   credentials.Credentials
	invoker *Invoker
	log     *zap.Logger

	// PollInterval is the pause between describe polls during
	// SpawnInstances.
	PollInterval time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewBroker creates a broker that calls the agent through caller using the
// given credentials.
func NewBroker(caller rpc.Caller, creds credentials.Credentials, log *zap.Logger) *Broker {
	return &Broker{
		caller:       caller,
		creds:        creds,
		invoker:      NewInvoker(log),
		log:          log,
		PollInterval: defaultPollInterval,
		sleep:        sleepContext,
	}
}

// longCall is the invoker policy for provisioning operations: no attempt
// timeout, retry on unclassified errors, never degrade to the sentinel.
// Provisioning either eventually succeeds or is explicitly marked failed by
// the agent.
func longCall() Options {
	return Options{RetryOnError: true}
}

// SpawnInstances requests count machines, waits for the reservation to reach
// a terminal state, and returns one record per machine the agent reported.
// Disks are assigned positionally; a nil slice means no disks. The poll loop
// has no deadline of its own: ctx is the caller's only cancellation hook.
func (b *Broker) SpawnInstances(ctx context.Context, count int, role RoleAssignment, disks []string) ([]InstanceRecord, error) {
	roles, err := role.expand(count)
	if err != nil {
		return nil, err
	}
	if disks == nil {
		disks = make([]string, count)
	}
	if len(disks) != count {
		return nil, &IndexMismatchError{Field: "disks", Want: count, Got: len(disks)}
	}

	params := b.creds.CallParameters()
	params["num_vms"] = count

	var run wire.RunInstancesResponse
	if _, err := b.invoker.Invoke(ctx, wire.MethodRunInstances, longCall(), func(ctx context.Context) error {
		return b.caller.Call(ctx, wire.MethodRunInstances, params, &run)
	}); err != nil {
		return nil, err
	}
	if !run.Success || run.ReservationID == "" {
		return nil, fmt.Errorf("run_instances rejected: %s", run.Reason)
	}

	b.log.Info("reservation accepted",
		zap.String("reservation_id", run.ReservationID),
		zap.Int("num_vms", count))

	for {
		desc, err := b.DescribeInstances(ctx, run.ReservationID)
		if err != nil {
			return nil, err
		}

		switch desc.State {
		case wire.StateRunning:
			return b.project(desc, roles, disks)
		case wire.StateFailed:
			return nil, &ProvisioningFailedError{Reason: desc.Reason}
		default:
			b.log.Debug("reservation not ready",
				zap.String("reservation_id", run.ReservationID),
				zap.String("state", desc.State))
			if err := b.sleep(ctx, b.PollInterval); err != nil {
				return nil, err
			}
		}
	}
}

// project builds one record per machine in the agent's public-address list,
// index-aligned with the caller-supplied role and disk inputs.
func (b *Broker) project(desc *wire.DescribeInstancesResponse, roles, disks []string) ([]InstanceRecord, error) {
	n := len(desc.PublicIPs)
	if len(desc.PrivateIPs) != n || len(desc.InstanceIDs) != n {
		return nil, &IndexMismatchError{Field: "addresses", Want: n, Got: len(desc.PrivateIPs)}
	}
	if n > len(roles) {
		return nil, &IndexMismatchError{Field: "roles", Want: n, Got: len(roles)}
	}
	if n > len(disks) {
		return nil, &IndexMismatchError{Field: "disks", Want: n, Got: len(disks)}
	}

	records := make([]InstanceRecord, n)
	for i := 0; i < n; i++ {
		records[i] = InstanceRecord{
			PublicIP:   desc.PublicIPs[i],
			PrivateIP:  desc.PrivateIPs[i],
			Role:       roles[i],
			InstanceID: desc.InstanceIDs[i],
			DiskID:     disks[i],
		}
	}
	return records, nil
}

// DescribeInstances queries the authoritative state of a reservation.
// Nothing is cached: identical calls against unchanged remote state return
// identical results.
func (b *Broker) DescribeInstances(ctx context.Context, reservationID string) (*wire.DescribeInstancesResponse, error) {
	params := b.creds.CallParameters()
	params["reservation_id"] = reservationID

	var desc wire.DescribeInstancesResponse
	if _, err := b.invoker.Invoke(ctx, wire.MethodDescribeInstances, longCall(), func(ctx context.Context) error {
		return b.caller.Call(ctx, wire.MethodDescribeInstances, params, &desc)
	}); err != nil {
		return nil, err
	}
	return &desc, nil
}

// TerminateInstances terminates the given instances. A single bare id and a
// slice of ids are equivalent.
func (b *Broker) TerminateInstances(ctx context.Context, ids ...string) (*wire.TerminateInstancesResponse, error) {
	params := b.creds.CallParameters()
	params["instance_ids"] = ids

	var resp wire.TerminateInstancesResponse
	if _, err := b.invoker.Invoke(ctx, wire.MethodTerminateInstances, longCall(), func(ctx context.Context) error {
		return b.caller.Call(ctx, wire.MethodTerminateInstances, params, &resp)
	}); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AttachDisk attaches a persistent disk to an instance and returns the
// device location the agent reported.
func (b *Broker) AttachDisk(ctx context.Context, diskName, instanceID string) (string, error) {
	params := b.creds.CallParameters()
	params["disk_name"] = diskName
	params["instance_id"] = instanceID

	var resp wire.AttachDiskResponse
	if _, err := b.invoker.Invoke(ctx, wire.MethodAttachDisk, longCall(), func(ctx context.Context) error {
		return b.caller.Call(ctx, wire.MethodAttachDisk, params, &resp)
	}); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", fmt.Errorf("attach_disk rejected: %s", resp.Reason)
	}
	return resp.Location, nil
}
