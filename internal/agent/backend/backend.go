// Package backend abstracts the cloud providers the agent provisions on.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vmbroker/internal/credentials"
)

// Instance states normalized across providers.
const (
	StatusPending = "pending"
	StatusRunning = "running"
)

// InstanceSpec describes one run request. Provider-specific semantics of the
// fields are passed through, not validated.
type InstanceSpec struct {
	Count         int
	ImageID       string
	InstanceType  string
	KeyName       string
	SecurityGroup string
	Project       string
	UseSpot       bool
	SpotPrice     string
}

// SpecFromParameters reads an InstanceSpec out of a wire parameter document.
func SpecFromParameters(params map[string]any) InstanceSpec {
	return InstanceSpec{
		ImageID:       stringParam(params, "image_id"),
		InstanceType:  stringParam(params, "instance_type"),
		KeyName:       stringParam(params, "key_name"),
		SecurityGroup: stringParam(params, "security_group"),
		Project:       stringParam(params, "project"),
		UseSpot:       boolParam(params, "use_spot"),
		SpotPrice:     stringParam(params, "spot_price"),
	}
}

func stringParam(params map[string]any, key string) string {
	s, _ := params[key].(string)
	return s
}

func boolParam(params map[string]any, key string) bool {
	b, _ := params[key].(bool)
	return b
}

// Instance is one machine as reported by a provider.
type Instance struct {
	ID        string
	PublicIP  string
	PrivateIP string
	Status    string
}

// Backend provisions machines on one cloud provider.
type Backend interface {
	// Run starts spec.Count machines and returns their provider ids.
	Run(ctx context.Context, spec InstanceSpec) ([]string, error)
	// Describe reports the current state of the given machines.
	Describe(ctx context.Context, ids []string) ([]Instance, error)
	// Terminate shuts the given machines down.
	Terminate(ctx context.Context, ids []string) error
	// AttachDisk attaches a persistent disk to a machine and returns the
	// device location.
	AttachDisk(ctx context.Context, diskID, instanceID string) (string, error)
}

// New creates a backend for the infrastructure named in the credentials.
func New(ctx context.Context, creds credentials.Credentials, log *zap.Logger) (Backend, error) {
	switch creds.Infrastructure {
	case "ec2", "euca":
		return NewEC2(ctx, creds, log)
	case "digitalocean":
		return NewDigitalOcean(creds, log)
	case "sim":
		return NewSimulator(), nil
	default:
		return nil, fmt.Errorf("unsupported infrastructure: %s", creds.Infrastructure)
	}
}
