package backend

import (
	"context"
	"fmt"
	"strconv"

	"github.com/digitalocean/godo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vmbroker/internal/credentials"
)

const defaultDORegion = "nyc3"

// DigitalOcean implements Backend on droplets. The credentials' access key
// carries the API token; project optionally names the region slug.
type DigitalOcean struct {
	client *godo.Client
	region string
	log    *zap.Logger
}

// NewDigitalOcean creates a DigitalOcean backend.
func NewDigitalOcean(creds credentials.Credentials, log *zap.Logger) (*DigitalOcean, error) {
	region := creds.Project
	if region == "" {
		region = defaultDORegion
	}
	return &DigitalOcean{
		client: godo.NewFromToken(creds.AccessKey),
		region: region,
		log:    log,
	}, nil
}

// Run creates spec.Count droplets in one request.
func (b *DigitalOcean) Run(ctx context.Context, spec InstanceSpec) ([]string, error) {
	names := make([]string, spec.Count)
	for i := range names {
		names[i] = fmt.Sprintf("vmbroker-%s", uuid.NewString())
	}

	request := &godo.DropletMultiCreateRequest{
		Names:  names,
		Region: b.region,
		Size:   spec.InstanceType,
		Image:  godo.DropletCreateImage{Slug: spec.ImageID},
	}

	droplets, _, err := b.client.Droplets.CreateMultiple(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("failed to create droplets: %w", err)
	}

	ids := make([]string, 0, len(droplets))
	for _, d := range droplets {
		ids = append(ids, strconv.Itoa(d.ID))
	}
	return ids, nil
}

// Describe reports the current state of the given droplets.
func (b *DigitalOcean) Describe(ctx context.Context, ids []string) ([]Instance, error) {
	instances := make([]Instance, 0, len(ids))
	for _, id := range ids {
		dropletID, err := strconv.Atoi(id)
		if err != nil {
			return nil, fmt.Errorf("invalid droplet id %q: %w", id, err)
		}

		d, _, err := b.client.Droplets.Get(ctx, dropletID)
		if err != nil {
			return nil, fmt.Errorf("failed to get droplet %d: %w", dropletID, err)
		}

		status := StatusPending
		if d.Status == "active" {
			status = StatusRunning
		}
		publicIP, _ := d.PublicIPv4()
		privateIP, _ := d.PrivateIPv4()
		instances = append(instances, Instance{
			ID:        id,
			PublicIP:  publicIP,
			PrivateIP: privateIP,
			Status:    status,
		})
	}
	return instances, nil
}

// Terminate deletes the given droplets.
func (b *DigitalOcean) Terminate(ctx context.Context, ids []string) error {
	for _, id := range ids {
		dropletID, err := strconv.Atoi(id)
		if err != nil {
			return fmt.Errorf("invalid droplet id %q: %w", id, err)
		}
		if _, err := b.client.Droplets.Delete(ctx, dropletID); err != nil {
			return fmt.Errorf("failed to delete droplet %d: %w", dropletID, err)
		}
	}
	return nil
}

// AttachDisk attaches a block storage volume and returns the device path it
// appears on inside the droplet.
func (b *DigitalOcean) AttachDisk(ctx context.Context, diskID, instanceID string) (string, error) {
	dropletID, err := strconv.Atoi(instanceID)
	if err != nil {
		return "", fmt.Errorf("invalid droplet id %q: %w", instanceID, err)
	}

	volume, _, err := b.client.Storage.GetVolume(ctx, diskID)
	if err != nil {
		return "", fmt.Errorf("failed to get volume %s: %w", diskID, err)
	}

	if _, _, err := b.client.StorageActions.Attach(ctx, diskID, dropletID); err != nil {
		return "", fmt.Errorf("failed to attach volume %s: %w", diskID, err)
	}

	return fmt.Sprintf("/dev/disk/by-id/scsi-0DO_Volume_%s", volume.Name), nil
}
