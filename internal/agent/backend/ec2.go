package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"vmbroker/internal/credentials"
	"vmbroker/internal/sshkeys"
)

const (
	// Region used when the endpoint does not imply one.
	defaultRegion = "us-east-1"
	// Device the attach_disk operation exposes volumes on.
	defaultAttachDevice = "/dev/sdc"
)

// EC2 implements Backend against the EC2 API, including EC2-compatible
// endpoints configured via the credentials' endpoint field.
type EC2 struct {
	client *ec2.Client
	keyDir string
	log    *zap.Logger
}

// NewEC2 creates an EC2 backend from static credentials.
func NewEC2(ctx context.Context, creds credentials.Credentials, log *zap.Logger) (*EC2, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(defaultRegion),
		awsconfig.WithCredentialsProvider(
			awscreds.NewStaticCredentialsProvider(creds.AccessKey, creds.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load EC2 config: %w", err)
	}

	client := ec2.NewFromConfig(cfg, func(o *ec2.Options) {
		if creds.Endpoint != "" {
			o.BaseEndpoint = aws.String(creds.Endpoint)
		}
	})

	return &EC2{client: client, keyDir: ".vmbroker/keys", log: log}, nil
}

// Run starts spec.Count instances and returns their ids. The named key pair
// is imported first if the provider does not know it.
func (b *EC2) Run(ctx context.Context, spec InstanceSpec) ([]string, error) {
	if err := b.ensureKeyPair(ctx, spec.KeyName); err != nil {
		return nil, err
	}

	input := &ec2.RunInstancesInput{
		ImageId:      aws.String(spec.ImageID),
		InstanceType: types.InstanceType(spec.InstanceType),
		MinCount:     aws.Int32(int32(spec.Count)),
		MaxCount:     aws.Int32(int32(spec.Count)),
	}
	if spec.KeyName != "" {
		input.KeyName = aws.String(spec.KeyName)
	}
	if spec.SecurityGroup != "" {
		input.SecurityGroups = []string{spec.SecurityGroup}
	}
	if spec.UseSpot {
		spot := &types.SpotMarketOptions{}
		if spec.SpotPrice != "" {
			spot.MaxPrice = aws.String(spec.SpotPrice)
		}
		input.InstanceMarketOptions = &types.InstanceMarketOptionsRequest{
			MarketType:  types.MarketTypeSpot,
			SpotOptions: spot,
		}
	}

	output, err := b.client.RunInstances(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to run instances: %w", err)
	}

	ids := make([]string, 0, len(output.Instances))
	for _, inst := range output.Instances {
		ids = append(ids, aws.ToString(inst.InstanceId))
	}
	return ids, nil
}

// Describe reports the current state of the given instances.
func (b *EC2) Describe(ctx context.Context, ids []string) ([]Instance, error) {
	output, err := b.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to describe instances: %w", err)
	}

	var instances []Instance
	for _, reservation := range output.Reservations {
		for _, inst := range reservation.Instances {
			status := StatusPending
			if inst.State != nil && inst.State.Name == types.InstanceStateNameRunning {
				status = StatusRunning
			}
			instances = append(instances, Instance{
				ID:        aws.ToString(inst.InstanceId),
				PublicIP:  aws.ToString(inst.PublicIpAddress),
				PrivateIP: aws.ToString(inst.PrivateIpAddress),
				Status:    status,
			})
		}
	}
	return instances, nil
}

// Terminate shuts the given instances down.
func (b *EC2) Terminate(ctx context.Context, ids []string) error {
	_, err := b.client.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
		InstanceIds: ids,
	})
	if err != nil {
		return fmt.Errorf("failed to terminate instances: %w", err)
	}
	return nil
}

// AttachDisk attaches an EBS volume and returns the device it appears on.
func (b *EC2) AttachDisk(ctx context.Context, diskID, instanceID string) (string, error) {
	output, err := b.client.AttachVolume(ctx, &ec2.AttachVolumeInput{
		Device:     aws.String(defaultAttachDevice),
		InstanceId: aws.String(instanceID),
		VolumeId:   aws.String(diskID),
	})
	if err != nil {
		return "", fmt.Errorf("failed to attach volume: %w", err)
	}
	return aws.ToString(output.Device), nil
}

// ensureKeyPair imports a freshly generated key pair when the named one does
// not exist. The private key is kept locally so operators can reach the
// machines.
func (b *EC2) ensureKeyPair(ctx context.Context, name string) error {
	if name == "" {
		return nil
	}

	_, err := b.client.DescribeKeyPairs(ctx, &ec2.DescribeKeyPairsInput{
		KeyNames: []string{name},
	})
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidKeyPair.NotFound" {
		return fmt.Errorf("failed to look up key pair %s: %w", name, err)
	}

	keyPair, err := sshkeys.Generate()
	if err != nil {
		return err
	}
	if _, err := b.client.ImportKeyPair(ctx, &ec2.ImportKeyPairInput{
		KeyName:           aws.String(name),
		PublicKeyMaterial: []byte(keyPair.PublicKey),
	}); err != nil {
		return fmt.Errorf("failed to import key pair %s: %w", name, err)
	}

	path, err := keyPair.SavePrivateKey(b.keyDir, name)
	if err != nil {
		return err
	}
	b.log.Info("imported new key pair",
		zap.String("key_name", name),
		zap.String("private_key", path))
	return nil
}
