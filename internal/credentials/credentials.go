// Package credentials holds the cloud authentication and topology fields the
// agent needs to act on a provider, and reshapes them into per-call wire
// parameters.
package credentials

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Credentials is the opaque set of cloud fields handed to every operation.
// It is never mutated after loading; CallParameters builds a fresh map per
// call.
type Credentials struct {
	Infrastructure string `yaml:"infrastructure"`
	AccessKey      string `yaml:"access_key"`
	SecretKey      string `yaml:"secret_key"`
	Endpoint       string `yaml:"endpoint"`
	Project        string `yaml:"project"`
	ImageID        string `yaml:"image_id"`
	InstanceType   string `yaml:"instance_type"`
	KeyName        string `yaml:"key_name"`
	UseSpot        bool   `yaml:"use_spot"`
	SpotPrice      string `yaml:"spot_price"`
	SecurityGroup  string `yaml:"security_group"`
}

// Load reads credentials from a YAML file.
func Load(path string) (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(path)
	if err != nil {
		return creds, fmt.Errorf("failed to read credentials file: %w", err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Secrets may be referenced via environment variables
	creds.AccessKey = os.ExpandEnv(creds.AccessKey)
	creds.SecretKey = os.ExpandEnv(creds.SecretKey)

	if creds.Infrastructure == "" {
		return creds, fmt.Errorf("infrastructure is required in credentials file")
	}
	return creds, nil
}

// CallParameters shapes the credentials into the wire parameter document.
// The returned map is fresh per call; callers add call-specific fields
// (num_vms, reservation_id, disk_name, instance_id) on top.
func (c Credentials) CallParameters() map[string]any {
	return map[string]any{
		"infrastructure": c.Infrastructure,
		"access_key":     c.AccessKey,
		"secret_key":     c.SecretKey,
		"endpoint":       c.Endpoint,
		"project":        c.Project,
		"image_id":       c.ImageID,
		"instance_type":  c.InstanceType,
		"key_name":       c.KeyName,
		"use_spot":       c.UseSpot,
		"spot_price":     c.SpotPrice,
		"security_group": c.SecurityGroup,
	}
}
