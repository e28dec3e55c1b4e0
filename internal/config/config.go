package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"vmbroker/internal/wire"
)

// Config contains application configuration for both the client commands and
// the agent.
type Config struct {
	// Client settings
	AgentURL        string `yaml:"agent_url"`
	CredentialsFile string `yaml:"credentials_file"`

	// Shared secret authenticating every call
	Secret string `yaml:"secret"`

	// Agent settings
	ListenAddr      string   `yaml:"listen_addr"`
	TLSCert         string   `yaml:"tls_cert"`
	TLSKey          string   `yaml:"tls_key"`
	EtcdEndpoints   []string `yaml:"etcd_endpoints"`
	MaxProvisioners int      `yaml:"max_provisioners"`
}

// Load loads configuration from a YAML file. CONFIG_PATH overrides the
// default location; missing files fall back to defaults plus environment
// overrides.
func Load() (*Config, error) {
	config := &Config{
		AgentURL:        fmt.Sprintf("https://localhost:%d", wire.DefaultPort),
		CredentialsFile: "credentials.yaml",
		ListenAddr:      fmt.Sprintf(":%d", wire.DefaultPort),
		MaxProvisioners: 5,
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "vmbroker.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %v", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %v", err)
		}
	}

	// Expand environment variables in string fields
	config.AgentURL = os.ExpandEnv(config.AgentURL)
	config.CredentialsFile = os.ExpandEnv(config.CredentialsFile)
	config.Secret = os.ExpandEnv(config.Secret)
	config.TLSCert = os.ExpandEnv(config.TLSCert)
	config.TLSKey = os.ExpandEnv(config.TLSKey)

	// Override with environment variables if set
	if secret := os.Getenv("VMBROKER_SECRET"); secret != "" {
		config.Secret = secret
	}
	if url := os.Getenv("VMBROKER_AGENT_URL"); url != "" {
		config.AgentURL = url
	}

	if config.Secret == "" {
		return nil, fmt.Errorf("shared secret is required (set secret in config file or VMBROKER_SECRET environment variable)")
	}

	return config, nil
}
