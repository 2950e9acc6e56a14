package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain up to the
// environment layer: defaults -> config file -> environment variables.
// Command line transfer options are applied afterwards by the option parser.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(expandTilde(cfgPath))
	if err != nil {
		return nil, err
	}

	if env.Tenant != "" {
		cfg.Auth.Tenant = env.Tenant
	}

	if env.MetadataDir != "" {
		cfg.Transfers.MetadataDir = env.MetadataDir
	}

	return resolve(cfg, cfgPath)
}

// resolve converts a validated Config into its effective form. Validate has
// already guaranteed that sizes and durations parse.
func resolve(cfg *Config, path string) (*Resolved, error) {
	segment, err := ParseSize(cfg.Transfers.SegmentSize)
	if err != nil {
		return nil, fmt.Errorf("segment_size: %w", err)
	}

	timeout, err := time.ParseDuration(cfg.Network.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect_timeout: %w", err)
	}

	metadataDir := expandTilde(cfg.Transfers.MetadataDir)
	if metadataDir == "" {
		metadataDir = DefaultMetadataDir()
	}

	return &Resolved{
		Path:             path,
		FileThreads:      cfg.Transfers.FileThreads,
		ConcurrentFiles:  cfg.Transfers.ConcurrentFiles,
		SegmentSizeBytes: segment,
		MetadataDir:      metadataDir,
		Tenant:           cfg.Auth.Tenant,
		ClientID:         cfg.Auth.ClientID,
		LogLevel:         cfg.Logging.LogLevel,
		ConnectTimeout:   timeout,
		UserAgent:        cfg.Network.UserAgent,
		EndpointSuffix:   cfg.Network.EndpointSuffix,
	}, nil
}
