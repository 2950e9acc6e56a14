package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation range constants.
const (
	minThreads         = 1
	maxThreads         = 1024
	minConcurrentFiles = 1
	maxConcurrentFiles = 256
	minConnectTimeout  = 1 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTransfers(&cfg.Transfers)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateTransfers(t *TransfersConfig) []error {
	var errs []error

	if t.FileThreads < minThreads || t.FileThreads > maxThreads {
		errs = append(errs, fmt.Errorf("file_threads: must be between %d and %d, got %d",
			minThreads, maxThreads, t.FileThreads))
	}

	if t.ConcurrentFiles < minConcurrentFiles || t.ConcurrentFiles > maxConcurrentFiles {
		errs = append(errs, fmt.Errorf("concurrent_files: must be between %d and %d, got %d",
			minConcurrentFiles, maxConcurrentFiles, t.ConcurrentFiles))
	}

	size, err := ParseSize(t.SegmentSize)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("segment_size: %w", err))
	case size <= 0:
		errs = append(errs, fmt.Errorf("segment_size: must be positive, got %q", t.SegmentSize))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.Tenant == "" {
		errs = append(errs, errors.New("tenant: must not be empty"))
	}

	if a.ClientID == "" {
		errs = append(errs, errors.New("client_id: must not be empty"))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogging(l *LoggingConfig) []error {
	if !validLogLevels[l.LogLevel] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	d, err := time.ParseDuration(n.ConnectTimeout)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("connect_timeout: invalid duration %q: %w", n.ConnectTimeout, err))
	case d < minConnectTimeout:
		errs = append(errs, fmt.Errorf("connect_timeout: must be >= %s, got %s", minConnectTimeout, d))
	}

	if n.EndpointSuffix == "" {
		errs = append(errs, errors.New("endpoint_suffix: must not be empty"))
	}

	return errs
}
