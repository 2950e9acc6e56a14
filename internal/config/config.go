// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for adltransfer. Settings follow a
// four-layer override chain: defaults -> config file -> environment ->
// command line. The config file is optional; without one every setting
// keeps its default.
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Transfers TransfersConfig `toml:"transfers"`
	Auth      AuthConfig      `toml:"auth"`
	Logging   LoggingConfig   `toml:"logging"`
	Network   NetworkConfig   `toml:"network"`
}

// TransfersConfig holds the default tuning values for a transfer. Command
// line options override each of them.
type TransfersConfig struct {
	FileThreads     int    `toml:"file_threads"`
	ConcurrentFiles int    `toml:"concurrent_files"`
	SegmentSize     string `toml:"segment_size"`
	MetadataDir     string `toml:"metadata_dir"`
}

// AuthConfig controls the Azure Active Directory application and tenant
// used to obtain tokens.
type AuthConfig struct {
	Tenant   string `toml:"tenant"`
	ClientID string `toml:"client_id"`
}

// LoggingConfig controls diagnostic log output on stderr.
type LoggingConfig struct {
	LogLevel string `toml:"log_level"`
}

// NetworkConfig controls the HTTP client talking to the Data Lake Store
// endpoint. endpoint_suffix selects the cloud (public, sovereign, or a test
// server).
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	UserAgent      string `toml:"user_agent"`
	EndpointSuffix string `toml:"endpoint_suffix"`
}

// CLIOverrides holds values from the command line that take precedence over
// the config file and environment.
type CLIOverrides struct {
	ConfigPath string // empty = use env or default
}

// Resolved is the effective configuration after all override layers have
// been applied, with sizes and durations parsed.
type Resolved struct {
	Path string // config file that was read, or the default path if absent

	FileThreads      int
	ConcurrentFiles  int
	SegmentSizeBytes int64
	MetadataDir      string

	Tenant   string
	ClientID string

	LogLevel string

	ConnectTimeout time.Duration
	UserAgent      string
	EndpointSuffix string
}
