package config

// Default values for configuration options. These represent "layer 0" of
// the override chain and match the behaviour of a run without any config
// file.
const (
	defaultFileThreads     = 10
	defaultConcurrentFiles = 5
	defaultSegmentSize     = "256MiB"
	defaultTenant          = "common"
	defaultLogLevel        = "warn"
	defaultConnectTimeout  = "30s"
	defaultEndpointSuffix  = "azuredatalakestore.net"

	// defaultClientID is the well-known Azure PowerShell public client. It is
	// pre-consented for the Data Lake resource in every tenant and allows
	// device code and password grants.
	defaultClientID = "1950a258-227b-4e31-a9cf-717495945fc2"
)

// Version is the application version reported in the banner and user agent.
// Overridden at build time via ldflags.
var Version = "dev"

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Transfers: TransfersConfig{
			FileThreads:     defaultFileThreads,
			ConcurrentFiles: defaultConcurrentFiles,
			SegmentSize:     defaultSegmentSize,
		},
		Auth: AuthConfig{
			Tenant:   defaultTenant,
			ClientID: defaultClientID,
		},
		Logging: LoggingConfig{
			LogLevel: defaultLogLevel,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			UserAgent:      "adltransfer/" + Version,
			EndpointSuffix: defaultEndpointSuffix,
		},
	}
}
