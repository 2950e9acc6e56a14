package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "ADLTRANSFER_CONFIG"
	EnvMetadataDir = "ADLTRANSFER_METADATA_DIR"
	EnvTenant      = "ADLTRANSFER_TENANT"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // ADLTRANSFER_CONFIG: override config file path
	MetadataDir string // ADLTRANSFER_METADATA_DIR: default metadata directory
	Tenant      string // ADLTRANSFER_TENANT: default Azure AD tenant
}

// ReadEnvOverrides reads environment variables and returns any overrides
// found. It does not modify any Config.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		MetadataDir: os.Getenv(EnvMetadataDir),
		Tenant:      os.Getenv(EnvTenant),
	}
}
