package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Platform identifiers.
const (
	platformLinux   = "linux"
	platformDarwin  = "darwin"
	platformWindows = "windows"
)

// Application directory name used across all platforms.
const appName = "adltransfer"

// Config file name.
const configFileName = "config.toml"

// Subdirectories of the data directory.
const (
	metadataSubdir = "metadata"
	tokensSubdir   = "tokens"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/adltransfer).
// On macOS, uses ~/Library/Application Support/adltransfer.
// On Windows, uses %APPDATA%\adltransfer.
func DefaultConfigDir() string {
	if runtime.GOOS == platformWindows {
		if dir, err := os.UserConfigDir(); err == nil {
			return filepath.Join(dir, appName)
		}

		return ""
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".config", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

// DefaultDataDir returns the platform's local application-data directory for
// adltransfer: %LOCALAPPDATA% on Windows, XDG_DATA_HOME (or
// ~/.local/share) on Linux, ~/Library/Application Support on macOS.
func DefaultDataDir() string {
	if runtime.GOOS == platformWindows {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName)
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, appName)
		}

		return filepath.Join(home, ".local", "share", appName)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	case platformWindows:
		return filepath.Join(home, "AppData", "Local", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

// DefaultConfigPath returns the full path to the default config file. Used
// when neither ADLTRANSFER_CONFIG nor the CLI override names one.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// DefaultMetadataDir returns the directory holding resumable transfer
// metadata when neither the config file nor -m names one.
func DefaultMetadataDir() string {
	dir := DefaultDataDir()
	if dir == "" {
		return filepath.Join(os.TempDir(), appName, metadataSubdir)
	}

	return filepath.Join(dir, metadataSubdir)
}

// TokenCachePath returns the token cache file for an Azure AD tenant.
// Returns "" when no data directory can be determined.
func TokenCachePath(tenant string) string {
	dir := DefaultDataDir()
	if dir == "" {
		return ""
	}

	if tenant == "" {
		tenant = defaultTenant
	}

	return filepath.Join(dir, tokensSubdir, sanitizeFileName(strings.ToLower(tenant))+".json")
}

// sanitizeFileName replaces characters that are not safe in a file name on
// every supported platform.
func sanitizeFileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '.', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

// expandTilde replaces a leading "~/" with the user's home directory.
func expandTilde(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
