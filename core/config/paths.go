package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appDir = "antigravity-bridge"

// DefaultConfigPath returns the default config file path for the given component
// name (e.g. "server.yaml", "client.yaml").
func DefaultConfigPath(name string) string {
	home, _ := os.UserHomeDir()
	return ResolveConfigPath(runtime.GOOS, home, os.Getenv("APPDATA"), name)
}

// ResolveConfigPath constructs a config file path for the given OS and base
// directories. It is mainly used in tests.
func ResolveConfigPath(goos, home, appData, name string) string {
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", appDir, name)
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		appData = strings.TrimRight(appData, "\\/")
		return filepath.Join(appData, appDir, name)
	default:
		return filepath.Join(home, ".config", appDir, name)
	}
}

// DefaultTokenPath is where the daemon persists a generated token.
func DefaultTokenPath() string { return DefaultConfigPath("token") }

// DefaultStateDBPath returns the location of the IDE's global state database.
func DefaultStateDBPath() string {
	home, _ := os.UserHomeDir()
	return ResolveStateDBPath(runtime.GOOS, home, os.Getenv("APPDATA"))
}

// ResolveStateDBPath constructs the IDE state database path for the given OS.
func ResolveStateDBPath(goos, home, appData string) string {
	rel := filepath.Join("Antigravity", "User", "globalStorage", "state.vscdb")
	switch goos {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", rel)
	case "windows":
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(strings.TrimRight(appData, "\\/"), rel)
	default:
		return filepath.Join(home, ".config", rel)
	}
}
