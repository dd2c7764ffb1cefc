package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths are the standard XDG locations this runtime writes to, kept
// separate from any single vault.
type Paths struct {
	Config string // ~/.config/agentvault
	Cache  string // ~/.cache/agentvault
	State  string // ~/.local/state/agentvault
}

// GetPaths returns the standard paths, honoring XDG_*_HOME overrides.
func GetPaths() *Paths {
	return &Paths{
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "agentvault"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "agentvault"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "agentvault"),
	}
}

// EnsurePaths creates every standard directory.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.Cache, p.State} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// GlobalConfigPath is the path the global runtime.json (JSON or JSONC) is
// read from.
func (p *Paths) GlobalConfigPath() string {
	return filepath.Join(p.Config, "runtime.json")
}

// VaultConfigPath is the per-vault override file's path.
func VaultConfigPath(vaultPath string) string {
	return filepath.Join(vaultPath, ".runtime", "runtime.json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
