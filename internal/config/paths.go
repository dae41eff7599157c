package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// DefaultModsDir returns the Farming Simulator 2025 mods folder for the
// current platform. It falls back to a relative "mods" directory when the
// home directory cannot be determined.
func DefaultModsDir() string {
	return modsDir(runtime.GOOS, os.Getenv, os.UserHomeDir)
}

func modsDir(goos string, getenv func(string) string, home func() (string, error)) string {
	if goos == "windows" {
		base := getenv("USERPROFILE")
		if base == "" {
			if h, err := home(); err == nil {
				base = h
			}
		}
		if base == "" {
			return "mods"
		}
		return filepath.Join(base, "Documents", "My Games", "FarmingSimulator2025", "mods")
	}

	h, err := home()
	if err != nil || h == "" {
		return "mods"
	}
	return filepath.Join(h, ".local", "share", "FarmingSimulator2025", "mods")
}
