package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/modwatch/modwatch/internal/release"
)

// SeedFile is the document accepted by LoadSeedFile, in YAML:
//
//	sources:
//	  - https://github.com/owner/repo
//	  - https://www.farming-simulator.com/mod.php?mod_id=123
//
// or TOML:
//
//	sources = ["https://github.com/owner/repo"]
type SeedFile struct {
	Sources []string `yaml:"sources" toml:"sources"`
}

// LoadSeedFile reads source ids from a seed file. Files ending in .toml are
// decoded as TOML, everything else as YAML. Blank entries are dropped.
func LoadSeedFile(path string) ([]release.SourceID, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseSeedTOML(data)
	}
	return ParseSeed(data)
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) ([]release.SourceID, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed.ids(), nil
}

// ParseSeedTOML decodes a TOML seed document.
func ParseSeedTOML(data []byte) ([]release.SourceID, error) {
	var seed SeedFile
	if err := toml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return seed.ids(), nil
}

func (seed SeedFile) ids() []release.SourceID {
	ids := make([]release.SourceID, 0, len(seed.Sources))
	for _, raw := range seed.Sources {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			ids = append(ids, release.SourceID(trimmed))
		}
	}
	return ids
}
