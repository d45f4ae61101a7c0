package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// ImportTOML reads a hand-authored TOML settings file and rewrites it as
// settings.json at dest, for operators who prefer to author config in TOML
// (the `memctl settings import` verb). settings.json remains the only
// format the engine reads at startup.
func ImportTOML(srcPath, dest string) error {
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(srcPath, &raw); err != nil {
		return fmt.Errorf("decoding %s: %w", srcPath, err)
	}

	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings.json: %w", err)
	}

	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	return nil
}
