package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Paths are the locations the CLI falls back to before a config file exists.
type Paths struct {
	ConfigPath string
	BaseDir    string
}

// DefaultPaths resolves Paths in order of precedence:
//   - CMS_CONFIG_PATH, then $XDG_CONFIG_HOME/cms.toml, then ~/.config/cms.toml
//   - CMS_HOME, then $XDG_DATA_HOME/cms, then ~/.local/share/cms
func DefaultPaths() (Paths, error) {
	cfgPath, err := resolve("CMS_CONFIG_PATH", "XDG_CONFIG_HOME", "cms.toml", ".config")
	if err != nil {
		return Paths{}, err
	}
	base, err := resolve("CMS_HOME", "XDG_DATA_HOME", "cms", filepath.Join(".local", "share"))
	if err != nil {
		return Paths{}, err
	}
	return Paths{ConfigPath: cfgPath, BaseDir: base}, nil
}

// SnapshotPath names a metadata index snapshot taken at t under baseDir.
func SnapshotPath(baseDir string, t time.Time) string {
	return filepath.Join(baseDir, "snapshots", "cms-"+t.UTC().Format("20060102T150405Z")+".db")
}

// resolve returns $override verbatim, else name under $xdg, else name under
// homeRel in the user's home directory.
func resolve(override, xdg, name, homeRel string) (string, error) {
	if v := os.Getenv(override); v != "" {
		return v, nil
	}
	if v := os.Getenv(xdg); v != "" {
		return filepath.Join(v, name), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, homeRel, name), nil
}
