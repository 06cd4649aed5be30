package config

import (
	"os"
	"path/filepath"
)

const defaultBaseDir = ".chatrelay"

// Paths holds resolved filesystem locations for chatrelay.
type Paths struct {
	Base   string // ~/.chatrelay
	Config string // ~/.chatrelay/config.yaml
	Data   string // ~/.chatrelay/data
}

// ResolvePaths computes the standard paths. CHATRELAY_HOME overrides the
// base directory.
func ResolvePaths() (Paths, error) {
	base := os.Getenv("CHATRELAY_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return Paths{}, err
		}
		base = filepath.Join(home, defaultBaseDir)
	}
	return Paths{
		Base:   base,
		Config: filepath.Join(base, "config.yaml"),
		Data:   filepath.Join(base, "data"),
	}, nil
}

// EnsureDirs creates the base and data directories.
func (p Paths) EnsureDirs() error {
	for _, d := range []string{p.Base, p.Data} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			return err
		}
	}
	return nil
}

// ProgressDB returns the SQLite path for progress data, honoring an
// explicit progress.dbPath.
func (p Paths) ProgressDB(cfg ProgressConfig) string {
	if cfg.DBPath != "" {
		return cfg.DBPath
	}
	return filepath.Join(p.Data, "chatrelay.db")
}
