package tokenstore

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/adrg/xdg"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendValkey = "valkey"
)

// BackendConfig selects and configures a Backend.
type BackendConfig struct {
	Type   string
	Path   string // file path, badger directory or sqlite database
	Valkey ValkeyConfig
}

// OpenBackend creates the backend named by cfg.Type. Empty Path values
// default to locations under the XDG data directory.
func OpenBackend(cfg BackendConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "", BackendFile:
		return NewFileBackend(cfg.Path)
	case BackendMemory:
		return NewMemoryBackend(), nil
	case BackendBadger:
		dir := cfg.Path
		if dir == "" {
			dir = filepath.Join(xdg.DataHome, "todocal", "badger")
		}
		return NewBadgerBackend(dir, logger)
	case BackendSQLite:
		path := cfg.Path
		if path == "" {
			var err error
			if path, err = xdg.DataFile("todocal/session.db"); err != nil {
				return nil, fmt.Errorf("failed to resolve sqlite path: %w", err)
			}
		}
		return NewSQLiteBackend(path)
	case BackendValkey:
		return NewValkeyBackend(cfg.Valkey)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
