package app

import (
	"fmt"
	"strings"
	"time"

	"issuebot/internal/config"
	"issuebot/internal/storage"
)

// mapStorageConfig reports false for the in-memory store.
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	sc := cfg.Dedup.Store
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none", "memory":
		return storage.Config{}, false, nil
	case "file":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("dedup.store.path is required when driver=file")
		}
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("dedup.store.path is required when driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("dedup.store.busy_timeout", sc.BusyTimeout, time.Second, false)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown dedup.store.driver: %s", sc.Driver)
	}
}
