package db

import (
	"fmt"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite connects to a local SQLite file under dataDir, the default
// store for a single-process deployment.
func OpenSQLite(dataDir string) (*gorm.DB, error) {
	path := filepath.Join(dataDir, "bioengine.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database at %s: %w", path, err)
	}
	return db, nil
}
