package storage

import (
	"fmt"

	"github.com/AaronLay10/ActionGraph/internal/config"
)

// Open builds the store the storage config asks for, behind an LRU cache.
// The postgres driver needs db; the file driver ignores it.
func Open(cfg config.StorageConfig, db SceneDB) (Store, error) {
	var base Store
	switch cfg.DriverName() {
	case "file":
		codec, err := CodecByName(cfg.CodecName())
		if err != nil {
			return nil, err
		}
		fs, err := NewFileStore(cfg.Dir(), codec)
		if err != nil {
			return nil, err
		}
		base = fs
	case "postgres":
		if db == nil {
			return nil, fmt.Errorf("storage driver postgres needs a database connection")
		}
		base = NewSQLStore(db)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.DriverName())
	}
	return NewCachedStore(base, cfg.Cache())
}
