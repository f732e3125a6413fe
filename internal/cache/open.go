package cache

import (
	"fmt"
	"path/filepath"
	"strings"
)

// OpenStore creates the cache directory and opens the named backend in it.
func OpenStore(backend, dir string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "sqlite":
		return NewSQLiteStore(filepath.Join(dir, "search_cache.db"))
	case "bolt":
		return NewBoltStore(filepath.Join(dir, "search_cache.bolt"))
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
