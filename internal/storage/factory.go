// factory.go maps backend names (local, s3, azure, gcs) to constructors.
package storage

import (
	"fmt"
	"sync"

	"github.com/task-manager/task-manager/internal/config"
)

// FactoryFunc builds a backend from the archive configuration
type FactoryFunc func(*config.AuditArchiveConfig) (ObjectStore, error)

var (
	factoriesMu sync.RWMutex
	factories   = make(map[string]FactoryFunc)
)

// Register registers a backend factory
func Register(name string, factory FactoryFunc) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = factory
}

// New creates the backend named by cfg.Backend
func New(cfg *config.AuditArchiveConfig) (ObjectStore, error) {
	factoriesMu.RLock()
	factory, ok := factories[cfg.Backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage backend: %s (must be 'local', 'azure', 's3', or 'gcs')", cfg.Backend)
	}
	return factory(cfg)
}
