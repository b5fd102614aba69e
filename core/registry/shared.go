package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/davidahmann/reportgate/internal/schemaassets"
)

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return Build(DefaultTable(), schemaassets.FS())
})

// Default returns the process-wide registry over the bundled schemas. It is
// built on first use; concurrent callers share the single result.
func Default() (*Registry, error) {
	return defaultRegistry()
}

// Cache builds at most one registry per schema storage location and table.
// The zero value is ready to use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]func() (*Registry, error)
}

// Load returns the registry for dir, building it once. An empty dir selects the
// bundled schemas.
func (c *Cache) Load(dir string, table Table) (*Registry, error) {
	key, err := cacheKey(dir, table)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.entries == nil {
		c.entries = map[string]func() (*Registry, error){}
	}
	build, ok := c.entries[key]
	if !ok {
		trimmedDir := strings.TrimSpace(dir)
		frozen := table.Merge(nil)
		build = sync.OnceValues(func() (*Registry, error) {
			if trimmedDir == "" {
				return Build(frozen, schemaassets.FS())
			}
			return Build(frozen, os.DirFS(trimmedDir))
		})
		c.entries[key] = build
	}
	c.mu.Unlock()

	return build()
}

func cacheKey(dir string, table Table) (string, error) {
	location := "embedded"
	if trimmedDir := strings.TrimSpace(dir); trimmedDir != "" {
		absolute, err := filepath.Abs(trimmedDir)
		if err != nil {
			return "", fmt.Errorf("resolve schema dir: %w", err)
		}
		location = absolute
	}
	encoded, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("encode version table: %w", err)
	}
	return location + "\x1f" + string(encoded), nil
}
