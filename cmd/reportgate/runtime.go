package main

import (
	"os"
	"strings"

	"github.com/davidahmann/reportgate/core/projectconfig"
	"github.com/davidahmann/reportgate/core/registry"
)

var registryCache registry.Cache

type runtimeSettings struct {
	config    projectconfig.Config
	schemaDir string
	registry  *registry.Registry
}

// loadRuntime reads the project config (an explicit --config must exist),
// applies environment overrides and resolves the shared schema registry.
func loadRuntime(configPath string, schemaDirFlag string) (runtimeSettings, error) {
	path := strings.TrimSpace(configPath)
	allowMissing := false
	if path == "" {
		path = projectconfig.DefaultPath
		allowMissing = true
	}
	configuration, err := projectconfig.Load(path, allowMissing)
	if err != nil {
		return runtimeSettings{}, err
	}
	if err := configuration.ApplyEnv(os.Getenv); err != nil {
		return runtimeSettings{}, err
	}
	schemaDir := strings.TrimSpace(schemaDirFlag)
	if schemaDir == "" {
		schemaDir = configuration.Schemas.Dir
	}
	table, err := configuration.VersionTable()
	if err != nil {
		return runtimeSettings{}, err
	}
	reg, err := registryCache.Load(schemaDir, table)
	if err != nil {
		return runtimeSettings{}, err
	}
	return runtimeSettings{config: configuration, schemaDir: schemaDir, registry: reg}, nil
}
