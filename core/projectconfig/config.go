package projectconfig

import (
	"fmt"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/davidahmann/reportgate/core/enforcement"
	coreerrors "github.com/davidahmann/reportgate/core/errors"
	"github.com/davidahmann/reportgate/core/registry"
)

const DefaultPath = ".reportgate/config.yaml"

const (
	EnvAuditLog = "REPORTGATE_AUDIT_LOG"
	EnvEnforce  = "REPORTGATE_ENFORCE"
)

const codeInvalidConfig = "invalid_project_config"

type Config struct {
	Schemas     SchemaDefaults      `yaml:"schemas"`
	Enforcement EnforcementDefaults `yaml:"enforcement"`
	Audit       AuditDefaults       `yaml:"audit"`
	Metrics     MetricsDefaults     `yaml:"metrics"`
}

type SchemaDefaults struct {
	// Dir holds <version>/<type>-report-format.json documents. Empty selects
	// the bundled schema set.
	Dir string `yaml:"dir"`
	// Versions replaces the bundled version table per report type.
	Versions map[string]registry.Versions `yaml:"versions"`
}

type EnforcementDefaults struct {
	Default  *bool           `yaml:"default"`
	Projects map[string]bool `yaml:"projects"`
}

type AuditDefaults struct {
	LogPath   string `yaml:"log_path"`
	Async     bool   `yaml:"async"`
	QueueSize int    `yaml:"queue_size"`
}

type MetricsDefaults struct {
	Textfile string `yaml:"textfile"`
}

func Load(path string, allowMissing bool) (Config, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return Config{}, fmt.Errorf("project config path is required")
	}

	// #nosec G304 -- project config path is explicit local user input.
	content, err := os.ReadFile(trimmedPath)
	if err != nil {
		if os.IsNotExist(err) && allowMissing {
			return Config{}, nil
		}
		return Config{}, coreerrors.Wrap(fmt.Errorf("read project config: %w", err), coreerrors.CategoryInvalidInput, "project_config_unreadable", "check --config or create "+DefaultPath, false)
	}
	if len(strings.TrimSpace(string(content))) == 0 {
		return Config{}, nil
	}

	var configuration Config
	if err := yaml.Unmarshal(content, &configuration); err != nil {
		return Config{}, coreerrors.Configuration(codeInvalidConfig, "fix the YAML in "+trimmedPath, "parse project config: %w", err)
	}
	configuration.normalize()
	if configuration.Audit.QueueSize < 0 {
		return Config{}, coreerrors.Configuration(codeInvalidConfig, "audit.queue_size must be zero or positive", "invalid audit.queue_size %d", configuration.Audit.QueueSize)
	}
	return configuration, nil
}

func (configuration *Config) normalize() {
	configuration.Schemas.Dir = strings.TrimSpace(configuration.Schemas.Dir)
	if len(configuration.Schemas.Versions) > 0 {
		versions := make(map[string]registry.Versions, len(configuration.Schemas.Versions))
		for reportType, entry := range configuration.Schemas.Versions {
			versions[strings.ToLower(strings.TrimSpace(reportType))] = entry
		}
		configuration.Schemas.Versions = versions
	}
	if len(configuration.Enforcement.Projects) > 0 {
		projects := make(map[string]bool, len(configuration.Enforcement.Projects))
		for ref, enabled := range configuration.Enforcement.Projects {
			projects[strings.TrimSpace(ref)] = enabled
		}
		configuration.Enforcement.Projects = projects
	}
	configuration.Audit.LogPath = strings.TrimSpace(configuration.Audit.LogPath)
	configuration.Metrics.Textfile = strings.TrimSpace(configuration.Metrics.Textfile)
}

// ApplyEnv overlays the environment switches. lookup is usually os.Getenv.
func (configuration *Config) ApplyEnv(lookup func(string) string) error {
	if lookup == nil {
		return nil
	}
	if logPath := strings.TrimSpace(lookup(EnvAuditLog)); logPath != "" {
		configuration.Audit.LogPath = logPath
	}
	if toggle := strings.TrimSpace(lookup(EnvEnforce)); toggle != "" {
		enabled, err := enforcement.ParseToggle(toggle)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEnforce, err)
		}
		configuration.Enforcement.Default = &enabled
	}
	return nil
}

// VersionTable is the bundled table with the configured report types replaced.
func (configuration Config) VersionTable() (registry.Table, error) {
	overrides := make(registry.Table, len(configuration.Schemas.Versions))
	for name, versions := range configuration.Schemas.Versions {
		reportType, err := registry.ParseReportType(name)
		if err != nil {
			return nil, err
		}
		overrides[reportType] = versions
	}
	return registry.DefaultTable().Merge(overrides), nil
}

// EnforcementPolicy enforces by default unless enforcement.default is false.
func (configuration Config) EnforcementPolicy() enforcement.Policy {
	defaultOn := true
	if configuration.Enforcement.Default != nil {
		defaultOn = *configuration.Enforcement.Default
	}
	return enforcement.NewPolicy(defaultOn, configuration.Enforcement.Projects)
}
