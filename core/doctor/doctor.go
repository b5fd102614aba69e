package doctor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/davidahmann/reportgate/core/projectconfig"
	"github.com/davidahmann/reportgate/core/registry"
	"github.com/davidahmann/reportgate/internal/schemaassets"
)

const (
	statusPass = "pass"
	statusWarn = "warn"
	statusFail = "fail"
)

type Options struct {
	ConfigPath      string
	SchemaDir       string
	ProducerVersion string
	Getenv          func(string) string
}

type Result struct {
	SchemaID        string   `json:"schema_id"`
	SchemaVersion   string   `json:"schema_version"`
	CreatedAt       string   `json:"created_at"`
	ProducerVersion string   `json:"producer_version"`
	Status          string   `json:"status"`
	NonFixable      bool     `json:"non_fixable"`
	Summary         string   `json:"summary"`
	FixCommands     []string `json:"fix_commands"`
	Checks          []Check  `json:"checks"`
}

type Check struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Message    string `json:"message"`
	FixCommand string `json:"fix_command,omitempty"`
	NonFixable bool   `json:"non_fixable,omitempty"`
}

// Run checks that a validator could start from the given configuration: the
// config parses, the version table is consistent with the schema storage, and
// the audit and metrics outputs are writable.
func Run(opts Options) Result {
	configPath := strings.TrimSpace(opts.ConfigPath)
	if configPath == "" {
		configPath = projectconfig.DefaultPath
	}
	producerVersion := strings.TrimSpace(opts.ProducerVersion)
	if producerVersion == "" {
		producerVersion = "0.0.0-dev"
	}

	configuration, configCheck := checkProjectConfig(configPath, opts.Getenv)
	checks := []Check{configCheck}

	schemaDir := strings.TrimSpace(opts.SchemaDir)
	if schemaDir == "" {
		schemaDir = configuration.Schemas.Dir
	}
	table, tableCheck := checkVersionTable(configuration)
	checks = append(checks, tableCheck)
	if table != nil {
		storage, storageCheck := resolveStorage(schemaDir)
		if storage == nil {
			checks = append(checks, storageCheck)
		} else {
			checks = append(checks, checkRegistry(table, storage, schemaDir), checkOrphans(table, storage))
		}
	}
	checks = append(checks,
		checkOutputPath("audit_log", configuration.Audit.LogPath, "audit records are not persisted; set audit.log_path or "+projectconfig.EnvAuditLog),
		checkOutputPath("metrics_textfile", configuration.Metrics.Textfile, ""),
	)

	failed := 0
	warned := 0
	nonFixable := false
	fixCommands := make([]string, 0, len(checks))
	seenFixes := map[string]struct{}{}
	for _, check := range checks {
		switch check.Status {
		case statusFail:
			failed++
		case statusWarn:
			warned++
		}
		if check.NonFixable {
			nonFixable = true
		}
		if check.FixCommand != "" {
			if _, ok := seenFixes[check.FixCommand]; !ok {
				seenFixes[check.FixCommand] = struct{}{}
				fixCommands = append(fixCommands, check.FixCommand)
			}
		}
	}

	status := statusPass
	if failed > 0 {
		status = statusFail
	} else if warned > 0 {
		status = statusWarn
	}
	sort.Strings(fixCommands)

	return Result{
		SchemaID:        "reportgate.doctor.result",
		SchemaVersion:   "1.0.0",
		CreatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		ProducerVersion: producerVersion,
		Status:          status,
		NonFixable:      nonFixable,
		Summary:         fmt.Sprintf("doctor: status=%s failed=%d warned=%d non_fixable=%t", status, failed, warned, nonFixable),
		FixCommands:     fixCommands,
		Checks:          checks,
	}
}

func checkProjectConfig(path string, getenv func(string) string) (projectconfig.Config, Check) {
	_, statErr := os.Stat(path)
	configuration, err := projectconfig.Load(path, true)
	if err == nil {
		err = configuration.ApplyEnv(getenv)
	}
	if err != nil {
		return projectconfig.Config{}, Check{
			Name:       "project_config",
			Status:     statusFail,
			Message:    fmt.Sprintf("project config invalid: %v", err),
			FixCommand: fmt.Sprintf("edit %s", shellQuote(path)),
		}
	}
	if os.IsNotExist(statErr) {
		return configuration, Check{
			Name:    "project_config",
			Status:  statusPass,
			Message: fmt.Sprintf("no project config at %s, using defaults", path),
		}
	}
	return configuration, Check{
		Name:    "project_config",
		Status:  statusPass,
		Message: fmt.Sprintf("project config loaded from %s", path),
	}
}

func checkVersionTable(configuration projectconfig.Config) (registry.Table, Check) {
	table, err := configuration.VersionTable()
	if err != nil {
		return nil, Check{
			Name:    "version_table",
			Status:  statusFail,
			Message: fmt.Sprintf("version table invalid: %v", err),
		}
	}
	return table, Check{
		Name:    "version_table",
		Status:  statusPass,
		Message: fmt.Sprintf("%d report types configured", len(table)),
	}
}

func resolveStorage(schemaDir string) (fs.FS, Check) {
	if schemaDir == "" {
		return schemaassets.FS(), Check{}
	}
	info, err := os.Stat(schemaDir)
	if err != nil || !info.IsDir() {
		return nil, Check{
			Name:       "schema_registry",
			Status:     statusFail,
			Message:    fmt.Sprintf("schema directory not accessible: %s", schemaDir),
			FixCommand: "set schemas.dir to a directory of <version>/<type>-report-format.json documents",
		}
	}
	return os.DirFS(schemaDir), Check{}
}

func checkRegistry(table registry.Table, storage fs.FS, schemaDir string) Check {
	source := "bundled schemas"
	if schemaDir != "" {
		source = schemaDir
	}
	reg, err := registry.Build(table, storage)
	if err != nil {
		return Check{
			Name:       "schema_registry",
			Status:     statusFail,
			Message:    fmt.Sprintf("schema registry failed to build from %s: %v", source, err),
			NonFixable: schemaDir == "",
		}
	}
	return Check{
		Name:    "schema_registry",
		Status:  statusPass,
		Message: fmt.Sprintf("schema registry built from %s for %d report types", source, len(reg.ReportTypes())),
	}
}

func checkOrphans(table registry.Table, storage fs.FS) Check {
	orphans, err := registry.Orphans(table, storage)
	if err != nil {
		return Check{
			Name:    "schema_orphans",
			Status:  statusWarn,
			Message: fmt.Sprintf("schema inventory failed: %v", err),
		}
	}
	if len(orphans) > 0 {
		paths := make([]string, 0, len(orphans))
		for _, orphan := range orphans {
			paths = append(paths, orphan.Path)
		}
		return Check{
			Name:    "schema_orphans",
			Status:  statusWarn,
			Message: fmt.Sprintf("schema documents not in the version table: %s", strings.Join(paths, ",")),
		}
	}
	return Check{
		Name:    "schema_orphans",
		Status:  statusPass,
		Message: "every schema document is configured",
	}
}

func checkOutputPath(name string, path string, unsetWarning string) Check {
	if path == "" {
		if unsetWarning == "" {
			return Check{Name: name, Status: statusPass, Message: "not configured"}
		}
		return Check{Name: name, Status: statusWarn, Message: unsetWarning}
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Check{
				Name:       name,
				Status:     statusWarn,
				Message:    fmt.Sprintf("directory %s does not exist yet", dir),
				FixCommand: fmt.Sprintf("mkdir -p %s", shellQuote(dir)),
			}
		}
		return Check{Name: name, Status: statusFail, Message: fmt.Sprintf("directory check failed: %v", err)}
	}
	if !info.IsDir() {
		return Check{Name: name, Status: statusFail, Message: fmt.Sprintf("%s is not a directory", dir)}
	}
	testPath := filepath.Join(dir, ".reportgate-doctor-writecheck")
	if err := os.WriteFile(testPath, []byte("ok"), 0o600); err != nil {
		return Check{
			Name:       name,
			Status:     statusFail,
			Message:    fmt.Sprintf("directory not writable: %v", err),
			FixCommand: fmt.Sprintf("chmod u+w %s", shellQuote(dir)),
		}
	}
	_ = os.Remove(testPath)
	return Check{Name: name, Status: statusPass, Message: fmt.Sprintf("%s is writable", path)}
}

func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	if strings.IndexFunc(value, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}
