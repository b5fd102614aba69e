package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/davidahmann/reportgate/core/audit"
	"github.com/davidahmann/reportgate/core/enforcement"
	"github.com/davidahmann/reportgate/core/fsx"
	"github.com/davidahmann/reportgate/core/metrics"
	"github.com/davidahmann/reportgate/core/registry"
	"github.com/davidahmann/reportgate/core/report"
	"github.com/davidahmann/reportgate/core/validator"
)

type validateOutput struct {
	OK                  bool     `json:"ok"`
	Path                string   `json:"path,omitempty"`
	ReportType          string   `json:"report_type,omitempty"`
	DeclaredVersion     string   `json:"declared_version,omitempty"`
	SchemaVersion       string   `json:"schema_version,omitempty"`
	Lifecycle           string   `json:"lifecycle,omitempty"`
	ProjectRef          string   `json:"project,omitempty"`
	Enforced            *bool    `json:"enforced,omitempty"`
	ValidationID        string   `json:"validation_id,omitempty"`
	Digest              string   `json:"digest,omitempty"`
	Valid               *bool    `json:"valid,omitempty"`
	Errors              []string `json:"errors,omitempty"`
	Warnings            []string `json:"warnings,omitempty"`
	DeprecationWarnings []string `json:"deprecation_warnings,omitempty"`
	AuditRecords        []string `json:"audit_records,omitempty"`
	errorEnvelope
}

type validateFlags struct {
	reportType      string
	projectRef      string
	declaredVersion string
	scannerID       string
	scannerVersion  string
	enforce         string
	configPath      string
	schemaDir       string
	auditLog        string
	auditStderr     bool
	metricsTextfile string
	outPath         string
	maxBytes        int64
	jsonOutput      bool
	helpFlag        bool
	explicit        map[string]bool
}

func runValidate(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Validate one scanner report against the schema for its declared version. Problems are errors when the project enforces validation and warnings otherwise; deprecated versions add a deprecation notice. Every problem is written to the audit log.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"type":             true,
		"project":          true,
		"version":          true,
		"scanner-id":       true,
		"scanner-version":  true,
		"enforce":          true,
		"config":           true,
		"schemas":          true,
		"audit-log":        true,
		"metrics-textfile": true,
		"out":              true,
		"max-bytes":        true,
	})
	flagSet := flag.NewFlagSet("validate", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var opts validateFlags
	flagSet.StringVar(&opts.reportType, "type", "", "report type: "+strings.Join(reportTypeNames(), "|"))
	flagSet.StringVar(&opts.projectRef, "project", "", "project reference used for enforcement and audit")
	flagSet.StringVar(&opts.declaredVersion, "version", "", "declared report version (default: the report's version field)")
	flagSet.StringVar(&opts.scannerID, "scanner-id", "", "scanner id (default: from the report)")
	flagSet.StringVar(&opts.scannerVersion, "scanner-version", "", "scanner version (default: from the report)")
	flagSet.StringVar(&opts.enforce, "enforce", "", "override enforcement: on|off")
	flagSet.StringVar(&opts.configPath, "config", "", "project config path (default "+".reportgate/config.yaml)")
	flagSet.StringVar(&opts.schemaDir, "schemas", "", "schema directory (default: bundled schemas)")
	flagSet.StringVar(&opts.auditLog, "audit-log", "", "append audit records to this JSONL file")
	flagSet.BoolVar(&opts.auditStderr, "audit-stderr", false, "also write audit records to stderr")
	flagSet.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file")
	flagSet.StringVar(&opts.outPath, "out", "", "write the JSON result to this file")
	flagSet.Int64Var(&opts.maxBytes, "max-bytes", report.DefaultMaxBytes, "maximum decoded report size")
	flagSet.BoolVar(&opts.jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&opts.helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeValidateOutput(opts.jsonOutput, validateOutput{errorEnvelope: errorEnvelope{Error: err.Error()}}, exitInvalidInput)
	}
	if opts.helpFlag {
		printValidateUsage()
		return exitOK
	}
	opts.explicit = map[string]bool{}
	flagSet.Visit(func(f *flag.Flag) {
		opts.explicit[f.Name] = true
	})
	remaining := flagSet.Args()
	if len(remaining) != 1 {
		return writeValidateOutput(opts.jsonOutput, validateOutput{errorEnvelope: errorEnvelope{Error: "expected exactly one report path"}}, exitInvalidInput)
	}
	if strings.TrimSpace(opts.reportType) == "" {
		return writeValidateOutput(opts.jsonOutput, validateOutput{Path: remaining[0], errorEnvelope: errorEnvelope{Error: "--type is required"}}, exitInvalidInput)
	}

	output, exitCode := executeValidate(remaining[0], opts)
	if strings.TrimSpace(opts.outPath) != "" {
		if err := writeResultFile(opts.outPath, output, exitCode); err != nil {
			printWarning("write --out result: %v", err)
		}
	}
	return writeValidateOutput(opts.jsonOutput, output, exitCode)
}

func executeValidate(path string, opts validateFlags) (validateOutput, int) {
	failed := func(err error) (validateOutput, int) {
		return validateOutput{Path: path, ReportType: opts.reportType, errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure)
	}

	reportType, err := registry.ParseReportType(opts.reportType)
	if err != nil {
		return failed(err)
	}
	settings, err := loadRuntime(opts.configPath, opts.schemaDir)
	if err != nil {
		return failed(err)
	}
	var resolver enforcement.Resolver = settings.config.EnforcementPolicy()
	if opts.explicit["enforce"] {
		enabled, err := enforcement.ParseToggle(opts.enforce)
		if err != nil {
			return failed(err)
		}
		resolver = enforcement.Static(enabled)
	}

	parsed, err := report.ReadFile(path, opts.maxBytes)
	if err != nil {
		return failed(err)
	}
	declaredVersion := report.DeclaredVersion(parsed.Document)
	if opts.explicit["version"] {
		declaredVersion = opts.declaredVersion
	}
	scanner := report.Scanner(parsed.Document)
	if opts.explicit["scanner-id"] {
		scanner.ID = strings.TrimSpace(opts.scannerID)
	}
	if opts.explicit["scanner-version"] {
		scanner.Version = strings.TrimSpace(opts.scannerVersion)
	}
	digest, err := parsed.Digest()
	if err != nil {
		printWarning("report digest unavailable: %v", err)
		digest = ""
	}

	auditLog := settings.config.Audit.LogPath
	if opts.explicit["audit-log"] {
		auditLog = strings.TrimSpace(opts.auditLog)
	}
	textfile := settings.config.Metrics.Textfile
	if opts.explicit["metrics-textfile"] {
		textfile = strings.TrimSpace(opts.metricsTextfile)
	}

	collector := metrics.New()
	dispatcher := audit.NewDispatcher(auditSink(auditLog, opts.auditStderr), collector.Instrument(audit.Options{
		Async:     settings.config.Audit.Async,
		QueueSize: settings.config.Audit.QueueSize,
		OnError: func(err error) {
			printWarning("audit sink failed: %v", err)
		},
		OnDrop: func(records []audit.Record) {
			printWarning("audit queue full, dropped %d records", len(records))
		},
	}))
	engine, err := validator.New(validator.Options{
		Registry:    settings.registry,
		Enforcement: resolver,
		Dispatcher:  dispatcher,
		Metrics:     collector,
	})
	if err != nil {
		dispatcher.Close()
		return failed(err)
	}
	result, err := engine.Check(validator.Input{
		ReportType:      reportType,
		Document:        parsed.Document,
		DeclaredVersion: declaredVersion,
		ProjectRef:      strings.TrimSpace(opts.projectRef),
		Scanner:         scanner,
		Digest:          digest,
	})
	dispatcher.Close()
	if err != nil {
		return failed(err)
	}
	if textfile != "" {
		if err := collector.WriteTextfile(textfile); err != nil {
			printWarning("%v", err)
		}
	}

	records := make([]string, 0, len(result.Records))
	for _, record := range result.Records {
		records = append(records, string(record.Failure))
	}
	valid := result.Verdict.Valid
	enforced := result.Enforced
	output := validateOutput{
		OK:                  valid,
		Path:                path,
		ReportType:          string(reportType),
		DeclaredVersion:     result.Classification.DeclaredVersion,
		SchemaVersion:       result.Classification.SchemaVersion,
		Lifecycle:           result.Classification.State.String(),
		ProjectRef:          strings.TrimSpace(opts.projectRef),
		Enforced:            &enforced,
		ValidationID:        result.ValidationID,
		Digest:              digest,
		Valid:               &valid,
		Errors:              result.Verdict.Errors,
		Warnings:            result.Verdict.Warnings,
		DeprecationWarnings: result.Verdict.DeprecationWarnings,
		AuditRecords:        records,
	}
	if !valid {
		return output, exitValidationFailed
	}
	return output, exitOK
}

func auditSink(logPath string, toStderr bool) audit.Sink {
	sinks := audit.MultiSink{}
	if logPath != "" {
		sinks = append(sinks, audit.NewJSONLSink(logPath))
	}
	if toStderr {
		sinks = append(sinks, audit.NewWriterSink(os.Stderr))
	}
	if len(sinks) == 0 {
		return audit.NopSink{}
	}
	return sinks
}

func writeResultFile(path string, output validateOutput, exitCode int) error {
	encoded, err := marshalOutputWithErrorEnvelope(output, exitCode)
	if err != nil {
		return err
	}
	var indented bytes.Buffer
	if err := json.Indent(&indented, encoded, "", "  "); err != nil {
		return err
	}
	indented.WriteByte('\n')
	return fsx.WriteFileAtomic(path, indented.Bytes(), 0o600)
}

func writeValidateOutput(jsonOutput bool, output validateOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("validate error: %s\n", output.Error)
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}

	status := color.GreenString("validate ok")
	if !output.OK {
		status = color.RedString("validate failed")
	}
	declared := output.DeclaredVersion
	if declared == "" {
		declared = "none"
	}
	fmt.Printf("%s: %s\n", status, output.Path)
	fmt.Printf("report: type=%s version=%s lifecycle=%s schema=%s\n", output.ReportType, declared, output.Lifecycle, output.SchemaVersion)
	if output.Enforced != nil {
		mode := "enforced"
		if !*output.Enforced {
			mode = "audit only"
		}
		fmt.Printf("enforcement: %s\n", mode)
	}
	for _, message := range output.Errors {
		fmt.Printf("%s %s\n", color.RedString("error:"), message)
	}
	for _, message := range output.Warnings {
		fmt.Printf("%s %s\n", color.YellowString("warning:"), message)
	}
	for _, message := range output.DeprecationWarnings {
		fmt.Printf("%s %s\n", color.CyanString("deprecated:"), message)
	}
	if len(output.AuditRecords) > 0 {
		fmt.Printf("audit: %s\n", strings.Join(output.AuditRecords, ", "))
	}
	return exitCode
}

func reportTypeNames() []string {
	names := make([]string, 0, len(registry.KnownReportTypes()))
	for _, reportType := range registry.KnownReportTypes() {
		names = append(names, string(reportType))
	}
	return names
}

func printValidateUsage() {
	fmt.Println("Usage:")
	fmt.Println("  reportgate validate --type <report_type> [--project <ref>] [--version <v>] [--scanner-id <id>] [--scanner-version <v>] [--enforce on|off] <report.json[.gz|.zst]>")
	fmt.Println("      [--config <path>] [--schemas <dir>] [--audit-log <path>] [--audit-stderr] [--metrics-textfile <path>] [--out <path>] [--max-bytes <n>] [--json] [--explain]")
	fmt.Println("  report types: " + strings.Join(reportTypeNames(), ", "))
}
