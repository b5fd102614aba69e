package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
)

type schemaEntry struct {
	ReportType string   `json:"report_type"`
	Supported  []string `json:"supported"`
	Deprecated []string `json:"deprecated"`
	Latest     string   `json:"latest"`
}

type schemasOutput struct {
	OK          bool          `json:"ok"`
	Source      string        `json:"source,omitempty"`
	ReportTypes []schemaEntry `json:"report_types,omitempty"`
	errorEnvelope
}

func runSchemas(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("List the schema versions each report type accepts, split into supported and deprecated, with the latest supported version that missing or unsupported reports are checked against.")
	}
	if len(arguments) == 0 || strings.HasPrefix(arguments[0], "-") {
		printSchemasUsage()
		return exitInvalidInput
	}
	switch arguments[0] {
	case "list":
		return runSchemasList(arguments[1:])
	default:
		printSchemasUsage()
		return exitInvalidInput
	}
}

func runSchemasList(arguments []string) int {
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"config":  true,
		"schemas": true,
	})
	flagSet := flag.NewFlagSet("schemas-list", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var schemaDir string
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&configPath, "config", "", "project config path (default .reportgate/config.yaml)")
	flagSet.StringVar(&schemaDir, "schemas", "", "schema directory (default: bundled schemas)")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeSchemasOutput(jsonOutput, schemasOutput{errorEnvelope: errorEnvelope{Error: err.Error()}}, exitInvalidInput)
	}
	if helpFlag {
		printSchemasUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeSchemasOutput(jsonOutput, schemasOutput{errorEnvelope: errorEnvelope{Error: "unexpected positional arguments"}}, exitInvalidInput)
	}

	settings, err := loadRuntime(configPath, schemaDir)
	if err != nil {
		return writeSchemasOutput(jsonOutput, schemasOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
	}
	source := settings.schemaDir
	if source == "" {
		source = "embedded"
	}
	output := schemasOutput{OK: true, Source: source}
	for _, reportType := range settings.registry.ReportTypes() {
		versions, err := settings.registry.Versions(reportType)
		if err != nil {
			return writeSchemasOutput(jsonOutput, schemasOutput{errorEnvelope: envelopeFor(err)}, exitCodeForError(err, exitInternalFailure))
		}
		output.ReportTypes = append(output.ReportTypes, schemaEntry{
			ReportType: string(reportType),
			Supported:  versions.Supported,
			Deprecated: versions.Deprecated,
			Latest:     versions.Latest(),
		})
	}
	return writeSchemasOutput(jsonOutput, output, exitOK)
}

func writeSchemasOutput(jsonOutput bool, output schemasOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("schemas error: %s\n", output.Error)
		if output.Hint != "" {
			fmt.Printf("hint: %s\n", output.Hint)
		}
		return exitCode
	}
	fmt.Printf("schemas: source=%s report_types=%d\n", output.Source, len(output.ReportTypes))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Report Type", "Supported", "Deprecated", "Latest"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for _, entry := range output.ReportTypes {
		deprecated := strings.Join(entry.Deprecated, ", ")
		if deprecated == "" {
			deprecated = "-"
		}
		table.Append([]string{entry.ReportType, strings.Join(entry.Supported, ", "), deprecated, entry.Latest})
	}
	table.Render()
	return exitCode
}

func printSchemasUsage() {
	fmt.Println("Usage:")
	fmt.Println("  reportgate schemas list [--config <path>] [--schemas <dir>] [--json] [--explain]")
}
