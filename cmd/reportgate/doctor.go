package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"

	"github.com/davidahmann/reportgate/core/doctor"
)

type doctorOutput struct {
	OK              bool           `json:"ok"`
	SummaryMode     bool           `json:"summary_mode,omitempty"`
	SchemaID        string         `json:"schema_id,omitempty"`
	SchemaVersion   string         `json:"schema_version,omitempty"`
	CreatedAt       string         `json:"created_at,omitempty"`
	ProducerVersion string         `json:"producer_version,omitempty"`
	Status          string         `json:"status,omitempty"`
	NonFixable      bool           `json:"non_fixable,omitempty"`
	Summary         string         `json:"summary,omitempty"`
	FixCommands     []string       `json:"fix_commands,omitempty"`
	Checks          []doctor.Check `json:"checks,omitempty"`
	Error           string         `json:"error,omitempty"`
}

func runDoctor(arguments []string) int {
	if hasExplainFlag(arguments) {
		return writeExplain("Check that reportgate can start here: the project config parses, the schema version table matches the schema documents, and the audit and metrics outputs are writable.")
	}
	arguments = reorderInterspersedFlags(arguments, map[string]bool{
		"config":  true,
		"schemas": true,
	})
	flagSet := flag.NewFlagSet("doctor", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)

	var configPath string
	var schemaDir string
	var summaryMode bool
	var jsonOutput bool
	var helpFlag bool

	flagSet.StringVar(&configPath, "config", "", "project config path (default .reportgate/config.yaml)")
	flagSet.StringVar(&schemaDir, "schemas", "", "schema directory (default: bundled schemas)")
	flagSet.BoolVar(&summaryMode, "summary", false, "only list checks that did not pass")
	flagSet.BoolVar(&jsonOutput, "json", false, "emit JSON output")
	flagSet.BoolVar(&helpFlag, "help", false, "show help")

	if err := flagSet.Parse(arguments); err != nil {
		return writeDoctorOutput(jsonOutput, doctorOutput{OK: false, Error: err.Error()}, exitInvalidInput)
	}
	if helpFlag {
		printDoctorUsage()
		return exitOK
	}
	if len(flagSet.Args()) > 0 {
		return writeDoctorOutput(jsonOutput, doctorOutput{OK: false, Error: "unexpected positional arguments"}, exitInvalidInput)
	}

	result := doctor.Run(doctor.Options{
		ConfigPath:      configPath,
		SchemaDir:       schemaDir,
		ProducerVersion: version,
		Getenv:          os.Getenv,
	})
	exitCode := exitOK
	ok := result.Status != "fail"
	if !ok {
		exitCode = exitMissingDependency
	}
	return writeDoctorOutput(jsonOutput, doctorOutput{
		OK:              ok,
		SummaryMode:     summaryMode,
		SchemaID:        result.SchemaID,
		SchemaVersion:   result.SchemaVersion,
		CreatedAt:       result.CreatedAt,
		ProducerVersion: result.ProducerVersion,
		Status:          result.Status,
		NonFixable:      result.NonFixable,
		Summary:         result.Summary,
		FixCommands:     result.FixCommands,
		Checks:          result.Checks,
	}, exitCode)
}

func writeDoctorOutput(jsonOutput bool, output doctorOutput, exitCode int) int {
	if jsonOutput {
		return writeJSONOutput(output, exitCode)
	}
	if output.Error != "" {
		fmt.Printf("doctor error: %s\n", output.Error)
		return exitCode
	}
	fmt.Println(output.Summary)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Check", "Status", "Message"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	rows := 0
	for _, check := range output.Checks {
		if output.SummaryMode && check.Status == "pass" {
			continue
		}
		table.Append([]string{check.Name, colorStatus(check.Status), check.Message})
		rows++
	}
	if rows > 0 {
		table.Render()
	}
	for _, command := range output.FixCommands {
		fmt.Printf("fix: %s\n", command)
	}
	return exitCode
}

func colorStatus(status string) string {
	switch status {
	case "pass":
		return color.GreenString(status)
	case "warn":
		return color.YellowString(status)
	case "fail":
		return color.RedString(status)
	default:
		return status
	}
}

func printDoctorUsage() {
	fmt.Println("Usage:")
	fmt.Println("  reportgate doctor [--config <path>] [--schemas <dir>] [--summary] [--json] [--explain]")
}
