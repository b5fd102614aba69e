package main

import (
	"fmt"
	"os"
)

// version is stamped at release time via ldflags; default stays dev for local builds.
var version = "0.0.0-dev"

const (
	exitOK                = 0
	exitInternalFailure   = 1
	exitValidationFailed  = 2
	exitInvalidInput      = 6
	exitMissingDependency = 7
)

func main() {
	os.Exit(run(os.Args))
}

func run(arguments []string) int {
	if len(arguments) < 2 {
		printUsage()
		return exitInvalidInput
	}
	if arguments[1] == "--explain" {
		return writeExplain("reportgate checks security scanner reports against versioned report format schemas and returns errors, warnings and deprecation notices according to each project's enforcement setting.")
	}

	switch arguments[1] {
	case "validate":
		return runValidate(arguments[2:])
	case "schemas":
		return runSchemas(arguments[2:])
	case "doctor":
		return runDoctor(arguments[2:])
	case "version", "--version", "-v":
		if hasExplainFlag(arguments[2:]) {
			return writeExplain("Print the CLI version.")
		}
		fmt.Println("reportgate", version)
		return exitOK
	case "help", "--help", "-h":
		printUsage()
		return exitOK
	default:
		printUsage()
		return exitInvalidInput
	}
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  reportgate validate --type <report_type> [--project <ref>] [--version <v>] [--enforce on|off] [--json] [--explain] <report.json[.gz|.zst]>")
	fmt.Println("  reportgate schemas list [--schemas <dir>] [--config <path>] [--json] [--explain]")
	fmt.Println("  reportgate doctor [--schemas <dir>] [--config <path>] [--json] [--explain]")
	fmt.Println("  reportgate version")
}

func printWarning(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "reportgate warning: "+format+"\n", args...)
}
