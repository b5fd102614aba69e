package verdict

import (
	"fmt"
	"strings"

	"github.com/davidahmann/reportgate/core/lifecycle"
)

// Verdict is the complete outcome of one validation call. Slices are never nil
// so encoded verdicts are stable.
type Verdict struct {
	Valid               bool     `json:"valid"`
	Errors              []string `json:"errors"`
	Warnings            []string `json:"warnings"`
	DeprecationWarnings []string `json:"deprecation_warnings"`
}

// Compose merges the classification and structural violations into a verdict.
// Enforcement only chooses the channel problems are reported on: errors when
// enforced, warnings otherwise. Deprecation notices ignore enforcement and
// structural results.
func Compose(classification lifecycle.Classification, structural []string, enforce bool) Verdict {
	problems := append([]string{}, structural...)
	deprecations := []string{}

	switch classification.State {
	case lifecycle.Deprecated:
		deprecations = append(deprecations, DeprecatedMessage(classification))
	case lifecycle.Unsupported:
		problems = append(problems, UnsupportedMessage(classification))
	case lifecycle.Missing:
		problems = append(problems, MissingMessage(classification))
	}

	result := Verdict{
		Errors:              []string{},
		Warnings:            []string{},
		DeprecationWarnings: deprecations,
	}
	if enforce {
		result.Errors = problems
	} else {
		result.Warnings = problems
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// UnsupportedMessage names the declared version and the versions accepted instead.
func UnsupportedMessage(classification lifecycle.Classification) string {
	return fmt.Sprintf(
		"Version %s for report type %s is unsupported, supported versions for this report type are: %s",
		classification.DeclaredVersion, classification.ReportType, supportedList(classification),
	)
}

// MissingMessage reports a report without a version.
func MissingMessage(classification lifecycle.Classification) string {
	return fmt.Sprintf(
		"Report version not provided, %s report type supports versions: %s",
		classification.ReportType, supportedList(classification),
	)
}

// DeprecatedMessage is the notice for a deprecated but still accepted version.
func DeprecatedMessage(classification lifecycle.Classification) string {
	return fmt.Sprintf(
		"Version %s for report type %s has been deprecated, supported versions for this report type are: %s",
		classification.DeclaredVersion, classification.ReportType, supportedList(classification),
	)
}

func supportedList(classification lifecycle.Classification) string {
	return strings.Join(classification.Supported, ", ")
}
