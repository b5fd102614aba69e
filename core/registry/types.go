package registry

import (
	"path"
	"strings"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
)

// ReportType identifies a category of scanner output and selects its schema set.
type ReportType string

const (
	SAST                 ReportType = "sast"
	DAST                 ReportType = "dast"
	APIFuzzing           ReportType = "api_fuzzing"
	CoverageFuzzing      ReportType = "coverage_fuzzing"
	DependencyScanning   ReportType = "dependency_scanning"
	ContainerScanning    ReportType = "container_scanning"
	ClusterImageScanning ReportType = "cluster_image_scanning"
	SecretDetection      ReportType = "secret_detection"
)

const documentSuffix = "-report-format.json"

var knownReportTypes = []ReportType{
	ClusterImageScanning,
	ContainerScanning,
	CoverageFuzzing,
	DAST,
	APIFuzzing,
	DependencyScanning,
	SAST,
	SecretDetection,
}

// KnownReportTypes lists every report type the validator understands, in a
// stable order.
func KnownReportTypes() []ReportType {
	return append([]ReportType(nil), knownReportTypes...)
}

// ParseReportType normalizes case and whitespace and rejects unknown types.
func ParseReportType(value string) (ReportType, error) {
	normalized := ReportType(strings.ToLower(strings.TrimSpace(value)))
	if normalized.Known() {
		return normalized, nil
	}
	return "", unknownReportType(value)
}

// Known reports whether t is one of the supported report types.
func (t ReportType) Known() bool {
	for _, known := range knownReportTypes {
		if t == known {
			return true
		}
	}
	return false
}

func (t ReportType) String() string {
	return string(t)
}

// documentType is the report type whose schema document serves t. API fuzzing
// reports share the DAST document.
func (t ReportType) documentType() ReportType {
	if t == APIFuzzing {
		return DAST
	}
	return t
}

// SchemaPath is the storage key of the document for (t, version).
func SchemaPath(t ReportType, version string) string {
	name := strings.ReplaceAll(string(t.documentType()), "_", "-") + documentSuffix
	return path.Join(version, name)
}

func unknownReportType(value string) error {
	return coreerrors.Configuration(
		coreerrors.CodeUnknownReportType,
		"use one of the registered report types",
		"unknown report type %q", value,
	)
}
