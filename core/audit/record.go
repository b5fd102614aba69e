// Package audit derives structured records from validation decisions and
// delivers them to sinks without ever influencing the verdict.
package audit

import (
	"strings"

	"github.com/davidahmann/reportgate/core/lifecycle"
	"github.com/davidahmann/reportgate/core/registry"
)

// Message is the fixed message every audit record carries.
const Message = "security report schema validation problem"

// Branch is the decision path an audit record reports, logged as
// security_report_failure.
type Branch string

const (
	BranchSchemaValidationFails Branch = "schema_validation_fails"
	BranchDeprecatedVersion     Branch = "using_deprecated_schema_version"
	BranchUnsupportedVersion    Branch = "using_unsupported_schema_version"
)

// Field names of the flat mapping handed to sinks.
const (
	FieldMessage        = "message"
	FieldReportType     = "security_report_type"
	FieldReportVersion  = "security_report_version"
	FieldProjectID      = "project_id"
	FieldFailure        = "security_report_failure"
	FieldScannerID      = "security_report_scanner_id"
	FieldScannerVersion = "security_report_scanner_version"
	FieldValidationID   = "security_report_validation_id"
	FieldDigest         = "security_report_digest"
)

// Subject is the per-call context shared by every record of one validation.
type Subject struct {
	ValidationID   string
	ProjectRef     string
	ScannerID      string
	ScannerVersion string
	Digest         string
}

// Record is one audit entry for one branch of one validation.
type Record struct {
	Failure        Branch
	ReportType     registry.ReportType
	ReportVersion  string
	ProjectRef     string
	ScannerID      string
	ScannerVersion string
	ValidationID   string
	Digest         string
}

// Records lists the records one validation produces: a structural failure
// record first, then at most one lifecycle record. A supported, structurally
// valid report produces none.
func Records(subject Subject, classification lifecycle.Classification, structural []string) []Record {
	base := Record{
		ReportType:     classification.ReportType,
		ReportVersion:  classification.DeclaredVersion,
		ProjectRef:     subject.ProjectRef,
		ScannerID:      strings.TrimSpace(subject.ScannerID),
		ScannerVersion: strings.TrimSpace(subject.ScannerVersion),
		ValidationID:   subject.ValidationID,
		Digest:         subject.Digest,
	}

	records := make([]Record, 0, 2)
	if len(structural) > 0 {
		record := base
		record.Failure = BranchSchemaValidationFails
		records = append(records, record)
	}
	if branch, ok := lifecycleBranch(classification.State); ok {
		record := base
		record.Failure = branch
		records = append(records, record)
	}
	return records
}

// lifecycleBranch reports a missing version as unsupported; its record carries a
// nil security_report_version.
func lifecycleBranch(state lifecycle.State) (Branch, bool) {
	switch state {
	case lifecycle.Deprecated:
		return BranchDeprecatedVersion, true
	case lifecycle.Unsupported, lifecycle.Missing:
		return BranchUnsupportedVersion, true
	default:
		return "", false
	}
}

// Fields flattens the record. Unknown values are present as nil so consumers
// see an explicit absent marker rather than a missing key. The digest is only
// included when one was supplied.
func (r Record) Fields() map[string]any {
	fields := map[string]any{
		FieldMessage:        Message,
		FieldReportType:     string(r.ReportType),
		FieldReportVersion:  optional(r.ReportVersion),
		FieldProjectID:      r.ProjectRef,
		FieldFailure:        string(r.Failure),
		FieldScannerID:      optional(r.ScannerID),
		FieldScannerVersion: optional(r.ScannerVersion),
		FieldValidationID:   optional(r.ValidationID),
	}
	if r.Digest != "" {
		fields[FieldDigest] = r.Digest
	}
	return fields
}

func optional(value string) any {
	if value == "" {
		return nil
	}
	return value
}
