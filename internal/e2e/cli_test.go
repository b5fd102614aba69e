package e2e

import (
	"encoding/json"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/davidahmann/reportgate/internal/testutil"
)

func TestCLIValidateAuditTrail(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildReportgateBinary(t, root)

	workDir := t.TempDir()
	auditPath := filepath.Join(workDir, "out", "audit.jsonl")
	testutil.WriteFile(t, filepath.Join(workDir, ".reportgate", "config.yaml"), []byte(strings.Join([]string{
		"enforcement:",
		"  default: false",
		"  projects:",
		"    group/strict: true",
		"audit:",
		"  log_path: " + auditPath,
	}, "\n")))
	testutil.WriteFile(t, filepath.Join(workDir, "supported.json"), []byte(`{"version":"15.0.4","vulnerabilities":[]}`))
	testutil.WriteFile(t, filepath.Join(workDir, "legacy.json"), []byte(`{"version":"12.37.0"}`))

	cases := []struct {
		name     string
		args     []string
		exitCode int
		valid    bool
		errors   int
		warnings int
	}{
		{name: "supported", args: []string{"validate", "--type", "sast", "supported.json", "--json"}, exitCode: 0, valid: true},
		{name: "legacy_audit_only", args: []string{"validate", "--type", "dast", "--project", "group/app", "legacy.json", "--json"}, exitCode: 0, valid: true, warnings: 2},
		{name: "legacy_strict", args: []string{"validate", "--type", "dast", "--project", "group/strict", "legacy.json", "--json"}, exitCode: 2, valid: false, errors: 2},
	}
	for _, testCase := range cases {
		command := exec.Command(binPath, testCase.args...)
		command.Dir = workDir
		command.Env = append(command.Environ(), "REPORTGATE_ENFORCE=", "REPORTGATE_AUDIT_LOG=")
		out, err := command.Output()
		if code := testutil.CommandExitCode(t, err); code != testCase.exitCode {
			t.Fatalf("%s: unexpected exit code: got=%d want=%d\n%s", testCase.name, code, testCase.exitCode, string(out))
		}
		var result struct {
			Valid    bool     `json:"valid"`
			Errors   []string `json:"errors"`
			Warnings []string `json:"warnings"`
		}
		if err := json.Unmarshal(out, &result); err != nil {
			t.Fatalf("%s: decode output: %v\n%s", testCase.name, err, string(out))
		}
		if result.Valid != testCase.valid || len(result.Errors) != testCase.errors || len(result.Warnings) != testCase.warnings {
			t.Fatalf("%s: unexpected verdict\n%s", testCase.name, testutil.FormatJSON(out))
		}
	}

	records := testutil.ReadJSONLines(t, auditPath)
	if len(records) != 4 {
		t.Fatalf("expected four audit records, got %d", len(records))
	}
	wantFailures := []string{
		"schema_validation_fails",
		"using_unsupported_schema_version",
		"schema_validation_fails",
		"using_unsupported_schema_version",
	}
	for index, record := range records {
		if record["security_report_failure"] != wantFailures[index] {
			t.Fatalf("record %d: unexpected failure %v", index, record["security_report_failure"])
		}
		if record["security_report_type"] != "dast" || record["security_report_version"] != "12.37.0" {
			t.Fatalf("record %d: unexpected report fields %#v", index, record)
		}
	}
	if records[0]["security_report_validation_id"] != records[1]["security_report_validation_id"] {
		t.Fatalf("records of one validation must share a validation id")
	}
	if records[1]["security_report_validation_id"] == records[2]["security_report_validation_id"] {
		t.Fatalf("separate validations must have distinct ids")
	}
}

func TestCLISchemasListGolden(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildReportgateBinary(t, root)

	command := exec.Command(binPath, "schemas", "list", "--json")
	command.Dir = t.TempDir()
	out, err := command.Output()
	if err != nil {
		t.Fatalf("schemas list failed: %v\n%s", err, string(out))
	}
	var result map[string]any
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("decode schemas output: %v", err)
	}
	testutil.AssertGoldenJSON(t, "internal/e2e/testdata/schemas_list.golden.json", result)
}

func TestCLIDoctorFailsOnMissingSchemaDir(t *testing.T) {
	root := testutil.RepoRoot(t)
	binPath := testutil.BuildReportgateBinary(t, root)

	command := exec.Command(binPath, "doctor", "--schemas", filepath.Join(t.TempDir(), "absent"), "--json")
	command.Dir = t.TempDir()
	out, err := command.Output()
	if code := testutil.CommandExitCode(t, err); code != 7 {
		t.Fatalf("unexpected doctor exit code %d\n%s", code, string(out))
	}
	var result struct {
		OK     bool   `json:"ok"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(out, &result); err != nil {
		t.Fatalf("decode doctor output: %v", err)
	}
	if result.OK || result.Status != "fail" {
		t.Fatalf("unexpected doctor result\n%s", testutil.FormatJSON(out))
	}
}
