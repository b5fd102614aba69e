package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

func TestRunDispatch(t *testing.T) {
	if code := run([]string{"reportgate"}); code != exitInvalidInput {
		t.Fatalf("run without args: expected %d got %d", exitInvalidInput, code)
	}
	if code := run([]string{"reportgate", "version"}); code != exitOK {
		t.Fatalf("run version: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"reportgate", "unknown"}); code != exitInvalidInput {
		t.Fatalf("run unknown: expected %d got %d", exitInvalidInput, code)
	}
	if code := run([]string{"reportgate", "validate", "--help"}); code != exitOK {
		t.Fatalf("run validate help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"reportgate", "schemas", "list", "--help"}); code != exitOK {
		t.Fatalf("run schemas help: expected %d got %d", exitOK, code)
	}
	if code := run([]string{"reportgate", "schemas"}); code != exitInvalidInput {
		t.Fatalf("run schemas without subcommand: expected %d got %d", exitInvalidInput, code)
	}
	if code := run([]string{"reportgate", "doctor", "--help"}); code != exitOK {
		t.Fatalf("run doctor help: expected %d got %d", exitOK, code)
	}
	for _, arguments := range [][]string{
		{"reportgate", "--explain"},
		{"reportgate", "validate", "--explain"},
		{"reportgate", "schemas", "--explain"},
		{"reportgate", "doctor", "--explain"},
	} {
		if code := run(arguments); code != exitOK {
			t.Fatalf("run %v: expected %d got %d", arguments, exitOK, code)
		}
	}
}

func TestMainEntrypoint(t *testing.T) {
	if os.Getenv("REPORTGATE_TEST_MAIN") == "1" {
		os.Args = []string{"reportgate", "version"}
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainEntrypoint")
	cmd.Env = append(os.Environ(), "REPORTGATE_TEST_MAIN=1")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run child process: %v", err)
	}
}

func TestValidateSupportedReport(t *testing.T) {
	workDir := isolatedWorkspace(t)
	reportPath := writeReport(t, workDir, "report.json", `{"version":"15.0.6","vulnerabilities":[]}`)

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "dast", "--project", "group/app", reportPath, "--json"})
	})
	if code != exitOK {
		t.Fatalf("validate: expected %d got %d (%s)", exitOK, code, raw)
	}
	output := decodeValidateOutput(t, raw)
	if !output.OK || output.Valid == nil || !*output.Valid {
		t.Fatalf("expected a valid verdict, got %+v", output)
	}
	if output.Lifecycle != "supported" || output.SchemaVersion != "15.0.6" || output.DeclaredVersion != "15.0.6" {
		t.Fatalf("unexpected classification %+v", output)
	}
	if output.Enforced == nil || !*output.Enforced {
		t.Fatalf("expected enforcement to default on")
	}
	if output.ValidationID == "" || !strings.HasPrefix(output.Digest, "sha256:") {
		t.Fatalf("expected validation id and digest, got %+v", output)
	}
	if len(output.Errors)+len(output.Warnings)+len(output.DeprecationWarnings)+len(output.AuditRecords) != 0 {
		t.Fatalf("expected no messages, got %+v", output)
	}
}

func TestValidateUnsupportedVersionEnforcedAndAudited(t *testing.T) {
	workDir := isolatedWorkspace(t)
	reportPath := writeReport(t, workDir, "report.json", `{"version":"12.37.0","vulnerabilities":[]}`)
	auditPath := filepath.Join(workDir, "audit", "events.jsonl")
	metricsPath := filepath.Join(workDir, "metrics.prom")
	wantMessage := "Version 12.37.0 for report type dast is unsupported, supported versions for this report type are: 15.0.0, 15.0.4, 15.0.6"

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{
			"reportgate", "validate", reportPath,
			"--type", "dast",
			"--project", "group/app",
			"--scanner-id", "zaproxy",
			"--scanner-version", "2.1.0",
			"--audit-log", auditPath,
			"--metrics-textfile", metricsPath,
			"--json",
		})
	})
	if code != exitValidationFailed {
		t.Fatalf("validate: expected %d got %d (%s)", exitValidationFailed, code, raw)
	}
	output := decodeValidateOutput(t, raw)
	if output.OK || output.Valid == nil || *output.Valid {
		t.Fatalf("expected invalid verdict, got %+v", output)
	}
	if len(output.Errors) != 1 || output.Errors[0] != wantMessage {
		t.Fatalf("unexpected errors %#v", output.Errors)
	}
	if output.Lifecycle != "unsupported" || output.SchemaVersion != "15.0.6" {
		t.Fatalf("unexpected classification %+v", output)
	}

	records := readAuditLog(t, auditPath)
	if len(records) != 1 {
		t.Fatalf("expected one audit record, got %d", len(records))
	}
	record := records[0]
	if record["security_report_failure"] != "using_unsupported_schema_version" ||
		record["security_report_version"] != "12.37.0" ||
		record["project_id"] != "group/app" ||
		record["security_report_scanner_id"] != "zaproxy" ||
		record["security_report_validation_id"] != output.ValidationID ||
		record["security_report_digest"] != output.Digest {
		t.Fatalf("unexpected audit record %#v", record)
	}

	metricsRaw, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(metricsRaw), "reportgate_validations_total") {
		t.Fatalf("metrics textfile is missing validations counter:\n%s", metricsRaw)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "dast", "--enforce", "off", reportPath, "--json", "--audit-log", auditPath})
	})
	if code != exitOK {
		t.Fatalf("validate audit mode: expected %d got %d (%s)", exitOK, code, raw)
	}
	output = decodeValidateOutput(t, raw)
	if len(output.Errors) != 0 || len(output.Warnings) != 1 || output.Warnings[0] != wantMessage {
		t.Fatalf("unexpected audit-mode output %+v", output)
	}
	if got := len(readAuditLog(t, auditPath)); got != 2 {
		t.Fatalf("expected audit log to grow to 2 records, got %d", got)
	}
}

func TestValidateDeprecatedAndMissingVersions(t *testing.T) {
	workDir := isolatedWorkspace(t)
	deprecated := writeReport(t, workDir, "deprecated.json", `{"version":"14.1.3","vulnerabilities":[]}`)
	missing := writeReport(t, workDir, "missing.json", `{"vulnerabilities":[]}`)

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "sast", deprecated, "--json"})
	})
	if code != exitOK {
		t.Fatalf("validate deprecated: expected %d got %d (%s)", exitOK, code, raw)
	}
	output := decodeValidateOutput(t, raw)
	if output.Lifecycle != "deprecated" || len(output.DeprecationWarnings) != 1 || len(output.Errors) != 0 {
		t.Fatalf("unexpected deprecated output %+v", output)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "sast", missing, "--json"})
	})
	if code != exitValidationFailed {
		t.Fatalf("validate missing: expected %d got %d (%s)", exitValidationFailed, code, raw)
	}
	output = decodeValidateOutput(t, raw)
	want := []string{
		"root is missing required keys: version",
		"Report version not provided, sast report type supports versions: 15.0.0, 15.0.4, 15.0.6",
	}
	if output.Lifecycle != "missing" || strings.Join(output.Errors, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected missing-version output %+v", output)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "sast", "--version", "15.0.4", missing, "--json"})
	})
	if code != exitValidationFailed {
		t.Fatalf("validate with --version: expected %d got %d (%s)", exitValidationFailed, code, raw)
	}
	output = decodeValidateOutput(t, raw)
	if output.Lifecycle != "supported" || output.DeclaredVersion != "15.0.4" || len(output.Errors) != 1 {
		t.Fatalf("expected --version to override the report, got %+v", output)
	}
}

func TestValidateCompressedReports(t *testing.T) {
	workDir := isolatedWorkspace(t)
	content := []byte(`{"version":"15.0.6","vulnerabilities":[]}`)

	var gzipped bytes.Buffer
	gzipWriter := gzip.NewWriter(&gzipped)
	if _, err := gzipWriter.Write(content); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gzipWriter.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	zstdWriter, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("zstd writer: %v", err)
	}
	compressed := zstdWriter.EncodeAll(content, nil)
	_ = zstdWriter.Close()

	digests := map[string]struct{}{}
	for name, payload := range map[string][]byte{
		"report.json":     content,
		"report.json.gz":  gzipped.Bytes(),
		"report.json.zst": compressed,
	} {
		path := filepath.Join(workDir, name)
		if err := os.WriteFile(path, payload, 0o600); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		var code int
		raw := captureStdout(t, func() {
			code = run([]string{"reportgate", "validate", "--type", "container_scanning", path, "--json"})
		})
		if code != exitOK {
			t.Fatalf("validate %s: expected %d got %d (%s)", name, exitOK, code, raw)
		}
		digests[decodeValidateOutput(t, raw).Digest] = struct{}{}
	}
	if len(digests) != 1 {
		t.Fatalf("expected one digest across encodings, got %v", digests)
	}
}

func TestValidateErrorEnvelope(t *testing.T) {
	workDir := isolatedWorkspace(t)
	reportPath := writeReport(t, workDir, "report.json", `{"version":"15.0.6","vulnerabilities":[]}`)
	broken := writeReport(t, workDir, "broken.json", `{"version":`)

	cases := []struct {
		name      string
		arguments []string
		exitCode  int
		category  string
		code      string
	}{
		{name: "unknown_type", arguments: []string{"--type", "iast", reportPath}, exitCode: exitMissingDependency, category: "configuration", code: "unknown_report_type"},
		{name: "bad_toggle", arguments: []string{"--type", "dast", "--enforce", "maybe", reportPath}, exitCode: exitInvalidInput, category: "invalid_input", code: "invalid_enforcement_toggle"},
		{name: "broken_report", arguments: []string{"--type", "dast", broken}, exitCode: exitInvalidInput, category: "invalid_input", code: "invalid_report"},
		{name: "missing_type", arguments: []string{reportPath}, exitCode: exitInvalidInput, category: "invalid_input"},
		{name: "missing_path", arguments: []string{"--type", "dast"}, exitCode: exitInvalidInput, category: "invalid_input"},
		{name: "missing_config", arguments: []string{"--type", "dast", "--config", filepath.Join(workDir, "absent.yaml"), reportPath}, exitCode: exitInvalidInput, category: "invalid_input", code: "project_config_unreadable"},
	}
	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			var code int
			raw := captureStdout(t, func() {
				code = run(append([]string{"reportgate", "validate", "--json"}, testCase.arguments...))
			})
			if code != testCase.exitCode {
				t.Fatalf("unexpected exit code: got=%d want=%d (%s)", code, testCase.exitCode, raw)
			}
			var envelope map[string]any
			if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
				t.Fatalf("decode output %q: %v", raw, err)
			}
			if envelope["ok"] != false || envelope["error"] == nil {
				t.Fatalf("expected an error envelope, got %v", envelope)
			}
			if envelope["error_category"] != testCase.category {
				t.Fatalf("unexpected error_category: got=%v want=%s", envelope["error_category"], testCase.category)
			}
			if testCase.code != "" && envelope["error_code"] != testCase.code {
				t.Fatalf("unexpected error_code: got=%v want=%s", envelope["error_code"], testCase.code)
			}
			if _, ok := envelope["retryable"]; !ok {
				t.Fatalf("expected retryable field in %v", envelope)
			}
		})
	}
}

func TestValidateUsesProjectConfig(t *testing.T) {
	workDir := isolatedWorkspace(t)
	auditPath := filepath.Join(workDir, "config-audit.jsonl")
	writeProjectConfig(t, workDir, strings.Join([]string{
		"enforcement:",
		"  default: true",
		"  projects:",
		"    group/legacy: false",
		"audit:",
		"  log_path: " + auditPath,
		"  async: true",
		"schemas:",
		"  versions:",
		"    dast:",
		"      supported: [\"15.0.6\"]",
		"      deprecated: [\"15.0.4\"]",
	}, "\n"))
	reportPath := writeReport(t, workDir, "report.json", `{"version":"15.0.4","vulnerabilities":[]}`)
	unsupported := writeReport(t, workDir, "unsupported.json", `{"version":"15.0.0","vulnerabilities":[]}`)

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "dast", reportPath, "--json"})
	})
	if code != exitOK {
		t.Fatalf("validate: expected %d got %d (%s)", exitOK, code, raw)
	}
	if output := decodeValidateOutput(t, raw); output.Lifecycle != "deprecated" {
		t.Fatalf("expected configured table to deprecate 15.0.4, got %+v", output)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "dast", "--project", "group/legacy", unsupported, "--json"})
	})
	if code != exitOK {
		t.Fatalf("validate legacy project: expected %d got %d (%s)", exitOK, code, raw)
	}
	output := decodeValidateOutput(t, raw)
	if output.Enforced == nil || *output.Enforced || len(output.Warnings) != 1 {
		t.Fatalf("expected audit-only verdict for legacy project, got %+v", output)
	}

	records := readAuditLog(t, auditPath)
	if len(records) != 2 {
		t.Fatalf("expected two audit records from the async dispatcher, got %d", len(records))
	}
	if records[0]["security_report_failure"] != "using_deprecated_schema_version" || records[1]["security_report_failure"] != "using_unsupported_schema_version" {
		t.Fatalf("unexpected audit records %#v", records)
	}
}

func TestValidateTextOutputAndOutFile(t *testing.T) {
	workDir := isolatedWorkspace(t)
	reportPath := writeReport(t, workDir, "report.json", `{"version":"12.37.0","vulnerabilities":[]}`)
	outPath := filepath.Join(workDir, "results", "verdict.json")

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "validate", "--type", "dast", "--out", outPath, reportPath})
	})
	if code != exitValidationFailed {
		t.Fatalf("validate: expected %d got %d (%s)", exitValidationFailed, code, raw)
	}
	if !strings.Contains(raw, "validate failed") || !strings.Contains(raw, "is unsupported") || !strings.Contains(raw, "lifecycle=unsupported") {
		t.Fatalf("unexpected text output:\n%s", raw)
	}
	written, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read --out file: %v", err)
	}
	output := decodeValidateOutput(t, string(written))
	if output.Lifecycle != "unsupported" || len(output.Errors) != 1 {
		t.Fatalf("unexpected --out payload %+v", output)
	}
}

func TestSchemasList(t *testing.T) {
	isolatedWorkspace(t)

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "schemas", "list", "--json"})
	})
	if code != exitOK {
		t.Fatalf("schemas list: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output schemasOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		t.Fatalf("decode schemas output: %v", err)
	}
	if !output.OK || output.Source != "embedded" || len(output.ReportTypes) != 8 {
		t.Fatalf("unexpected schemas output %+v", output)
	}
	for _, entry := range output.ReportTypes {
		if entry.Latest != "15.0.6" || len(entry.Deprecated) != 2 {
			t.Fatalf("unexpected entry %+v", entry)
		}
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "schemas", "list"})
	})
	if code != exitOK || !strings.Contains(raw, "api_fuzzing") || !strings.Contains(raw, "15.0.6") {
		t.Fatalf("unexpected text schemas output (code=%d):\n%s", code, raw)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "schemas", "list", "--schemas", t.TempDir(), "--json"})
	})
	if code != exitMissingDependency || !strings.Contains(raw, "schema_document_missing") {
		t.Fatalf("expected missing schema documents error (code=%d): %s", code, raw)
	}
}

func TestDoctor(t *testing.T) {
	workDir := isolatedWorkspace(t)
	writeProjectConfig(t, workDir, "audit:\n  log_path: "+filepath.Join(workDir, "audit.jsonl")+"\n")

	var code int
	raw := captureStdout(t, func() {
		code = run([]string{"reportgate", "doctor", "--json"})
	})
	if code != exitOK {
		t.Fatalf("doctor: expected %d got %d (%s)", exitOK, code, raw)
	}
	var output doctorOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		t.Fatalf("decode doctor output: %v", err)
	}
	if !output.OK || output.Status == "fail" || len(output.Checks) == 0 {
		t.Fatalf("unexpected doctor output %+v", output)
	}

	raw = captureStdout(t, func() {
		code = run([]string{"reportgate", "doctor", "--schemas", t.TempDir()})
	})
	if code != exitMissingDependency || !strings.Contains(raw, "schema_registry") {
		t.Fatalf("expected failing doctor run (code=%d):\n%s", code, raw)
	}

	if code := run([]string{"reportgate", "doctor", "extra"}); code != exitInvalidInput {
		t.Fatalf("doctor positional: expected %d got %d", exitInvalidInput, code)
	}
}

func TestReorderInterspersedFlags(t *testing.T) {
	got := reorderInterspersedFlags([]string{"report.json", "--type", "dast", "--json", "--project=group/app"}, map[string]bool{"type": true, "project": true})
	want := []string{"--type", "dast", "--json", "--project=group/app", "report.json"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("unexpected reordered args: got=%v want=%v", got, want)
	}
}

func isolatedWorkspace(t *testing.T) string {
	t.Helper()
	t.Setenv("REPORTGATE_AUDIT_LOG", "")
	t.Setenv("REPORTGATE_ENFORCE", "")
	workDir := t.TempDir()
	withWorkingDir(t, workDir)
	return workDir
}

func writeReport(t *testing.T, dir string, name string, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write report: %v", err)
	}
	return path
}

func writeProjectConfig(t *testing.T, workDir string, content string) {
	t.Helper()
	dir := filepath.Join(workDir, ".reportgate")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func decodeValidateOutput(t *testing.T, raw string) validateOutput {
	t.Helper()
	var output validateOutput
	if err := json.Unmarshal([]byte(raw), &output); err != nil {
		t.Fatalf("decode validate output %q: %v", raw, err)
	}
	return output
}

func readAuditLog(t *testing.T, path string) []map[string]any {
	t.Helper()
	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer func() { _ = file.Close() }()
	records := []map[string]any{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		record := map[string]any{}
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			t.Fatalf("decode audit line %q: %v", scanner.Text(), err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit log: %v", err)
	}
	return records
}

func withWorkingDir(t *testing.T, path string) {
	t.Helper()
	current, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd: %v", err)
	}
	if err := os.Chdir(path); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(current)
	})
}

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	original := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	os.Stdout = writer
	defer func() {
		os.Stdout = original
	}()

	type readResult struct {
		raw []byte
		err error
	}
	resultCh := make(chan readResult, 1)
	go func() {
		raw, readErr := io.ReadAll(reader)
		resultCh <- readResult{raw: raw, err: readErr}
	}()

	fn()

	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	result := <-resultCh
	if result.err != nil {
		t.Fatalf("read stdout: %v", result.err)
	}
	return string(result.raw)
}
