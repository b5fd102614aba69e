package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/davidahmann/reportgate/core/audit"
	"github.com/davidahmann/reportgate/core/lifecycle"
	"github.com/davidahmann/reportgate/core/registry"
	"github.com/davidahmann/reportgate/core/verdict"
)

func TestObserveVerdict(t *testing.T) {
	m := New()
	classification := lifecycle.Classification{State: lifecycle.Unsupported, ReportType: registry.DAST}
	m.ObserveVerdict(classification, true, verdict.Verdict{
		Valid:               false,
		Errors:              []string{"a", "b"},
		Warnings:            []string{},
		DeprecationWarnings: []string{},
	}, 3*time.Millisecond)
	m.ObserveVerdict(classification, false, verdict.Verdict{
		Valid:               true,
		Errors:              []string{},
		Warnings:            []string{"a"},
		DeprecationWarnings: []string{},
	}, time.Millisecond)

	if got := testutil.ToFloat64(m.validations.WithLabelValues("dast", "unsupported", "true", "false")); got != 1 {
		t.Fatalf("unexpected enforced validation count %v", got)
	}
	if got := testutil.ToFloat64(m.validations.WithLabelValues("dast", "unsupported", "false", "true")); got != 1 {
		t.Fatalf("unexpected audit-mode validation count %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("dast", "error")); got != 2 {
		t.Fatalf("unexpected error message count %v", got)
	}
	if got := testutil.ToFloat64(m.messages.WithLabelValues("dast", "warning")); got != 1 {
		t.Fatalf("unexpected warning message count %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 1 {
		t.Fatalf("expected one duration series, got %d", got)
	}
}

func TestInstrumentCountsAuditDelivery(t *testing.T) {
	m := New()
	chained := 0
	options := m.Instrument(audit.Options{OnDispatch: func(audit.Record, error) { chained++ }})

	options.OnDispatch(audit.Record{Failure: audit.BranchSchemaValidationFails}, nil)
	options.OnDispatch(audit.Record{Failure: audit.BranchSchemaValidationFails}, errors.New("disk full"))
	options.OnDrop([]audit.Record{{Failure: audit.BranchDeprecatedVersion}, {Failure: audit.BranchDeprecatedVersion}})

	if chained != 2 {
		t.Fatalf("existing hook must still run, ran %d times", chained)
	}
	if got := testutil.ToFloat64(m.auditRecords.WithLabelValues("schema_validation_fails", "ok")); got != 1 {
		t.Fatalf("unexpected ok count %v", got)
	}
	if got := testutil.ToFloat64(m.auditRecords.WithLabelValues("schema_validation_fails", "error")); got != 1 {
		t.Fatalf("unexpected error count %v", got)
	}
	if got := testutil.ToFloat64(m.auditDropped.WithLabelValues("using_deprecated_schema_version")); got != 2 {
		t.Fatalf("unexpected drop count %v", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.ObserveAuditDispatch(audit.Record{Failure: audit.BranchUnsupportedVersion}, nil)
	path := filepath.Join(t.TempDir(), "reportgate.prom")
	if err := m.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(raw), `reportgate_audit_records_total{branch="using_unsupported_schema_version",result="ok"} 1`) {
		t.Fatalf("unexpected textfile content:\n%s", raw)
	}
	if err := m.WriteTextfile(filepath.Join("..", "escape.prom")); err == nil {
		t.Fatalf("expected traversal path to be rejected")
	}
}
