// Package metrics counts validation outcomes and audit delivery with
// Prometheus collectors on a private registry.
package metrics

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/davidahmann/reportgate/core/audit"
	"github.com/davidahmann/reportgate/core/fsx"
	"github.com/davidahmann/reportgate/core/lifecycle"
	"github.com/davidahmann/reportgate/core/verdict"
)

const namespace = "reportgate"

type Metrics struct {
	registry *prometheus.Registry

	validations  *prometheus.CounterVec
	messages     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	auditRecords *prometheus.CounterVec
	auditDropped *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validations_total",
			Help:      "Report validations by report type, version lifecycle state, enforcement and outcome.",
		}, []string{"report_type", "lifecycle", "enforced", "valid"}),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdict_messages_total",
			Help:      "Verdict messages by report type and channel.",
		}, []string{"report_type", "channel"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "validation_duration_seconds",
			Help:      "Time spent classifying, validating and composing a verdict.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"report_type"}),
		auditRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_total",
			Help:      "Audit records handed to the sink by branch and delivery result.",
		}, []string{"branch", "result"}),
		auditDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_records_dropped_total",
			Help:      "Audit records discarded because the dispatch queue was full or closed.",
		}, []string{"branch"}),
	}
	m.registry.MustRegister(m.validations, m.messages, m.duration, m.auditRecords, m.auditDropped)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveVerdict(classification lifecycle.Classification, enforced bool, result verdict.Verdict, elapsed time.Duration) {
	reportType := string(classification.ReportType)
	m.validations.WithLabelValues(
		reportType,
		classification.State.String(),
		strconv.FormatBool(enforced),
		strconv.FormatBool(result.Valid),
	).Inc()
	m.messages.WithLabelValues(reportType, "error").Add(float64(len(result.Errors)))
	m.messages.WithLabelValues(reportType, "warning").Add(float64(len(result.Warnings)))
	m.messages.WithLabelValues(reportType, "deprecation").Add(float64(len(result.DeprecationWarnings)))
	m.duration.WithLabelValues(reportType).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveAuditDispatch(record audit.Record, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.auditRecords.WithLabelValues(string(record.Failure), result).Inc()
}

func (m *Metrics) ObserveAuditDrop(records []audit.Record) {
	for _, record := range records {
		m.auditDropped.WithLabelValues(string(record.Failure)).Inc()
	}
}

// Instrument wires the audit hooks into dispatcher options, keeping any hooks
// already present.
func (m *Metrics) Instrument(options audit.Options) audit.Options {
	onDispatch := options.OnDispatch
	options.OnDispatch = func(record audit.Record, err error) {
		m.ObserveAuditDispatch(record, err)
		if onDispatch != nil {
			onDispatch(record, err)
		}
	}
	onDrop := options.OnDrop
	options.OnDrop = func(records []audit.Record) {
		m.ObserveAuditDrop(records)
		if onDrop != nil {
			onDrop(records)
		}
	}
	return options
}

// WriteTextfile writes the registry in the text exposition format for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	cleanPath, err := fsx.CleanTargetPath(path)
	if err != nil {
		return fmt.Errorf("metrics textfile: %w", err)
	}
	if err := prometheus.WriteToTextfile(cleanPath, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
