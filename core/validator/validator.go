// Package validator runs one report through classification, structural
// validation and verdict composition, then hands the derived audit records to
// the dispatcher.
package validator

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/davidahmann/reportgate/core/audit"
	"github.com/davidahmann/reportgate/core/enforcement"
	"github.com/davidahmann/reportgate/core/lifecycle"
	"github.com/davidahmann/reportgate/core/metrics"
	"github.com/davidahmann/reportgate/core/registry"
	"github.com/davidahmann/reportgate/core/report"
	"github.com/davidahmann/reportgate/core/verdict"
)

type Input struct {
	ReportType      registry.ReportType
	Document        any
	DeclaredVersion string
	ProjectRef      string
	Scanner         report.ScannerIdentity
	// Digest identifies the report bytes in audit records. Optional.
	Digest string
}

type Options struct {
	// Registry defaults to the process-wide bundled registry.
	Registry *registry.Registry
	// Enforcement defaults to enforcing every project.
	Enforcement enforcement.Resolver
	// Dispatcher receives audit records. Nil skips auditing.
	Dispatcher *audit.Dispatcher
	Metrics    *metrics.Metrics
	NewID      func() string
	Now        func() time.Time
}

// Result is a verdict together with the decisions that produced it.
type Result struct {
	ValidationID   string                   `json:"validation_id"`
	Verdict        verdict.Verdict          `json:"verdict"`
	Classification lifecycle.Classification `json:"-"`
	Enforced       bool                     `json:"enforced"`
	Records        []audit.Record           `json:"-"`
}

type Validator struct {
	registry   *registry.Registry
	resolver   enforcement.Resolver
	dispatcher *audit.Dispatcher
	metrics    *metrics.Metrics
	newID      func() string
	now        func() time.Time
}

func New(options Options) (*Validator, error) {
	reg := options.Registry
	if reg == nil {
		shared, err := registry.Default()
		if err != nil {
			return nil, fmt.Errorf("load bundled schema registry: %w", err)
		}
		reg = shared
	}
	resolver := options.Enforcement
	if resolver == nil {
		resolver = enforcement.Static(true)
	}
	newID := options.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	now := options.Now
	if now == nil {
		now = time.Now
	}
	return &Validator{
		registry:   reg,
		resolver:   resolver,
		dispatcher: options.Dispatcher,
		metrics:    options.Metrics,
		newID:      newID,
		now:        now,
	}, nil
}

func (v *Validator) Registry() *registry.Registry {
	return v.registry
}

// Validate returns the verdict for one report. The only error is a
// configuration error for a report type the registry does not know; every
// property of the report itself is expressed in the verdict.
func (v *Validator) Validate(input Input) (verdict.Verdict, error) {
	result, err := v.Check(input)
	if err != nil {
		return verdict.Verdict{}, err
	}
	return result.Verdict, nil
}

func (v *Validator) Check(input Input) (Result, error) {
	started := v.now()
	classification, err := lifecycle.Classify(v.registry, input.ReportType, input.DeclaredVersion)
	if err != nil {
		return Result{}, err
	}
	structural := classification.Schema.Validate(input.Document)
	enforced := v.resolver.Enabled(input.ProjectRef)
	composed := verdict.Compose(classification, structural, enforced)

	validationID := v.newID()
	records := audit.Records(audit.Subject{
		ValidationID:   validationID,
		ProjectRef:     input.ProjectRef,
		ScannerID:      input.Scanner.ID,
		ScannerVersion: input.Scanner.Version,
		Digest:         input.Digest,
	}, classification, structural)
	if v.dispatcher != nil {
		v.dispatcher.Dispatch(records)
	}
	if v.metrics != nil {
		v.metrics.ObserveVerdict(classification, enforced, composed, v.now().Sub(started))
	}

	return Result{
		ValidationID:   validationID,
		Verdict:        composed,
		Classification: classification,
		Enforced:       enforced,
		Records:        records,
	}, nil
}
