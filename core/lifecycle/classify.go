package lifecycle

import (
	"strings"

	"github.com/davidahmann/reportgate/core/registry"
	"github.com/davidahmann/reportgate/core/schema/validate"
)

// State is the lifecycle classification of a declared report version.
type State int

const (
	Missing State = iota
	Supported
	Deprecated
	Unsupported
)

func (s State) String() string {
	switch s {
	case Missing:
		return "missing"
	case Supported:
		return "supported"
	case Deprecated:
		return "deprecated"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Classification is the classifier's answer for one report: the state, the
// version whose schema applies, and the context needed to explain it.
type Classification struct {
	State           State
	ReportType      registry.ReportType
	DeclaredVersion string
	SchemaVersion   string
	Schema          *validate.Schema
	Supported       []string
}

// Classify matches declaredVersion exactly against the registry's lists. A blank
// declared version counts as absent. Missing and unsupported versions resolve to
// the latest supported schema so the structural check still runs.
func Classify(reg *registry.Registry, reportType registry.ReportType, declaredVersion string) (Classification, error) {
	versions, err := reg.Versions(reportType)
	if err != nil {
		return Classification{}, err
	}
	classification := Classification{
		ReportType:      reportType,
		DeclaredVersion: declaredVersion,
		SchemaVersion:   versions.Latest(),
		Supported:       versions.Supported,
	}
	switch {
	case strings.TrimSpace(declaredVersion) == "":
		classification.State = Missing
		classification.DeclaredVersion = ""
	case containsExact(versions.Supported, declaredVersion):
		classification.State = Supported
		classification.SchemaVersion = declaredVersion
	case containsExact(versions.Deprecated, declaredVersion):
		classification.State = Deprecated
		classification.SchemaVersion = declaredVersion
	default:
		classification.State = Unsupported
	}

	schema, err := reg.Schema(reportType, classification.SchemaVersion)
	if err != nil {
		return Classification{}, err
	}
	classification.Schema = schema
	return classification, nil
}

func containsExact(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
