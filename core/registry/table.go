package registry

import (
	"sort"
	"strings"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
)

// Versions is the lifecycle configuration of one report type. Supported is in
// chronological order, so its last entry is the latest version.
type Versions struct {
	Supported  []string `json:"supported" yaml:"supported"`
	Deprecated []string `json:"deprecated" yaml:"deprecated"`
}

// Table maps every configured report type to its versions.
type Table map[ReportType]Versions

var (
	defaultSupported  = []string{"15.0.0", "15.0.4", "15.0.6"}
	defaultDeprecated = []string{"14.0.6", "14.1.3"}
)

// DefaultTable returns a fresh copy of the bundled version table.
func DefaultTable() Table {
	table := make(Table, len(knownReportTypes))
	for _, reportType := range knownReportTypes {
		table[reportType] = Versions{
			Supported:  append([]string(nil), defaultSupported...),
			Deprecated: append([]string(nil), defaultDeprecated...),
		}
	}
	return table
}

// Merge returns a copy of t with the report types in overrides replaced.
func (t Table) Merge(overrides Table) Table {
	merged := make(Table, len(t)+len(overrides))
	for reportType, versions := range t {
		merged[reportType] = versions.clone()
	}
	for reportType, versions := range overrides {
		merged[reportType] = versions.clone()
	}
	return merged
}

func (v Versions) clone() Versions {
	return Versions{
		Supported:  append([]string{}, v.Supported...),
		Deprecated: append([]string{}, v.Deprecated...),
	}
}

func (v Versions) Latest() string {
	if len(v.Supported) == 0 {
		return ""
	}
	return v.Supported[len(v.Supported)-1]
}

func (t Table) reportTypes() []ReportType {
	types := make([]ReportType, 0, len(t))
	for reportType := range t {
		types = append(types, reportType)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

func (t Table) check() error {
	if len(t) == 0 {
		return inconsistent("version table is empty")
	}
	for _, reportType := range t.reportTypes() {
		if !reportType.Known() {
			return unknownReportType(string(reportType))
		}
		versions := t[reportType]
		if len(versions.Supported) == 0 {
			return inconsistent("report type %s has no supported versions", reportType)
		}
		seen := map[string]string{}
		for _, entry := range []struct {
			list  string
			items []string
		}{
			{list: "supported", items: versions.Supported},
			{list: "deprecated", items: versions.Deprecated},
		} {
			for _, version := range entry.items {
				if strings.TrimSpace(version) == "" || strings.TrimSpace(version) != version {
					return inconsistent("report type %s has a blank or padded %s version %q", reportType, entry.list, version)
				}
				if previous, exists := seen[version]; exists {
					if previous == entry.list {
						return inconsistent("report type %s lists %s version %s twice", reportType, entry.list, version)
					}
					return inconsistent("report type %s lists version %s as both supported and deprecated", reportType, version)
				}
				seen[version] = entry.list
			}
		}
	}
	return nil
}

func inconsistent(format string, args ...any) error {
	return coreerrors.Configuration(
		coreerrors.CodeRegistryInconsistent,
		"fix the schema version table so supported and deprecated lists are disjoint and non-empty",
		format, args...,
	)
}
