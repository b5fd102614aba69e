package registry

import (
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strings"
)

var documentNamePattern = regexp.MustCompile(`^(?P<report_type>[-\w]+)` + regexp.QuoteMeta(documentSuffix) + `$`)

// Document is one schema file found in storage.
type Document struct {
	Version    string     `json:"version"`
	ReportType ReportType `json:"report_type"`
	Path       string     `json:"path"`
}

// Inventory enumerates every schema document in storage, sorted by version then
// report type.
func Inventory(storage fs.FS) ([]Document, error) {
	entries, err := fs.ReadDir(storage, ".")
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	documents := make([]Document, 0)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		version := entry.Name()
		files, err := fs.ReadDir(storage, version)
		if err != nil {
			return nil, fmt.Errorf("list schema documents for %s: %w", version, err)
		}
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			match := documentNamePattern.FindStringSubmatch(file.Name())
			if match == nil {
				continue
			}
			documents = append(documents, Document{
				Version:    version,
				ReportType: ReportType(strings.ReplaceAll(match[1], "-", "_")),
				Path:       path.Join(version, file.Name()),
			})
		}
	}
	sort.Slice(documents, func(i, j int) bool {
		if documents[i].Version != documents[j].Version {
			return documents[i].Version < documents[j].Version
		}
		return documents[i].ReportType < documents[j].ReportType
	})
	return documents, nil
}

// Orphans lists documents in storage that no entry of table refers to.
func Orphans(table Table, storage fs.FS) ([]Document, error) {
	documents, err := Inventory(storage)
	if err != nil {
		return nil, err
	}
	referenced := map[string]struct{}{}
	for reportType, versions := range table {
		for _, version := range versions.Supported {
			referenced[SchemaPath(reportType, version)] = struct{}{}
		}
		for _, version := range versions.Deprecated {
			referenced[SchemaPath(reportType, version)] = struct{}{}
		}
	}
	orphans := make([]Document, 0)
	for _, document := range documents {
		if _, ok := referenced[document.Path]; !ok {
			orphans = append(orphans, document)
		}
	}
	return orphans, nil
}
