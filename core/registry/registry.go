package registry

import (
	"errors"
	"fmt"
	"io/fs"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
	"github.com/davidahmann/reportgate/core/schema/validate"
)

// Registry is the immutable result of Build: the version table plus one
// compiled schema per configured (report type, version). It is safe to share
// between goroutines.
type Registry struct {
	table   Table
	types   []ReportType
	schemas map[schemaKey]*validate.Schema
}

type schemaKey struct {
	reportType ReportType
	version    string
}

// Build checks the table, then loads and compiles every configured document
// from storage. Any inconsistency is a configuration error; nothing is skipped.
func Build(table Table, storage fs.FS) (*Registry, error) {
	if storage == nil {
		return nil, coreerrors.Configuration(coreerrors.CodeSchemaDocumentMissing, "provide a schema storage location", "schema storage is required")
	}
	if err := table.check(); err != nil {
		return nil, err
	}

	frozen := table.Merge(nil)
	registry := &Registry{
		table:   frozen,
		types:   frozen.reportTypes(),
		schemas: map[schemaKey]*validate.Schema{},
	}
	byPath := map[string]*validate.Schema{}
	for _, reportType := range registry.types {
		versions := frozen[reportType]
		for _, version := range append(append([]string{}, versions.Supported...), versions.Deprecated...) {
			documentPath := SchemaPath(reportType, version)
			schema, cached := byPath[documentPath]
			if !cached {
				loaded, err := loadDocument(storage, documentPath)
				if err != nil {
					return nil, err
				}
				schema = loaded
				byPath[documentPath] = schema
			}
			registry.schemas[schemaKey{reportType: reportType, version: version}] = schema
		}
	}
	return registry, nil
}

func loadDocument(storage fs.FS, documentPath string) (*validate.Schema, error) {
	data, err := fs.ReadFile(storage, documentPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, coreerrors.Configuration(
				coreerrors.CodeSchemaDocumentMissing,
				"add the schema document or remove the version from the table",
				"schema document %s is missing", documentPath,
			)
		}
		return nil, coreerrors.Wrap(fmt.Errorf("read schema %s: %w", documentPath, err), coreerrors.CategoryConfiguration, coreerrors.CodeSchemaDocumentMissing, "check schema storage permissions", false)
	}
	schema, err := validate.Compile(data)
	if err != nil {
		return nil, coreerrors.Wrap(fmt.Errorf("schema %s: %w", documentPath, err), coreerrors.CategoryConfiguration, coreerrors.CodeSchemaDocumentInvalid, "fix the schema document", false)
	}
	return schema, nil
}

// ReportTypes returns the configured report types in a stable order.
func (r *Registry) ReportTypes() []ReportType {
	return append([]ReportType(nil), r.types...)
}

// Versions returns a copy of the lifecycle lists for reportType.
func (r *Registry) Versions(reportType ReportType) (Versions, error) {
	versions, ok := r.table[reportType]
	if !ok {
		return Versions{}, unknownReportType(string(reportType))
	}
	return versions.clone(), nil
}

// Latest is the newest supported version of reportType.
func (r *Registry) Latest(reportType ReportType) (string, error) {
	versions, ok := r.table[reportType]
	if !ok {
		return "", unknownReportType(string(reportType))
	}
	return versions.Latest(), nil
}

// Schema returns the compiled document for a configured version.
func (r *Registry) Schema(reportType ReportType, version string) (*validate.Schema, error) {
	if _, ok := r.table[reportType]; !ok {
		return nil, unknownReportType(string(reportType))
	}
	schema, ok := r.schemas[schemaKey{reportType: reportType, version: version}]
	if !ok {
		return nil, fmt.Errorf("version %s is not configured for report type %s", version, reportType)
	}
	return schema, nil
}

// Table returns a copy of the version table the registry was built from.
func (r *Registry) Table() Table {
	return r.table.Merge(nil)
}
