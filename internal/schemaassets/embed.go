package schemaassets

import (
	"embed"
	"io/fs"
)

// Files holds the bundled report schema documents, laid out as
// schemas/<version>/<report-type>-report-format.json.
//
//go:embed schemas
var Files embed.FS

// FS returns the bundled documents rooted at the schemas directory.
func FS() fs.FS {
	sub, err := fs.Sub(Files, "schemas")
	if err != nil {
		panic(err)
	}
	return sub
}
