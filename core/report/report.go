package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
	"github.com/davidahmann/reportgate/core/jcs"
)

// DefaultMaxBytes caps the decoded size of a report so a small compressed
// artifact cannot expand without bound.
const DefaultMaxBytes int64 = 256 << 20

type Encoding string

const (
	EncodingPlain Encoding = "plain"
	EncodingGzip  Encoding = "gzip"
	EncodingZstd  Encoding = "zstd"
)

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Report is a decoded scanner report together with the bytes it came from.
type Report struct {
	Path     string
	Encoding Encoding
	Raw      []byte
	Document any
}

// ScannerIdentity names the scanner that produced a report. Empty fields are
// unknown.
type ScannerIdentity struct {
	ID      string `json:"id,omitempty"`
	Version string `json:"version,omitempty"`
}

func (s ScannerIdentity) Known() bool {
	return s.ID != "" || s.Version != ""
}

func ReadFile(path string, maxBytes int64) (Report, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return Report{}, invalidReport(fmt.Errorf("report path is required"))
	}
	// #nosec G304 -- report path is explicit local user input.
	file, err := os.Open(trimmed)
	if err != nil {
		return Report{}, invalidReport(fmt.Errorf("open report: %w", err))
	}
	defer func() {
		_ = file.Close()
	}()
	parsed, err := Read(file, maxBytes)
	if err != nil {
		return Report{}, err
	}
	parsed.Path = trimmed
	return parsed, nil
}

// Read decodes a report, transparently decompressing gzip and zstd input
// detected by magic bytes.
func Read(reader io.Reader, maxBytes int64) (Report, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	raw, err := readLimited(reader, maxBytes)
	if err != nil {
		return Report{}, invalidReport(fmt.Errorf("read report: %w", err))
	}

	encoding := detectEncoding(raw)
	switch encoding {
	case EncodingGzip:
		gzipReader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return Report{}, invalidReport(fmt.Errorf("open gzip report: %w", err))
		}
		defer func() {
			_ = gzipReader.Close()
		}()
		raw, err = readLimited(gzipReader, maxBytes)
		if err != nil {
			return Report{}, invalidReport(fmt.Errorf("decompress gzip report: %w", err))
		}
	case EncodingZstd:
		decoder, err := zstd.NewReader(bytes.NewReader(raw), zstd.WithDecoderMaxMemory(uint64(maxBytes)))
		if err != nil {
			return Report{}, invalidReport(fmt.Errorf("open zstd report: %w", err))
		}
		defer decoder.Close()
		raw, err = readLimited(decoder, maxBytes)
		if err != nil {
			return Report{}, invalidReport(fmt.Errorf("decompress zstd report: %w", err))
		}
	}

	document, err := Decode(raw)
	if err != nil {
		return Report{}, err
	}
	return Report{Encoding: encoding, Raw: raw, Document: document}, nil
}

// Decode parses JSON report bytes. Numbers decode as float64 as encoding/json
// does, which is what structural validation expects.
func Decode(raw []byte) (any, error) {
	var document any
	decoder := json.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(&document); err != nil {
		return nil, invalidReport(fmt.Errorf("parse report json: %w", err))
	}
	if decoder.More() {
		return nil, invalidReport(fmt.Errorf("parse report json: trailing data after document"))
	}
	return document, nil
}

func readLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(reader, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("report exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func detectEncoding(raw []byte) Encoding {
	switch {
	case bytes.HasPrefix(raw, gzipMagic):
		return EncodingGzip
	case bytes.HasPrefix(raw, zstdMagic):
		return EncodingZstd
	default:
		return EncodingPlain
	}
}

// Digest is the canonical JSON digest of the decoded report, independent of
// compression and formatting.
func (r Report) Digest() (string, error) {
	return jcs.Digest(r.Raw)
}

// DeclaredVersion returns the top-level "version" string. Anything other than
// a string counts as not declared; structural validation reports the type.
func DeclaredVersion(document any) string {
	object, ok := document.(map[string]any)
	if !ok {
		return ""
	}
	version, _ := object["version"].(string)
	return version
}

// Scanner reads the scanner identity from scan.scanner, falling back to the
// scanner of the first vulnerability used by older report formats.
func Scanner(document any) ScannerIdentity {
	object, ok := document.(map[string]any)
	if !ok {
		return ScannerIdentity{}
	}
	if scan, ok := object["scan"].(map[string]any); ok {
		if identity := scannerFrom(scan["scanner"]); identity.Known() {
			return identity
		}
	}
	if vulnerabilities, ok := object["vulnerabilities"].([]any); ok && len(vulnerabilities) > 0 {
		if first, ok := vulnerabilities[0].(map[string]any); ok {
			return scannerFrom(first["scanner"])
		}
	}
	return ScannerIdentity{}
}

func scannerFrom(value any) ScannerIdentity {
	scanner, ok := value.(map[string]any)
	if !ok {
		return ScannerIdentity{}
	}
	id, _ := scanner["id"].(string)
	version, _ := scanner["version"].(string)
	return ScannerIdentity{ID: strings.TrimSpace(id), Version: strings.TrimSpace(version)}
}

func invalidReport(err error) error {
	return coreerrors.Wrap(err, coreerrors.CategoryInvalidInput, "invalid_report", "provide a readable JSON report, optionally gzip or zstd compressed", false)
}
