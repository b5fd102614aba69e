package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	coreerrors "github.com/davidahmann/reportgate/core/errors"
	"github.com/davidahmann/reportgate/core/fsx"
)

// Sink accepts one flat field mapping per record.
type Sink interface {
	Emit(fields map[string]any) error
}

// batchSink is implemented by sinks that can write the records of one call in
// a single operation.
type batchSink interface {
	EmitAll(batch []map[string]any) error
}

type NopSink struct{}

func (NopSink) Emit(map[string]any) error {
	return nil
}

// JSONLSink appends records to a JSON lines file shared safely between
// processes through a sibling lock file.
type JSONLSink struct {
	Path   string
	Mode   os.FileMode
	Policy fsx.LockPolicy
}

func NewJSONLSink(path string) *JSONLSink {
	return &JSONLSink{Path: path, Mode: 0o600, Policy: fsx.DefaultLockPolicy}
}

func (s *JSONLSink) Emit(fields map[string]any) error {
	return s.EmitAll([]map[string]any{fields})
}

func (s *JSONLSink) EmitAll(batch []map[string]any) error {
	lines := make([][]byte, 0, len(batch))
	for _, fields := range batch {
		encoded, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("marshal audit record: %w", err)
		}
		lines = append(lines, encoded)
	}
	mode := s.Mode
	if mode == 0 {
		mode = 0o600
	}
	if err := fsx.AppendLines(s.Path, lines, mode, s.Policy); err != nil {
		return coreerrors.Wrap(
			fmt.Errorf("append audit log: %w", err),
			coreerrors.CategoryIOFailure,
			"audit_append_failed",
			"check that the audit log path is writable",
			true,
		)
	}
	return nil
}

// WriterSink writes one JSON object per line to an io.Writer.
type WriterSink struct {
	mu     sync.Mutex
	writer io.Writer
}

func NewWriterSink(writer io.Writer) *WriterSink {
	return &WriterSink{writer: writer}
}

func (s *WriterSink) Emit(fields map[string]any) error {
	encoded, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}
	encoded = append(encoded, '\n')
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.writer.Write(encoded); err != nil {
		return fmt.Errorf("write audit record: %w", err)
	}
	return nil
}

// MultiSink fans each record out to every sink. A failing sink does not stop
// delivery to the others.
type MultiSink []Sink

func (m MultiSink) Emit(fields map[string]any) error {
	var failures []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(fields); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func (m MultiSink) EmitAll(batch []map[string]any) error {
	var failures []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := emitBatch(sink, batch); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}

func emitBatch(sink Sink, batch []map[string]any) error {
	if batched, ok := sink.(batchSink); ok {
		return batched.EmitAll(batch)
	}
	var failures []error
	for _, fields := range batch {
		if err := sink.Emit(fields); err != nil {
			failures = append(failures, err)
		}
	}
	return errors.Join(failures...)
}
