package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppendLines appends each record as its own newline-terminated line in one
// locked write, then fsyncs. Records belonging together stay adjacent even when
// several processes share the file.
func AppendLines(path string, records [][]byte, mode os.FileMode, policy LockPolicy) error {
	cleanPath, err := CleanTargetPath(path)
	if err != nil {
		return err
	}
	for index, record := range records {
		if strings.ContainsRune(string(record), '\n') {
			return fmt.Errorf("record %d contains a newline", index)
		}
	}
	if len(records) == 0 {
		return nil
	}
	parent := filepath.Dir(cleanPath)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create append directory: %w", err)
		}
	}

	size := 0
	for _, record := range records {
		size += len(record) + 1
	}
	payload := make([]byte, 0, size)
	for _, record := range records {
		payload = append(payload, record...)
		payload = append(payload, '\n')
	}

	return WithLock(cleanPath, policy, func() error {
		// #nosec G304 -- append path is validated local relative or absolute.
		file, openErr := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if openErr != nil {
			return fmt.Errorf("open append file: %w", openErr)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, writeErr := file.Write(payload); writeErr != nil {
			return fmt.Errorf("append lines: %w", writeErr)
		}
		if syncErr := file.Sync(); syncErr != nil {
			return fmt.Errorf("sync append file: %w", syncErr)
		}
		return nil
	})
}

// CleanTargetPath accepts local relative paths and absolute paths and rejects
// relative paths that climb out of the working directory.
func CleanTargetPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is required")
	}
	cleanPath := filepath.Clean(trimmed)
	if filepath.IsLocal(cleanPath) || filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}
	return "", fmt.Errorf("path must be local relative or absolute: %s", path)
}
