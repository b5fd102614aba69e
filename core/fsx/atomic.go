package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic replaces path through a synced temp file in the same
// directory, so readers see either the old or the new content.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	cleanPath, err := CleanTargetPath(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(cleanPath)
	if err := os.MkdirAll(parent, 0o750); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tempFile, err := os.CreateTemp(parent, "."+filepath.Base(cleanPath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tempPath)
		}
	}()

	if _, err := tempFile.Write(content); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tempFile.Chmod(mode); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := replaceFile(tempPath, cleanPath); err != nil {
		return err
	}
	committed = true

	// #nosec G304 -- parent directory of a validated output path.
	if dirHandle, err := os.Open(parent); err == nil {
		_ = dirHandle.Sync()
		_ = dirHandle.Close()
	}
	return nil
}

func replaceFile(source, destination string) error {
	err := os.Rename(source, destination)
	if err == nil {
		return nil
	}
	if runtime.GOOS != "windows" {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if removeErr := os.Remove(destination); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove destination before rename: %w", removeErr)
	}
	if renameErr := os.Rename(source, destination); renameErr != nil {
		return fmt.Errorf("rename temp file after remove: %w", renameErr)
	}
	return nil
}
