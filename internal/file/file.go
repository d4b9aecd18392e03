package file

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	appDirPerm  os.FileMode = 0o750
	appFilePerm os.FileMode = 0o640
)

// EnsureDir creates the directory and any missing parents. It is a no-op
// when the directory already exists.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}
	if err := os.MkdirAll(dirPath, appDirPerm); err != nil { //nolint:gosec // app-owned backup dir
		return fmt.Errorf("ensure dir: %w", err)
	}
	return nil
}

// Remove deletes filename. A missing file is not an error.
func Remove(filename string) error {
	if err := os.Remove(filename); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(filename), err)
	}
	return nil
}

// Reserve replaces whatever is at filename with a fresh empty file and
// returns it opened for writing.
func Reserve(filename string) (*os.File, error) {
	if err := Remove(filename); err != nil {
		return nil, err
	}
	reserved, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_EXCL, appFilePerm) //nolint:gosec // path is built by the application
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}
	return reserved, nil
}

// WriteJSONAtomic marshals the value and atomically writes it to filename.
// The write is performed via a temporary file in the same directory
// followed by a rename.
func WriteJSONAtomic(filename string, v any) error {
	if filename == "" {
		return errors.New("empty filename")
	}

	dir := filepath.Dir(filename)
	if err := EnsureDir(dir); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tempFile.Name()

	jsonEncoder := json.NewEncoder(tempFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(v); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("encode json: %w", err)
	}

	// ensure data hits disk
	if err := tempFile.Sync(); err != nil {
		_ = tempFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmpName, filename); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}
