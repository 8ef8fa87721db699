// Package cachefile provides gzip compressed json snapshots on the local file system
package cachefile

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Save writes v as gzip compressed json at path. The file is written to a
// temporary sibling first and renamed into place so readers never observe a
// partially written snapshot.
func Save(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create cache directory %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("unable to create cache file %s: %w", tmpPath, err)
	}

	gz := gzip.NewWriter(file)
	if err = json.NewEncoder(gz).Encode(v); err != nil {
		_ = gz.Close()
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to encode cache file %s: %w", tmpPath, err)
	}
	if err = gz.Close(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to finish writing cache file %s: %w", tmpPath, err)
	}
	if err = file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to close cache file %s: %w", tmpPath, err)
	}

	if err = os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("unable to move cache file into place at %s: %w", path, err)
	}
	return nil
}

// Restore reads the gzip compressed json snapshot at path into v. A missing
// file is not an error, Restore reports found=false so the caller can start
// from an empty state.
func Restore(path string, v interface{}) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("unable to open cache file %s: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return false, fmt.Errorf("unable to read cache file %s: %w", path, err)
	}
	defer func() {
		_ = gz.Close()
	}()

	if err = json.NewDecoder(gz).Decode(v); err != nil {
		return false, fmt.Errorf("unable to decode cache file %s: %w", path, err)
	}
	return true, nil
}
