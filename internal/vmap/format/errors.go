// Package format reads and writes the versioned binary files the collision
// engine loads: map trees (.vmtree), tiles (.vmtile) and models (.vmo).
package format

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// Load error kinds. Every error returned by this package wraps exactly one.
var (
	ErrNotFound        = errors.New("file not found")
	ErrCorrupt         = errors.New("file corrupt")
	ErrVersionMismatch = errors.New("file version mismatch")
)

// readFile loads a whole file, classifying a missing file as ErrNotFound.
func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("read %s: %w: %w", path, ErrCorrupt, err)
	}
	return raw, nil
}
