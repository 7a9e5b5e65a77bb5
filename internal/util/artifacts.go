package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrInvalidArtifactName is returned when a document id cannot name a
// directory below the output root.
var ErrInvalidArtifactName = errors.New("invalid artifact name")

// DocumentArtifactPath returns root/<documentID>/<file>. Only the last path
// element of documentID is used; ids that reduce to nothing, "." or ".." are
// rejected so an artifact never lands in root itself or above it.
func DocumentArtifactPath(root, documentID, file string) (string, error) {
	name := filepath.Base(strings.TrimSpace(documentID))
	switch name {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("%w: %q", ErrInvalidArtifactName, documentID)
	}
	return filepath.Join(root, name, file), nil
}

// WriteJSONAtomic writes v as indented JSON through a temp file + rename so
// readers never observe a half-written summary.
func WriteJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "tmp-*.json")
	if err != nil {
		return fmt.Errorf("create temp json: %w", err)
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("encode json: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp json: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp json: %w", err)
	}
	return nil
}
