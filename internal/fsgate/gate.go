// Package fsgate implements the presence predicates that decide whether a
// producing stage may be skipped. A missing parent directory behaves exactly
// like a missing target: the predicate reports false and the stage proceeds.
package fsgate

import (
	"os"
	"path/filepath"

	"github.com/spatialpipe/spatialpipe/internal/models"
)

// Exists reports whether path exists, regardless of type.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExistsNonEmpty reports whether path exists and has content: a directory
// with at least one entry, or a file with at least one byte. Call sites that
// treat an empty directory as "not present" use this instead of Exists.
func ExistsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		entries, err := os.ReadDir(path)
		return err == nil && len(entries) > 0
	}
	return info.Size() > 0
}

// AnyMatch reports whether pattern matches at least one path. Malformed
// patterns report false.
func AnyMatch(pattern string) bool {
	matches, err := filepath.Glob(pattern)
	return err == nil && len(matches) > 0
}

// Satisfied reports whether the declared path is present according to its
// kind.
func Satisfied(spec models.PathSpec) bool {
	switch spec.Kind {
	case models.PathFile:
		info, err := os.Stat(spec.Path)
		return err == nil && info.Mode().IsRegular()
	case models.PathDir:
		info, err := os.Stat(spec.Path)
		return err == nil && info.IsDir()
	case models.PathDirNonEmpty:
		info, err := os.Stat(spec.Path)
		if err != nil || !info.IsDir() {
			return false
		}
		return ExistsNonEmpty(spec.Path)
	case models.PathGlob:
		return AnyMatch(spec.Path)
	}
	return Exists(spec.Path)
}
