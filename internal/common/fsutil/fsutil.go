package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ExpandHome expands a leading '~' to the user's home directory.
func ExpandHome(path string) (string, error) {
	if path == "" {
		return path, nil
	}
	if path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	// handle cases like ~/models/blip
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}

// JoinWithin joins the relative path rel below dir and rejects absolute
// paths and paths that climb out of dir.
func JoinWithin(dir, rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes %s", rel, dir)
	}
	return filepath.Join(dir, clean), nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// ClearDir removes every entry inside dir and leaves dir itself in place,
// creating it when missing. It refuses to clear the filesystem root or the
// user's home directory.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("clear dir: empty path")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("clear dir: %w", err)
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return fmt.Errorf("clear dir: refusing to clear %s", abs)
	}
	if home, err := os.UserHomeDir(); err == nil && filepath.Clean(home) == abs {
		return fmt.Errorf("clear dir: refusing to clear home directory %s", abs)
	}
	entries, err := os.ReadDir(abs)
	if errors.Is(err, os.ErrNotExist) {
		return os.MkdirAll(abs, 0o755)
	}
	if err != nil {
		return fmt.Errorf("clear dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(abs, e.Name())); err != nil {
			return fmt.Errorf("clear dir: %w", err)
		}
	}
	return nil
}
