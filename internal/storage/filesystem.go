package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

// FileSystem stores each key as a JSON file below baseDir.
type FileSystem struct {
	baseDir string
}

func NewFileSystem(baseDir string) (*FileSystem, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &FileSystem{baseDir: abs}, nil
}

// sanitizePath validates and cleans the key to prevent directory traversal
func (fs *FileSystem) sanitizePath(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))

	if strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid key: contains parent directory reference")
	}
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("invalid key: absolute paths not allowed")
	}
	if cleaned == "." || cleaned == "" {
		return "", fmt.Errorf("invalid key: empty")
	}

	fullPath := filepath.Join(fs.baseDir, cleaned) + fileExt

	// Verify the final path is still within baseDir
	if !strings.HasPrefix(fullPath, fs.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid key: outside base directory")
	}

	return fullPath, nil
}

func (fs *FileSystem) Save(ctx context.Context, key string, data []byte) error {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if strings.HasPrefix(key, "secrets/") {
		mode = 0600 // Owner read/write only for secrets
	}

	if err := atomicWriteFile(fullPath, data, mode); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (fs *FileSystem) Load(ctx context.Context, key string) ([]byte, error) {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return data, nil
}

// List returns the keys starting with prefix, sorted.
func (fs *FileSystem) List(ctx context.Context, prefix string) ([]string, error) {
	if strings.Contains(prefix, "..") {
		return nil, fmt.Errorf("invalid prefix: contains parent directory reference")
	}

	var keys []string
	err := filepath.WalkDir(fs.baseDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, fileExt) {
			return nil
		}
		rel, err := filepath.Rel(fs.baseDir, path)
		if err != nil {
			return nil
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), fileExt)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}

	sort.Strings(keys)
	return keys, nil
}

func (fs *FileSystem) Delete(ctx context.Context, key string) error {
	fullPath, err := fs.sanitizePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting %s: %w", key, err)
	}
	return nil
}

func (fs *FileSystem) Close() error { return nil }

// atomicWriteFile writes data using temp file + rename so a crash never
// leaves a half-written state document behind.
func atomicWriteFile(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	tmpPath = ""
	return nil
}
