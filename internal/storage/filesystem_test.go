package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemSecurity(t *testing.T) {
	tempDir := t.TempDir()

	fs, err := NewFileSystem(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("Save prevents directory traversal", func(t *testing.T) {
		tests := []struct {
			name string
			key  string
			want bool // true if should succeed
		}{
			{"normal key", "ratelimit", true},
			{"nested key", "runs/abc/progress", true},
			{"parent traversal", "../test", false},
			{"complex traversal", "runs/../../test", false},
			{"absolute path", "/etc/passwd", false},
			{"empty key", "", false},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := fs.Save(ctx, tt.key, []byte(`{}`))
				if tt.want && err != nil {
					t.Errorf("expected success, got error: %v", err)
				}
				if !tt.want && err == nil {
					t.Errorf("expected error for key %q, got none", tt.key)
				}
			})
		}
	})

	t.Run("List rejects traversal", func(t *testing.T) {
		if _, err := fs.List(ctx, "../"); err == nil {
			t.Error("expected error for parent traversal prefix")
		}
	})
}

func TestFileSystemRoundTrip(t *testing.T) {
	tempDir := t.TempDir()
	fs, err := NewFileSystem(tempDir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if _, err := fs.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load(missing) error = %v, want ErrNotFound", err)
	}

	payload := []byte(`{"total_requests":3}`)
	if err := fs.Save(ctx, "ratelimit/state", payload); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := fs.Save(ctx, "runs/a/progress", []byte(`{}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := fs.Load(ctx, "ratelimit/state")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Load = %s, want %s", got, payload)
	}

	if _, err := os.Stat(filepath.Join(tempDir, "ratelimit", "state.json")); err != nil {
		t.Errorf("expected state file on disk: %v", err)
	}

	keys, err := fs.List(ctx, "runs/")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(keys) != 1 || keys[0] != "runs/a/progress" {
		t.Errorf("List(runs/) = %v", keys)
	}

	if err := fs.Delete(ctx, "ratelimit/state"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := fs.Load(ctx, "ratelimit/state"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load after Delete error = %v, want ErrNotFound", err)
	}
	if err := fs.Delete(ctx, "ratelimit/state"); err != nil {
		t.Errorf("Delete of missing key should be a no-op, got %v", err)
	}
}

func TestSanitizePath(t *testing.T) {
	tempDir := t.TempDir()
	fs, err := NewFileSystem(tempDir)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"simple key", "state", false},
		{"nested key", "dir/state", false},
		{"dot key", ".hidden", false},
		{"parent directory", "../file", true},
		{"sneaky parent", "dir/../../../etc/passwd", true},
		{"absolute path", "/etc/passwd", true},
		{"dot path", ".", true},
		{"double dot", "..", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fs.sanitizePath(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("sanitizePath(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
				return
			}
			if err == nil && !strings.HasPrefix(got, fs.baseDir) {
				t.Errorf("sanitizePath(%q) = %q, not under base directory %q", tt.key, got, fs.baseDir)
			}
		})
	}
}
