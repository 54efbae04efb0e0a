package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteBatch creates a batch directory named name under root and fills
// it with the given files. Map keys may contain path separators to
// create nested files. Returns the batch directory path.
func WriteBatch(t *testing.T, root, name string, files map[string]string) string {
	t.Helper()

	batch := filepath.Join(root, name)
	if err := os.MkdirAll(batch, 0o755); err != nil {
		t.Fatalf("create batch dir: %v", err)
	}

	for rel, content := range files {
		path := filepath.Join(batch, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("create batch subdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write batch file: %v", err)
		}
	}

	return batch
}
