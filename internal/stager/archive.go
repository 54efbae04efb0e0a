package stager

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Archiver moves consumed batch directories under a backup root and
// enforces the retention cap.
type Archiver struct {
	root  string
	limit int
}

// NewArchiver creates an Archiver. A limit of zero or less means
// unlimited retention (no pruning).
func NewArchiver(root string, limit int) *Archiver {
	return &Archiver{root: root, limit: limit}
}

// Root returns the backup root directory.
func (a *Archiver) Root() string {
	return a.root
}

// Archive moves the whole batch directory under the backup root,
// creating the root if necessary, then enforces retention. An existing
// backup with the same name is replaced, matching the staging layer's
// last-write-wins policy.
func (a *Archiver) Archive(batchDir string) error {
	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("create backup root: %w", err)
	}

	dest := filepath.Join(a.root, filepath.Base(batchDir))
	if _, err := os.Stat(dest); err == nil {
		if err := os.RemoveAll(dest); err != nil {
			return fmt.Errorf("replace backup %s: %w", dest, err)
		}
	}

	if err := moveDir(batchDir, dest); err != nil {
		return fmt.Errorf("archive %s: %w", batchDir, err)
	}

	// The just-archived directory must carry the newest mtime so the
	// retention ordering sees it as most recent.
	now := time.Now()
	_ = os.Chtimes(dest, now, now)

	return a.Prune()
}

// Backup describes one retained backup directory.
type Backup struct {
	Name       string
	Path       string
	ArchivedAt time.Time
}

// List returns the retained backups, oldest first. Ordering is by
// directory modification time (the time of archival) with name as the
// tie-break; batch names come from the upstream fetcher and carry no
// guaranteed ordering of their own.
func (a *Archiver) List() ([]Backup, error) {
	entries, err := os.ReadDir(a.root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	var backups []Backup
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat backup %s: %w", entry.Name(), err)
		}
		backups = append(backups, Backup{
			Name:       entry.Name(),
			Path:       filepath.Join(a.root, entry.Name()),
			ArchivedAt: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		if !backups[i].ArchivedAt.Equal(backups[j].ArchivedAt) {
			return backups[i].ArchivedAt.Before(backups[j].ArchivedAt)
		}
		return backups[i].Name < backups[j].Name
	})
	return backups, nil
}

// Prune removes the oldest backups until at most the configured limit
// remain. With an unlimited (<= 0) limit it does nothing.
func (a *Archiver) Prune() error {
	if a.limit <= 0 {
		return nil
	}

	backups, err := a.List()
	if err != nil {
		return err
	}
	if len(backups) <= a.limit {
		return nil
	}

	for _, backup := range backups[:len(backups)-a.limit] {
		if err := os.RemoveAll(backup.Path); err != nil {
			return fmt.Errorf("prune backup %s: %w", backup.Path, err)
		}
	}
	return nil
}

// moveDir renames src to dst, falling back to copy-and-delete when the
// rename fails (typically a cross-device backup root).
func moveDir(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

// copyTree recursively copies the directory src to dst.
func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		return copyFile(path, target)
	})
}
