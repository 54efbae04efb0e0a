// Package stager moves batch JSON files through the import pipeline:
// scanning batch directories, staging files for the transform engine,
// and archiving or deleting consumed batches.
//
// Filesystem operations here are not transactional. A crash mid-stage or
// mid-archive leaves a batch directory partially processed; recovery is
// either manual inspection or the next run's re-scan, which is safe
// because staging copies overwrite on conflict.
package stager

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// Stager copies batch files into the flat staging directory the
// transform engine reads from.
type Stager struct {
	staging string
}

// New creates a Stager targeting the given staging directory.
func New(stagingPath string) *Stager {
	return &Stager{staging: stagingPath}
}

// StagingPath returns the staging directory.
func (s *Stager) StagingPath() string {
	return s.staging
}

// ListBatchDirectories returns the immediate subdirectories of the
// source root, lexicographically sorted, as full paths. Plain files are
// excluded. A missing source root yields an empty list: the fetcher
// simply has not produced anything yet.
func ListBatchDirectories(sourceRoot string) ([]string, error) {
	entries, err := os.ReadDir(sourceRoot)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", sourceRoot, err)
	}

	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(sourceRoot, entry.Name()))
		}
	}
	// os.ReadDir sorts by filename, but the contract is load-bearing for
	// backup ordering, so sort explicitly.
	sort.Strings(dirs)
	return dirs, nil
}

// Scan recursively collects every *.json file under batchDir, sorted by
// path. An empty result is not an error: the batch simply has nothing
// to import.
func (s *Stager) Scan(batchDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(batchDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		match, err := filepath.Match("*.json", d.Name())
		if err != nil {
			return err
		}
		if match {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", batchDir, err)
	}

	sort.Strings(files)
	return files, nil
}

// Stage copies the given files into the flat staging directory,
// overwriting any existing file of the same name. Last writer wins for a
// given filename, so batches must not supply colliding names.
//
// Destination names are NFC-normalized: upstream systems deliver
// differently-normalized Unicode filenames, and without normalization
// the same logical file could stage twice.
func (s *Stager) Stage(files []string) error {
	if len(files) == 0 {
		return nil
	}

	if err := os.MkdirAll(s.staging, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}

	for _, src := range files {
		name := norm.NFC.String(filepath.Base(src))
		if err := copyFile(src, filepath.Join(s.staging, name)); err != nil {
			return fmt.Errorf("stage %s: %w", src, err)
		}
	}
	return nil
}

// copyFile copies src to dst, truncating dst if it exists.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Delete recursively removes a consumed batch directory. Used when
// backups are disabled.
func Delete(batchDir string) error {
	if err := os.RemoveAll(batchDir); err != nil {
		return fmt.Errorf("delete batch %s: %w", batchDir, err)
	}
	return nil
}
