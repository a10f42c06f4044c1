package database

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// CleanResult reports what a clean pass removed
type CleanResult struct {
	Checked             int   `json:"checked"`
	FilesRemoved        int64 `json:"files_removed"`
	FingerprintsRemoved int64 `json:"fingerprints_removed"`
}

// Cleaner is the subset of Cache needed by CleanMissing
type Cleaner interface {
	ListPaths(ctx context.Context) ([]string, error)
	CacheMaintainer
}

// FileExists reports whether path currently exists on disk. Only a
// not-exist error counts as missing; permission and I/O errors keep the record.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	return !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, syscall.ENOTDIR)
}

// CleanMissing drops records of files that no longer exist, then drops the
// fingerprints left without any referencing file. A nil exists uses FileExists.
func CleanMissing(ctx context.Context, c Cleaner, exists func(string) bool) (*CleanResult, error) {
	if exists == nil {
		exists = FileExists
	}

	paths, err := c.ListPaths(ctx)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if exists(p) {
			existing[p] = struct{}{}
		}
	}

	result := &CleanResult{Checked: len(paths)}
	if result.FilesRemoved, err = c.RemoveMissingFiles(ctx, existing); err != nil {
		return nil, err
	}
	if result.FingerprintsRemoved, err = c.RemoveOrphanFingerprints(ctx); err != nil {
		return nil, err
	}
	return result, nil
}
