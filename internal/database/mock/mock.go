// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

type fingerprintKey struct {
	digest     contentid.Digest
	size       int64
	resolution int
}

// MockCache is an in-memory implementation of database.Cache
type MockCache struct {
	mu           sync.RWMutex
	files        map[string]database.StoredFile
	fingerprints map[fingerprintKey]database.StoredFingerprint
	closed       bool

	// Call counters
	FingerprintInserts int // successful inserts of a new fingerprint row

	// Error injection
	LookupByPathError      error
	LookupFingerprintError error
	UpsertFileError        error
	UpsertFingerprintError error
	RemoveFileError        error
	ListPathsError         error
	EntriesError           error
	StatsError             error
	RemoveMissingError     error
	RemoveOrphansError     error
	ClearAllError          error
}

// NewMockCache creates a new empty mock cache
func NewMockCache() *MockCache {
	return &MockCache{
		files:        make(map[string]database.StoredFile),
		fingerprints: make(map[fingerprintKey]database.StoredFingerprint),
	}
}

// LookupByPath returns the record for a path
func (m *MockCache) LookupByPath(ctx context.Context, path string) (*database.StoredFile, error) {
	if m.LookupByPathError != nil {
		return nil, m.LookupByPathError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[path]
	if !ok {
		return nil, nil
	}
	return &f, nil
}

// LookupFingerprint returns the fingerprint for an identity at a resolution
func (m *MockCache) LookupFingerprint(ctx context.Context, digest contentid.Digest, size int64, resolution int) (*fingerprint.Fingerprint, error) {
	if m.LookupFingerprintError != nil {
		return nil, m.LookupFingerprintError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	fp, ok := m.fingerprints[fingerprintKey{digest, size, resolution}]
	if !ok {
		return nil, nil
	}
	out := fp.Fingerprint
	out.Bits = slices.Clone(out.Bits)
	return &out, nil
}

// ListPaths returns all paths sorted
func (m *MockCache) ListPaths(ctx context.Context) ([]string, error) {
	if m.ListPathsError != nil {
		return nil, m.ListPathsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths, nil
}

// Entries joins files to fingerprints at a resolution
func (m *MockCache) Entries(ctx context.Context, resolution int) ([]database.CachedEntry, error) {
	if m.EntriesError != nil {
		return nil, m.EntriesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var entries []database.CachedEntry
	for _, f := range m.files {
		fp, ok := m.fingerprints[fingerprintKey{f.Digest, f.Size, resolution}]
		if !ok {
			continue
		}
		entries = append(entries, database.CachedEntry{Path: f.Path, Fingerprint: fp.Fingerprint})
	}
	slices.SortFunc(entries, func(a, b database.CachedEntry) int {
		switch {
		case a.Path < b.Path:
			return -1
		case a.Path > b.Path:
			return 1
		}
		return 0
	})
	return entries, nil
}

// AllFiles returns all file records sorted by path
func (m *MockCache) AllFiles(ctx context.Context) ([]database.StoredFile, error) {
	paths, err := m.ListPaths(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	files := make([]database.StoredFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, m.files[p])
	}
	return files, nil
}

// AllFingerprints returns all fingerprint records
func (m *MockCache) AllFingerprints(ctx context.Context) ([]database.StoredFingerprint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	fps := make([]database.StoredFingerprint, 0, len(m.fingerprints))
	for _, fp := range m.fingerprints {
		fps = append(fps, fp)
	}
	return fps, nil
}

// Stats returns row counts
func (m *MockCache) Stats(ctx context.Context) (*database.Stats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &database.Stats{
		Files:        int64(len(m.files)),
		Fingerprints: int64(len(m.fingerprints)),
		ByResolution: make(map[int]int64),
	}
	unique := make(map[contentid.Identity]struct{})
	for _, f := range m.files {
		unique[f.Identity()] = struct{}{}
	}
	stats.UniqueContents = int64(len(unique))
	for k := range m.fingerprints {
		stats.ByResolution[k.resolution]++
	}
	stats.ComputeDedupRatio()
	return stats, nil
}

// UpsertFile records a file
func (m *MockCache) UpsertFile(ctx context.Context, file database.StoredFile) error {
	if m.UpsertFileError != nil {
		return m.UpsertFileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[file.Path] = file
	return nil
}

// UpsertFingerprint inserts a fingerprint if its key is absent
func (m *MockCache) UpsertFingerprint(ctx context.Context, fp database.StoredFingerprint) error {
	if m.UpsertFingerprintError != nil {
		return m.UpsertFingerprintError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fingerprintKey{fp.Digest, fp.Size, fp.Fingerprint.Resolution}
	if _, ok := m.fingerprints[key]; ok {
		return nil
	}
	fp.Fingerprint.Bits = slices.Clone(fp.Fingerprint.Bits)
	m.fingerprints[key] = fp
	m.FingerprintInserts++
	return nil
}

// RemoveFile deletes a file record
func (m *MockCache) RemoveFile(ctx context.Context, path string) error {
	if m.RemoveFileError != nil {
		return m.RemoveFileError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, path)
	return nil
}

// RemoveMissingFiles deletes file records not in existing
func (m *MockCache) RemoveMissingFiles(ctx context.Context, existing map[string]struct{}) (int64, error) {
	if m.RemoveMissingError != nil {
		return 0, m.RemoveMissingError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for p := range m.files {
		if _, ok := existing[p]; !ok {
			delete(m.files, p)
			removed++
		}
	}
	return removed, nil
}

// RemoveOrphanFingerprints deletes fingerprints without a referencing file
func (m *MockCache) RemoveOrphanFingerprints(ctx context.Context) (int64, error) {
	if m.RemoveOrphansError != nil {
		return 0, m.RemoveOrphansError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	referenced := make(map[contentid.Identity]struct{}, len(m.files))
	for _, f := range m.files {
		referenced[f.Identity()] = struct{}{}
	}
	var removed int64
	for k := range m.fingerprints {
		if _, ok := referenced[contentid.Identity{Digest: k.digest, Size: k.size}]; !ok {
			delete(m.fingerprints, k)
			removed++
		}
	}
	return removed, nil
}

// ClearAll empties the cache
func (m *MockCache) ClearAll(ctx context.Context) error {
	if m.ClearAllError != nil {
		return m.ClearAllError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string]database.StoredFile)
	m.fingerprints = make(map[fingerprintKey]database.StoredFingerprint)
	return nil
}

// Close marks the cache closed
func (m *MockCache) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close was called
func (m *MockCache) Closed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}

// FileCount returns the number of file records
func (m *MockCache) FileCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}

// FingerprintCount returns the number of fingerprint records
func (m *MockCache) FingerprintCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.fingerprints)
}

var _ database.Cache = (*MockCache)(nil)
