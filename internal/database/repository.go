package database

import (
	"context"

	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// CacheReader provides read-only access to the fingerprint cache
type CacheReader interface {
	// LookupByPath returns the last recorded identity of a path, or nil if never seen
	LookupByPath(ctx context.Context, path string) (*StoredFile, error)
	// LookupFingerprint returns the fingerprint for a content identity at a resolution.
	// Returns nil when no row matches all of digest, size and resolution.
	LookupFingerprint(ctx context.Context, digest contentid.Digest, size int64, resolution int) (*fingerprint.Fingerprint, error)
	// ListPaths returns every recorded file path in ascending order
	ListPaths(ctx context.Context) ([]string, error)
	// Entries returns every file joined to its fingerprint at the given resolution, ordered by path
	Entries(ctx context.Context, resolution int) ([]CachedEntry, error)
	// AllFiles returns every file record ordered by path
	AllFiles(ctx context.Context) ([]StoredFile, error)
	// AllFingerprints returns every fingerprint record
	AllFingerprints(ctx context.Context) ([]StoredFingerprint, error)
	// Stats returns row counts and the deduplication ratio
	Stats(ctx context.Context) (*Stats, error)
}

// CacheWriter provides read-write access to the fingerprint cache
type CacheWriter interface {
	CacheReader
	// UpsertFile records or replaces the identity of a path
	UpsertFile(ctx context.Context, file StoredFile) error
	// UpsertFingerprint inserts a fingerprint; an existing row for the same key is left untouched
	UpsertFingerprint(ctx context.Context, fp StoredFingerprint) error
	// RemoveFile deletes the record of a single path
	RemoveFile(ctx context.Context, path string) error
}

// CacheMaintainer provides the maintenance operations that run without a scan
type CacheMaintainer interface {
	// RemoveMissingFiles deletes every file record whose path is not in existing
	RemoveMissingFiles(ctx context.Context, existing map[string]struct{}) (int64, error)
	// RemoveOrphanFingerprints deletes fingerprints no file record references
	RemoveOrphanFingerprints(ctx context.Context) (int64, error)
	// ClearAll empties both tables
	ClearAll(ctx context.Context) error
}

// Cache is the full cache store used by the scanner, the CLI and the web server
type Cache interface {
	CacheWriter
	CacheMaintainer
	// Close releases the underlying connection
	Close() error
}
