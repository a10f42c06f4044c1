// Package sqlstore implements database.Cache over database/sql. Backends
// supply an open *sql.DB with the schema applied and pick a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/photo-dedup/internal/constants"
	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// Store is a SQL-backed fingerprint cache
type Store struct {
	db      *sql.DB
	dialect Dialect
	writeMu sync.Mutex
}

// New wraps db. The store takes ownership of db and closes it on Close.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// DB returns the underlying sql.DB.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Dialect returns the store's dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) lockWrites() func() {
	if !s.dialect.SerializeWrites {
		return func() {}
	}
	s.writeMu.Lock()
	return s.writeMu.Unlock
}

func (s *Store) q(query string) string {
	return s.dialect.Rebind(query)
}

// LookupByPath returns the record for a path, or nil if never seen.
func (s *Store) LookupByPath(ctx context.Context, path string) (*database.StoredFile, error) {
	var (
		f       database.StoredFile
		mtimeNS int64
		digest  []byte
	)
	err := s.db.QueryRowContext(ctx, s.q(`SELECT path, size, mtime_ns, digest FROM files WHERE path = ?`), path).
		Scan(&f.Path, &f.Size, &mtimeNS, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("lookup file", err)
	}
	if f.Digest, err = contentid.DigestFromBytes(digest); err != nil {
		return nil, database.Wrap("lookup file", err)
	}
	f.ModTime = time.Unix(0, mtimeNS)
	return &f, nil
}

// LookupFingerprint returns the fingerprint for an identity at a resolution, or nil.
func (s *Store) LookupFingerprint(ctx context.Context, digest contentid.Digest, size int64, resolution int) (*fingerprint.Fingerprint, error) {
	var bits []byte
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT bits FROM fingerprints WHERE digest = ? AND size = ? AND resolution = ?`),
		digest[:], size, resolution,
	).Scan(&bits)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Wrap("lookup fingerprint", err)
	}
	fp, err := fingerprint.FromBytes(resolution, bits)
	if err != nil {
		return nil, database.Wrap("lookup fingerprint", err)
	}
	return &fp, nil
}

// ListPaths returns every recorded path in ascending order.
func (s *Store) ListPaths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM files ORDER BY path`)
	if err != nil {
		return nil, database.Wrap("list paths", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, database.Wrap("scan path", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate paths", err)
	}
	return paths, nil
}

// Entries returns every file with a fingerprint at resolution, ordered by path.
func (s *Store) Entries(ctx context.Context, resolution int) ([]database.CachedEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT f.path, p.bits
		FROM files f
		JOIN fingerprints p ON p.digest = f.digest AND p.size = f.size
		WHERE p.resolution = ?
		ORDER BY f.path`), resolution)
	if err != nil {
		return nil, database.Wrap("query entries", err)
	}
	defer rows.Close()

	var entries []database.CachedEntry
	for rows.Next() {
		var (
			path string
			bits []byte
		)
		if err := rows.Scan(&path, &bits); err != nil {
			return nil, database.Wrap("scan entry", err)
		}
		fp, err := fingerprint.FromBytes(resolution, bits)
		if err != nil {
			return nil, database.Wrap(fmt.Sprintf("entry %s", path), err)
		}
		entries = append(entries, database.CachedEntry{Path: path, Fingerprint: fp})
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate entries", err)
	}
	return entries, nil
}

// AllFiles returns every file record ordered by path.
func (s *Store) AllFiles(ctx context.Context) ([]database.StoredFile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, size, mtime_ns, digest FROM files ORDER BY path`)
	if err != nil {
		return nil, database.Wrap("query files", err)
	}
	defer rows.Close()

	var files []database.StoredFile
	for rows.Next() {
		var (
			f       database.StoredFile
			mtimeNS int64
			digest  []byte
		)
		if err := rows.Scan(&f.Path, &f.Size, &mtimeNS, &digest); err != nil {
			return nil, database.Wrap("scan file", err)
		}
		if f.Digest, err = contentid.DigestFromBytes(digest); err != nil {
			return nil, database.Wrap(fmt.Sprintf("file %s", f.Path), err)
		}
		f.ModTime = time.Unix(0, mtimeNS)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate files", err)
	}
	return files, nil
}

// AllFingerprints returns every fingerprint record.
func (s *Store) AllFingerprints(ctx context.Context) ([]database.StoredFingerprint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT digest, size, resolution, bits, created_at FROM fingerprints ORDER BY digest, size, resolution`)
	if err != nil {
		return nil, database.Wrap("query fingerprints", err)
	}
	defer rows.Close()

	var fps []database.StoredFingerprint
	for rows.Next() {
		var (
			sf         database.StoredFingerprint
			digest     []byte
			resolution int
			bits       []byte
			createdAt  int64
		)
		if err := rows.Scan(&digest, &sf.Size, &resolution, &bits, &createdAt); err != nil {
			return nil, database.Wrap("scan fingerprint", err)
		}
		if sf.Digest, err = contentid.DigestFromBytes(digest); err != nil {
			return nil, database.Wrap("scan fingerprint", err)
		}
		if sf.Fingerprint, err = fingerprint.FromBytes(resolution, bits); err != nil {
			return nil, database.Wrap(fmt.Sprintf("fingerprint %s", sf.Digest), err)
		}
		sf.CreatedAt = time.Unix(createdAt, 0)
		fps = append(fps, sf)
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate fingerprints", err)
	}
	return fps, nil
}

// Stats returns row counts, per-resolution counts and the dedup ratio.
func (s *Store) Stats(ctx context.Context) (*database.Stats, error) {
	stats := &database.Stats{ByResolution: make(map[int]int64)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&stats.Files); err != nil {
		return nil, database.Wrap("count files", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM fingerprints`).Scan(&stats.Fingerprints); err != nil {
		return nil, database.Wrap("count fingerprints", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT DISTINCT digest, size FROM files) u`).Scan(&stats.UniqueContents); err != nil {
		return nil, database.Wrap("count unique contents", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT resolution, COUNT(*) FROM fingerprints GROUP BY resolution`)
	if err != nil {
		return nil, database.Wrap("count by resolution", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			res   int
			count int64
		)
		if err := rows.Scan(&res, &count); err != nil {
			return nil, database.Wrap("scan resolution count", err)
		}
		stats.ByResolution[res] = count
	}
	if err := rows.Err(); err != nil {
		return nil, database.Wrap("iterate resolution counts", err)
	}

	stats.ComputeDedupRatio()
	return stats, nil
}

// UpsertFile records or replaces the identity of a path.
func (s *Store) UpsertFile(ctx context.Context, file database.StoredFile) error {
	defer s.lockWrites()()
	_, err := s.db.ExecContext(ctx, s.q(s.dialect.UpsertFile),
		file.Path, file.Size, file.ModTime.UnixNano(), file.Digest[:])
	return database.Wrap("upsert file", err)
}

// UpsertFingerprint inserts a fingerprint unless its key already exists.
func (s *Store) UpsertFingerprint(ctx context.Context, fp database.StoredFingerprint) error {
	createdAt := fp.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	defer s.lockWrites()()
	_, err := s.db.ExecContext(ctx, s.q(s.dialect.InsertFingerprint),
		fp.Digest[:], fp.Size, fp.Fingerprint.Resolution, fp.Fingerprint.Bits, createdAt.Unix())
	return database.Wrap("insert fingerprint", err)
}

// RemoveFile deletes the record of one path.
func (s *Store) RemoveFile(ctx context.Context, path string) error {
	defer s.lockWrites()()
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM files WHERE path = ?`), path)
	return database.Wrap("remove file", err)
}

// RemoveMissingFiles deletes every file whose path is not in existing.
func (s *Store) RemoveMissingFiles(ctx context.Context, existing map[string]struct{}) (int64, error) {
	paths, err := s.ListPaths(ctx)
	if err != nil {
		return 0, err
	}
	var missing []string
	for _, p := range paths {
		if _, ok := existing[p]; !ok {
			missing = append(missing, p)
		}
	}

	defer s.lockWrites()()
	var removed int64
	for start := 0; start < len(missing); start += constants.CleanBatchSize {
		n, err := s.deletePaths(ctx, missing[start:min(start+constants.CleanBatchSize, len(missing))])
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *Store) deletePaths(ctx context.Context, paths []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, database.Wrap("begin delete", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.q(`DELETE FROM files WHERE path = ?`))
	if err != nil {
		return 0, database.Wrap("prepare delete", err)
	}
	defer stmt.Close()

	var removed int64
	for _, p := range paths {
		res, err := stmt.ExecContext(ctx, p)
		if err != nil {
			return 0, database.Wrap("delete file", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if err := tx.Commit(); err != nil {
		return 0, database.Wrap("commit delete", err)
	}
	return removed, nil
}

// RemoveOrphanFingerprints deletes fingerprints no file references.
func (s *Store) RemoveOrphanFingerprints(ctx context.Context) (int64, error) {
	defer s.lockWrites()()
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM fingerprints
		WHERE NOT EXISTS (
			SELECT 1 FROM files f
			WHERE f.digest = fingerprints.digest AND f.size = fingerprints.size
		)`)
	if err != nil {
		return 0, database.Wrap("remove orphans", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, database.Wrap("remove orphans", err)
	}
	return n, nil
}

// ClearAll empties both tables in one transaction.
func (s *Store) ClearAll(ctx context.Context) error {
	defer s.lockWrites()()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return database.Wrap("begin clear", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"files", "fingerprints"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return database.Wrap("clear "+table, err)
		}
	}
	return database.Wrap("commit clear", tx.Commit())
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database connection: %w", err)
	}
	return nil
}

var _ database.Cache = (*Store)(nil)
