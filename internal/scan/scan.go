// Package scan resolves fingerprints for a set of files through the cache and
// groups them into duplicate sets.
package scan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kozaktomas/photo-dedup/internal/cluster"
	"github.com/kozaktomas/photo-dedup/internal/config"
	"github.com/kozaktomas/photo-dedup/internal/contentid"
	"github.com/kozaktomas/photo-dedup/internal/database"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// Scanner runs scans against an optional cache store.
type Scanner struct {
	cache      database.Cache
	resolution int
	threshold  int
	workers    int
	logger     *slog.Logger
	progress   func(Progress)
	rehash     bool
	policy     CachePolicy
}

// New creates a scanner. A nil cache disables caching.
func New(cache database.Cache, opts ...Option) *Scanner {
	s := defaultScanner()
	s.cache = cache
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// run holds the mutable state of a single Scan call.
type run struct {
	total    int
	done     atomic.Int64
	degraded atomic.Bool

	hashed         atomic.Int64
	hits           atomic.Int64
	misses         atomic.Int64
	decodeFailures atomic.Int64
	ioFailures     atomic.Int64
	cacheErrors    atomic.Int64

	mu       sync.Mutex
	failures []*FileError
}

// Scan fingerprints paths and clusters them. Per-file read and decode failures
// are counted and skipped. A cache failure aborts the scan with an error
// wrapping database.ErrCache unless the scanner was built with CacheDegrade.
// Cancelling ctx stops scheduling new files and returns ctx.Err(); work
// already written to the cache stays valid.
func (s *Scanner) Scan(ctx context.Context, paths []string) (*Result, error) {
	if err := config.ValidateScan(s.resolution, s.threshold); err != nil {
		return nil, err
	}

	unique := dedupe(paths)
	r := &run{total: len(unique)}
	slots := make([]*Entry, len(unique))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, path := range unique {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			entry, status, err := s.processFile(gctx, r, path)
			if err != nil {
				return err
			}
			slots[i] = entry
			s.report(r, path, status)
			return nil
		})
	}
	waitErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if waitErr != nil {
		return nil, waitErr
	}

	entries := make([]Entry, 0, len(slots))
	for _, e := range slots {
		if e != nil {
			entries = append(entries, *e)
		}
	}

	groups, err := clusterEntries(ctx, entries, s.threshold, s.workers)
	if err != nil {
		return nil, err
	}

	slices.SortFunc(r.failures, func(a, b *FileError) int {
		return strings.Compare(a.Path, b.Path)
	})

	return &Result{
		Groups:   groups,
		Entries:  entries,
		Failures: r.failures,
		Stats: Stats{
			Files:          len(unique),
			Hashed:         int(r.hashed.Load()),
			CacheHits:      int(r.hits.Load()),
			CacheMisses:    int(r.misses.Load()),
			DecodeFailures: int(r.decodeFailures.Load()),
			IOFailures:     int(r.ioFailures.Load()),
			CacheErrors:    int(r.cacheErrors.Load()),
			Degraded:       r.degraded.Load(),
		},
	}, nil
}

// processFile resolves one file. A non-nil error is fatal for the scan; per-file
// failures are recorded on r and yield a nil entry.
func (s *Scanner) processFile(ctx context.Context, r *run, path string) (*Entry, Status, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, s.ioFailure(r, path, "stat", err), nil
	}
	if !info.Mode().IsRegular() {
		return nil, s.ioFailure(r, path, "stat", errors.New("not a regular file")), nil
	}

	var record *database.StoredFile
	if s.useCache(r) {
		record, err = s.cache.LookupByPath(ctx, path)
		if err != nil {
			if err := s.cacheFailure(r, path, "lookup file", err); err != nil {
				return nil, StatusCacheFailure, err
			}
			record = nil
		}
	}

	// The recorded identity is trusted only while size and mtime are unchanged.
	var id contentid.Identity
	var data []byte
	if record != nil && !s.rehash && record.Size == info.Size() && record.ModTime.Equal(info.ModTime()) {
		id = record.Identity()
	} else {
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, s.ioFailure(r, path, "read", err), nil
		}
		id, err = contentid.Compute(bytes.NewReader(data))
		if err != nil {
			return nil, s.ioFailure(r, path, "digest", err), nil
		}
		r.hashed.Add(1)
	}

	var fp *fingerprint.Fingerprint
	if s.useCache(r) {
		fp, err = s.cache.LookupFingerprint(ctx, id.Digest, id.Size, s.resolution)
		if err != nil {
			if err := s.cacheFailure(r, path, "lookup fingerprint", err); err != nil {
				return nil, StatusCacheFailure, err
			}
			fp = nil
		}
	}

	status := StatusHit
	if fp != nil {
		r.hits.Add(1)
	} else {
		status = StatusMiss
		computed, err := s.compute(path, data)
		if err != nil {
			if errors.Is(err, contentid.ErrIO) {
				return nil, s.ioFailure(r, path, "open", err), nil
			}
			return s.decodeFailure(ctx, r, path, record, err)
		}
		r.misses.Add(1)
		fp = &computed

		if s.useCache(r) {
			err := s.cache.UpsertFingerprint(ctx, database.StoredFingerprint{
				Digest:      id.Digest,
				Size:        id.Size,
				Fingerprint: computed,
				CreatedAt:   time.Now(),
			})
			if err != nil {
				if err := s.cacheFailure(r, path, "store fingerprint", err); err != nil {
					return nil, StatusCacheFailure, err
				}
			}
		}
	}

	if s.useCache(r) && !recordMatches(record, id, info.ModTime()) {
		err := s.cache.UpsertFile(ctx, database.StoredFile{
			Path:    path,
			Size:    id.Size,
			ModTime: info.ModTime(),
			Digest:  id.Digest,
		})
		if err != nil {
			if err := s.cacheFailure(r, path, "store file", err); err != nil {
				return nil, StatusCacheFailure, err
			}
		}
	}

	return &Entry{Path: path, Fingerprint: *fp, Cached: status == StatusHit}, status, nil
}

// compute fingerprints data, reading the file when the digest came from the cache.
func (s *Scanner) compute(path string, data []byte) (fingerprint.Fingerprint, error) {
	if data != nil {
		return fingerprint.FromReader(bytes.NewReader(data), s.resolution)
	}
	f, err := os.Open(path)
	if err != nil {
		return fingerprint.Fingerprint{}, fmt.Errorf("%w: %w", contentid.ErrIO, err)
	}
	defer f.Close()
	return fingerprint.FromReader(f, s.resolution)
}

func (s *Scanner) useCache(r *run) bool {
	return s.cache != nil && !r.degraded.Load()
}

func (s *Scanner) ioFailure(r *run, path, op string, err error) Status {
	if !errors.Is(err, contentid.ErrIO) {
		err = fmt.Errorf("%w: %w", contentid.ErrIO, err)
	}
	r.ioFailures.Add(1)
	s.logger.Warn("skipping unreadable file", "path", path, "error", err)
	r.addFailure(&FileError{Path: path, Op: op, Err: err})
	return StatusIOFailure
}

// decodeFailure drops the file and forgets its cache record, so the next scan
// retries it instead of trusting a stale identity.
func (s *Scanner) decodeFailure(ctx context.Context, r *run, path string, record *database.StoredFile, err error) (*Entry, Status, error) {
	r.decodeFailures.Add(1)
	s.logger.Warn("skipping undecodable file", "path", path, "error", err)
	r.addFailure(&FileError{Path: path, Op: "decode", Err: err})

	if record != nil && s.useCache(r) {
		if rmErr := s.cache.RemoveFile(ctx, path); rmErr != nil {
			if err := s.cacheFailure(r, path, "remove file", rmErr); err != nil {
				return nil, StatusCacheFailure, err
			}
		}
	}
	return nil, StatusDecodeFailure, nil
}

// cacheFailure applies the cache policy. It returns the error to abort with,
// or nil after switching the run to no-cache mode.
func (s *Scanner) cacheFailure(r *run, path, op string, err error) error {
	if !errors.Is(err, database.ErrCache) {
		err = database.Wrap(op, err)
	}
	r.cacheErrors.Add(1)

	if s.policy == CacheAbort {
		return &FileError{Path: path, Op: op, Err: err}
	}
	if r.degraded.CompareAndSwap(false, true) {
		s.logger.Warn("cache unavailable, continuing without it", "path", path, "error", err)
	}
	return nil
}

func (s *Scanner) report(r *run, path string, status Status) {
	done := int(r.done.Add(1))
	if s.progress != nil {
		s.progress(Progress{Done: done, Total: r.total, Path: path, Status: status})
	}
}

func (r *run) addFailure(fe *FileError) {
	r.mu.Lock()
	r.failures = append(r.failures, fe)
	r.mu.Unlock()
}

func recordMatches(record *database.StoredFile, id contentid.Identity, modTime time.Time) bool {
	return record != nil &&
		record.Digest == id.Digest &&
		record.Size == id.Size &&
		record.ModTime.Equal(modTime)
}

// FromCache clusters every file recorded in the cache at resolution without
// touching the filesystem.
func FromCache(ctx context.Context, cache database.CacheReader, resolution, threshold, workers int) (*Result, error) {
	if err := config.ValidateScan(resolution, threshold); err != nil {
		return nil, err
	}

	cached, err := cache.Entries(ctx, resolution)
	if err != nil {
		if !errors.Is(err, database.ErrCache) {
			err = database.Wrap("list entries", err)
		}
		return nil, err
	}

	entries := make([]Entry, len(cached))
	for i, c := range cached {
		entries[i] = Entry{Path: c.Path, Fingerprint: c.Fingerprint, Cached: true}
	}

	groups, err := clusterEntries(ctx, entries, threshold, workers)
	if err != nil {
		return nil, err
	}

	return &Result{
		Groups:  groups,
		Entries: entries,
		Stats: Stats{
			Files:     len(entries),
			CacheHits: len(entries),
		},
	}, nil
}

func clusterEntries(ctx context.Context, entries []Entry, threshold, workers int) ([]cluster.Group, error) {
	items := make([]cluster.Item, len(entries))
	for i, e := range entries {
		items[i] = cluster.Item{ID: e.Path, Fingerprint: e.Fingerprint}
	}

	groups, err := cluster.Cluster(ctx, items, threshold, workers)
	if err != nil {
		if errors.Is(err, cluster.ErrMixedResolution) ||
			errors.Is(err, cluster.ErrInvalidThreshold) ||
			errors.Is(err, cluster.ErrDuplicateID) {
			return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
		}
		return nil, err
	}
	return groups, nil
}

// dedupe drops repeated paths, keeping the first occurrence.
func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
