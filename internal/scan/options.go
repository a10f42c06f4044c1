package scan

import (
	"log/slog"
	"runtime"

	"github.com/kozaktomas/photo-dedup/internal/constants"
)

// CachePolicy decides what a scan does when the cache store fails.
type CachePolicy int

const (
	// CacheAbort stops the scan and returns the first cache error.
	CacheAbort CachePolicy = iota
	// CacheDegrade logs the first cache error and finishes the scan without the cache.
	CacheDegrade
)

func (p CachePolicy) String() string {
	switch p {
	case CacheAbort:
		return "abort"
	case CacheDegrade:
		return "degrade"
	default:
		return "unknown"
	}
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithResolution sets the fingerprint grid size.
func WithResolution(n int) Option {
	return func(s *Scanner) {
		s.resolution = n
	}
}

// WithThreshold sets the maximum Hamming distance for two files to be linked.
func WithThreshold(t int) Option {
	return func(s *Scanner) {
		s.threshold = t
	}
}

// WithWorkers sets the number of files processed concurrently.
// Values below one fall back to runtime.NumCPU.
func WithWorkers(n int) Option {
	return func(s *Scanner) {
		if n < 1 {
			n = runtime.NumCPU()
		}
		s.workers = n
	}
}

// WithLogger sets the logger used for per-file warnings.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProgress registers a callback invoked after every file. It is called
// from worker goroutines and must be safe for concurrent use.
func WithProgress(fn func(Progress)) Option {
	return func(s *Scanner) {
		s.progress = fn
	}
}

// WithRehash forces a full digest of every file, ignoring the size and
// modification time recorded in the cache.
func WithRehash(rehash bool) Option {
	return func(s *Scanner) {
		s.rehash = rehash
	}
}

// WithCachePolicy sets the behaviour on cache store failures.
func WithCachePolicy(p CachePolicy) Option {
	return func(s *Scanner) {
		s.policy = p
	}
}

func defaultScanner() *Scanner {
	return &Scanner{
		resolution: constants.DefaultGridSize,
		threshold:  constants.DefaultThreshold,
		workers:    runtime.NumCPU(),
		logger:     slog.New(slog.DiscardHandler),
		policy:     CacheAbort,
	}
}
