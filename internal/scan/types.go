package scan

import (
	"fmt"

	"github.com/kozaktomas/photo-dedup/internal/cluster"
	"github.com/kozaktomas/photo-dedup/internal/fingerprint"
)

// Status describes how a single file was resolved.
type Status string

const (
	StatusHit           Status = "hit"
	StatusMiss          Status = "miss"
	StatusDecodeFailure Status = "decode_failed"
	StatusIOFailure     Status = "io_failed"
	StatusCacheFailure  Status = "cache_failed"
)

// Progress is reported after each file.
type Progress struct {
	Done   int    `json:"done"`
	Total  int    `json:"total"`
	Path   string `json:"path"`
	Status Status `json:"status"`
}

// Entry is a file that was fingerprinted successfully.
type Entry struct {
	Path        string                  `json:"path"`
	Fingerprint fingerprint.Fingerprint `json:"fingerprint"`
	Cached      bool                    `json:"cached"`
}

// Stats counts what happened during a scan.
type Stats struct {
	Files          int  `json:"files"`           // unique input paths
	Hashed         int  `json:"hashed"`          // files whose content digest was computed
	CacheHits      int  `json:"cache_hits"`      // fingerprints served from the cache
	CacheMisses    int  `json:"cache_misses"`    // fingerprints computed from pixels
	DecodeFailures int  `json:"decode_failures"` // files skipped as undecodable
	IOFailures     int  `json:"io_failures"`     // files skipped as unreadable
	CacheErrors    int  `json:"cache_errors"`
	Degraded       bool `json:"degraded"` // the cache was abandoned part way through
}

// Skipped returns the number of files left out of clustering.
func (s Stats) Skipped() int {
	return s.DecodeFailures + s.IOFailures
}

// Result is the outcome of a scan.
type Result struct {
	Groups   []cluster.Group `json:"groups"`
	Entries  []Entry         `json:"-"`
	Failures []*FileError    `json:"failures,omitempty"`
	Stats    Stats           `json:"stats"`
}

// FileError records why a file was skipped.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}

// MarshalText renders the error for JSON reports.
func (e *FileError) MarshalText() ([]byte, error) {
	return []byte(e.Error()), nil
}
